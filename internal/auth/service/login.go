package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pastvault/pastvault/internal/auth/domain"
	"github.com/pastvault/pastvault/internal/auth/store"
	"github.com/pastvault/pastvault/pkg/cryptox"
	"github.com/pastvault/pastvault/pkg/jwtx"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// LoginService owns the password login flow and factor verification. It is
// the only place session tokens are minted.
type LoginService struct {
	Store      store.Store
	Codec      *jwtx.Codec
	Registry   *Registry
	PreAuthTTL time.Duration
	SessionTTL time.Duration
}

func NewLoginService(st store.Store, codec *jwtx.Codec, registry *Registry) *LoginService {
	return &LoginService{
		Store:      st,
		Codec:      codec,
		Registry:   registry,
		PreAuthTTL: jwtx.DefaultPreAuthTTL,
		SessionTTL: jwtx.DefaultSessionTTL,
	}
}

// LoginResult carries the outcome of a successful password check. Exactly
// one token is issued: pre-auth when a factor is still outstanding, session
// otherwise.
type LoginResult struct {
	User        domain.User
	Roles       []string
	MFARequired bool
	MFAMethod   string
	Token       string
	TokenType   jwtx.TokenType
}

// Login verifies a username/password pair. Unknown users burn the same hash
// work as real ones so the timing and the error are indistinguishable.
func (s *LoginService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			cryptox.DummyVerify(password)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrMismatch) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("verify password: %w", err)
	}

	if user.MFAEnabled && user.MFAMethod != nil {
		claims := jwtx.NewPreAuthClaims(user.ID, user.Username, s.Codec.Issuer(), s.PreAuthTTL, time.Now())
		token, err := s.Codec.Sign(claims)
		if err != nil {
			return LoginResult{}, fmt.Errorf("sign pre-auth token: %w", err)
		}

		slogx.FromContext(ctx).Info("password verified, factor outstanding",
			"user_id", user.ID, "method", *user.MFAMethod)

		return LoginResult{
			User:        user,
			MFARequired: true,
			MFAMethod:   *user.MFAMethod,
			Token:       token,
			TokenType:   jwtx.TokenTypePreAuth,
		}, nil
	}

	return s.issueSession(ctx, user)
}

// Challenge prepares factor challenge material for a half-authenticated user.
// The strategy is resolved from the requested method and must match the
// user's active factor.
func (s *LoginService) Challenge(ctx context.Context, userID, method string) (string, json.RawMessage, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrUserNotFound
		}
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}

	strategy, err := s.Registry.Get(method)
	if err != nil {
		return "", nil, err
	}
	active, err := s.Registry.ForUser(user)
	if err != nil {
		return "", nil, err
	}
	if strategy.Method() != active.Method() {
		return "", nil, ErrUnsupportedMFAMethod
	}

	options, err := strategy.Challenge(ctx, user)
	if err != nil {
		return "", nil, err
	}
	return strategy.Method(), options, nil
}

// VerifyFactor checks the submitted proof against the user's active factor
// and upgrades the login to a full session on success. The method must match
// the user's active factor; a registered but inactive strategy is not an
// escape hatch.
func (s *LoginService) VerifyFactor(ctx context.Context, userID, method, code string, assertion json.RawMessage) (LoginResult, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrUserNotFound
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	strategy, err := s.Registry.ForUser(user)
	if err != nil {
		return LoginResult{}, err
	}
	if method != "" && method != strategy.Method() {
		return LoginResult{}, ErrUnsupportedMFAMethod
	}

	if err := strategy.Verify(ctx, user, code, assertion); err != nil {
		slogx.FromContext(ctx).Warn("factor verification failed",
			"user_id", user.ID, "method", strategy.Method(), "error", err)
		return LoginResult{}, err
	}

	return s.issueSession(ctx, user)
}

// IssueSessionFor mints a session token for a user already authenticated by
// other means, e.g. a discoverable passkey assertion.
func (s *LoginService) IssueSessionFor(ctx context.Context, user domain.User) (LoginResult, error) {
	return s.issueSession(ctx, user)
}

func (s *LoginService) issueSession(ctx context.Context, user domain.User) (LoginResult, error) {
	roles, err := s.Store.Roles().GetRolesForUser(ctx, user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("load roles: %w", err)
	}

	claims := jwtx.NewSessionClaims(
		user.ID, user.Username, s.Codec.Issuer(),
		user.OnboardingComplete(), s.SessionTTL, time.Now(),
	)
	token, err := s.Codec.Sign(claims)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign session token: %w", err)
	}

	slogx.FromContext(ctx).Info("session issued", "user_id", user.ID)

	return LoginResult{
		User:      user,
		Roles:     roles,
		Token:     token,
		TokenType: jwtx.TokenTypeSession,
	}, nil
}
