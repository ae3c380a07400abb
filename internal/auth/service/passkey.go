package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/pastvault/pastvault/internal/auth/domain"
	"github.com/pastvault/pastvault/internal/auth/store"
	"github.com/pastvault/pastvault/pkg/idx"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// PasskeyService runs discoverable (usernameless) passkey logins. No user is
// known when the ceremony starts, so challenge state is keyed by a generated
// id the client echoes back, not by a user.
type PasskeyService struct {
	Store    store.Store
	Verifier assertionVerifier
	Login    *LoginService
}

// Begin starts a discoverable assertion ceremony and returns the challenge
// reference plus the assertion options for the client.
func (s *PasskeyService) Begin(ctx context.Context) (string, json.RawMessage, error) {
	assertion, session, err := s.Verifier.BeginDiscoverableLogin()
	if err != nil {
		return "", nil, fmt.Errorf("begin discoverable login: %w", err)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return "", nil, fmt.Errorf("marshal session: %w", err)
	}

	id := idx.New().String()
	err = s.Store.LoginChallenges().CreateLoginChallenge(ctx, domain.LoginChallenge{
		ID:        id,
		Payload:   payload,
		ExpiresAt: time.Now().Add(domain.ChallengeTTL),
	})
	if err != nil {
		return "", nil, fmt.Errorf("store challenge: %w", err)
	}

	options, err := json.Marshal(assertion)
	if err != nil {
		return "", nil, fmt.Errorf("marshal options: %w", err)
	}
	return id, options, nil
}

// Finish validates the assertion against the stored challenge, identifies the
// account from the authenticator's user handle and issues a full session.
// A passkey assertion is single-factor-complete: it proves possession and
// user verification in one step, so no pre-auth detour happens here.
func (s *PasskeyService) Finish(ctx context.Context, challengeID string, assertion json.RawMessage) (LoginResult, error) {
	challenge, err := s.Store.LoginChallenges().ConsumeLoginChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrChallengeExpired
		}
		return LoginResult{}, fmt.Errorf("load challenge: %w", err)
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(challenge.Payload, &session); err != nil {
		return LoginResult{}, fmt.Errorf("unmarshal session: %w", err)
	}

	parsed, err := parseAssertion(assertion)
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	// The handler resolves the account named by the authenticator's user
	// handle. It runs inside validation so a bogus handle fails the ceremony,
	// not the lookup.
	var matched domain.User
	handler := func(rawID, userHandle []byte) (webauthn.User, error) {
		user, err := s.Store.Users().GetUserByID(ctx, string(userHandle))
		if err != nil {
			return nil, err
		}
		matched = user
		return loadWebauthnUser(ctx, s.Store, user)
	}

	cred, err := s.Verifier.ValidateDiscoverableLogin(handler, session, parsed)
	if err != nil {
		slogx.FromContext(ctx).Warn("passkey login failed", "error", err)
		return LoginResult{}, ErrInvalidCredentials
	}
	if cred.Authenticator.CloneWarning {
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := advanceCounter(ctx, s.Store, cred); err != nil {
		if errors.Is(err, store.ErrStaleCounter) {
			slogx.FromContext(ctx).Warn("stale signature counter on passkey login",
				"user_id", matched.ID)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	return s.Login.IssueSessionFor(ctx, matched)
}
