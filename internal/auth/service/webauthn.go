package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/pastvault/pastvault/internal/auth/domain"
	"github.com/pastvault/pastvault/internal/auth/store"
	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// assertionVerifier is the slice of *webauthn.WebAuthn the strategies use.
// Tests substitute it to drive ceremonies without real authenticator crypto.
type assertionVerifier interface {
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateDiscoverableLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
}

// parseAssertion is injectable for tests; production uses the protocol parser.
var parseAssertion = func(body json.RawMessage) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBody(bytes.NewReader(body))
}

var parseAttestation = func(body json.RawMessage) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBody(bytes.NewReader(body))
}

// WebAuthnStrategy verifies passkey assertions for users whose active factor
// is webauthn. Challenge state lives in the store, not in server memory, so
// any replica can finish a ceremony another one started.
type WebAuthnStrategy struct {
	Store    store.Store
	Verifier assertionVerifier
}

func (s *WebAuthnStrategy) Method() string { return authapi.MFAMethodWebAuthn }

// Challenge begins an assertion ceremony scoped to the user's registered
// credentials and persists the session data under the user's id.
func (s *WebAuthnStrategy) Challenge(ctx context.Context, user domain.User) (json.RawMessage, error) {
	wu, err := loadWebauthnUser(ctx, s.Store, user)
	if err != nil {
		return nil, err
	}
	if len(wu.creds) == 0 {
		return nil, ErrMFANotConfigured
	}

	assertion, session, err := s.Verifier.BeginLogin(wu)
	if err != nil {
		return nil, fmt.Errorf("begin login: %w", err)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	err = s.Store.MFAChallenges().UpsertMFAChallenge(ctx, domain.MFAChallenge{
		UserID:    user.ID,
		Method:    s.Method(),
		Payload:   payload,
		ExpiresAt: time.Now().Add(domain.ChallengeTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	options, err := json.Marshal(assertion)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}
	return options, nil
}

func (s *WebAuthnStrategy) Verify(ctx context.Context, user domain.User, _ string, assertion json.RawMessage) error {
	if len(assertion) == 0 {
		return ErrInvalidMFACode
	}

	challenge, err := s.Store.MFAChallenges().GetMFAChallenge(ctx, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrChallengeExpired
		}
		return fmt.Errorf("load challenge: %w", err)
	}
	if challenge.Method != s.Method() {
		return ErrChallengeExpired
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(challenge.Payload, &session); err != nil {
		return fmt.Errorf("unmarshal session: %w", err)
	}

	parsed, err := parseAssertion(assertion)
	if err != nil {
		return ErrInvalidMFACode
	}

	wu, err := loadWebauthnUser(ctx, s.Store, user)
	if err != nil {
		return err
	}

	cred, err := s.Verifier.ValidateLogin(wu, session, parsed)

	// One shot either way: the challenge is burned before the outcome is
	// reported so a failed assertion cannot be retried against it.
	if delErr := s.Store.MFAChallenges().DeleteMFAChallenge(ctx, user.ID); delErr != nil {
		slogx.FromContext(ctx).Warn("failed to delete mfa challenge", "error", delErr)
	}

	if err != nil {
		return ErrInvalidMFACode
	}
	if cred.Authenticator.CloneWarning {
		return ErrInvalidMFACode
	}

	if err := advanceCounter(ctx, s.Store, cred); err != nil {
		if errors.Is(err, store.ErrStaleCounter) {
			slogx.FromContext(ctx).Warn("stale signature counter",
				"user_id", user.ID, "credential_id", credentialID(cred.ID))
			return ErrInvalidMFACode
		}
		return err
	}
	return nil
}

// advanceCounter persists the post-assertion signature counter. The update is
// conditional in the store, so of two concurrent assertions carrying the same
// counter exactly one advances it; the other gets store.ErrStaleCounter. A
// stale counter means a replayed or rewound assertion and the verification
// must not stand.
func advanceCounter(ctx context.Context, st store.Store, cred *webauthn.Credential) error {
	id := credentialID(cred.ID)
	err := st.Credentials().UpdateCredentialCounter(ctx, id, cred.Authenticator.SignCount)
	if errors.Is(err, store.ErrStaleCounter) {
		return store.ErrStaleCounter
	}
	if err != nil {
		return fmt.Errorf("update counter: %w", err)
	}
	return nil
}

// webauthnUser adapts a domain user and their stored credentials to the
// webauthn.User interface.
type webauthnUser struct {
	user  domain.User
	creds []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte                         { return []byte(u.user.ID) }
func (u *webauthnUser) WebAuthnName() string                       { return u.user.Username }
func (u *webauthnUser) WebAuthnDisplayName() string                { return u.user.Username }
func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func loadWebauthnUser(ctx context.Context, st store.Store, user domain.User) (*webauthnUser, error) {
	stored, err := st.Credentials().ListUserCredentials(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	creds := make([]webauthn.Credential, 0, len(stored))
	for _, c := range stored {
		wc, err := toWebauthnCredential(c)
		if err != nil {
			return nil, err
		}
		creds = append(creds, wc)
	}
	return &webauthnUser{user: user, creds: creds}, nil
}

func toWebauthnCredential(c domain.Credential) (webauthn.Credential, error) {
	rawID, err := base64.RawURLEncoding.DecodeString(c.ID)
	if err != nil {
		return webauthn.Credential{}, fmt.Errorf("decode credential id: %w", err)
	}

	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}

	return webauthn.Credential{
		ID:              rawID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			SignCount:    c.SignCount,
			CloneWarning: c.CloneWarning,
		},
	}, nil
}

func fromWebauthnCredential(userID string, label string, cred *webauthn.Credential) domain.Credential {
	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}

	return domain.Credential{
		ID:              credentialID(cred.ID),
		UserID:          userID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		Transports:      transports,
		SignCount:       cred.Authenticator.SignCount,
		CloneWarning:    cred.Authenticator.CloneWarning,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
		Label:           label,
	}
}

func credentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}
