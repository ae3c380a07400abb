package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/pastvault/pastvault/internal/auth/domain"
	"github.com/pastvault/pastvault/internal/auth/store"
	"github.com/pastvault/pastvault/internal/auth/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

// fakeVerifier drives WebAuthn ceremonies without authenticator crypto.
type fakeVerifier struct {
	cred        *webauthn.Credential
	beginErr    error
	validateErr error
	rawID       []byte
	userHandle  []byte
}

func (f *fakeVerifier) BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	if f.beginErr != nil {
		return nil, nil, f.beginErr
	}
	return &protocol.CredentialAssertion{}, &webauthn.SessionData{
		Challenge: "test-challenge",
		UserID:    user.WebAuthnID(),
	}, nil
}

func (f *fakeVerifier) ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	return f.cred, nil
}

func (f *fakeVerifier) BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	if f.beginErr != nil {
		return nil, nil, f.beginErr
	}
	return &protocol.CredentialAssertion{}, &webauthn.SessionData{Challenge: "test-challenge"}, nil
}

func (f *fakeVerifier) ValidateDiscoverableLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	if _, err := handler(f.rawID, f.userHandle); err != nil {
		return nil, err
	}
	return f.cred, nil
}

func (f *fakeVerifier) BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	if f.beginErr != nil {
		return nil, nil, f.beginErr
	}
	return &protocol.CredentialCreation{}, &webauthn.SessionData{
		Challenge: "test-challenge",
		UserID:    user.WebAuthnID(),
	}, nil
}

func (f *fakeVerifier) CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	return f.cred, nil
}

// stubParsers bypasses wire-format parsing; these tests exercise flow and
// state handling, not the protocol package.
func stubParsers(t *testing.T) {
	t.Helper()

	origAssertion := parseAssertion
	origAttestation := parseAttestation
	parseAssertion = func(body json.RawMessage) (*protocol.ParsedCredentialAssertionData, error) {
		return &protocol.ParsedCredentialAssertionData{}, nil
	}
	parseAttestation = func(body json.RawMessage) (*protocol.ParsedCredentialCreationData, error) {
		return &protocol.ParsedCredentialCreationData{}, nil
	}
	t.Cleanup(func() {
		parseAssertion = origAssertion
		parseAttestation = origAttestation
	})
}

func seedWebauthnUser(t *testing.T, s *sqlite.Store, username string, rawID []byte) domain.User {
	t.Helper()
	ctx := context.Background()

	u := createUser(t, s, username, userOpts{})
	require.NoError(t, s.Credentials().CreateCredential(ctx, domain.Credential{
		ID:        credentialID(rawID),
		UserID:    u.ID,
		PublicKey: []byte{1, 2, 3},
		SignCount: 1,
	}))
	require.NoError(t, s.Users().EnableMFA(ctx, u.ID, "webauthn"))

	refreshed, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	return refreshed
}

func TestWebAuthnChallengePersistsSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rawID := []byte("cred-raw-id")
	user := seedWebauthnUser(t, s, "alice", rawID)

	strategy := &WebAuthnStrategy{Store: s, Verifier: &fakeVerifier{}}
	options, err := strategy.Challenge(ctx, user)
	require.NoError(t, err)
	require.NotEmpty(t, options)

	challenge, err := s.MFAChallenges().GetMFAChallenge(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "webauthn", challenge.Method)

	var session webauthn.SessionData
	require.NoError(t, json.Unmarshal(challenge.Payload, &session))
	require.Equal(t, "test-challenge", session.Challenge)
}

func TestWebAuthnChallengeWithoutCredentials(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := createUser(t, s, "alice", userOpts{})

	strategy := &WebAuthnStrategy{Store: s, Verifier: &fakeVerifier{}}
	_, err := strategy.Challenge(ctx, user)
	require.ErrorIs(t, err, ErrMFANotConfigured)
}

func TestWebAuthnVerifyAdvancesCounter(t *testing.T) {
	stubParsers(t)
	ctx := context.Background()
	s := newTestStore(t)

	rawID := []byte("cred-raw-id")
	user := seedWebauthnUser(t, s, "alice", rawID)

	verifier := &fakeVerifier{cred: &webauthn.Credential{
		ID:            rawID,
		Authenticator: webauthn.Authenticator{SignCount: 7},
	}}
	strategy := &WebAuthnStrategy{Store: s, Verifier: verifier}

	_, err := strategy.Challenge(ctx, user)
	require.NoError(t, err)

	require.NoError(t, strategy.Verify(ctx, user, "", json.RawMessage(`{}`)))

	cred, err := s.Credentials().GetCredentialByID(ctx, credentialID(rawID))
	require.NoError(t, err)
	require.EqualValues(t, 7, cred.SignCount)

	// Challenge was burned by the verification.
	_, err = s.MFAChallenges().GetMFAChallenge(ctx, user.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWebAuthnVerifyWithoutChallenge(t *testing.T) {
	stubParsers(t)
	ctx := context.Background()
	s := newTestStore(t)
	user := seedWebauthnUser(t, s, "alice", []byte("cred-raw-id"))

	strategy := &WebAuthnStrategy{Store: s, Verifier: &fakeVerifier{}}
	err := strategy.Verify(ctx, user, "", json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrChallengeExpired)
}

func TestWebAuthnVerifyFailureBurnsChallenge(t *testing.T) {
	stubParsers(t)
	ctx := context.Background()
	s := newTestStore(t)

	rawID := []byte("cred-raw-id")
	user := seedWebauthnUser(t, s, "alice", rawID)

	verifier := &fakeVerifier{validateErr: protocol.ErrVerification}
	strategy := &WebAuthnStrategy{Store: s, Verifier: verifier}

	_, err := strategy.Challenge(ctx, user)
	require.NoError(t, err)

	err = strategy.Verify(ctx, user, "", json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrInvalidMFACode)

	// The failed attempt consumed the challenge; a retry needs a new one.
	err = strategy.Verify(ctx, user, "", json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrChallengeExpired)
}

func TestWebAuthnVerifyRejectsClonedAuthenticator(t *testing.T) {
	stubParsers(t)
	ctx := context.Background()
	s := newTestStore(t)

	rawID := []byte("cred-raw-id")
	user := seedWebauthnUser(t, s, "alice", rawID)

	verifier := &fakeVerifier{cred: &webauthn.Credential{
		ID:            rawID,
		Authenticator: webauthn.Authenticator{SignCount: 9, CloneWarning: true},
	}}
	strategy := &WebAuthnStrategy{Store: s, Verifier: verifier}

	_, err := strategy.Challenge(ctx, user)
	require.NoError(t, err)

	err = strategy.Verify(ctx, user, "", json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrInvalidMFACode)
}

func TestWebAuthnVerifyRejectsStaleCounter(t *testing.T) {
	stubParsers(t)
	ctx := context.Background()
	s := newTestStore(t)

	rawID := []byte("cred-raw-id")
	user := seedWebauthnUser(t, s, "alice", rawID)

	// Counter equal to the stored value: the assertion was replayed or lost
	// a race against one that already advanced the counter.
	verifier := &fakeVerifier{cred: &webauthn.Credential{
		ID:            rawID,
		Authenticator: webauthn.Authenticator{SignCount: 1},
	}}
	strategy := &WebAuthnStrategy{Store: s, Verifier: verifier}

	_, err := strategy.Challenge(ctx, user)
	require.NoError(t, err)

	err = strategy.Verify(ctx, user, "", json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrInvalidMFACode)

	cred, err := s.Credentials().GetCredentialByID(ctx, credentialID(rawID))
	require.NoError(t, err)
	require.EqualValues(t, 1, cred.SignCount)
}

func TestWebAuthnVerifyReplayedAssertionFailsSecondTime(t *testing.T) {
	stubParsers(t)
	ctx := context.Background()
	s := newTestStore(t)

	rawID := []byte("cred-raw-id")
	user := seedWebauthnUser(t, s, "alice", rawID)

	verifier := &fakeVerifier{cred: &webauthn.Credential{
		ID:            rawID,
		Authenticator: webauthn.Authenticator{SignCount: 5},
	}}
	strategy := &WebAuthnStrategy{Store: s, Verifier: verifier}

	// First presentation advances the counter from 1 to 5.
	_, err := strategy.Challenge(ctx, user)
	require.NoError(t, err)
	require.NoError(t, strategy.Verify(ctx, user, "", json.RawMessage(`{}`)))

	// The same assertion presented again carries a counter that no longer
	// moves forward, so the second verification must fail even with a fresh
	// challenge.
	_, err = strategy.Challenge(ctx, user)
	require.NoError(t, err)
	err = strategy.Verify(ctx, user, "", json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrInvalidMFACode)

	cred, err := s.Credentials().GetCredentialByID(ctx, credentialID(rawID))
	require.NoError(t, err)
	require.EqualValues(t, 5, cred.SignCount)
}
