package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret, "pastvault-test")
	require.NoError(t, err)
	return c
}

func TestNewCodecRejectsShortSecrets(t *testing.T) {
	t.Parallel()

	_, err := NewCodec([]byte("too-short"), "iss")
	require.Error(t, err)
}

func TestPreAuthRoundTrip(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t)

	claims := NewPreAuthClaims("user-1", "alice", "pastvault-test", DefaultPreAuthTTL, time.Now())
	token, err := c.Sign(claims)
	require.NoError(t, err)

	got, err := c.VerifyPreAuth(token)
	require.NoError(t, err)
	require.Equal(t, TokenTypePreAuth, got.Type)
	require.Equal(t, "user-1", got.UserID)
	require.Equal(t, "alice", got.Username)
	require.False(t, got.MFAVerified)
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t)

	claims := NewSessionClaims("user-1", "alice", "pastvault-test", false, DefaultSessionTTL, time.Now())
	token, err := c.Sign(claims)
	require.NoError(t, err)

	got, err := c.VerifySession(token)
	require.NoError(t, err)
	require.Equal(t, TokenTypeSession, got.Type)
	require.True(t, got.MFAVerified, "session claims always carry mfa_verified")
	require.False(t, got.OnboardingComplete)
}

func TestTokenClassesAreNotInterchangeable(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t)

	preAuth, err := c.Sign(NewPreAuthClaims("u", "n", "pastvault-test", DefaultPreAuthTTL, time.Now()))
	require.NoError(t, err)
	session, err := c.Sign(NewSessionClaims("u", "n", "pastvault-test", true, DefaultSessionTTL, time.Now()))
	require.NoError(t, err)

	_, err = c.VerifySession(preAuth)
	require.ErrorIs(t, err, ErrWrongType)

	_, err = c.VerifyPreAuth(session)
	require.ErrorIs(t, err, ErrWrongType)
}

func TestVerifyRejectsExpiredTokens(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t)

	issued := time.Now().Add(-time.Hour)
	token, err := c.Sign(NewPreAuthClaims("u", "n", "pastvault-test", time.Minute, issued))
	require.NoError(t, err)

	_, err = c.VerifyPreAuth(token)
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsForeignSignatures(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t)

	other, err := NewCodec([]byte("ffffffffffffffffffffffffffffffff"), "pastvault-test")
	require.NoError(t, err)

	token, err := other.Sign(NewSessionClaims("u", "n", "pastvault-test", true, time.Hour, time.Now()))
	require.NoError(t, err)

	_, err = c.VerifySession(token)
	require.ErrorIs(t, err, ErrInvalidSig)
}

func TestVerifyRejectsWrongIssuerAndGarbage(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t)

	foreign, err := NewCodec(testSecret, "someone-else")
	require.NoError(t, err)
	token, err := foreign.Sign(NewSessionClaims("u", "n", "someone-else", true, time.Hour, time.Now()))
	require.NoError(t, err)

	_, err = c.VerifySession(token)
	require.Error(t, err)

	_, err = c.VerifySession("not.a.jwt")
	require.ErrorIs(t, err, ErrMalformed)
}
