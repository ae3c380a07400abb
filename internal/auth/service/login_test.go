package service

import (
	"context"
	"testing"
	"time"

	"github.com/pastvault/pastvault/internal/auth/domain"
	"github.com/pastvault/pastvault/internal/auth/store/drivers/sqlite"
	"github.com/pastvault/pastvault/pkg/cryptox"
	"github.com/pastvault/pastvault/pkg/idx"
	"github.com/pastvault/pastvault/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func newTestCodec(t *testing.T) *jwtx.Codec {
	t.Helper()

	c, err := jwtx.NewCodec([]byte("0123456789abcdef0123456789abcdef"), "pastvault-test")
	require.NoError(t, err)
	return c
}

type userOpts struct {
	password   string
	onboarded  bool
	totpSecret string
}

func createUser(t *testing.T, s *sqlite.Store, username string, opts userOpts) domain.User {
	t.Helper()

	if opts.password == "" {
		opts.password = "correct-horse-battery"
	}
	hash, err := cryptox.HashPassword(opts.password)
	require.NoError(t, err)

	u := domain.User{
		ID:                     idx.New().String(),
		Username:               username,
		PasswordHash:           hash,
		PasswordChangeRequired: !opts.onboarded,
		MFASetupRequired:       !opts.onboarded,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))

	if opts.totpSecret != "" {
		require.NoError(t, s.Users().SetTOTPSecret(context.Background(), u.ID, opts.totpSecret))
		require.NoError(t, s.Users().EnableMFA(context.Background(), u.ID, "totp"))
		refreshed, err := s.Users().GetUserByID(context.Background(), u.ID)
		require.NoError(t, err)
		return refreshed
	}
	return u
}

func newLoginService(t *testing.T, s *sqlite.Store) *LoginService {
	t.Helper()

	registry := NewRegistry(&TOTPStrategy{Store: s})
	return NewLoginService(s, newTestCodec(t), registry)
}

func TestLoginUnknownUser(t *testing.T) {
	ctx := context.Background()
	svc := newLoginService(t, newTestStore(t))

	_, err := svc.Login(ctx, "ghost", "whatever-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginWrongPassword(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newLoginService(t, s)
	createUser(t, s, "alice", userOpts{password: "right-password-123"})

	_, err := svc.Login(ctx, "alice", "wrong-password-456")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginWithoutFactorIssuesSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newLoginService(t, s)
	createUser(t, s, "alice", userOpts{password: "right-password-123", onboarded: true})

	result, err := svc.Login(ctx, "alice", "right-password-123")
	require.NoError(t, err)
	require.False(t, result.MFARequired)
	require.Equal(t, jwtx.TokenTypeSession, result.TokenType)

	claims, err := svc.Codec.VerifySession(result.Token)
	require.NoError(t, err)
	require.True(t, claims.MFAVerified)
	require.True(t, claims.OnboardingComplete)
}

func TestLoginWithFactorIssuesPreAuthOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newLoginService(t, s)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "alice"})
	require.NoError(t, err)
	createUser(t, s, "alice", userOpts{password: "right-password-123", totpSecret: key.Secret()})

	result, err := svc.Login(ctx, "alice", "right-password-123")
	require.NoError(t, err)
	require.True(t, result.MFARequired)
	require.Equal(t, "totp", result.MFAMethod)
	require.Equal(t, jwtx.TokenTypePreAuth, result.TokenType)

	// The pre-auth token must not pass as a session token.
	_, err = svc.Codec.VerifySession(result.Token)
	require.ErrorIs(t, err, jwtx.ErrWrongType)

	claims, err := svc.Codec.VerifyPreAuth(result.Token)
	require.NoError(t, err)
	require.False(t, claims.MFAVerified)
}

func TestVerifyFactorTOTP(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newLoginService(t, s)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "alice"})
	require.NoError(t, err)
	user := createUser(t, s, "alice", userOpts{totpSecret: key.Secret()})

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	result, err := svc.VerifyFactor(ctx, user.ID, "totp", code, nil)
	require.NoError(t, err)
	require.Equal(t, jwtx.TokenTypeSession, result.TokenType)

	claims, err := svc.Codec.VerifySession(result.Token)
	require.NoError(t, err)
	require.True(t, claims.MFAVerified)
}

func TestVerifyFactorRejectsBadCode(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newLoginService(t, s)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "alice"})
	require.NoError(t, err)
	user := createUser(t, s, "alice", userOpts{totpSecret: key.Secret()})

	_, err = svc.VerifyFactor(ctx, user.ID, "totp", "000000", nil)
	require.ErrorIs(t, err, ErrInvalidMFACode)

	// Garbage that matches neither code shape fails fast.
	_, err = svc.VerifyFactor(ctx, user.ID, "totp", "not-a-code", nil)
	require.ErrorIs(t, err, ErrInvalidMFACode)
}

func TestVerifyFactorBackupCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newLoginService(t, s)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "alice"})
	require.NoError(t, err)
	user := createUser(t, s, "alice", userOpts{totpSecret: key.Secret()})

	code, err := cryptox.GenerateBackupCode()
	require.NoError(t, err)
	hash, err := cryptox.HashPassword(code)
	require.NoError(t, err)
	require.NoError(t, s.BackupCodes().CreateBackupCode(ctx, domain.BackupCode{
		ID: idx.New().String(), UserID: user.ID, CodeHash: hash,
	}))

	result, err := svc.VerifyFactor(ctx, user.ID, "totp", code, nil)
	require.NoError(t, err)
	require.Equal(t, jwtx.TokenTypeSession, result.TokenType)

	// The code was consumed; a replay fails.
	_, err = svc.VerifyFactor(ctx, user.ID, "totp", code, nil)
	require.ErrorIs(t, err, ErrInvalidMFACode)
}

func TestVerifyFactorWrongMethod(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newLoginService(t, s)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "alice"})
	require.NoError(t, err)
	user := createUser(t, s, "alice", userOpts{totpSecret: key.Secret()})

	_, err = svc.VerifyFactor(ctx, user.ID, "webauthn", "", nil)
	require.ErrorIs(t, err, ErrUnsupportedMFAMethod)
}

func TestVerifyFactorWithoutConfiguredFactor(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newLoginService(t, s)
	user := createUser(t, s, "alice", userOpts{})

	_, err := svc.VerifyFactor(ctx, user.ID, "totp", "123456", nil)
	require.ErrorIs(t, err, ErrMFANotConfigured)
}

func TestChallengeForTOTPIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newLoginService(t, s)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "alice"})
	require.NoError(t, err)
	user := createUser(t, s, "alice", userOpts{totpSecret: key.Secret()})

	method, options, err := svc.Challenge(ctx, user.ID, "totp")
	require.NoError(t, err)
	require.Equal(t, "totp", method)
	require.Nil(t, options)
}

func TestChallengeUnknownMethod(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newLoginService(t, s)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "alice"})
	require.NoError(t, err)
	user := createUser(t, s, "alice", userOpts{totpSecret: key.Secret()})

	_, _, err = svc.Challenge(ctx, user.ID, "sms")
	require.ErrorIs(t, err, ErrUnsupportedMFAMethod)
}

func TestChallengeMethodMustMatchActiveFactor(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "alice"})
	require.NoError(t, err)
	user := createUser(t, s, "alice", userOpts{totpSecret: key.Secret()})

	// webauthn is registered but not the user's active factor.
	registry := NewRegistry(&TOTPStrategy{Store: s}, &WebAuthnStrategy{Store: s, Verifier: &fakeVerifier{}})
	svc := NewLoginService(s, newTestCodec(t), registry)

	_, _, err = svc.Challenge(ctx, user.ID, "webauthn")
	require.ErrorIs(t, err, ErrUnsupportedMFAMethod)
}
