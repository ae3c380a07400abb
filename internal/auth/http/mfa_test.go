package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTOTPUser(t *testing.T, env *testEnv) string {
	t.Helper()

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "alice"})
	require.NoError(t, err)
	env.seedUser(t, "alice", seedOpts{
		password:   "right-password-123",
		onboarded:  true,
		totpSecret: key.Secret(),
	})
	return key.Secret()
}

// loginExpectMFA logs in a factor-protected user and returns the pre-auth
// cookie from the response.
func loginExpectMFA(t *testing.T, env *testEnv) *http.Cookie {
	t.Helper()

	rec := env.do(t, http.MethodPost, "/v1/login", authapi.LoginRequest{
		Username: "alice",
		Password: "right-password-123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp authapi.LoginResponse
	decodeJSON(t, rec, &resp)
	require.True(t, resp.MFARequired)
	require.Equal(t, "totp", resp.MFAMethod)

	c := findCookie(rec, PreAuthCookieName)
	require.NotNil(t, c, "expected a pre-auth cookie")
	return c
}

func TestLoginWithFactorSetsPreAuthCookie(t *testing.T) {
	env := newTestEnv(t)
	seedTOTPUser(t, env)

	rec := env.do(t, http.MethodPost, "/v1/login", authapi.LoginRequest{
		Username: "alice",
		Password: "right-password-123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Only the path-scoped pre-auth cookie, never a session cookie.
	assert.Nil(t, findCookie(rec, SessionCookieName))
	c := findCookie(rec, PreAuthCookieName)
	require.NotNil(t, c)
	assert.Equal(t, PreAuthCookiePath, c.Path)
	assert.True(t, c.HttpOnly)
}

func TestMFAVerifyUpgradesToSession(t *testing.T) {
	env := newTestEnv(t)
	secret := seedTOTPUser(t, env)
	preAuth := loginExpectMFA(t, env)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/v1/mfa/verify", authapi.MFAVerifyRequest{
		Method: "totp",
		Code:   code,
	}, preAuth)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp authapi.MFAVerifyResponse
	decodeJSON(t, rec, &resp)
	assert.True(t, resp.Verified)

	session := findCookie(rec, SessionCookieName)
	require.NotNil(t, session)
	assert.Positive(t, session.MaxAge)

	spent := findCookie(rec, PreAuthCookieName)
	require.NotNil(t, spent)
	assert.Negative(t, spent.MaxAge)
}

func TestMFAVerifyWrongCode(t *testing.T) {
	env := newTestEnv(t)
	seedTOTPUser(t, env)
	preAuth := loginExpectMFA(t, env)

	rec := env.do(t, http.MethodPost, "/v1/mfa/verify", authapi.MFAVerifyRequest{
		Method: "totp",
		Code:   "000000",
	}, preAuth)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "mfa_invalid", errorCode(t, rec))
	assert.Nil(t, findCookie(rec, SessionCookieName))
}

func TestMFAVerifyMethodMismatch(t *testing.T) {
	env := newTestEnv(t)
	seedTOTPUser(t, env)
	preAuth := loginExpectMFA(t, env)

	rec := env.do(t, http.MethodPost, "/v1/mfa/verify", authapi.MFAVerifyRequest{
		Method: "webauthn",
		Code:   "000000",
	}, preAuth)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "unsupported_mfa_method", body["error"])
	assert.Contains(t, body["error_description"], "totp")
}

func TestMFAVerifyRejectsSessionToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "bob", seedOpts{password: "right-password-123", onboarded: true})
	session := env.login(t, "bob", "right-password-123")

	// A full session token smuggled into the pre-auth cookie must not pass
	// the pre-auth check.
	forged := &http.Cookie{Name: PreAuthCookieName, Value: session.Value}
	rec := env.do(t, http.MethodPost, "/v1/mfa/verify", authapi.MFAVerifyRequest{
		Method: "totp",
		Code:   "000000",
	}, forged)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "mfa_session_expired", errorCode(t, rec))
}

func TestMFAChallengeRequiresPreAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/mfa/challenge/totp", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "mfa_session_expired", errorCode(t, rec))
}

func TestMFAChallengeByMethod(t *testing.T) {
	env := newTestEnv(t)
	seedTOTPUser(t, env)
	preAuth := loginExpectMFA(t, env)

	rec := env.do(t, http.MethodGet, "/v1/mfa/challenge/totp", nil, preAuth)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp authapi.MFAChallengeResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "totp", resp.Method)
	assert.Empty(t, resp.Options)
}

func TestMFAChallengeUnknownMethod(t *testing.T) {
	env := newTestEnv(t)
	seedTOTPUser(t, env)
	preAuth := loginExpectMFA(t, env)

	rec := env.do(t, http.MethodGet, "/v1/mfa/challenge/sms", nil, preAuth)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "unsupported_mfa_method", body["error"])
	assert.Contains(t, body["error_description"], "totp")
}

func TestTOTPEnrollAndActivate(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "carol", seedOpts{password: "right-password-123"})
	session := env.login(t, "carol", "right-password-123")

	rec := env.do(t, http.MethodPost, "/v1/mfa/totp/enroll", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)

	var enroll authapi.TOTPEnrollResponse
	decodeJSON(t, rec, &enroll)
	require.NotEmpty(t, enroll.Secret)
	assert.Contains(t, enroll.OTPAuthURL, "otpauth://")

	code, err := totp.GenerateCode(enroll.Secret, time.Now())
	require.NoError(t, err)

	rec = env.do(t, http.MethodPost, "/v1/mfa/totp/activate", authapi.TOTPActivateRequest{
		Code: code,
	}, session)
	require.Equal(t, http.StatusOK, rec.Code)

	var activate authapi.TOTPActivateResponse
	decodeJSON(t, rec, &activate)
	assert.Len(t, activate.BackupCodes, 10)
}

func TestTOTPActivateBadCode(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "carol", seedOpts{password: "right-password-123"})
	session := env.login(t, "carol", "right-password-123")

	rec := env.do(t, http.MethodPost, "/v1/mfa/totp/enroll", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/mfa/totp/activate", authapi.TOTPActivateRequest{
		Code: "000000",
	}, session)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "mfa_invalid", errorCode(t, rec))
}

func TestWebAuthnRegisterBeginReturnsOptions(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "dave", seedOpts{password: "right-password-123"})
	session := env.login(t, "dave", "right-password-123")

	rec := env.do(t, http.MethodPost, "/v1/mfa/webauthn/register", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp authapi.WebAuthnRegisterOptionsResponse
	decodeJSON(t, rec, &resp)
	assert.Contains(t, string(resp.Options), "challenge")
}

func TestListCredentialsEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "dave", seedOpts{password: "right-password-123", onboarded: true})
	session := env.login(t, "dave", "right-password-123")

	rec := env.do(t, http.MethodGet, "/v1/mfa/credentials", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)

	var creds []authapi.Credential
	decodeJSON(t, rec, &creds)
	assert.Empty(t, creds)
}
