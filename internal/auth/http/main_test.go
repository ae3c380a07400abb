package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/pastvault/pastvault/internal/auth/domain"
	"github.com/pastvault/pastvault/internal/auth/service"
	"github.com/pastvault/pastvault/internal/auth/store/drivers/sqlite"
	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/pastvault/pastvault/pkg/cryptox"
	"github.com/pastvault/pastvault/pkg/idx"
	"github.com/pastvault/pastvault/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "pastvault-http-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type testEnv struct {
	store  *sqlite.Store
	router *Router
}

// newTestEnv wires a full router against an in-memory database, the same way
// the application does at startup.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	codec, err := jwtx.NewCodec([]byte("0123456789abcdef0123456789abcdef"), "pastvault-test")
	require.NoError(t, err)

	web, err := webauthn.New(&webauthn.Config{
		RPID:          "localhost",
		RPDisplayName: "PastVault Test",
		RPOrigins:     []string{"http://localhost"},
	})
	require.NoError(t, err)

	registry := service.NewRegistry(
		&service.TOTPStrategy{Store: s},
		&service.WebAuthnStrategy{Store: s, Verifier: web},
	)
	login := service.NewLoginService(s, codec, registry)

	router := NewRouter(codec, "test", false, s, slog.New(slog.DiscardHandler))
	router.LoginService = login
	router.PasskeyService = &service.PasskeyService{Store: s, Verifier: web, Login: login}
	router.MFAService = &service.MFAService{Store: s, Issuer: "PastVault Test", Verifier: web}
	router.OnboardingService = &service.OnboardingService{Store: s}
	router.UserService = &service.UserService{Store: s}
	router.ApplyRoutes()

	return &testEnv{store: s, router: router}
}

type seedOpts struct {
	password   string
	onboarded  bool
	totpSecret string
	roles      []string
}

func (env *testEnv) seedUser(t *testing.T, username string, opts seedOpts) domain.User {
	t.Helper()
	ctx := context.Background()

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
	require.NoError(t, env.store.Users().CreateUser(ctx, u))

	if opts.totpSecret != "" {
		require.NoError(t, env.store.Users().SetTOTPSecret(ctx, u.ID, opts.totpSecret))
		require.NoError(t, env.store.Users().EnableMFA(ctx, u.ID, "totp"))
	}

	if len(opts.roles) > 0 {
		ids := make([]string, 0, len(opts.roles))
		for _, name := range opts.roles {
			role, err := env.store.Roles().GetRoleByName(ctx, name)
			require.NoError(t, err)
			ids = append(ids, role.ID)
		}
		require.NoError(t, env.store.Roles().SetUserRoles(ctx, u.ID, ids))
	}

	refreshed, err := env.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	return refreshed
}

func (env *testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

// login performs a password login and returns the issued session cookie.
func (env *testEnv) login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()

	rec := env.do(t, http.MethodPost, "/v1/login", authapi.LoginRequest{
		Username: username,
		Password: password,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	c := findCookie(rec, SessionCookieName)
	require.NotNil(t, c, "expected a session cookie")
	return c
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	decodeJSON(t, rec, &body)
	code, _ := body["error"].(string)
	return code
}
