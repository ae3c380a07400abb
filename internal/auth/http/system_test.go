package http

import (
	"net/http"
	"testing"

	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLivez(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/livez", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", seedOpts{password: "right-password-123"})

	req := authapi.LoginRequest{Username: "alice", Password: "wrong-password-456"}
	for i := 0; i < 10; i++ {
		rec := env.do(t, http.MethodPost, "/v1/login", req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/v1/login", req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
