package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pastvault/pastvault/internal/auth/service"
	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/pastvault/pastvault/pkg/httpx"
	"github.com/pastvault/pastvault/pkg/jwtx"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// LoginHandler handles password login, logout and session introspection.
type LoginHandler struct {
	LoginService *service.LoginService
	Cookies      cookieWriter
}

// HandleLogin handles POST /v1/login.
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authapi.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Username == "" || req.Password == "" {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	result, err := h.LoginService.Login(ctx, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if result.MFARequired {
		h.Cookies.setPreAuth(w, result.Token, h.LoginService.PreAuthTTL)
		httpx.WriteJSON(w, http.StatusOK, authapi.LoginResponse{
			MFARequired: true,
			MFAMethod:   result.MFAMethod,
		})
		return
	}

	log.Info("login complete", "user_id", result.User.ID)

	h.Cookies.setSession(w, result.Token, h.LoginService.SessionTTL)
	user := userToAPI(result)
	httpx.WriteJSON(w, http.StatusOK, authapi.LoginResponse{
		OnboardingComplete: result.User.OnboardingComplete(),
		User:               &user,
	})
}

// HandleLogout handles POST /v1/logout. Tokens are stateless so logout just
// drops the cookies.
func (h *LoginHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.Cookies.clearSession(w)
	h.Cookies.clearPreAuth(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSession handles GET /v1/session: echoes the verified session claims.
// Sessions slide: every check re-mints the token with a fresh expiry.
func (h *LoginHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		authapi.ErrSessionInvalid.WriteError(w)
		return
	}

	fresh := jwtx.NewSessionClaims(
		claims.UserID, claims.Username, h.LoginService.Codec.Issuer(),
		claims.OnboardingComplete, h.LoginService.SessionTTL, time.Now(),
	)
	token, err := h.LoginService.Codec.Sign(fresh)
	if err != nil {
		slogx.FromContext(r.Context()).Error("session renewal failed", "error", err)
		authapi.ErrServerError.WriteError(w)
		return
	}
	h.Cookies.setSession(w, token, h.LoginService.SessionTTL)

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id":             claims.UserID,
		"username":            claims.Username,
		"mfa_verified":        claims.MFAVerified,
		"onboarding_complete": claims.OnboardingComplete,
		"expires_at":          fresh.ExpiresAt.Time.Format(time.RFC3339),
	})
}

func userToAPI(result service.LoginResult) authapi.User {
	u := authapi.User{
		ID:                 result.User.ID,
		Username:           result.User.Username,
		MFAEnabled:         result.User.MFAEnabled,
		OnboardingComplete: result.User.OnboardingComplete(),
		Roles:              result.Roles,
		CreatedAt:          result.User.CreatedAt,
	}
	if result.User.MFAMethod != nil {
		u.MFAMethod = *result.User.MFAMethod
	}
	return u
}
