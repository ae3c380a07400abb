package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pastvault/pastvault/internal/auth/service"
	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/pastvault/pastvault/pkg/httpx"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// MFAHandler handles factor verification and enrollment endpoints.
type MFAHandler struct {
	LoginService *service.LoginService
	MFAService   *service.MFAService
	Cookies      cookieWriter
}

// writeUnsupportedMethod rejects an unknown or mismatching factor method and
// lists the registered ones.
func (h *MFAHandler) writeUnsupportedMethod(w http.ResponseWriter) {
	authapi.ErrUnsupportedMFAMethod.
		WithDescription("Supported methods: %s.", strings.Join(h.LoginService.Registry.Methods(), ", ")).
		WriteError(w)
}

// HandleChallenge handles GET /v1/mfa/challenge/{method}. Requires a pre-auth
// token.
func (h *MFAHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		authapi.ErrMFASessionExpired.WriteError(w)
		return
	}

	method, options, err := h.LoginService.Challenge(r.Context(), userID, r.PathValue("method"))
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedMFAMethod) {
			h.writeUnsupportedMethod(w)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authapi.MFAChallengeResponse{
		Method:  method,
		Options: options,
	})
}

// HandleVerify handles POST /v1/mfa/verify. Requires a pre-auth token; a
// valid proof upgrades it to a full session.
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		authapi.ErrMFASessionExpired.WriteError(w)
		return
	}

	var req authapi.MFAVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	result, err := h.LoginService.VerifyFactor(ctx, userID, req.Method, req.Code, req.Assertion)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedMFAMethod) {
			h.writeUnsupportedMethod(w)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Info("factor verified", "user_id", userID)

	// The pre-auth token is spent; replace it with the session cookie.
	h.Cookies.clearPreAuth(w)
	h.Cookies.setSession(w, result.Token, h.LoginService.SessionTTL)

	user := userToAPI(result)
	httpx.WriteJSON(w, http.StatusOK, authapi.MFAVerifyResponse{
		Verified:           true,
		OnboardingComplete: result.User.OnboardingComplete(),
		User:               &user,
	})
}

// HandleTOTPEnroll handles POST /v1/mfa/totp/enroll.
func (h *MFAHandler) HandleTOTPEnroll(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserIDFromContext(r.Context())

	resp, err := h.MFAService.EnrollTOTP(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleTOTPActivate handles POST /v1/mfa/totp/activate.
func (h *MFAHandler) HandleTOTPActivate(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserIDFromContext(r.Context())

	var req authapi.TOTPActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	backupCodes, err := h.MFAService.ActivateTOTP(r.Context(), userID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authapi.TOTPActivateResponse{
		BackupCodes: backupCodes,
	})
}

// HandleWebAuthnRegisterBegin handles POST /v1/mfa/webauthn/register.
func (h *MFAHandler) HandleWebAuthnRegisterBegin(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserIDFromContext(r.Context())

	options, err := h.MFAService.BeginRegisterWebAuthn(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authapi.WebAuthnRegisterOptionsResponse{
		Options: options,
	})
}

// HandleWebAuthnRegisterFinish handles POST /v1/mfa/webauthn/register/verify.
func (h *MFAHandler) HandleWebAuthnRegisterFinish(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserIDFromContext(r.Context())

	var req authapi.WebAuthnRegisterVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}
	if len(req.Attestation) == 0 {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	cred, err := h.MFAService.FinishRegisterWebAuthn(r.Context(), userID, req.Attestation, req.Label)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cred)
}

// HandleListCredentials handles GET /v1/mfa/credentials.
func (h *MFAHandler) HandleListCredentials(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserIDFromContext(r.Context())

	creds, err := h.MFAService.ListCredentials(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, creds)
}
