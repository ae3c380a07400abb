package http

import (
	"encoding/json"
	"net/http"

	"github.com/pastvault/pastvault/internal/auth/service"
	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/pastvault/pastvault/pkg/httpx"
)

// OnboardingHandler reports onboarding state and accepts the mandatory
// password change.
type OnboardingHandler struct {
	OnboardingService *service.OnboardingService
}

// HandleStatus handles GET /v1/onboarding.
func (h *OnboardingHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserIDFromContext(r.Context())

	status, err := h.OnboardingService.Status(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, status)
}

// HandleChangePassword handles POST /v1/onboarding/password.
func (h *OnboardingHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserIDFromContext(r.Context())

	var req authapi.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	err := h.OnboardingService.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status, err := h.OnboardingService.Status(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, status)
}
