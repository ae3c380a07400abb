package http

import (
	"encoding/json"
	"net/http"

	"github.com/pastvault/pastvault/internal/auth/service"
	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/pastvault/pastvault/pkg/httpx"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// PasskeyHandler handles discoverable passkey login. Both endpoints are
// anonymous: no user is known until the assertion names one.
type PasskeyHandler struct {
	PasskeyService *service.PasskeyService
	Cookies        cookieWriter
}

// HandleOptions handles POST /v1/passkey/options.
func (h *PasskeyHandler) HandleOptions(w http.ResponseWriter, r *http.Request) {
	id, options, err := h.PasskeyService.Begin(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authapi.PasskeyOptionsResponse{
		ChallengeID: id,
		Options:     options,
	})
}

// HandleVerify handles POST /v1/passkey/verify. A valid assertion is a
// complete login: the response carries the session cookie directly.
func (h *PasskeyHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authapi.PasskeyVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.ChallengeID == "" || len(req.Assertion) == 0 {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	result, err := h.PasskeyService.Finish(ctx, req.ChallengeID, req.Assertion)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Info("passkey login complete", "user_id", result.User.ID)

	h.Cookies.setSession(w, result.Token, h.PasskeyService.Login.SessionTTL)
	user := userToAPI(result)
	httpx.WriteJSON(w, http.StatusOK, authapi.LoginResponse{
		OnboardingComplete: result.User.OnboardingComplete(),
		User:               &user,
	})
}
