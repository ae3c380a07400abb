package http

import (
	"encoding/json"
	"net/http"

	"github.com/pastvault/pastvault/internal/auth/service"
	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/pastvault/pastvault/pkg/httpx"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// UsersHandler covers the admin-only account management surface.
type UsersHandler struct {
	UserService *service.UserService
	MFAService  *service.MFAService
}

// HandleList handles GET /v1/users.
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.UserService.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, users)
}

// HandleCreate handles POST /v1/users.
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authapi.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	resp, err := h.UserService.CreateUser(r.Context(), req.Username, req.Roles)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

// HandleGet handles GET /v1/users/{id}.
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.UserService.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

// HandleDelete handles DELETE /v1/users/{id}.
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actorID, _ := httpx.UserIDFromContext(r.Context())

	if err := h.UserService.DeleteUser(r.Context(), actorID, r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetRoles handles PUT /v1/users/{id}/roles.
func (h *UsersHandler) HandleSetRoles(w http.ResponseWriter, r *http.Request) {
	actorID, _ := httpx.UserIDFromContext(r.Context())

	var req authapi.UpdateRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	targetID := r.PathValue("id")
	if err := h.UserService.SetUserRoles(r.Context(), actorID, targetID, req.Roles); err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := h.UserService.GetUser(r.Context(), targetID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

// HandleMFAReinit handles POST /v1/users/{id}/mfa/reinit. Wipes the target's
// factors so a locked-out user can enroll again from scratch.
func (h *UsersHandler) HandleMFAReinit(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("id")
	actorID, _ := httpx.UserIDFromContext(r.Context())

	if err := h.MFAService.ReinitMFA(r.Context(), targetID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("mfa reinit requested",
		"user_id", targetID, "actor_id", actorID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleListRoles handles GET /v1/roles.
func (h *UsersHandler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.UserService.ListRoles(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, roles)
}
