// Package authapi defines the wire types and error envelope shared between
// the auth service and its clients.
package authapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is the JSON error envelope every non-2xx response carries. Code is
// the stable machine-readable discriminant; Description is for humans and may
// change between releases.
type APIError struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes the error as a JSON response with its status code.
func (e *APIError) WriteError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e)
}

// WithDescription returns a copy with a custom description.
func (e *APIError) WithDescription(format string, args ...any) *APIError {
	clone := *e
	clone.Description = fmt.Sprintf(format, args...)
	return &clone
}

// Predefined errors for every failure the service reports. Credential
// failures deliberately share one shape so responses never reveal whether
// the username or the password was wrong.
var (
	ErrInvalidCredentials = &APIError{http.StatusUnauthorized, "invalid_credentials", "Invalid username or password."}
	ErrSessionInvalid     = &APIError{http.StatusUnauthorized, "session_invalid", "Missing or invalid session."}
	ErrMFASessionExpired  = &APIError{http.StatusUnauthorized, "mfa_session_expired", "MFA session expired. Please log in again."}

	ErrUnsupportedMFAMethod = &APIError{http.StatusBadRequest, "unsupported_mfa_method", "The requested MFA method is not available."}
	ErrMFAInvalid           = &APIError{http.StatusUnauthorized, "mfa_invalid", "Invalid verification code or assertion."}
	ErrMFANotConfigured     = &APIError{http.StatusBadRequest, "mfa_not_configured", "No MFA factor is configured for this account."}
	ErrMFAAlreadyEnabled    = &APIError{http.StatusBadRequest, "mfa_already_enabled", "MFA is already enabled for this account."}
	ErrChallengeExpired     = &APIError{http.StatusBadRequest, "challenge_expired", "Challenge expired or already used. Start again."}

	ErrRateLimitExceeded    = &APIError{http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later."}
	ErrOnboardingIncomplete = &APIError{http.StatusForbidden, "onboarding_incomplete", "Complete onboarding before using this resource."}
	ErrForbidden            = &APIError{http.StatusForbidden, "forbidden", "You do not have access to this resource."}

	ErrDeviceAlreadyRegistered = &APIError{http.StatusConflict, "device_already_registered", "This authenticator is already registered."}

	ErrInvalidRequest      = &APIError{http.StatusBadRequest, "invalid_request", "The request body is malformed."}
	ErrWeakPassword        = &APIError{http.StatusBadRequest, "weak_password", "The new password does not meet the length requirement."}
	ErrUserNotFound        = &APIError{http.StatusNotFound, "user_not_found", "No such user."}
	ErrUserExists          = &APIError{http.StatusConflict, "user_exists", "That username is already taken."}
	ErrLastUserProtected   = &APIError{http.StatusConflict, "last_user_protected", "The last remaining account cannot be deleted."}
	ErrSelfDeleteForbidden = &APIError{http.StatusConflict, "self_delete_forbidden", "You cannot delete your own account."}
	ErrSelfLockout         = &APIError{http.StatusConflict, "self_lockout", "You cannot remove your own admin role."}
	ErrRoleRequired        = &APIError{http.StatusBadRequest, "role_required", "Users must hold at least one role."}

	ErrServerError = &APIError{http.StatusInternalServerError, "server_error", "Something went wrong. Try again later."}
)
