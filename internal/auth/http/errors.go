package http

import (
	"errors"
	"net/http"

	"github.com/pastvault/pastvault/internal/auth/service"
	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// writeServiceError maps service sentinels onto the wire error taxonomy.
// Anything unmapped is a server error and gets logged with its real cause;
// the client only ever sees the opaque envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		authapi.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, service.ErrUnsupportedMFAMethod):
		authapi.ErrUnsupportedMFAMethod.WriteError(w)
	case errors.Is(err, service.ErrInvalidMFACode):
		authapi.ErrMFAInvalid.WriteError(w)
	case errors.Is(err, service.ErrMFANotConfigured):
		authapi.ErrMFANotConfigured.WriteError(w)
	case errors.Is(err, service.ErrMFAAlreadyEnabled):
		authapi.ErrMFAAlreadyEnabled.WriteError(w)
	case errors.Is(err, service.ErrMFANotEnrolled):
		authapi.ErrMFANotConfigured.WriteError(w)
	case errors.Is(err, service.ErrChallengeExpired):
		authapi.ErrChallengeExpired.WriteError(w)
	case errors.Is(err, service.ErrDeviceAlreadyRegistered):
		authapi.ErrDeviceAlreadyRegistered.WriteError(w)
	case errors.Is(err, service.ErrWeakPassword):
		authapi.ErrWeakPassword.WriteError(w)
	case errors.Is(err, service.ErrUserNotFound):
		authapi.ErrUserNotFound.WriteError(w)
	case errors.Is(err, service.ErrUserExists):
		authapi.ErrUserExists.WriteError(w)
	case errors.Is(err, service.ErrLastUserProtected):
		authapi.ErrLastUserProtected.WriteError(w)
	case errors.Is(err, service.ErrSelfDeleteForbidden):
		authapi.ErrSelfDeleteForbidden.WriteError(w)
	case errors.Is(err, service.ErrSelfLockout):
		authapi.ErrSelfLockout.WriteError(w)
	case errors.Is(err, service.ErrRoleRequired):
		authapi.ErrRoleRequired.WriteError(w)
	case errors.Is(err, service.ErrInvalidRequest):
		authapi.ErrInvalidRequest.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed", "error", err)
		authapi.ErrServerError.WriteError(w)
	}
}
