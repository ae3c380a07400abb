package http

import (
	"net/http"

	"github.com/pastvault/pastvault/internal/auth/domain"
	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/pastvault/pastvault/pkg/httpx"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// onboardingGate blocks resource access until onboarding is complete. The
// claim is only a hint from issuance time: a false claim triggers a live
// lookup, so finishing onboarding takes effect without re-login.
func (rt *Router) onboardingGate() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := httpx.ClaimsFromContext(r.Context())
			if !ok {
				authapi.ErrSessionInvalid.WriteError(w)
				return
			}

			if !claims.OnboardingComplete {
				user, err := rt.store.Users().GetUserByID(r.Context(), claims.UserID)
				if err != nil {
					slogx.FromContext(r.Context()).Error("onboarding gate lookup failed", "error", err)
					authapi.ErrSessionInvalid.WriteError(w)
					return
				}
				if !user.OnboardingComplete() {
					httpx.WriteJSON(w, http.StatusForbidden, authapi.OnboardingRequired{
						Code:        authapi.ErrOnboardingIncomplete.Code,
						Description: authapi.ErrOnboardingIncomplete.Description,
						Steps: authapi.OnboardingSteps{
							PasswordChangeRequired: user.PasswordChangeRequired,
							MFASetupRequired:       user.MFASetupRequired && !user.MFAEnabled,
						},
					})
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requireAdmin restricts a route to accounts holding the admin role. Roles
// are read live rather than from the token so revocation applies within a
// session's lifetime.
func (rt *Router) requireAdmin() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := httpx.UserIDFromContext(r.Context())
			if !ok {
				authapi.ErrSessionInvalid.WriteError(w)
				return
			}

			roles, err := rt.store.Roles().GetRolesForUser(r.Context(), userID)
			if err != nil {
				slogx.FromContext(r.Context()).Error("role lookup failed", "error", err)
				authapi.ErrServerError.WriteError(w)
				return
			}

			for _, role := range roles {
				if role == domain.RoleAdmin {
					next.ServeHTTP(w, r)
					return
				}
			}
			authapi.ErrForbidden.WriteError(w)
		})
	}
}
