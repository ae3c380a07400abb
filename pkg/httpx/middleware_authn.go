package httpx

import (
	"net/http"

	"github.com/pastvault/pastvault/pkg/jwtx"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// SessionAuth verifies the session cookie on every request and injects the
// verified claims into the request context. Requests without a valid session
// token get a 401. Pre-auth tokens are rejected here regardless of validity.
func SessionAuth(codec *jwtx.Codec, cookieName string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			claims, err := codec.VerifySession(cookie.Value)
			if err != nil {
				slogx.FromContext(r.Context()).Debug("session verification failed", "error", err)
				unauthorized(w)
				return
			}

			ctx := ContextWithSession(r.Context(), claims)
			ctx = slogx.WithContext(ctx, slogx.FromContext(ctx).With("user_id", claims.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PreAuth verifies the pre-auth cookie and injects its claims. Used by the
// factor-verification surface, which sits between password check and full
// session issuance.
func PreAuth(codec *jwtx.Codec, cookieName string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				mfaSessionExpired(w)
				return
			}

			claims, err := codec.VerifyPreAuth(cookie.Value)
			if err != nil {
				slogx.FromContext(r.Context()).Debug("pre-auth verification failed", "error", err)
				mfaSessionExpired(w)
				return
			}

			ctx := ContextWithSession(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "session_invalid",
		"error_description": "Missing or invalid session.",
	})
}

func mfaSessionExpired(w http.ResponseWriter) {
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "mfa_session_expired",
		"error_description": "MFA session expired. Please log in again.",
	})
}
