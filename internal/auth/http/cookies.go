package http

import (
	"net/http"
	"time"
)

// Cookie names for the two token classes.
const (
	SessionCookieName = "pv_session"
	PreAuthCookieName = "pv_preauth"
)

// PreAuthCookiePath scopes the pre-auth cookie to the factor-verification
// surface so the half-authenticated token is never even sent anywhere else.
const PreAuthCookiePath = "/v1/mfa"

type cookieWriter struct {
	secure bool
}

func (c cookieWriter) setSession(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c cookieWriter) setPreAuth(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     PreAuthCookieName,
		Value:    token,
		Path:     PreAuthCookiePath,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c cookieWriter) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c cookieWriter) clearPreAuth(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     PreAuthCookieName,
		Value:    "",
		Path:     PreAuthCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
