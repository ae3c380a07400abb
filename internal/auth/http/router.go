package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pastvault/pastvault/internal/auth/service"
	"github.com/pastvault/pastvault/internal/auth/store"
	"github.com/pastvault/pastvault/pkg/httpx"
	"github.com/pastvault/pastvault/pkg/jwtx"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	codec        *jwtx.Codec
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	cookies      cookieWriter

	store             store.Store
	LoginService      *service.LoginService
	PasskeyService    *service.PasskeyService
	MFAService        *service.MFAService
	OnboardingService *service.OnboardingService
	UserService       *service.UserService
}

func NewRouter(
	codec *jwtx.Codec,
	buildVersion string,
	secureCookies bool,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		codec:        codec,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		cookies:      cookieWriter{secure: secureCookies},
		store:        st,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerMFA()
	r.registerPasskey()
	r.registerOnboarding()
	r.registerUsers()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// session wraps an authenticated route: valid session cookie required.
func (r *Router) session(h http.HandlerFunc, extra ...httpx.Middleware) http.Handler {
	mws := append([]httpx.Middleware{httpx.SessionAuth(r.codec, SessionCookieName)}, extra...)
	return httpx.Chain(h, mws...)
}

// onboarded wraps a session route that additionally requires completed
// onboarding.
func (r *Router) onboarded(h http.HandlerFunc, extra ...httpx.Middleware) http.Handler {
	mws := append([]httpx.Middleware{
		httpx.SessionAuth(r.codec, SessionCookieName),
		r.onboardingGate(),
	}, extra...)
	return httpx.Chain(h, mws...)
}

// admin wraps an onboarded route that requires the admin role.
func (r *Router) admin(h http.HandlerFunc, extra ...httpx.Middleware) http.Handler {
	mws := append([]httpx.Middleware{
		httpx.SessionAuth(r.codec, SessionCookieName),
		r.onboardingGate(),
		r.requireAdmin(),
	}, extra...)
	return httpx.Chain(h, mws...)
}

func (r *Router) registerLogin() {
	h := &LoginHandler{
		LoginService: r.LoginService,
		Cookies:      r.cookies,
	}

	r.Mux.Handle("POST /v1/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.LoginLimit),
		))
	r.Mux.Handle("POST /v1/logout", http.HandlerFunc(h.HandleLogout))
	r.Mux.Handle("GET /v1/session", r.session(h.HandleSession))
}

func (r *Router) registerMFA() {
	h := &MFAHandler{
		LoginService: r.LoginService,
		MFAService:   r.MFAService,
		Cookies:      r.cookies,
	}

	preAuth := httpx.PreAuth(r.codec, PreAuthCookieName)
	verifyLimit := httpx.RateLimitByPreAuthUser(httpx.MFAVerifyLimit, r.codec, PreAuthCookieName)

	// Pre-auth surface: sits between password check and session issuance.
	r.Mux.Handle("GET /v1/mfa/challenge/{method}",
		httpx.Chain(http.HandlerFunc(h.HandleChallenge), preAuth))
	r.Mux.Handle("POST /v1/mfa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify), verifyLimit, preAuth))

	// Enrollment surface: requires a full session.
	r.Mux.Handle("POST /v1/mfa/totp/enroll",
		r.session(h.HandleTOTPEnroll, httpx.RateLimitByUser(httpx.ModerateLimit)))
	r.Mux.Handle("POST /v1/mfa/totp/activate",
		r.session(h.HandleTOTPActivate, httpx.RateLimitByUser(httpx.ModerateLimit)))
	r.Mux.Handle("POST /v1/mfa/webauthn/register",
		r.session(h.HandleWebAuthnRegisterBegin, httpx.RateLimitByUser(httpx.ModerateLimit)))
	r.Mux.Handle("POST /v1/mfa/webauthn/register/verify",
		r.session(h.HandleWebAuthnRegisterFinish, httpx.RateLimitByUser(httpx.ModerateLimit)))
	r.Mux.Handle("GET /v1/mfa/credentials", r.session(h.HandleListCredentials))
}

func (r *Router) registerPasskey() {
	h := &PasskeyHandler{
		PasskeyService: r.PasskeyService,
		Cookies:        r.cookies,
	}

	r.Mux.Handle("POST /v1/passkey/options",
		httpx.Chain(http.HandlerFunc(h.HandleOptions),
			httpx.RateLimitByIP(httpx.LenientLimit),
		))
	r.Mux.Handle("POST /v1/passkey/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.PasskeyVerifyLimit),
		))
}

func (r *Router) registerOnboarding() {
	h := &OnboardingHandler{OnboardingService: r.OnboardingService}

	// Deliberately NOT behind the onboarding gate: these are the endpoints
	// that complete onboarding.
	r.Mux.Handle("GET /v1/onboarding", r.session(h.HandleStatus))
	r.Mux.Handle("POST /v1/onboarding/password",
		r.session(h.HandleChangePassword, httpx.RateLimitByUser(httpx.ModerateLimit)))
}

func (r *Router) registerUsers() {
	h := &UsersHandler{
		UserService: r.UserService,
		MFAService:  r.MFAService,
	}

	r.Mux.Handle("GET /v1/users", r.admin(h.HandleList))
	r.Mux.Handle("POST /v1/users", r.admin(h.HandleCreate, httpx.RateLimitByUser(httpx.ModerateLimit)))
	r.Mux.Handle("GET /v1/users/{id}", r.admin(h.HandleGet))
	r.Mux.Handle("DELETE /v1/users/{id}", r.admin(h.HandleDelete))
	r.Mux.Handle("PUT /v1/users/{id}/roles", r.admin(h.HandleSetRoles))
	r.Mux.Handle("POST /v1/users/{id}/mfa/reinit", r.admin(h.HandleMFAReinit))
	r.Mux.Handle("GET /v1/roles", r.admin(h.HandleListRoles))
}

func (r *Router) registerSystem() {
	h := &SystemHandler{
		Store:        r.store,
		BuildVersion: r.buildVersion,
		StartTime:    r.startTime,
	}

	r.Mux.Handle("GET /livez", http.HandlerFunc(h.HandleLivez))
	r.Mux.Handle("GET /readyz", http.HandlerFunc(h.HandleReadyz))
}
