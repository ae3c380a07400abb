package httpx

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pastvault/pastvault/pkg/jwtx"
	"github.com/pastvault/pastvault/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the throttling parameters for one endpoint class.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the window.
	RequestsPerWindow int
	// Window is the time window for rate limiting.
	Window time.Duration
	// Burst allows the full window quota to be consumed at once.
	Burst int
}

// Rate limit profiles. Login and factor verification use the long
// brute-force windows; the rest are per-minute operational limits.
// Limits are token buckets: quota refills continuously across the window
// rather than resetting at fixed window boundaries, so a client regains
// attempts gradually instead of all at once.
var (
	// LoginLimit throttles password login attempts per client address.
	LoginLimit = RateLimitConfig{
		RequestsPerWindow: 10,
		Window:            15 * time.Minute,
		Burst:             10,
	}

	// MFAVerifyLimit throttles factor-verification attempts. Keyed by the
	// userId inside the pre-auth token so rotating addresses does not reset
	// the budget.
	MFAVerifyLimit = RateLimitConfig{
		RequestsPerWindow: 5,
		Window:            15 * time.Minute,
		Burst:             5,
	}

	// PasskeyVerifyLimit throttles discoverable-login verification per
	// client address.
	PasskeyVerifyLimit = RateLimitConfig{
		RequestsPerWindow: 10,
		Window:            15 * time.Minute,
		Burst:             10,
	}

	// ModerateLimit covers authenticated mutations.
	ModerateLimit = RateLimitConfig{
		RequestsPerWindow: 20,
		Window:            time.Minute,
		Burst:             20,
	}

	// LenientLimit covers reads and health checks.
	LenientLimit = RateLimitConfig{
		RequestsPerWindow: 100,
		Window:            time.Minute,
		Burst:             100,
	}
)

// KeyExtractor derives the identity a request is throttled under.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client address, honouring X-Forwarded-For and
// X-Real-IP for proxied requests.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// UserIDKeyExtractor extracts the authenticated user id from the request
// context, or "" when the request is anonymous.
func UserIDKeyExtractor(r *http.Request) string {
	if id, ok := UserIDFromContext(r.Context()); ok {
		return id
	}
	return ""
}

// PreAuthKeyExtractor keys a request by the userId inside a valid pre-auth
// cookie. Invalid, expired or missing cookies fall back to "" so a composite
// extractor can degrade to the client address.
func PreAuthKeyExtractor(codec *jwtx.Codec, cookieName string) KeyExtractor {
	return func(r *http.Request) string {
		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			return ""
		}
		claims, err := codec.VerifyPreAuth(cookie.Value)
		if err != nil {
			return ""
		}
		return "mfa:" + claims.UserID
	}
}

// FirstKeyExtractor returns the first non-empty key produced by the given
// extractors.
func FirstKeyExtractor(extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		for _, extract := range extractors {
			if key := extract(r); key != "" {
				return key
			}
		}
		return ""
	}
}

// keyedLimiter manages one rate.Limiter per key.
type keyedLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

func (kl *keyedLimiter) get(key string) *rate.Limiter {
	if l, ok := kl.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}

	l := rate.NewLimiter(kl.rate, kl.burst)
	actual, _ := kl.limiters.LoadOrStore(key, l)

	kl.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose buckets are full again, at most once
// every 5 minutes. A full bucket means the key has been idle for at least a
// whole window.
func (kl *keyedLimiter) maybeCleanup() {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	if time.Since(kl.lastCleanup) < 5*time.Minute {
		return
	}
	kl.lastCleanup = time.Now()

	kl.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(kl.burst) {
			kl.limiters.Delete(key)
		}
		return true
	})
}

// RateLimit builds a throttling middleware from a config and key extractor.
// Exceeding the cap yields a definitive 429 with Retry-After, distinct from
// any credential error.
func RateLimit(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	kl := &keyedLimiter{
		rate:        rate.Limit(float64(config.RequestsPerWindow) / config.Window.Seconds()),
		burst:       config.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := keyExtractor(r)
			if key == "" {
				// No key means no identity to throttle under; let it pass.
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			limiter := kl.get(key)
			if !limiter.Allow() {
				reservation := limiter.Reserve()
				delay := reservation.Delay()
				reservation.Cancel()

				retryAfter := max(int(delay.Seconds()), 1)

				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", config.RequestsPerWindow))
				w.Header().Set("X-RateLimit-Window", config.Window.String())

				log.Warn("rate limit exceeded",
					"key", key,
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)

				WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"error":             "rate_limit_exceeded",
					"error_description": "Too many requests. Please try again later.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP throttles by client address only.
func RateLimitByIP(config RateLimitConfig) Middleware {
	return RateLimit(config, IPKeyExtractor)
}

// RateLimitByPreAuthUser throttles by the pre-auth token's userId, falling
// back to the client address when no valid pre-auth cookie is present.
func RateLimitByPreAuthUser(config RateLimitConfig, codec *jwtx.Codec, cookieName string) Middleware {
	return RateLimit(config, FirstKeyExtractor(
		PreAuthKeyExtractor(codec, cookieName),
		IPKeyExtractor,
	))
}

// RateLimitByUser throttles by authenticated user id, falling back to the
// client address for anonymous requests.
func RateLimitByUser(config RateLimitConfig) Middleware {
	return RateLimit(config, FirstKeyExtractor(
		UserIDKeyExtractor,
		IPKeyExtractor,
	))
}
