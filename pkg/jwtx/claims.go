package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType discriminates the two token classes this service issues. The
// discriminant is checked before any other claim is trusted.
type TokenType string

const (
	// TokenTypePreAuth proves password correctness only. It grants no
	// resource access and is only accepted by the factor-verification
	// endpoints.
	TokenTypePreAuth TokenType = "pre-auth"

	// TokenTypeSession proves full authentication (password + factor, or a
	// factor-less login).
	TokenTypeSession TokenType = "session"
)

// Default token lifetimes.
const (
	// DefaultPreAuthTTL bounds the window between password entry and factor
	// verification.
	DefaultPreAuthTTL = 5 * time.Minute

	// DefaultSessionTTL is the session token lifetime.
	DefaultSessionTTL = 12 * time.Hour
)

// Claims is the payload for both token classes. Which fields are meaningful
// depends on Type: pre-auth tokens never carry MFAVerified or
// OnboardingComplete.
type Claims struct {
	jwt.RegisteredClaims

	// Type is the token class discriminant ("pre-auth" or "session").
	Type TokenType `json:"typ"`

	// UserID is the authenticated (or half-authenticated) user's id.
	UserID string `json:"uid"`

	// Username mirrors the user's login name for display and logging.
	Username string `json:"username,omitempty"`

	// MFAVerified is true on every session token by construction. There is
	// no exported way to build a session token without it.
	MFAVerified bool `json:"mfa_verified,omitempty"`

	// OnboardingComplete caches the onboarding state at issuance time. It is
	// a hint, not the source of truth: the onboarding gate re-derives the
	// real state when this is false.
	OnboardingComplete bool `json:"onboarding_complete,omitempty"`
}

// NewPreAuthClaims builds claims for a pre-auth token: password verified,
// factor still outstanding.
func NewPreAuthClaims(userID, username, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: registered(userID, issuer, ttl, now),
		Type:             TokenTypePreAuth,
		UserID:           userID,
		Username:         username,
	}
}

// NewSessionClaims builds claims for a full session token. This is the only
// constructor for the session class and it hard-codes MFAVerified, so an
// under-authenticated session token is unrepresentable rather than merely
// unlikely.
func NewSessionClaims(
	userID, username, issuer string,
	onboardingComplete bool,
	ttl time.Duration,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims:   registered(userID, issuer, ttl, now),
		Type:               TokenTypeSession,
		UserID:             userID,
		Username:           username,
		MFAVerified:        true,
		OnboardingComplete: onboardingComplete,
	}
}

func registered(subject, issuer string, ttl time.Duration, now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        newJTI(),
	}
}

// newJTI returns a URL-safe random identifier for the "jti" claim.
func newJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
