package domain

import "time"

// MFAChallenge holds pending per-user challenge state for an in-flight factor
// verification or enrollment. One row per user; starting a new ceremony
// replaces any previous one.
type MFAChallenge struct {
	UserID    string
	Method    string
	Payload   []byte // method-specific, e.g. serialized WebAuthn session data
	ExpiresAt time.Time
	CreatedAt time.Time
}

// LoginChallenge holds pending state for a discoverable passkey login, before
// any user is identified. Keyed by a generated ULID the client echoes back.
type LoginChallenge struct {
	ID        string
	Payload   []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ChallengeTTL bounds how long a pending ceremony stays valid.
const ChallengeTTL = 5 * time.Minute
