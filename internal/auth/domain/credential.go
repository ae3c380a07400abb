package domain

import "time"

// Credential is a registered WebAuthn credential (passkey).
type Credential struct {
	ID              string // base64url credential ID from the authenticator
	UserID          string
	PublicKey       []byte
	AttestationType string
	Transports      []string
	SignCount       uint32
	CloneWarning    bool
	BackupEligible  bool
	BackupState     bool
	Label           string
	CreatedAt       time.Time
	LastUsedAt      *time.Time
}

// BackupCode is a single-use recovery code, stored hashed.
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string // argon2 encoded
	CreatedAt time.Time
}
