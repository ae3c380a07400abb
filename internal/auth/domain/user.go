package domain

import "time"

type User struct {
	ID                     string
	Username               string
	PasswordHash           string // argon2 encoded
	PasswordChangeRequired bool
	MFASetupRequired       bool
	MFAEnabled             bool
	MFAMethod              *string // "totp" or "webauthn" (nullable)
	TOTPSecret             *string // base32 encoded (nullable)
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// OnboardingComplete reports whether the user has finished mandatory setup.
// MFA setup only blocks completion until a factor is actually enabled.
func (u User) OnboardingComplete() bool {
	return !u.PasswordChangeRequired && (!u.MFASetupRequired || u.MFAEnabled)
}
