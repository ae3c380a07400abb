package authapi

import (
	"encoding/json"
	"time"
)

// MFA method identifiers.
const (
	MFAMethodTOTP     = "totp"
	MFAMethodWebAuthn = "webauthn"
)

// LoginRequest starts a password login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse reports where the client should go next. When MFARequired is
// set the session cookie is a pre-auth token scoped to the MFA surface.
type LoginResponse struct {
	MFARequired        bool   `json:"mfa_required"`
	MFAMethod          string `json:"mfa_method,omitempty"`
	OnboardingComplete bool   `json:"onboarding_complete"`
	User               *User  `json:"user,omitempty"`
}

// MFAVerifyRequest submits proof for the user's active factor. Code carries a
// TOTP or backup code; Assertion carries a raw WebAuthn assertion.
type MFAVerifyRequest struct {
	Method    string          `json:"method"`
	Code      string          `json:"code,omitempty"`
	Assertion json.RawMessage `json:"assertion,omitempty"`
}

// MFAVerifyResponse confirms factor verification and full session issuance.
type MFAVerifyResponse struct {
	Verified           bool  `json:"verified"`
	OnboardingComplete bool  `json:"onboarding_complete"`
	User               *User `json:"user,omitempty"`
}

// MFAChallengeResponse carries method-specific challenge material, such as
// WebAuthn assertion options.
type MFAChallengeResponse struct {
	Method  string          `json:"method"`
	Options json.RawMessage `json:"options,omitempty"`
}

// PasskeyOptionsResponse carries discoverable-login assertion options plus
// the challenge reference the client must echo back.
type PasskeyOptionsResponse struct {
	ChallengeID string          `json:"challenge_id"`
	Options     json.RawMessage `json:"options"`
}

// PasskeyVerifyRequest completes a discoverable login.
type PasskeyVerifyRequest struct {
	ChallengeID string          `json:"challenge_id"`
	Assertion   json.RawMessage `json:"assertion"`
}

// OnboardingStatus reports which onboarding steps remain.
type OnboardingStatus struct {
	PasswordChangeRequired bool   `json:"password_change_required"`
	MFASetupRequired       bool   `json:"mfa_setup_required"`
	MFAEnabled             bool   `json:"mfa_enabled"`
	MFAMethod              string `json:"mfa_method,omitempty"`
	Complete               bool   `json:"complete"`
}

// OnboardingSteps is the per-step breakdown of outstanding onboarding work.
type OnboardingSteps struct {
	PasswordChangeRequired bool `json:"password_change_required"`
	MFASetupRequired       bool `json:"mfa_setup_required"`
}

// OnboardingRequired is the 403 body returned when a gated resource is hit
// before onboarding is finished. Clients route the user to the remaining
// steps instead of parsing the description.
type OnboardingRequired struct {
	Code        string          `json:"error"`
	Description string          `json:"error_description,omitempty"`
	Steps       OnboardingSteps `json:"onboarding_steps"`
}

// ChangePasswordRequest sets a new password during onboarding or later.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// TOTPEnrollResponse carries the provisioning material for a new TOTP
// enrollment. The secret is only returned once.
type TOTPEnrollResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

// TOTPActivateRequest confirms TOTP enrollment with a live code.
type TOTPActivateRequest struct {
	Code string `json:"code"`
}

// TOTPActivateResponse returns the one-time backup codes generated at
// activation. They are shown exactly once.
type TOTPActivateResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// WebAuthnRegisterOptionsResponse carries credential-creation options.
type WebAuthnRegisterOptionsResponse struct {
	Options json.RawMessage `json:"options"`
}

// WebAuthnRegisterVerifyRequest completes credential registration.
type WebAuthnRegisterVerifyRequest struct {
	Attestation json.RawMessage `json:"attestation"`
	Label       string          `json:"label,omitempty"`
}

// Credential describes a registered WebAuthn credential.
type Credential struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the public shape of an account.
type User struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	MFAEnabled         bool      `json:"mfa_enabled"`
	MFAMethod          string    `json:"mfa_method,omitempty"`
	OnboardingComplete bool      `json:"onboarding_complete"`
	Roles              []string  `json:"roles,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// CreateUserRequest provisions a new account. The generated initial password
// is returned once in CreateUserResponse.
type CreateUserRequest struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
}

// CreateUserResponse returns the new account and its initial password.
type CreateUserResponse struct {
	User            User   `json:"user"`
	InitialPassword string `json:"initial_password"`
}

// UpdateRolesRequest replaces a user's role set.
type UpdateRolesRequest struct {
	Roles []string `json:"roles"`
}

// Role describes an assignable role.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
