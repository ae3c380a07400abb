package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRequest     = errors.New("invalid request")

	ErrUnsupportedMFAMethod = errors.New("unsupported MFA method")
	ErrInvalidMFACode       = errors.New("invalid MFA code")
	ErrMFANotConfigured     = errors.New("MFA not configured for this user")
	ErrMFAAlreadyEnabled    = errors.New("MFA already enabled for this user")
	ErrMFANotEnrolled       = errors.New("MFA not enrolled")
	ErrChallengeExpired     = errors.New("challenge expired or not found")

	ErrDeviceAlreadyRegistered = errors.New("device already registered")

	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("username already taken")
	ErrLastUserProtected   = errors.New("cannot delete the last user")
	ErrSelfDeleteForbidden = errors.New("cannot delete your own account")
	ErrSelfLockout         = errors.New("cannot remove your own admin role")
	ErrRoleRequired        = errors.New("users must hold at least one role")
)
