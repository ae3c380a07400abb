package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pastvault/pastvault/internal/auth/domain"
	"github.com/pastvault/pastvault/internal/auth/store"
	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/pastvault/pastvault/pkg/cryptox"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Code shape is checked before any lookups so garbage input fails fast and
// without touching the backup code table.
var (
	totpCodePattern   = regexp.MustCompile(`^[0-9]{6}$`)
	backupCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)
)

// TOTPStrategy verifies time-based one-time codes with single-use backup
// codes as a fallback.
type TOTPStrategy struct {
	Store store.Store
}

func (s *TOTPStrategy) Method() string { return authapi.MFAMethodTOTP }

// Challenge is a no-op for TOTP: the shared secret is the challenge.
func (s *TOTPStrategy) Challenge(ctx context.Context, user domain.User) (json.RawMessage, error) {
	return nil, nil
}

func (s *TOTPStrategy) Verify(ctx context.Context, user domain.User, code string, _ json.RawMessage) error {
	code = strings.ToUpper(strings.TrimSpace(code))

	switch {
	case totpCodePattern.MatchString(code):
		err := s.verifyTOTP(user, code)
		if errors.Is(err, ErrInvalidMFACode) {
			// An all-digit backup code is still a backup code.
			return s.verifyBackupCode(ctx, user.ID, code)
		}
		return err
	case backupCodePattern.MatchString(code):
		return s.verifyBackupCode(ctx, user.ID, code)
	default:
		return ErrInvalidMFACode
	}
}

func (s *TOTPStrategy) verifyTOTP(user domain.User, code string) error {
	if user.TOTPSecret == nil || *user.TOTPSecret == "" {
		return ErrMFANotConfigured
	}

	valid, err := totp.ValidateCustom(code, *user.TOTPSecret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return fmt.Errorf("validate totp: %w", err)
	}
	if !valid {
		return ErrInvalidMFACode
	}
	return nil
}

// verifyBackupCode walks the user's hashed codes and deletes the match so a
// code can only be used once.
func (s *TOTPStrategy) verifyBackupCode(ctx context.Context, userID string, code string) error {
	codes, err := s.Store.BackupCodes().ListUserBackupCodes(ctx, userID)
	if err != nil {
		return fmt.Errorf("list backup codes: %w", err)
	}

	for _, bc := range codes {
		if err := cryptox.VerifyPassword(code, bc.CodeHash); err == nil {
			if err := s.Store.BackupCodes().DeleteBackupCode(ctx, bc.ID); err != nil {
				return fmt.Errorf("consume backup code: %w", err)
			}
			return nil
		}
	}
	return ErrInvalidMFACode
}
