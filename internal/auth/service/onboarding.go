package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/pastvault/pastvault/internal/auth/store"
	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/pastvault/pastvault/pkg/cryptox"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// MinPasswordLen is the shortest accepted replacement password.
const MinPasswordLen = 12

var ErrWeakPassword = errors.New("password too short")

// OnboardingService reports and advances first-login setup state.
type OnboardingService struct {
	Store store.Store
}

// Status derives the remaining onboarding steps from the user record.
func (s *OnboardingService) Status(ctx context.Context, userID string) (authapi.OnboardingStatus, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return authapi.OnboardingStatus{}, ErrUserNotFound
		}
		return authapi.OnboardingStatus{}, fmt.Errorf("lookup user: %w", err)
	}

	status := authapi.OnboardingStatus{
		PasswordChangeRequired: user.PasswordChangeRequired,
		MFASetupRequired:       user.MFASetupRequired,
		MFAEnabled:             user.MFAEnabled,
		Complete:               user.OnboardingComplete(),
	}
	if user.MFAMethod != nil {
		status.MFAMethod = *user.MFAMethod
	}
	return status, nil
}

// ChangePassword replaces the user's password after verifying the current
// one. A successful change clears the password-change-required flag.
func (s *OnboardingService) ChangePassword(ctx context.Context, userID, current, replacement string) error {
	if len(replacement) < MinPasswordLen {
		return ErrWeakPassword
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if err := cryptox.VerifyPassword(current, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrMismatch) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("verify password: %w", err)
	}

	hash, err := cryptox.HashPassword(replacement)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	slogx.FromContext(ctx).Info("password changed", "user_id", userID)
	return nil
}
