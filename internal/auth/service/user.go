package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/pastvault/pastvault/internal/auth/domain"
	"github.com/pastvault/pastvault/internal/auth/store"
	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/pastvault/pastvault/pkg/cryptox"
	"github.com/pastvault/pastvault/pkg/idx"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// UserService covers administrative account management.
type UserService struct {
	Store store.Store
}

// CreateUser provisions an account with a generated initial password and the
// full onboarding gauntlet ahead of it. The plaintext password is returned
// exactly once.
func (s *UserService) CreateUser(ctx context.Context, username string, roleNames []string) (authapi.CreateUserResponse, error) {
	if username == "" {
		return authapi.CreateUserResponse{}, ErrInvalidRequest
	}
	if len(roleNames) == 0 {
		roleNames = []string{domain.RoleUser}
	}

	password, err := cryptox.GeneratePassword()
	if err != nil {
		return authapi.CreateUserResponse{}, fmt.Errorf("generate password: %w", err)
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return authapi.CreateUserResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:                     idx.New().String(),
		Username:               username,
		PasswordHash:           hash,
		PasswordChangeRequired: true,
		MFASetupRequired:       true,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		roleIDs, err := resolveRoleIDs(ctx, tx, roleNames)
		if err != nil {
			return err
		}
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			return err
		}
		return tx.Roles().SetUserRoles(ctx, user.ID, roleIDs)
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return authapi.CreateUserResponse{}, ErrUserExists
		}
		return authapi.CreateUserResponse{}, fmt.Errorf("create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user created", "user_id", user.ID, "username", username)

	return authapi.CreateUserResponse{
		User:            toAPIUser(user, roleNames),
		InitialPassword: password,
	}, nil
}

// GetUser returns one account with its roles.
func (s *UserService) GetUser(ctx context.Context, userID string) (authapi.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return authapi.User{}, ErrUserNotFound
		}
		return authapi.User{}, fmt.Errorf("lookup user: %w", err)
	}
	roles, err := s.Store.Roles().GetRolesForUser(ctx, userID)
	if err != nil {
		return authapi.User{}, fmt.Errorf("load roles: %w", err)
	}
	return toAPIUser(user, roles), nil
}

// ListUsers returns all accounts with their roles.
func (s *UserService) ListUsers(ctx context.Context) ([]authapi.User, error) {
	users, err := s.Store.Users().ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	out := make([]authapi.User, 0, len(users))
	for _, u := range users {
		roles, err := s.Store.Roles().GetRolesForUser(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("load roles: %w", err)
		}
		out = append(out, toAPIUser(u, roles))
	}
	return out, nil
}

// DeleteUser removes an account. Two guards: an admin cannot delete their
// own account, and the final account in the system is undeletable so the
// service can never be administratively bricked.
func (s *UserService) DeleteUser(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return ErrSelfDeleteForbidden
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.Users().CountUsers(ctx)
		if err != nil {
			return err
		}
		if n <= 1 {
			return ErrLastUserProtected
		}
		return tx.Users().DeleteUser(ctx, targetID)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	slogx.FromContext(ctx).Info("user deleted", "user_id", targetID, "actor_id", actorID)
	return nil
}

// ListRoles returns the assignable roles.
func (s *UserService) ListRoles(ctx context.Context) ([]authapi.Role, error) {
	roles, err := s.Store.Roles().ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	out := make([]authapi.Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, authapi.Role{ID: r.ID, Name: r.Name, Description: r.Description})
	}
	return out, nil
}

// SetUserRoles replaces the target's role set. Every account keeps at least
// one role, and an admin cannot strip admin from themselves, which would
// otherwise be a one-way door out of the admin surface.
func (s *UserService) SetUserRoles(ctx context.Context, actorID, targetID string, roleNames []string) error {
	if len(roleNames) == 0 {
		return ErrRoleRequired
	}

	if actorID == targetID {
		keepsAdmin := false
		for _, name := range roleNames {
			if name == domain.RoleAdmin {
				keepsAdmin = true
				break
			}
		}
		if !keepsAdmin {
			current, err := s.Store.Roles().GetRolesForUser(ctx, actorID)
			if err != nil {
				return fmt.Errorf("load roles: %w", err)
			}
			for _, name := range current {
				if name == domain.RoleAdmin {
					return ErrSelfLockout
				}
			}
		}
	}

	if _, err := s.Store.Users().GetUserByID(ctx, targetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		roleIDs, err := resolveRoleIDs(ctx, tx, roleNames)
		if err != nil {
			return err
		}
		return tx.Roles().SetUserRoles(ctx, targetID, roleIDs)
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("roles updated", "user_id", targetID, "roles", roleNames)
	return nil
}

func resolveRoleIDs(ctx context.Context, st store.Store, names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		role, err := st.Roles().GetRoleByName(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, name)
			}
			return nil, err
		}
		ids = append(ids, role.ID)
	}
	return ids, nil
}

func toAPIUser(u domain.User, roles []string) authapi.User {
	out := authapi.User{
		ID:                 u.ID,
		Username:           u.Username,
		MFAEnabled:         u.MFAEnabled,
		OnboardingComplete: u.OnboardingComplete(),
		Roles:              roles,
		CreatedAt:          u.CreatedAt,
	}
	if u.MFAMethod != nil {
		out.MFAMethod = *u.MFAMethod
	}
	return out
}
