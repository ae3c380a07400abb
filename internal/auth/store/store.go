package store

import (
	"context"
	"errors"

	"github.com/pastvault/pastvault/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrStaleCounter  = errors.New("store: stale counter")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and to stop callers from accidentally nesting transactions.
type Store interface {
	Users() Users
	Roles() Roles
	Credentials() Credentials
	BackupCodes() BackupCodes
	MFAChallenges() MFAChallenges
	LoginChallenges() LoginChallenges

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction. If fn returns an
	// error the transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during password login.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash (argon2), clears the
	// password_change_required flag and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// DeleteUser cascades to credentials, backup codes and challenges.
	DeleteUser(ctx context.Context, userID string) error

	// CountUsers returns the total number of users.
	CountUsers(ctx context.Context) (int, error)

	// ListUsers returns all users ordered by creation date (newest first).
	ListUsers(ctx context.Context) ([]domain.User, error)

	// SetTOTPSecret stores a pending TOTP secret for a user.
	SetTOTPSecret(ctx context.Context, userID string, secret string) error

	// EnableMFA marks MFA active with the given method.
	EnableMFA(ctx context.Context, userID string, method string) error

	// DisableMFA clears mfa_enabled, mfa_method and totp_secret, and flags
	// the user for MFA re-setup.
	DisableMFA(ctx context.Context, userID string) error
}

type Roles interface {
	// GetRoleByID fetches a role by its ID.
	GetRoleByID(ctx context.Context, id string) (domain.Role, error)

	// GetRoleByName fetches a role by its name (for seeding and assignment).
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)

	// ListAll returns all roles in the system.
	ListAll(ctx context.Context) ([]domain.Role, error)

	// CreateRole inserts a new role (id is ULID).
	CreateRole(ctx context.Context, r domain.Role) error

	// GetRolesForUser returns the role names assigned to a user.
	GetRolesForUser(ctx context.Context, userID string) ([]string, error)

	// SetUserRoles replaces a user's role set.
	SetUserRoles(ctx context.Context, userID string, roleIDs []string) error
}

type Credentials interface {
	// CreateCredential stores a newly registered WebAuthn credential.
	CreateCredential(ctx context.Context, c domain.Credential) error

	// GetCredentialByID fetches a credential by its base64url id.
	GetCredentialByID(ctx context.Context, id string) (domain.Credential, error)

	// ListUserCredentials returns all credentials registered to a user.
	ListUserCredentials(ctx context.Context, userID string) ([]domain.Credential, error)

	// UpdateCredentialCounter advances the signature counter and last_used_at.
	// The update only applies when newCount is strictly greater than the
	// stored value; otherwise ErrStaleCounter is returned. Zero counters are
	// accepted as-is since some authenticators never increment.
	UpdateCredentialCounter(ctx context.Context, id string, newCount uint32) error

	// DeleteUserCredentials removes all credentials for a user.
	DeleteUserCredentials(ctx context.Context, userID string) error
}

type BackupCodes interface {
	// CreateBackupCode stores a backup code hash for a user.
	CreateBackupCode(ctx context.Context, code domain.BackupCode) error

	// ListUserBackupCodes returns all backup code records for a user.
	ListUserBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error)

	// DeleteBackupCode removes a specific backup code after use.
	DeleteBackupCode(ctx context.Context, id string) error

	// DeleteAllBackupCodes removes all backup codes for a user.
	DeleteAllBackupCodes(ctx context.Context, userID string) error

	// CountUserBackupCodes returns the number of backup codes for a user.
	CountUserBackupCodes(ctx context.Context, userID string) (int, error)
}

type MFAChallenges interface {
	// UpsertMFAChallenge writes the pending challenge for a user, replacing
	// any previous one.
	UpsertMFAChallenge(ctx context.Context, c domain.MFAChallenge) error

	// GetMFAChallenge retrieves a user's pending challenge (only if not expired).
	GetMFAChallenge(ctx context.Context, userID string) (domain.MFAChallenge, error)

	// DeleteMFAChallenge removes a user's pending challenge.
	DeleteMFAChallenge(ctx context.Context, userID string) error

	// DeleteExpiredMFAChallenges removes all expired challenges (housekeeping).
	DeleteExpiredMFAChallenges(ctx context.Context) error
}

type LoginChallenges interface {
	// CreateLoginChallenge stores a pending discoverable-login challenge.
	CreateLoginChallenge(ctx context.Context, c domain.LoginChallenge) error

	// ConsumeLoginChallenge retrieves a challenge by id and deletes it in the
	// same call so it can only be redeemed once. Expired challenges are
	// deleted and reported as ErrNotFound.
	ConsumeLoginChallenge(ctx context.Context, id string) (domain.LoginChallenge, error)

	// DeleteExpiredLoginChallenges removes all expired challenges (housekeeping).
	DeleteExpiredLoginChallenges(ctx context.Context) error
}
