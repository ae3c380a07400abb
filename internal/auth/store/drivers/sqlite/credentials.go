package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pastvault/pastvault/internal/auth/domain"
	"github.com/pastvault/pastvault/internal/auth/store"
)

type credentialsRepo struct {
	db dbtx
}

const credentialColumns = `id, user_id, public_key, attestation_type, transports,
	sign_count, clone_warning, backup_eligible, backup_state, label, created_at, last_used_at`

func scanCredential(row interface{ Scan(...any) error }) (domain.Credential, error) {
	var (
		c          domain.Credential
		transports string
		lastUsed   sql.NullTime
	)
	err := row.Scan(&c.ID, &c.UserID, &c.PublicKey, &c.AttestationType, &transports,
		&c.SignCount, &c.CloneWarning, &c.BackupEligible, &c.BackupState,
		&c.Label, &c.CreatedAt, &lastUsed)
	if err != nil {
		return domain.Credential{}, err
	}
	c.Transports = splitList(transports)
	c.LastUsedAt = mapNullTimePtr(lastUsed)
	return c, nil
}

func (r *credentialsRepo) CreateCredential(ctx context.Context, c domain.Credential) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (id, user_id, public_key, attestation_type, transports,
			sign_count, clone_warning, backup_eligible, backup_state, label, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.PublicKey, c.AttestationType, joinList(c.Transports),
		c.SignCount, c.CloneWarning, c.BackupEligible, c.BackupState,
		c.Label, c.CreatedAt, mapOptionalTime(c.LastUsedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *credentialsRepo) GetCredentialByID(ctx context.Context, id string) (domain.Credential, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE id = ?`, id)
	c, err := scanCredential(row)
	return c, mapNotFound(err)
}

func (r *credentialsRepo) ListUserCredentials(ctx context.Context, userID string) ([]domain.Credential, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// UpdateCredentialCounter only advances the counter, never rewinds it.
// Concurrent assertions race on this row; the condition makes the losing
// write a no-op instead of a rollback. Zero counters are common with
// authenticators that never increment, so a zero update on a zero row is
// accepted.
func (r *credentialsRepo) UpdateCredentialCounter(ctx context.Context, id string, newCount uint32) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE credentials SET sign_count = ?, last_used_at = ?
		WHERE id = ? AND (sign_count < ? OR (sign_count = 0 AND ? = 0))`,
		newCount, time.Now().UTC(), id, newCount, newCount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing row from a stale counter.
		if _, getErr := r.GetCredentialByID(ctx, id); getErr != nil {
			return getErr
		}
		return store.ErrStaleCounter
	}
	return nil
}

func (r *credentialsRepo) DeleteUserCredentials(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE user_id = ?`, userID)
	return err
}
