package sqlite

import (
	"context"
	"time"

	"github.com/pastvault/pastvault/internal/auth/domain"
	"github.com/pastvault/pastvault/internal/auth/store"
)

type mfaChallengesRepo struct {
	db dbtx
}

func (r *mfaChallengesRepo) UpsertMFAChallenge(ctx context.Context, c domain.MFAChallenge) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mfa_challenges (user_id, method, payload, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			method = excluded.method,
			payload = excluded.payload,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`,
		c.UserID, c.Method, c.Payload, c.ExpiresAt, c.CreatedAt)
	return err
}

func (r *mfaChallengesRepo) GetMFAChallenge(ctx context.Context, userID string) (domain.MFAChallenge, error) {
	var c domain.MFAChallenge
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, method, payload, expires_at, created_at
		FROM mfa_challenges WHERE user_id = ?`, userID).
		Scan(&c.UserID, &c.Method, &c.Payload, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return domain.MFAChallenge{}, mapNotFound(err)
	}
	if time.Now().After(c.ExpiresAt) {
		_, _ = r.db.ExecContext(ctx, `DELETE FROM mfa_challenges WHERE user_id = ?`, userID)
		return domain.MFAChallenge{}, store.ErrNotFound
	}
	return c, nil
}

func (r *mfaChallengesRepo) DeleteMFAChallenge(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mfa_challenges WHERE user_id = ?`, userID)
	return err
}

func (r *mfaChallengesRepo) DeleteExpiredMFAChallenges(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM mfa_challenges WHERE expires_at < ?`, time.Now().UTC())
	return err
}

type loginChallengesRepo struct {
	db dbtx
}

func (r *loginChallengesRepo) CreateLoginChallenge(ctx context.Context, c domain.LoginChallenge) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_challenges (id, payload, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		c.ID, c.Payload, c.ExpiresAt, c.CreatedAt)
	return err
}

// ConsumeLoginChallenge deletes the row before the expiry check so a
// challenge can never be redeemed twice, valid or not.
func (r *loginChallengesRepo) ConsumeLoginChallenge(ctx context.Context, id string) (domain.LoginChallenge, error) {
	var c domain.LoginChallenge
	err := r.db.QueryRowContext(ctx,
		`SELECT id, payload, expires_at, created_at FROM login_challenges WHERE id = ?`, id).
		Scan(&c.ID, &c.Payload, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return domain.LoginChallenge{}, mapNotFound(err)
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM login_challenges WHERE id = ?`, id); err != nil {
		return domain.LoginChallenge{}, err
	}

	if time.Now().After(c.ExpiresAt) {
		return domain.LoginChallenge{}, store.ErrNotFound
	}
	return c, nil
}

func (r *loginChallengesRepo) DeleteExpiredLoginChallenges(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM login_challenges WHERE expires_at < ?`, time.Now().UTC())
	return err
}
