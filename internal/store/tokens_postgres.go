package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PostgresAccessTokenRepository implements AccessTokenRepository.
type PostgresAccessTokenRepository struct{}

func NewPostgresAccessTokenRepository() *PostgresAccessTokenRepository {
	return &PostgresAccessTokenRepository{}
}

func (r *PostgresAccessTokenRepository) Create(ctx context.Context, q Querier, t *AccessToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO access_tokens (id, user_id, secret, duration_hours, scope, activated_at, active, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.UserID, t.Secret, t.DurationHours, t.Scope, t.ActivatedAt, t.Active, t.RevokedAt)
	return err
}

func (r *PostgresAccessTokenRepository) GetBySecret(ctx context.Context, q Querier, secret string) (*AccessToken, error) {
	return scanAccessToken(q.QueryRowContext(ctx, `
		SELECT id, user_id, secret, duration_hours, scope, created_at, activated_at, active, revoked_at
		FROM access_tokens WHERE secret = $1`, secret))
}

func (r *PostgresAccessTokenRepository) GetByID(ctx context.Context, q Querier, id string) (*AccessToken, error) {
	return scanAccessToken(q.QueryRowContext(ctx, `
		SELECT id, user_id, secret, duration_hours, scope, created_at, activated_at, active, revoked_at
		FROM access_tokens WHERE id = $1`, id))
}

// GetByIDForUpdate row-locks the token row before activation or revocation,
// so a racing validate/revoke pair cannot both win.
func (r *PostgresAccessTokenRepository) GetByIDForUpdate(ctx context.Context, q Querier, id string) (*AccessToken, error) {
	return scanAccessToken(q.QueryRowContext(ctx, `
		SELECT id, user_id, secret, duration_hours, scope, created_at, activated_at, active, revoked_at
		FROM access_tokens WHERE id = $1 FOR UPDATE`, id))
}

func (r *PostgresAccessTokenRepository) Activate(ctx context.Context, q Querier, id string, at time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE access_tokens SET activated_at = $2 WHERE id = $1 AND activated_at IS NULL`, id, at)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *PostgresAccessTokenRepository) Revoke(ctx context.Context, q Querier, id string, at time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE access_tokens SET active = false, revoked_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *PostgresAccessTokenRepository) ListByUser(ctx context.Context, q Querier, userID string) ([]AccessToken, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, secret, duration_hours, scope, created_at, activated_at, active, revoked_at
		FROM access_tokens WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccessToken
	for rows.Next() {
		var t AccessToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Secret, &t.DurationHours, &t.Scope,
			&t.CreatedAt, &t.ActivatedAt, &t.Active, &t.RevokedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanAccessToken(row *sql.Row) (*AccessToken, error) {
	var t AccessToken
	if err := row.Scan(&t.ID, &t.UserID, &t.Secret, &t.DurationHours, &t.Scope,
		&t.CreatedAt, &t.ActivatedAt, &t.Active, &t.RevokedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
