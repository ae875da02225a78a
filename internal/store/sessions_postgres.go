package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PostgresProxySessionRepository implements ProxySessionRepository.
type PostgresProxySessionRepository struct{}

func NewPostgresProxySessionRepository() *PostgresProxySessionRepository {
	return &PostgresProxySessionRepository{}
}

// GetActiveByToken finds the single active session for a token, if any. The
// caller is expected to hold a transaction so the subsequent create-or-update
// decision is consistent (spec.md §5's select-then-insert-or-update).
func (r *PostgresProxySessionRepository) GetActiveByToken(ctx context.Context, q Querier, tokenID string) (*ProxySession, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, user_id, token_id, device_id, ip, user_agent, started_at, last_activity,
		       ended_at, bytes_total, request_count, active
		FROM proxy_sessions WHERE token_id = $1 AND active`, tokenID)
	var s ProxySession
	if err := row.Scan(&s.ID, &s.UserID, &s.TokenID, &s.DeviceID, &s.IP, &s.UserAgent,
		&s.StartedAt, &s.LastActivity, &s.EndedAt, &s.BytesTotal, &s.RequestCount, &s.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PostgresProxySessionRepository) Create(ctx context.Context, q Querier, s *ProxySession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO proxy_sessions (id, user_id, token_id, device_id, ip, user_agent,
		                             started_at, last_activity, bytes_total, request_count, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $9, true)`,
		s.ID, s.UserID, s.TokenID, s.DeviceID, s.IP, s.UserAgent, s.StartedAt, s.BytesTotal, s.RequestCount)
	return err
}

func (r *PostgresProxySessionRepository) UpdateActivity(ctx context.Context, q Querier, id, ip, userAgent string, bytesAdd int64, at time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE proxy_sessions
		SET ip = $2, user_agent = $3, last_activity = $4,
		    bytes_total = bytes_total + $5, request_count = request_count + 1
		WHERE id = $1 AND active`, id, ip, userAgent, at, bytesAdd)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *PostgresProxySessionRepository) Close(ctx context.Context, q Querier, id string, at time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE proxy_sessions SET active = false, ended_at = $2 WHERE id = $1 AND active`, id, at)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// CloseIdleBefore closes every active session whose last_activity predates
// cutoff, returning the number reaped. Grounds the idle reaper's sweep.
func (r *PostgresProxySessionRepository) CloseIdleBefore(ctx context.Context, q Querier, cutoff time.Time) (int, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE proxy_sessions SET active = false, ended_at = $1
		WHERE active AND last_activity < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *PostgresProxySessionRepository) ListActive(ctx context.Context, q Querier, userID *string) ([]ProxySession, error) {
	var rows *sql.Rows
	var err error
	if userID != nil {
		rows, err = q.QueryContext(ctx, `
			SELECT id, user_id, token_id, device_id, ip, user_agent, started_at, last_activity,
			       ended_at, bytes_total, request_count, active
			FROM proxy_sessions WHERE active AND user_id = $1`, *userID)
	} else {
		rows, err = q.QueryContext(ctx, `
			SELECT id, user_id, token_id, device_id, ip, user_agent, started_at, last_activity,
			       ended_at, bytes_total, request_count, active
			FROM proxy_sessions WHERE active`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProxySession
	for rows.Next() {
		var s ProxySession
		if err := rows.Scan(&s.ID, &s.UserID, &s.TokenID, &s.DeviceID, &s.IP, &s.UserAgent,
			&s.StartedAt, &s.LastActivity, &s.EndedAt, &s.BytesTotal, &s.RequestCount, &s.Active); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
