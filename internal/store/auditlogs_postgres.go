package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// PostgresAuditLogRepository implements AuditLogRepository.
type PostgresAuditLogRepository struct{}

func NewPostgresAuditLogRepository() *PostgresAuditLogRepository {
	return &PostgresAuditLogRepository{}
}

// InsertBatch writes a batch of audit log entries, one INSERT per entry,
// for the audit pipeline's sink when it drains its buffer. It stops at the
// first failed insert; entries before it stay written.
func (r *PostgresAuditLogRepository) InsertBatch(ctx context.Context, q Querier, logs []AuditLog) error {
	for i := range logs {
		l := &logs[i]
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		details, err := json.Marshal(l.Details)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO audit_logs (id, actor_id, action, target_type, target_id, details, ip, user_agent)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			l.ID, l.ActorID, l.Action, l.TargetType, l.TargetID, details, l.IP, l.UserAgent); err != nil {
			return err
		}
	}
	return nil
}
