package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/zncgate/proxy/internal/money"
)

// PostgresTransactionRepository implements TransactionRepository.
type PostgresTransactionRepository struct{}

func NewPostgresTransactionRepository() *PostgresTransactionRepository {
	return &PostgresTransactionRepository{}
}

func (r *PostgresTransactionRepository) Insert(ctx context.Context, q Querier, t *Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount_cents, kind, description, external_ref)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.Amount.Cents(), t.Kind, t.Description, t.ExternalRef)
	return err
}

func (r *PostgresTransactionRepository) List(ctx context.Context, q Querier, userID string, kind *TransactionKind, limit, offset int) ([]Transaction, int, error) {
	var total int
	var rows *sql.Rows
	var err error

	if kind != nil {
		if countErr := q.QueryRowContext(ctx,
			`SELECT count(*) FROM transactions WHERE user_id = $1 AND kind = $2`, userID, *kind,
		).Scan(&total); countErr != nil {
			return nil, 0, countErr
		}
		rows, err = q.QueryContext(ctx, `
			SELECT id, user_id, amount_cents, kind, description, external_ref, created_at
			FROM transactions WHERE user_id = $1 AND kind = $2
			ORDER BY created_at DESC LIMIT $3 OFFSET $4`, userID, *kind, limit, offset)
	} else {
		if countErr := q.QueryRowContext(ctx,
			`SELECT count(*) FROM transactions WHERE user_id = $1`, userID,
		).Scan(&total); countErr != nil {
			return nil, 0, countErr
		}
		rows, err = q.QueryContext(ctx, `
			SELECT id, user_id, amount_cents, kind, description, external_ref, created_at
			FROM transactions WHERE user_id = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var cents int64
		if err := rows.Scan(&t.ID, &t.UserID, &cents, &t.Kind, &t.Description, &t.ExternalRef, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		t.Amount = money.FromCents(cents)
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// CountPurchasesStrictlyBelow counts PURCHASE transactions whose (negative)
// amount is strictly below threshold, i.e. purchases of strictly more than
// |threshold|. Used by the referral bonus eligibility check: exactly one
// such purchase existing (the one just recorded) means this was the
// referee's first.
func (r *PostgresTransactionRepository) CountPurchasesStrictlyBelow(ctx context.Context, q Querier, userID string, threshold money.ZNC) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT count(*) FROM transactions
		WHERE user_id = $1 AND kind = $2 AND amount_cents < $3`,
		userID, TransactionPurchase, threshold.Cents()).Scan(&n)
	return n, err
}
