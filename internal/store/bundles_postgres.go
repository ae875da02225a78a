package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/zncgate/proxy/internal/money"
)

// PostgresTokenBundleRepository implements TokenBundleRepository.
type PostgresTokenBundleRepository struct{}

func NewPostgresTokenBundleRepository() *PostgresTokenBundleRepository {
	return &PostgresTokenBundleRepository{}
}

func (r *PostgresTokenBundleRepository) GetByID(ctx context.Context, q Querier, id string) (*TokenBundle, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, description, token_count, duration_hours, scope,
		       discount_percent, base_price_cents, total_price_cents, active
		FROM token_bundles WHERE id = $1`, id)
	var b TokenBundle
	var baseCents, totalCents int64
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &b.TokenCount, &b.DurationHours, &b.Scope,
		&b.DiscountPercent, &baseCents, &totalCents, &b.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.BasePrice = money.FromCents(baseCents)
	b.TotalPrice = money.FromCents(totalCents)
	return &b, nil
}
