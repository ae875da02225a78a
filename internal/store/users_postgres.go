package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/zncgate/proxy/internal/money"
)

// PostgresUserRepository implements UserRepository over a *sql.DB/*sql.Tx.
type PostgresUserRepository struct{}

func NewPostgresUserRepository() *PostgresUserRepository { return &PostgresUserRepository{} }

func (r *PostgresUserRepository) GetByID(ctx context.Context, q Querier, id string) (*User, error) {
	return scanUser(q.QueryRowContext(ctx, `
		SELECT id, email, username, credential_digest, active, elevated,
		       balance_cents, referral_code, referred_by_id, referral_bonus_earned_cents, created_at
		FROM users WHERE id = $1`, id))
}

// GetByIDForUpdate row-locks the user, required before any balance mutation
// (credit, debit, referral bonus) so concurrent purchases serialize per user.
func (r *PostgresUserRepository) GetByIDForUpdate(ctx context.Context, q Querier, id string) (*User, error) {
	return scanUser(q.QueryRowContext(ctx, `
		SELECT id, email, username, credential_digest, active, elevated,
		       balance_cents, referral_code, referred_by_id, referral_bonus_earned_cents, created_at
		FROM users WHERE id = $1 FOR UPDATE`, id))
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, q Querier, email string) (*User, error) {
	return scanUser(q.QueryRowContext(ctx, `
		SELECT id, email, username, credential_digest, active, elevated,
		       balance_cents, referral_code, referred_by_id, referral_bonus_earned_cents, created_at
		FROM users WHERE email = $1`, email))
}

func (r *PostgresUserRepository) GetByReferralCode(ctx context.Context, q Querier, code string) (*User, error) {
	return scanUser(q.QueryRowContext(ctx, `
		SELECT id, email, username, credential_digest, active, elevated,
		       balance_cents, referral_code, referred_by_id, referral_bonus_earned_cents, created_at
		FROM users WHERE referral_code = $1`, code))
}

func (r *PostgresUserRepository) Create(ctx context.Context, q Querier, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, email, username, credential_digest, active, elevated,
		                    balance_cents, referral_code, referred_by_id, referral_bonus_earned_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Email, u.Username, u.CredentialDigest, u.Active, u.Elevated,
		u.Balance.Cents(), u.ReferralCode, u.ReferredByID, u.ReferralBonusEarned.Cents())
	return err
}

func (r *PostgresUserRepository) UpdateBalance(ctx context.Context, q Querier, id string, balance, referralBonusEarned money.ZNC) error {
	res, err := q.ExecContext(ctx, `
		UPDATE users SET balance_cents = $2, referral_bonus_earned_cents = $3 WHERE id = $1`,
		id, balance.Cents(), referralBonusEarned.Cents())
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var balanceCents, bonusCents int64
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.CredentialDigest, &u.Active, &u.Elevated,
		&balanceCents, &u.ReferralCode, &u.ReferredByID, &bonusCents, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Balance = money.FromCents(balanceCents)
	u.ReferralBonusEarned = money.FromCents(bonusCents)
	return &u, nil
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
