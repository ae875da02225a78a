package store

import (
	"context"
	"time"

	"github.com/zncgate/proxy/internal/money"
)

// UserRepository persists User rows and the balance mutations the ledger
// needs inside a caller-managed transaction.
type UserRepository interface {
	GetByID(ctx context.Context, q Querier, id string) (*User, error)
	GetByIDForUpdate(ctx context.Context, q Querier, id string) (*User, error)
	GetByEmail(ctx context.Context, q Querier, email string) (*User, error)
	GetByReferralCode(ctx context.Context, q Querier, code string) (*User, error)
	Create(ctx context.Context, q Querier, u *User) error
	UpdateBalance(ctx context.Context, q Querier, id string, balance, referralBonusEarned money.ZNC) error
}

// AccessTokenRepository persists AccessToken rows.
type AccessTokenRepository interface {
	Create(ctx context.Context, q Querier, t *AccessToken) error
	GetBySecret(ctx context.Context, q Querier, secret string) (*AccessToken, error)
	GetByID(ctx context.Context, q Querier, id string) (*AccessToken, error)
	GetByIDForUpdate(ctx context.Context, q Querier, id string) (*AccessToken, error)
	Activate(ctx context.Context, q Querier, id string, at time.Time) error
	Revoke(ctx context.Context, q Querier, id string, at time.Time) error
	ListByUser(ctx context.Context, q Querier, userID string) ([]AccessToken, error)
}

// TransactionRepository persists append-only ledger Transaction rows.
type TransactionRepository interface {
	Insert(ctx context.Context, q Querier, t *Transaction) error
	List(ctx context.Context, q Querier, userID string, kind *TransactionKind, limit, offset int) ([]Transaction, int, error)
	// CountPurchasesStrictlyBelow counts PURCHASE transactions for userID whose
	// amount is strictly below threshold (threshold is negative; a bigger
	// purchase is a more negative amount). Used by the referral bonus's "is
	// this the referee's first qualifying purchase" check.
	CountPurchasesStrictlyBelow(ctx context.Context, q Querier, userID string, threshold money.ZNC) (int, error)
}

// ProxySessionRepository persists ProxySession rows.
type ProxySessionRepository interface {
	GetActiveByToken(ctx context.Context, q Querier, tokenID string) (*ProxySession, error)
	Create(ctx context.Context, q Querier, s *ProxySession) error
	UpdateActivity(ctx context.Context, q Querier, id, ip, userAgent string, bytesAdd int64, at time.Time) error
	Close(ctx context.Context, q Querier, id string, at time.Time) error
	CloseIdleBefore(ctx context.Context, q Querier, cutoff time.Time) (int, error)
	ListActive(ctx context.Context, q Querier, userID *string) ([]ProxySession, error)
}

// TokenBundleRepository reads TokenBundle rows.
type TokenBundleRepository interface {
	GetByID(ctx context.Context, q Querier, id string) (*TokenBundle, error)
}

// AuditLogRepository persists AuditLog rows in batches.
type AuditLogRepository interface {
	InsertBatch(ctx context.Context, q Querier, logs []AuditLog) error
}
