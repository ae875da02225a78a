// Package store defines the persisted entities (spec.md §3) and the
// repository interfaces domain packages depend on, plus a Postgres
// implementation grounded on CedrosPay-server's internal/storage
// (database/sql + lib/pq, explicit BeginTx/Commit/Rollback, no ORM).
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/zncgate/proxy/internal/money"
)

// Scope restricts the set of upstream paths an AccessToken may reach.
type Scope string

const (
	ScopeFull              Scope = "full"
	ScopeCertificatesOnly  Scope = "certificates_only"
)

// TransactionKind is the closed set of ledger transaction kinds.
type TransactionKind string

const (
	TransactionDeposit       TransactionKind = "deposit"
	TransactionPurchase      TransactionKind = "purchase"
	TransactionRefund        TransactionKind = "refund"
	TransactionReferralBonus TransactionKind = "referral_bonus"
)

// User is the owner of tokens, transactions, and sessions.
type User struct {
	ID                   string
	Email                string
	Username             string
	CredentialDigest     string
	Active               bool
	Elevated             bool
	Balance              money.ZNC
	ReferralCode         string
	ReferredByID         *string
	ReferralBonusEarned  money.ZNC
	CreatedAt            time.Time
}

// AccessToken is an opaque bearer credential authorizing proxied traffic.
type AccessToken struct {
	ID             string
	UserID         string
	Secret         string
	DurationHours  int
	Scope          Scope
	CreatedAt      time.Time
	ActivatedAt    *time.Time
	Active         bool
	RevokedAt      *time.Time
}

// Expiry returns the token's expiry instant, or nil if not yet activated.
func (t *AccessToken) Expiry() *time.Time {
	if t.ActivatedAt == nil {
		return nil
	}
	exp := t.ActivatedAt.Add(time.Duration(t.DurationHours) * time.Hour)
	return &exp
}

// Usable reports whether the token may currently be used to reach the
// upstream, per spec.md §3's AccessToken invariant.
func (t *AccessToken) Usable(now time.Time) bool {
	if !t.Active || t.RevokedAt != nil {
		return false
	}
	if exp := t.Expiry(); exp != nil && !now.Before(*exp) {
		return false
	}
	return true
}

// Transaction is an append-only ledger entry.
type Transaction struct {
	ID          string
	UserID      string
	Amount      money.ZNC // negative = debit
	Kind        TransactionKind
	Description string
	ExternalRef *string
	CreatedAt   time.Time
}

// ProxySession is the binding between a token and the single device
// currently allowed to use it.
type ProxySession struct {
	ID            string
	UserID        string
	TokenID       string
	DeviceID      string
	IP            string
	UserAgent     string
	StartedAt     time.Time
	LastActivity  time.Time
	EndedAt       *time.Time
	BytesTotal    int64
	RequestCount  int64
	Active        bool
}

// TokenBundle is a discounted multi-token offer.
type TokenBundle struct {
	ID              string
	Name            string
	Description     string
	TokenCount      int
	DurationHours   int
	Scope           Scope
	DiscountPercent int
	BasePrice       money.ZNC
	TotalPrice      money.ZNC
	Active          bool
}

// AuditLog is an append-only record of a notable action.
type AuditLog struct {
	ID         string
	ActorID    *string
	Action     string
	TargetType string
	TargetID   *string
	Details    map[string]interface{}
	IP         *string
	UserAgent  *string
	CreatedAt  time.Time
}

// Querier is the subset of *sql.DB / *sql.Tx the repositories use. Both
// satisfy it, so a repository method works identically inside or outside
// an explicit transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// ErrNotFound is returned by repository lookups that find nothing.
var ErrNotFound = sql.ErrNoRows
