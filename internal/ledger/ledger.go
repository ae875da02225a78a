// Package ledger implements the Credit Ledger: atomic balance mutation
// tied to an append-only transaction log, plus the referral-bonus side
// effect, grounded on original_source's currency_service.py and adapted to
// CedrosPay-server's BeginTx/ExecContext/Commit/Rollback transaction shape.
package ledger

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zncgate/proxy/internal/apierror"
	"github.com/zncgate/proxy/internal/clock"
	"github.com/zncgate/proxy/internal/money"
	"github.com/zncgate/proxy/internal/store"
)

// referralCodeAlphabet excludes visually ambiguous characters (0/O, 1/I).
const referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateReferralCode returns a random 12-character referral code. User
// registration is an external collaborator (spec.md §2), but the referral
// bonus rule depends on every user having a unique code, so this module
// owns the generator for that collaborator to call.
func GenerateReferralCode() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 12)
	for i, b := range buf {
		out[i] = referralCodeAlphabet[int(b)%len(referralCodeAlphabet)]
	}
	return string(out), nil
}

// referralBonusThreshold is the strict purchase_amount floor (§4.1, §8 B3):
// exactly 100.00 does not qualify, 100.01 does.
var referralBonusThreshold = money.FromFloat(100.00)

// referralBonusPercent is the referrer's cut of a qualifying purchase.
const referralBonusPercent = 10.0

// Ledger is the Credit Ledger component (spec.md §4.1, C1).
type Ledger struct {
	db    *store.DB
	repos *store.Repos
	clock clock.Clock
	log   zerolog.Logger
}

func New(db *store.DB, repos *store.Repos, clk clock.Clock, log zerolog.Logger) *Ledger {
	return &Ledger{db: db, repos: repos, clock: clk, log: log.With().Str("component", "ledger").Logger()}
}

// GetBalance returns the user's current balance.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (money.ZNC, error) {
	u, err := l.repos.Users.GetByID(ctx, l.db, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, apierror.New(apierror.KindNotFound, "user not found")
		}
		return 0, err
	}
	return u.Balance, nil
}

// Credit adds a positive amount to the user's balance and appends a
// transaction, under an exclusive row lock on the user. Used for deposits
// (mock payment success); revoke refunds go through CreditLocked inside
// the revoke transaction.
func (l *Ledger) Credit(ctx context.Context, userID string, amount money.ZNC, kind store.TransactionKind, description string, externalRef *string) (money.ZNC, error) {
	if !amount.IsPositive() {
		return 0, apierror.New(apierror.KindInvalidInput, "credit amount must be positive")
	}

	tx, err := l.db.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	newBalance, err := l.CreditLocked(ctx, tx, userID, amount, kind, description, externalRef)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// CreditLocked performs the row-locked credit+transaction sequence within
// an already-open transaction, reused by Credit and by domain packages
// (tokens' revoke refund) that need the step folded into their own
// transaction rather than a separate commit.
func (l *Ledger) CreditLocked(ctx context.Context, tx *sql.Tx, userID string, amount money.ZNC, kind store.TransactionKind, description string, externalRef *string) (money.ZNC, error) {
	u, err := l.repos.Users.GetByIDForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, apierror.New(apierror.KindNotFound, "user not found")
		}
		return 0, err
	}

	newBalance, err := u.Balance.Add(amount)
	if err != nil {
		return 0, apierror.New(apierror.KindInternal, "balance overflow")
	}
	if err := l.repos.Users.UpdateBalance(ctx, tx, userID, newBalance, u.ReferralBonusEarned); err != nil {
		return 0, err
	}
	if err := l.repos.Transactions.Insert(ctx, tx, &store.Transaction{
		ID: uuid.NewString(), UserID: userID, Amount: amount, Kind: kind,
		Description: description, ExternalRef: externalRef, CreatedAt: l.clock.Now(),
	}); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// DebitLocked deducts amount (amount > 0) from the user, failing with
// InsufficientBalance if the balance would go negative, and appends a
// debit transaction. Exported for domain packages (tokens, bundles) that
// must perform the deduction as one step of a larger multi-repo
// transaction under the same row lock — it does not open its own
// transaction or commit.
func (l *Ledger) DebitLocked(ctx context.Context, tx *sql.Tx, userID string, amount money.ZNC, kind store.TransactionKind, description string) (money.ZNC, error) {
	u, err := l.repos.Users.GetByIDForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, apierror.New(apierror.KindNotFound, "user not found")
		}
		return 0, err
	}
	if u.Balance.Cmp(amount) < 0 {
		return 0, apierror.New(apierror.KindInsufficientBalance, "insufficient balance")
	}
	newBalance, err := u.Balance.Sub(amount)
	if err != nil {
		return 0, apierror.New(apierror.KindInternal, "balance overflow")
	}
	if err := l.repos.Users.UpdateBalance(ctx, tx, userID, newBalance, u.ReferralBonusEarned); err != nil {
		return 0, err
	}
	if err := l.repos.Transactions.Insert(ctx, tx, &store.Transaction{
		ID: uuid.NewString(), UserID: userID, Amount: amount.Neg(), Kind: kind,
		Description: description, CreatedAt: l.clock.Now(),
	}); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// RecordTransaction appends a transaction without mutating the balance,
// distinct from Credit/DebitLocked (spec.md §4.1 lists record_transaction
// as a separate primitive from credit, mirroring original_source's
// add_transaction vs credit_balance split).
func (l *Ledger) RecordTransaction(ctx context.Context, userID string, amount money.ZNC, kind store.TransactionKind, description string, externalRef *string) error {
	return l.repos.Transactions.Insert(ctx, l.db, &store.Transaction{
		ID: uuid.NewString(), UserID: userID, Amount: amount, Kind: kind,
		Description: description, ExternalRef: externalRef, CreatedAt: l.clock.Now(),
	})
}

// MaybeAwardReferralBonus runs the referral-bonus check and, if it
// qualifies, credits the referrer. Must be called after the buyer's
// purchase transaction has committed (spec.md §4.1, §9 propagation note:
// its own failure must never unwind the purchase). Returns the bonus
// amount credited, or zero if no bonus was awarded.
func (l *Ledger) MaybeAwardReferralBonus(ctx context.Context, buyerID string, purchaseAmount money.ZNC) money.ZNC {
	bonus, err := l.tryAwardReferralBonus(ctx, buyerID, purchaseAmount)
	if err != nil {
		l.log.Error().Err(err).Str("buyer_id", buyerID).Msg("referral bonus award failed, not retried")
		return 0
	}
	return bonus
}

func (l *Ledger) tryAwardReferralBonus(ctx context.Context, buyerID string, purchaseAmount money.ZNC) (money.ZNC, error) {
	if purchaseAmount.Cmp(referralBonusThreshold) <= 0 {
		return 0, nil
	}

	buyer, err := l.repos.Users.GetByID(ctx, l.db, buyerID)
	if err != nil {
		return 0, err
	}
	if buyer.ReferredByID == nil {
		return 0, nil
	}

	qualifying, err := l.repos.Transactions.CountPurchasesStrictlyBelow(ctx, l.db, buyerID, referralBonusThreshold.Neg())
	if err != nil {
		return 0, err
	}
	if qualifying != 1 {
		// Either this isn't the first qualifying purchase, or the buyer's
		// current purchase transaction hasn't landed yet.
		return 0, nil
	}

	bonus := purchaseAmount.Percent(referralBonusPercent)
	if !bonus.IsPositive() {
		return 0, nil
	}

	tx, err := l.db.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	referrer, err := l.repos.Users.GetByIDForUpdate(ctx, tx, *buyer.ReferredByID)
	if err != nil {
		return 0, err
	}
	newBalance, err := referrer.Balance.Add(bonus)
	if err != nil {
		return 0, err
	}
	newBonusEarned, err := referrer.ReferralBonusEarned.Add(bonus)
	if err != nil {
		return 0, err
	}
	if err := l.repos.Users.UpdateBalance(ctx, tx, referrer.ID, newBalance, newBonusEarned); err != nil {
		return 0, err
	}
	if err := l.repos.Transactions.Insert(ctx, tx, &store.Transaction{
		ID: uuid.NewString(), UserID: referrer.ID, Amount: bonus, Kind: store.TransactionReferralBonus,
		Description: "referral bonus", CreatedAt: l.clock.Now(),
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return bonus, nil
}

// ListTransactions returns a page of the user's transactions, optionally
// filtered by kind, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, userID string, kind *store.TransactionKind, limit, offset int) ([]store.Transaction, int, error) {
	return l.repos.Transactions.List(ctx, l.db, userID, kind, limit, offset)
}
