// Package tokens implements the Token Lifecycle (spec.md §4.2, C2):
// generate, validate (activating), check_status (non-activating), revoke,
// list. Grounded on original_source's token_service.py, transplanted onto
// CedrosPay-server's BeginTx/ExecContext/Commit/Rollback shape.
package tokens

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zncgate/proxy/internal/apierror"
	"github.com/zncgate/proxy/internal/clock"
	"github.com/zncgate/proxy/internal/ledger"
	"github.com/zncgate/proxy/internal/money"
	"github.com/zncgate/proxy/internal/store"
	"github.com/zncgate/proxy/internal/tokencache"
)

// priceTable is the fixed duration→price mapping (spec.md §4.2). Durations
// outside this table are rejected with InvalidDuration.
var priceTable = map[int]money.ZNC{
	1:   money.FromFloat(1.00),
	12:  money.FromFloat(10.00),
	24:  money.FromFloat(18.00),
	168: money.FromFloat(100.00),
	720: money.FromFloat(300.00),
}

// Price returns the fixed price for a duration, and whether it is valid.
func Price(durationHours int) (money.ZNC, bool) {
	p, ok := priceTable[durationHours]
	return p, ok
}

// Claims is the public view of a validated/checked token.
type Claims struct {
	UserID        string
	TokenID       string
	DurationHours int
	Scope         store.Scope
	Expiry        *time.Time
	IsActivated   bool
}

// Lifecycle is the Token Lifecycle component (C2).
type Lifecycle struct {
	db     *store.DB
	repos  *store.Repos
	ledger *ledger.Ledger
	cache  *tokencache.Cache
	clock  clock.Clock
	log    zerolog.Logger
}

func New(db *store.DB, repos *store.Repos, l *ledger.Ledger, cache *tokencache.Cache, clk clock.Clock, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{db: db, repos: repos, ledger: l, cache: cache, clock: clk, log: log.With().Str("component", "tokens").Logger()}
}

// Generate issues a new token for user, deducting its price from the
// ledger under an exclusive user lock, and triggers the referral bonus
// check after commit.
func (lc *Lifecycle) Generate(ctx context.Context, userID string, durationHours int, scope store.Scope) (*store.AccessToken, money.ZNC, error) {
	price, ok := Price(durationHours)
	if !ok {
		return nil, 0, apierror.New(apierror.KindInvalidInput, "invalid token duration")
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, 0, err
	}

	tx, err := lc.db.BeginTx(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := lc.ledger.DebitLocked(ctx, tx, userID, price, store.TransactionPurchase, "token purchase"); err != nil {
		return nil, 0, err
	}

	token := &store.AccessToken{
		ID: uuid.NewString(), UserID: userID, Secret: secret,
		DurationHours: durationHours, Scope: scope, CreatedAt: lc.clock.Now(),
		ActivatedAt: nil, Active: true,
	}
	if err := lc.repos.Tokens.Create(ctx, tx, token); err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}

	lc.ledger.MaybeAwardReferralBonus(ctx, userID, price)
	return token, price, nil
}

// Validate looks up token_string, activating it on first successful use.
// Cache-first, storage fallback, per spec.md §4.2/§4.3.
func (lc *Lifecycle) Validate(ctx context.Context, tokenSecret string) (*Claims, error) {
	if claims, ok := lc.cache.Get(ctx, tokenSecret); ok {
		if lc.clock.Now().Before(claims.Expiry) {
			return &Claims{
				UserID: claims.UserID, TokenID: claims.TokenID, DurationHours: claims.Duration,
				Scope: store.Scope(claims.Scope), Expiry: &claims.Expiry, IsActivated: true,
			}, nil
		}
		// Stale hit past expiry: fall through to storage, which will also
		// reject it, rather than trusting a potentially skewed cache clock.
	}

	t, err := lc.repos.Tokens.GetBySecret(ctx, lc.db, tokenSecret)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierror.New(apierror.KindUnauthorized, "invalid token")
		}
		return nil, err
	}
	if !t.Active || t.RevokedAt != nil {
		return nil, apierror.New(apierror.KindUnauthorized, "invalid token")
	}

	now := lc.clock.Now()
	if t.ActivatedAt != nil {
		if exp := t.Expiry(); exp != nil && !now.Before(*exp) {
			lc.cache.Evict(ctx, t.Secret)
			return nil, apierror.New(apierror.KindUnauthorized, "token expired")
		}
		return lc.finalizeActivated(ctx, t), nil
	}

	// First use: activate.
	if err := lc.activate(ctx, t.ID, now); err != nil {
		return nil, err
	}
	t.ActivatedAt = &now
	return lc.finalizeActivated(ctx, t), nil
}

func (lc *Lifecycle) activate(ctx context.Context, tokenID string, at time.Time) error {
	tx, err := lc.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lc.repos.Tokens.Activate(ctx, tx, tokenID, at); err != nil {
		return err
	}
	return tx.Commit()
}

func (lc *Lifecycle) finalizeActivated(ctx context.Context, t *store.AccessToken) *Claims {
	exp := t.Expiry()
	lc.cache.Set(ctx, t.Secret, tokencache.Claims{
		UserID: t.UserID, TokenID: t.ID, Duration: t.DurationHours,
		Scope: string(t.Scope), Expiry: *exp,
	}, time.Until(*exp))
	return &Claims{
		UserID: t.UserID, TokenID: t.ID, DurationHours: t.DurationHours,
		Scope: t.Scope, Expiry: exp, IsActivated: true,
	}
}

// CheckStatus is the read-only counterpart to Validate: never activates,
// never caches a not-yet-activated token.
func (lc *Lifecycle) CheckStatus(ctx context.Context, tokenSecret string) (*Claims, error) {
	if claims, ok := lc.cache.Get(ctx, tokenSecret); ok {
		if lc.clock.Now().Before(claims.Expiry) {
			return &Claims{
				UserID: claims.UserID, TokenID: claims.TokenID, DurationHours: claims.Duration,
				Scope: store.Scope(claims.Scope), Expiry: &claims.Expiry, IsActivated: true,
			}, nil
		}
	}

	t, err := lc.repos.Tokens.GetBySecret(ctx, lc.db, tokenSecret)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierror.New(apierror.KindUnauthorized, "invalid token")
		}
		return nil, err
	}
	if !t.Active || t.RevokedAt != nil {
		return nil, apierror.New(apierror.KindUnauthorized, "invalid token")
	}

	now := lc.clock.Now()
	if t.ActivatedAt == nil {
		return &Claims{
			UserID: t.UserID, TokenID: t.ID, DurationHours: t.DurationHours,
			Scope: t.Scope, Expiry: nil, IsActivated: false,
		}, nil
	}
	if exp := t.Expiry(); exp != nil && !now.Before(*exp) {
		return nil, apierror.New(apierror.KindUnauthorized, "token expired")
	}
	return &Claims{
		UserID: t.UserID, TokenID: t.ID, DurationHours: t.DurationHours,
		Scope: t.Scope, Expiry: t.Expiry(), IsActivated: true,
	}, nil
}

// Revoke deactivates a never-activated token and refunds its full price.
// Fails with CannotRevokeActivated once activation_time is set (spec.md
// §4.2 — deliberately stricter than original_source's prorated-refund
// behavior).
func (lc *Lifecycle) Revoke(ctx context.Context, tokenID, userID string) (money.ZNC, money.ZNC, error) {
	tx, err := lc.db.BeginTx(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	t, err := lc.repos.Tokens.GetByIDForUpdate(ctx, tx, tokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, 0, apierror.New(apierror.KindNotFound, "token not found")
		}
		return 0, 0, err
	}
	if t.UserID != userID || !t.Active || t.RevokedAt != nil {
		return 0, 0, apierror.New(apierror.KindNotFound, "token not found")
	}
	if t.ActivatedAt != nil {
		return 0, 0, apierror.New(apierror.KindCannotRevokeActivated, "token already activated, cannot revoke")
	}

	price, ok := Price(t.DurationHours)
	if !ok {
		return 0, 0, apierror.New(apierror.KindInternal, "token has unrecognized duration")
	}

	now := lc.clock.Now()
	if err := lc.repos.Tokens.Revoke(ctx, tx, t.ID, now); err != nil {
		return 0, 0, err
	}
	newBalance, err := lc.refundLocked(ctx, tx, userID, price)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}

	lc.cache.Evict(ctx, t.Secret)
	return price, newBalance, nil
}

func (lc *Lifecycle) refundLocked(ctx context.Context, tx *sql.Tx, userID string, amount money.ZNC) (money.ZNC, error) {
	return lc.ledger.CreditLocked(ctx, tx, userID, amount, store.TransactionRefund, "token revoked, not activated")
}

// List returns the user's tokens, optionally filtered to those still usable.
func (lc *Lifecycle) List(ctx context.Context, userID string, activeOnly bool) ([]store.AccessToken, error) {
	all, err := lc.repos.Tokens.ListByUser(ctx, lc.db, userID)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return all, nil
	}
	now := lc.clock.Now()
	out := make([]store.AccessToken, 0, len(all))
	for _, t := range all {
		if t.Usable(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

// GenerateSecret returns a fresh opaque bearer secret, shared by token
// generation and bundle issuance.
func GenerateSecret() (string, error) {
	buf := make([]byte, 36)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
