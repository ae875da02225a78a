// Package bundles implements Bundle Purchase (spec.md §4.8, C8):
// transactional multi-token issuance under a single row lock and a single
// purchase transaction, bypassing the per-token price/deduction path.
// Grounded on original_source's bundle purchase flow (app/api/v1/
// bundles.py) and reusing the Token Lifecycle's secret-generation and
// Ledger's row-lock machinery.
package bundles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zncgate/proxy/internal/apierror"
	"github.com/zncgate/proxy/internal/clock"
	"github.com/zncgate/proxy/internal/ledger"
	"github.com/zncgate/proxy/internal/money"
	"github.com/zncgate/proxy/internal/store"
	"github.com/zncgate/proxy/internal/tokens"
)

// Purchaser is the Bundle Purchase component (C8).
type Purchaser struct {
	db     *store.DB
	repos  *store.Repos
	ledger *ledger.Ledger
	clock  clock.Clock
	log    zerolog.Logger
}

func New(db *store.DB, repos *store.Repos, l *ledger.Ledger, clk clock.Clock, log zerolog.Logger) *Purchaser {
	return &Purchaser{db: db, repos: repos, ledger: l, clock: clk, log: log.With().Str("component", "bundles").Logger()}
}

// Result is the purchase outcome, shaped for the /bundles/{id}/purchase
// response (spec.md §4.8 / §6).
type Result struct {
	BundleName     string
	TokensGenerated int
	Cost           money.ZNC
	NewBalance     money.ZNC
	Tokens         []store.AccessToken
}

// Purchase buys bundleID for user, issuing TokenCount tokens in one
// transaction and firing the referral-bonus trigger after commit.
func (p *Purchaser) Purchase(ctx context.Context, bundleID, userID string) (*Result, error) {
	bundle, err := p.repos.Bundles.GetByID(ctx, p.db, bundleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierror.New(apierror.KindNotFound, "bundle not found")
		}
		return nil, err
	}
	if !bundle.Active {
		return nil, apierror.New(apierror.KindNotFound, "bundle not found")
	}

	tx, err := p.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	newBalance, err := p.ledger.DebitLocked(ctx, tx, userID, bundle.TotalPrice, store.TransactionPurchase,
		"bundle purchase: "+bundle.Name)
	if err != nil {
		return nil, err
	}

	now := p.clock.Now()
	issued := make([]store.AccessToken, 0, bundle.TokenCount)
	for i := 0; i < bundle.TokenCount; i++ {
		secret, err := tokens.GenerateSecret()
		if err != nil {
			return nil, err
		}
		t := store.AccessToken{
			ID: uuid.NewString(), UserID: userID, Secret: secret,
			DurationHours: bundle.DurationHours, Scope: bundle.Scope,
			CreatedAt: now, ActivatedAt: nil, Active: true,
		}
		if err := p.repos.Tokens.Create(ctx, tx, &t); err != nil {
			return nil, err
		}
		issued = append(issued, t)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	p.ledger.MaybeAwardReferralBonus(ctx, userID, bundle.TotalPrice)

	return &Result{
		BundleName:      bundle.Name,
		TokensGenerated: bundle.TokenCount,
		Cost:            bundle.TotalPrice,
		NewBalance:      newBalance,
		Tokens:          issued,
	}, nil
}
