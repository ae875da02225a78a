// Package payment models the mock payment provider as an explicit port
// (spec.md §9's redesign note): create_pending, observe_webhook,
// succeeded -> Ledger.credit. Unlike original_source's mutation of a
// transaction's description string to carry state ("(pending)" ->
// "(succeeded)"), state lives on a typed Intent with a closed
// status enum.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zncgate/proxy/internal/clock"
	"github.com/zncgate/proxy/internal/ledger"
	"github.com/zncgate/proxy/internal/money"
	"github.com/zncgate/proxy/internal/store"
)

// Status is the closed set of payment intent states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusCanceled  Status = "canceled"
)

// Intent is a single payment attempt, separate from the Transaction it
// eventually produces on success.
type Intent struct {
	ID          string
	UserID      string
	Amount      money.ZNC
	Status      Status
	CallbackURL string
}

// ErrAlreadyResolved is returned when a webhook targets an intent that has
// already succeeded or been canceled.
var ErrAlreadyResolved = errors.New("payment: intent already resolved")

// ErrNotFound is returned when a webhook targets an unknown intent.
var ErrNotFound = errors.New("payment: intent not found")

// WebhookPayload is what observe_webhook receives; the mock gateway's
// payload shape is the external id plus the outcome it wants to report.
type WebhookPayload struct {
	ExternalID string
	Outcome    Status // StatusSucceeded or StatusCanceled
}

// Gateway is the payment port every provider (mock or real) implements.
type Gateway interface {
	CreatePending(ctx context.Context, userID string, amount money.ZNC) (*Intent, error)
	ObserveWebhook(ctx context.Context, payload WebhookPayload) (*Intent, error)
}

// MockGateway is the reference implementation: it never talks to a real
// processor, but returns its own callback URL so a client can simulate the
// webhook round trip. A real gateway plugs in behind the same interface
// (spec.md §9).
type MockGateway struct {
	backendPublicURL string
	ledger           *ledger.Ledger
	clock            clock.Clock
	log              zerolog.Logger

	mu      sync.Mutex
	intents map[string]*Intent
}

func NewMockGateway(backendPublicURL string, l *ledger.Ledger, clk clock.Clock, log zerolog.Logger) *MockGateway {
	return &MockGateway{
		backendPublicURL: backendPublicURL,
		ledger:           l,
		clock:            clk,
		log:              log.With().Str("component", "payment_mock_gateway").Logger(),
		intents:          make(map[string]*Intent),
	}
}

// CreatePending opens a new pending intent and returns its external id and
// callback URL.
func (g *MockGateway) CreatePending(ctx context.Context, userID string, amount money.ZNC) (*Intent, error) {
	intent := &Intent{
		ID:     uuid.NewString(),
		UserID: userID,
		Amount: amount,
		Status: StatusPending,
	}
	intent.CallbackURL = fmt.Sprintf("%s/webhooks/payments/%s", g.backendPublicURL, intent.ID)

	g.mu.Lock()
	g.intents[intent.ID] = intent
	g.mu.Unlock()

	return intent, nil
}

// ObserveWebhook resolves a pending intent to succeeded or canceled. On
// success, credits the ledger — the sole place money enters the system
// from outside (spec.md §9).
func (g *MockGateway) ObserveWebhook(ctx context.Context, payload WebhookPayload) (*Intent, error) {
	g.mu.Lock()
	intent, ok := g.intents[payload.ExternalID]
	if !ok {
		g.mu.Unlock()
		return nil, ErrNotFound
	}
	if intent.Status != StatusPending {
		g.mu.Unlock()
		return nil, ErrAlreadyResolved
	}
	intent.Status = payload.Outcome
	snapshot := *intent
	g.mu.Unlock()

	if payload.Outcome == StatusSucceeded {
		ref := intent.ID
		if _, err := g.ledger.Credit(ctx, intent.UserID, intent.Amount, store.TransactionDeposit, "mock payment deposit", &ref); err != nil {
			return nil, err
		}
	}
	return &snapshot, nil
}
