package payment

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zncgate/proxy/internal/clock"
	"github.com/zncgate/proxy/internal/ledger"
	"github.com/zncgate/proxy/internal/money"
	"github.com/zncgate/proxy/internal/store"
)

var userCols = []string{"id", "email", "username", "credential_digest", "active", "elevated",
	"balance_cents", "referral_code", "referred_by_id", "referral_bonus_earned_cents", "created_at"}

func newTestGateway(t *testing.T) (*MockGateway, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	db := &store.DB{DB: sqlDB}
	repos := store.NewPostgresRepos()
	l := ledger.New(db, repos, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())
	g := NewMockGateway("https://gateway.example", l, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())
	return g, mock, func() { _ = sqlDB.Close() }
}

func TestCreatePending_SetsCallbackURL(t *testing.T) {
	g, _, closeDB := newTestGateway(t)
	defer closeDB()

	intent, err := g.CreatePending(context.Background(), "user-1", money.FromFloat(25.00))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, intent.Status)
	assert.Equal(t, "https://gateway.example/webhooks/payments/"+intent.ID, intent.CallbackURL)
}

func TestObserveWebhook_UnknownIntent(t *testing.T) {
	g, _, closeDB := newTestGateway(t)
	defer closeDB()

	_, err := g.ObserveWebhook(context.Background(), WebhookPayload{ExternalID: "nope", Outcome: StatusSucceeded})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestObserveWebhook_Canceled(t *testing.T) {
	g, _, closeDB := newTestGateway(t)
	defer closeDB()

	intent, err := g.CreatePending(context.Background(), "user-1", money.FromFloat(25.00))
	require.NoError(t, err)

	resolved, err := g.ObserveWebhook(context.Background(), WebhookPayload{ExternalID: intent.ID, Outcome: StatusCanceled})
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, resolved.Status)
}

func TestObserveWebhook_SucceededCreditsLedger(t *testing.T) {
	g, mock, closeDB := newTestGateway(t)
	defer closeDB()

	intent, err := g.CreatePending(context.Background(), "user-1", money.FromFloat(25.00))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("user-1", "a@b.com", "alice", "digest", true, false, int64(0), "REF1", nil, int64(0), time.Unix(0, 0)))
	mock.ExpectExec(`UPDATE users SET balance_cents`).
		WithArgs("user-1", int64(2500), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resolved, err := g.ObserveWebhook(context.Background(), WebhookPayload{ExternalID: intent.ID, Outcome: StatusSucceeded})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, resolved.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObserveWebhook_AlreadyResolved(t *testing.T) {
	g, mock, closeDB := newTestGateway(t)
	defer closeDB()

	intent, err := g.CreatePending(context.Background(), "user-1", money.FromFloat(25.00))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("user-1", "a@b.com", "alice", "digest", true, false, int64(0), "REF1", nil, int64(0), time.Unix(0, 0)))
	mock.ExpectExec(`UPDATE users SET balance_cents`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err = g.ObserveWebhook(context.Background(), WebhookPayload{ExternalID: intent.ID, Outcome: StatusSucceeded})
	require.NoError(t, err)

	_, err = g.ObserveWebhook(context.Background(), WebhookPayload{ExternalID: intent.ID, Outcome: StatusSucceeded})
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}
