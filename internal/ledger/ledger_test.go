package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zncgate/proxy/internal/apierror"
	"github.com/zncgate/proxy/internal/clock"
	"github.com/zncgate/proxy/internal/money"
	"github.com/zncgate/proxy/internal/store"
)

var userCols = []string{"id", "email", "username", "credential_digest", "active", "elevated",
	"balance_cents", "referral_code", "referred_by_id", "referral_bonus_earned_cents", "created_at"}

func newTestLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	db := &store.DB{DB: sqlDB}
	repos := store.NewPostgresRepos()
	l := New(db, repos, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())
	return l, mock, func() { _ = sqlDB.Close() }
}

func TestCredit_RejectsNonPositiveAmount(t *testing.T) {
	l, _, closeDB := newTestLedger(t)
	defer closeDB()

	_, err := l.Credit(context.Background(), "user-1", money.Zero, store.TransactionDeposit, "x", nil)
	assert.True(t, apierror.Is(err, apierror.KindInvalidInput))
}

func TestDebitLocked_InsufficientBalance(t *testing.T) {
	l, mock, closeDB := newTestLedger(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("user-1", "a@b.com", "alice", "digest", true, false, int64(500), "REF1", nil, int64(0), time.Unix(0, 0)))

	tx, err := l.db.BeginTx(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = l.DebitLocked(context.Background(), tx, "user-1", money.FromFloat(10.00), store.TransactionPurchase, "token purchase")
	assert.True(t, apierror.Is(err, apierror.KindInsufficientBalance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitLocked_Success(t *testing.T) {
	l, mock, closeDB := newTestLedger(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("user-1", "a@b.com", "alice", "digest", true, false, int64(2000), "REF1", nil, int64(0), time.Unix(0, 0)))
	mock.ExpectExec(`UPDATE users SET balance_cents`).
		WithArgs("user-1", int64(1000), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := l.db.BeginTx(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	newBalance, err := l.DebitLocked(context.Background(), tx, "user-1", money.FromFloat(10.00), store.TransactionPurchase, "token purchase")
	require.NoError(t, err)
	assert.Equal(t, "10.00", newBalance.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateReferralCode(t *testing.T) {
	a, err := GenerateReferralCode()
	require.NoError(t, err)
	b, err := GenerateReferralCode()
	require.NoError(t, err)
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
}
