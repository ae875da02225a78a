package session

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
	"github.com/zncgate/proxy/internal/store"
)

var sessionCols = []string{"id", "user_id", "token_id", "device_id", "ip", "user_agent",
	"started_at", "last_activity", "ended_at", "bytes_total", "request_count", "active"}

func newTestTracker(t *testing.T) (*Tracker, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	db := &store.DB{DB: sqlDB}
	repos := store.NewPostgresRepos()
	tr := New(db, repos, clock.NewFake(time.Unix(1000, 0)), zerolog.Nop())
	return tr, mock, func() { _ = sqlDB.Close() }
}

func TestTrack_CreatesNewSession(t *testing.T) {
	tr, mock, closeDB := newTestTracker(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM proxy_sessions WHERE token_id = \$1 AND active`).
		WithArgs("token-1").
		WillReturnError(store.ErrNotFound)
	mock.ExpectExec(`INSERT INTO proxy_sessions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s, err := tr.Track(context.Background(), "user-1", "token-1", "device-abc123", "1.2.3.4", "ua", 100)
	require.NoError(t, err)
	assert.Equal(t, "device-abc123", s.DeviceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrack_DeviceConflict(t *testing.T) {
	tr, mock, closeDB := newTestTracker(t)
	defer closeDB()

	started := time.Unix(500, 0)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM proxy_sessions WHERE token_id = \$1 AND active`).
		WithArgs("token-1").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow("sess-1", "user-1", "token-1", "other-device-xyz", "9.9.9.9", "ua", started, started, nil, int64(0), int64(0), true))

	_, err := tr.Track(context.Background(), "user-1", "token-1", "device-abc123", "1.2.3.4", "ua", 100)
	assert.True(t, apierror.Is(err, apierror.KindDeviceConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrack_SameDeviceUpdatesActivity(t *testing.T) {
	tr, mock, closeDB := newTestTracker(t)
	defer closeDB()

	started := time.Unix(500, 0)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM proxy_sessions WHERE token_id = \$1 AND active`).
		WithArgs("token-1").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow("sess-1", "user-1", "token-1", "device-abc123", "9.9.9.9", "old-ua", started, started, nil, int64(50), int64(1), true))
	mock.ExpectExec(`UPDATE proxy_sessions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s, err := tr.Track(context.Background(), "user-1", "token-1", "device-abc123", "1.2.3.4", "new-ua", 100)
	require.NoError(t, err)
	assert.EqualValues(t, 150, s.BytesTotal)
	assert.EqualValues(t, 2, s.RequestCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
