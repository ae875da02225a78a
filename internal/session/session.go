// Package session implements the Session Tracker (spec.md §4.4, C4): the
// one-active-session-per-token invariant, enforced by a select-then-
// insert-or-update sequence under read-committed isolation, plus an idle
// reaper. Grounded on original_source's session_service.py for the
// device-conflict semantics, and on the teacher's periodic-ticker shape
// for the reaper loop.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zncgate/proxy/internal/apierror"
	"github.com/zncgate/proxy/internal/clock"
	"github.com/zncgate/proxy/internal/store"
)

// Tracker is the Session Tracker component (C4).
type Tracker struct {
	db    *store.DB
	repos *store.Repos
	clock clock.Clock
	log   zerolog.Logger
}

func New(db *store.DB, repos *store.Repos, clk clock.Clock, log zerolog.Logger) *Tracker {
	return &Tracker{db: db, repos: repos, clock: clk, log: log.With().Str("component", "session").Logger()}
}

// Track records proxied-request activity against the token's single active
// session, creating one if none exists, or failing with DeviceConflict if
// a different device already holds it.
func (t *Tracker) Track(ctx context.Context, userID, tokenID, deviceID, ip, userAgent string, bytes int64) (*store.ProxySession, error) {
	tx, err := t.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := t.repos.Sessions.GetActiveByToken(ctx, tx, tokenID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := t.clock.Now()

	if existing != nil {
		if existing.DeviceID != deviceID {
			otherPrefix := existing.DeviceID
			if len(otherPrefix) > 8 {
				otherPrefix = otherPrefix[:8]
			}
			return nil, apierror.Newf(apierror.KindDeviceConflict,
				"session already active on another device (%s…) since %s; wait for session timeout (5 minutes)",
				otherPrefix, existing.StartedAt.Format(time.RFC3339)).
				WithExtra("started_at", existing.StartedAt).
				WithExtra("other_device_prefix", otherPrefix)
		}
		if err := t.repos.Sessions.UpdateActivity(ctx, tx, existing.ID, ip, userAgent, bytes, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		existing.IP = ip
		existing.UserAgent = userAgent
		existing.LastActivity = now
		existing.BytesTotal += bytes
		existing.RequestCount++
		return existing, nil
	}

	newSession := &store.ProxySession{
		ID: uuid.NewString(), UserID: userID, TokenID: tokenID, DeviceID: deviceID,
		IP: ip, UserAgent: userAgent, StartedAt: now, LastActivity: now,
		BytesTotal: bytes, RequestCount: 1, Active: true,
	}
	if err := t.repos.Sessions.Create(ctx, tx, newSession); err != nil {
		// A concurrent first request from a different device may have won
		// the race (the partial unique index on proxy_sessions(token_id)
		// WHERE active enforces the invariant spec.md §5 describes). Surface
		// it as a device conflict rather than a raw constraint violation.
		return nil, apierror.New(apierror.KindDeviceConflict, "concurrent session claimed this token").WithExtra("cause", err.Error())
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return newSession, nil
}

// Close ends a session explicitly (state machine new/active -> closed;
// never reopens).
func (t *Tracker) Close(ctx context.Context, sessionID string) error {
	return t.repos.Sessions.Close(ctx, t.db, sessionID, t.clock.Now())
}

// ReapIdle closes every session whose last_activity predates now-threshold,
// returning the count reaped.
func (t *Tracker) ReapIdle(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := t.clock.Now().Add(-threshold)
	n, err := t.repos.Sessions.CloseIdleBefore(ctx, t.db, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.log.Info().Int("count", n).Msg("reaped idle sessions")
	}
	return n, nil
}

// ActiveFor lists active sessions, optionally restricted to one user.
func (t *Tracker) ActiveFor(ctx context.Context, userID *string) ([]store.ProxySession, error) {
	return t.repos.Sessions.ListActive(ctx, t.db, userID)
}

// Reaper periodically invokes ReapIdle on a fixed interval, grounded on
// the teacher's ticker-driven background poller (start/stop via context
// cancellation, no external scheduler dependency).
type Reaper struct {
	tracker  *Tracker
	interval time.Duration
	idle     time.Duration
	log      zerolog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewReaper(tracker *Tracker, interval, idle time.Duration, log zerolog.Logger) *Reaper {
	return &Reaper{tracker: tracker, interval: interval, idle: idle, log: log.With().Str("component", "session_reaper").Logger()}
}

// Start launches the reaper loop in a new goroutine. Stop must be called
// to release it.
func (r *Reaper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	ticker := time.NewTicker(r.interval)
	go func() {
		defer close(r.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.tracker.ReapIdle(ctx, r.idle); err != nil {
					r.log.Error().Err(err).Msg("idle session reap failed")
				}
			}
		}
	}()
}

// Stop cancels the reaper loop and waits for it to exit.
func (r *Reaper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}
