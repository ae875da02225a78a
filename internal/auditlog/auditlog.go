// Package auditlog provides an async, buffered ingestion pipeline for
// AuditLog rows, grounded on the teacher's analytics ingestion pipeline
// shape (a channel per event type, a background worker draining into a
// Sink, non-blocking Track with a buffer-full drop) — here specialized to
// a single event kind and a Postgres-backed Sink.
package auditlog

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/zncgate/proxy/internal/clock"
	"github.com/zncgate/proxy/internal/store"
)

// Sink persists a batch of audit log entries.
type Sink interface {
	InsertBatch(ctx context.Context, logs []store.AuditLog) error
}

type dbSink struct {
	db    *store.DB
	repos *store.Repos
}

func NewPostgresSink(db *store.DB, repos *store.Repos) Sink {
	return &dbSink{db: db, repos: repos}
}

func (s *dbSink) InsertBatch(ctx context.Context, logs []store.AuditLog) error {
	return s.repos.AuditLogs.InsertBatch(ctx, s.db, logs)
}

// PipelineConfig controls buffering and flush cadence.
type PipelineConfig struct {
	BufferSize    int
	FlushInterval time.Duration
	FlushBatch    int
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{BufferSize: 1024, FlushInterval: 2 * time.Second, FlushBatch: 100}
}

// Entry is what callers submit to Track; CreatedAt is stamped by the
// pipeline's clock, not the caller, so tests can control it.
type Entry struct {
	ActorID    *string
	Action     string
	TargetType string
	TargetID   *string
	Details    map[string]interface{}
	IP         *string
	UserAgent  *string
}

// Pipeline ingests entries non-blockingly and flushes them to the Sink in
// batches, either when FlushBatch accumulates or FlushInterval elapses.
type Pipeline struct {
	cfg   PipelineConfig
	sink  Sink
	clock clock.Clock
	log   zerolog.Logger

	events chan Entry
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPipeline(cfg PipelineConfig, sink Sink, clk clock.Clock, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		sink:   sink,
		clock:  clk,
		log:    log.With().Str("component", "auditlog").Logger(),
		events: make(chan Entry, cfg.BufferSize),
	}
}

// Start launches the background worker.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
}

// Stop drains any buffered entries and shuts the worker down.
func (p *Pipeline) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// Track submits an entry without blocking the caller. If the buffer is
// full, the entry is dropped and a warning is logged — audit logging must
// never backpressure the admission pipeline.
func (p *Pipeline) Track(e Entry) {
	select {
	case p.events <- e:
	default:
		p.log.Warn().Str("action", e.Action).Msg("audit log buffer full, dropping entry")
	}
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	buf := make([]store.AuditLog, 0, p.cfg.FlushBatch)
	flush := func(flushCtx context.Context) {
		if len(buf) == 0 {
			return
		}
		if err := p.sink.InsertBatch(flushCtx, buf); err != nil {
			p.log.Error().Err(err).Int("count", len(buf)).Msg("audit log flush failed")
		}
		buf = buf[:0]
	}

	add := func(e Entry) {
		buf = append(buf, store.AuditLog{
			ActorID: e.ActorID, Action: e.Action, TargetType: e.TargetType,
			TargetID: e.TargetID, Details: e.Details, IP: e.IP, UserAgent: e.UserAgent,
			CreatedAt: p.clock.Now(),
		})
	}

	for {
		select {
		case <-ctx.Done():
			// Take whatever is still queued in the channel, then flush with a
			// fresh background context: ctx is already canceled, so reusing
			// it here would fail every insert.
			for {
				select {
				case e := <-p.events:
					add(e)
				default:
					flush(context.Background())
					return
				}
			}
		case <-ticker.C:
			flush(ctx)
		case e := <-p.events:
			add(e)
			if len(buf) >= p.cfg.FlushBatch {
				flush(ctx)
			}
		}
	}
}
