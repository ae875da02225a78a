package auditlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zncgate/proxy/internal/clock"
	"github.com/zncgate/proxy/internal/store"
)

type fakeSink struct {
	mu    sync.Mutex
	rows  []store.AuditLog
	fails int
}

func (f *fakeSink) InsertBatch(ctx context.Context, logs []store.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, logs...)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func TestTrack_FlushesOnBatchSize(t *testing.T) {
	sink := &fakeSink{}
	cfg := PipelineConfig{BufferSize: 16, FlushInterval: time.Hour, FlushBatch: 3}
	p := NewPipeline(cfg, sink, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())
	p.Start(context.Background())
	defer p.Stop()

	for i := 0; i < 3; i++ {
		p.Track(Entry{Action: "token.purchase"})
	}

	require.Eventually(t, func() bool { return sink.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestTrack_FlushesOnInterval(t *testing.T) {
	sink := &fakeSink{}
	cfg := PipelineConfig{BufferSize: 16, FlushInterval: 10 * time.Millisecond, FlushBatch: 100}
	p := NewPipeline(cfg, sink, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())
	p.Start(context.Background())
	defer p.Stop()

	p.Track(Entry{Action: "token.revoke"})

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStop_DrainsBufferedEntries(t *testing.T) {
	sink := &fakeSink{}
	cfg := PipelineConfig{BufferSize: 16, FlushInterval: time.Hour, FlushBatch: 100}
	p := NewPipeline(cfg, sink, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())
	p.Start(context.Background())

	p.Track(Entry{Action: "bundle.purchase"})
	p.Stop()

	assert.Equal(t, 1, sink.count())
}

func TestTrack_DropsWhenBufferFull(t *testing.T) {
	sink := &fakeSink{}
	cfg := PipelineConfig{BufferSize: 1, FlushInterval: time.Hour, FlushBatch: 100}
	p := NewPipeline(cfg, sink, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())
	// Never started: the channel fills up and further Track calls must not block.
	p.Track(Entry{Action: "a"})
	p.Track(Entry{Action: "b"})
	p.Track(Entry{Action: "c"})
}
