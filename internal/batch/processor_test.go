package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/tapwire/internal/logging"
	"github.com/ppiankov/tapwire/internal/model"
)

type fakeExporter struct {
	mu        sync.Mutex
	batches   [][]*model.Span
	err       error
	block     chan struct{} // when set, Export waits on it
	started   chan struct{}
	shutdowns int
}

func (f *fakeExporter) Export(ctx context.Context, spans []*model.Span) error {
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, spans)
	return f.err
}

func (f *fakeExporter) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return nil
}

func (f *fakeExporter) calls() [][]*model.Span {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]*model.Span(nil), f.batches...)
}

func spans(n int) []*model.Span {
	out := make([]*model.Span, n)
	for i := range out {
		out[i] = model.NewSpan(fmt.Sprintf("tapwire.span.%d", i), time.Now())
	}
	return out
}

func TestSizeTriggeredFlush(t *testing.T) {
	exp := &fakeExporter{}
	p := New(exp, Config{MaxQueueSize: 10, MaxExportBatchSize: 3, ScheduleDelay: time.Hour}, logging.Nop())
	defer p.Shutdown(context.Background())

	in := spans(3)
	for _, s := range in {
		require.True(t, p.Enqueue(s))
	}

	require.Eventually(t, func() bool { return len(exp.calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, in, exp.calls()[0], "one export with every span in FIFO order")
}

func TestTimerFlushesPartialBatch(t *testing.T) {
	exp := &fakeExporter{}
	p := New(exp, Config{MaxQueueSize: 10, MaxExportBatchSize: 5, ScheduleDelay: 20 * time.Millisecond}, logging.Nop())
	defer p.Shutdown(context.Background())

	require.True(t, p.Enqueue(spans(1)[0]))
	require.Eventually(t, func() bool { return len(exp.calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, exp.calls()[0], 1)
}

func TestQueueBound(t *testing.T) {
	exp := &fakeExporter{block: make(chan struct{}), started: make(chan struct{}, 1)}
	p := New(exp, Config{MaxQueueSize: 4, MaxExportBatchSize: 2, ScheduleDelay: time.Hour}, logging.Nop())

	// park the worker inside an export so nothing else is flushed
	for _, s := range spans(2) {
		p.Enqueue(s)
	}
	<-exp.started

	accepted := 0
	for _, s := range spans(4 + 3) {
		if p.Enqueue(s) {
			accepted++
		}
	}
	assert.Equal(t, 4, accepted)
	assert.Equal(t, 4, p.Len())
	assert.Equal(t, uint64(3), p.Stats().Dropped)

	close(exp.block)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestForceFlush(t *testing.T) {
	exp := &fakeExporter{}
	p := New(exp, Config{MaxQueueSize: 100, MaxExportBatchSize: 4, ScheduleDelay: time.Hour}, logging.Nop())
	defer p.Shutdown(context.Background())

	for _, s := range spans(10) {
		p.Enqueue(s)
	}
	require.NoError(t, p.ForceFlush(context.Background()))

	total := 0
	for _, b := range exp.calls() {
		assert.LessOrEqual(t, len(b), 4)
		total += len(b)
	}
	assert.Equal(t, 10, total)
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, uint64(10), p.Stats().Exported)
}

func TestForceFlushTimeout(t *testing.T) {
	exp := &fakeExporter{block: make(chan struct{}), started: make(chan struct{}, 1)}
	p := New(exp, Config{MaxQueueSize: 10, MaxExportBatchSize: 5, ScheduleDelay: time.Hour}, logging.Nop())

	p.Enqueue(spans(1)[0])
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.ForceFlush(ctx)
	assert.ErrorIs(t, err, ErrFlushTimeout)
	assert.Less(t, time.Since(start), time.Second)

	<-exp.started
	close(exp.block)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Len(t, exp.calls(), 1, "the in-flight export still completes")
}

func TestShutdownRejectsEnqueue(t *testing.T) {
	exp := &fakeExporter{}
	p := New(exp, Config{MaxQueueSize: 10, MaxExportBatchSize: 5, ScheduleDelay: time.Hour}, logging.Nop())

	p.Enqueue(spans(1)[0])
	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Len(t, exp.calls(), 1, "shutdown flushes what is queued")
	assert.Equal(t, 1, exp.shutdowns)

	assert.False(t, p.Enqueue(spans(1)[0]))
	assert.Equal(t, uint64(1), p.Stats().Dropped)
	assert.NoError(t, p.ForceFlush(context.Background()))
}

func TestFailedBatchIsNotRetried(t *testing.T) {
	exp := &fakeExporter{err: errors.New("collector returned 503")}
	p := New(exp, Config{MaxQueueSize: 10, MaxExportBatchSize: 2, ScheduleDelay: time.Hour}, logging.Nop())

	for _, s := range spans(2) {
		p.Enqueue(s)
	}
	require.NoError(t, p.ForceFlush(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Len(t, exp.calls(), 1)
	st := p.Stats()
	assert.Equal(t, uint64(1), st.FailedBatches)
	assert.Equal(t, uint64(0), st.Exported)

	assert.False(t, p.Enqueue(spans(1)[0]))
}

func TestQueueAcceptsAfterFailure(t *testing.T) {
	exp := &fakeExporter{err: errors.New("boom")}
	p := New(exp, Config{MaxQueueSize: 10, MaxExportBatchSize: 1, ScheduleDelay: time.Hour}, logging.Nop())
	defer p.Shutdown(context.Background())

	p.Enqueue(spans(1)[0])
	require.Eventually(t, func() bool { return p.Stats().FailedBatches == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, p.Enqueue(spans(1)[0]))
}

func TestConfigDefaults(t *testing.T) {
	c := Config{MaxQueueSize: 8, MaxExportBatchSize: 100}.withDefaults()
	assert.Equal(t, 8, c.MaxExportBatchSize)
	assert.Equal(t, 5*time.Second, c.ScheduleDelay)
	assert.Equal(t, 30*time.Second, c.ExportTimeout)

	d := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig(), d)
}
