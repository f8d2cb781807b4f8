// Package batch buffers finished spans in a bounded FIFO queue and hands
// them to an exporter in batches, on size or on a timer.
package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/tapwire/internal/model"
)

// ErrFlushTimeout is returned when a flush does not complete in time. The
// export in flight keeps running.
var ErrFlushTimeout = errors.New("flush did not complete before the deadline")

// Exporter delivers one batch. A returned error is terminal for the batch.
type Exporter interface {
	Export(ctx context.Context, spans []*model.Span) error
	Shutdown(ctx context.Context) error
}

// Config bounds the queue and schedules flushes.
type Config struct {
	MaxQueueSize       int
	MaxExportBatchSize int
	ScheduleDelay      time.Duration
	ExportTimeout      time.Duration
}

// DefaultConfig returns the stock queue settings.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:       2048,
		MaxExportBatchSize: 512,
		ScheduleDelay:      5 * time.Second,
		ExportTimeout:      30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.MaxExportBatchSize <= 0 {
		c.MaxExportBatchSize = d.MaxExportBatchSize
	}
	if c.MaxExportBatchSize > c.MaxQueueSize {
		c.MaxExportBatchSize = c.MaxQueueSize
	}
	if c.ScheduleDelay <= 0 {
		c.ScheduleDelay = d.ScheduleDelay
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = d.ExportTimeout
	}
	return c
}

// Stats are cumulative counters.
type Stats struct {
	Enqueued      uint64
	Dropped       uint64
	Exported      uint64
	Batches       uint64
	FailedBatches uint64
}

// Processor is the batch queue. One goroutine performs every export, so
// exports for a queue never overlap.
type Processor struct {
	cfg Config
	exp Exporter
	log zerolog.Logger

	mu       sync.Mutex
	queue    []*model.Span
	flushing bool
	closed   bool

	kick     chan struct{}
	flushReq chan chan struct{}
	stop     chan struct{}
	stopped  chan struct{}

	stopOnce     sync.Once
	shutdownOnce sync.Once
	shutdownErr  error

	enqueued, dropped, exported, batches, failed atomic.Uint64
}

// New starts a processor feeding exp.
func New(exp Exporter, cfg Config, log zerolog.Logger) *Processor {
	cfg = cfg.withDefaults()
	p := &Processor{
		cfg:      cfg,
		exp:      exp,
		log:      log,
		queue:    make([]*model.Span, 0, cfg.MaxExportBatchSize),
		kick:     make(chan struct{}, 1),
		flushReq: make(chan chan struct{}),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go p.run()
	return p
}

// Enqueue appends s. It reports false when s was dropped because the queue
// is full or the processor is shut down.
func (p *Processor) Enqueue(s *model.Span) bool {
	p.mu.Lock()
	if p.closed || len(p.queue) >= p.cfg.MaxQueueSize {
		p.mu.Unlock()
		p.dropped.Add(1)
		p.log.Trace().Str("span", s.Name).Msg("span dropped")
		return false
	}
	p.queue = append(p.queue, s)
	full := len(p.queue) >= p.cfg.MaxExportBatchSize && !p.flushing
	p.mu.Unlock()

	p.enqueued.Add(1)
	if full {
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
	return true
}

// Len returns the number of queued spans.
func (p *Processor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// ForceFlush exports everything queued and waits for it. Without a
// deadline on ctx the configured export timeout applies.
func (p *Processor) ForceFlush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ExportTimeout)
		defer cancel()
	}

	done := make(chan struct{})
	select {
	case p.flushReq <- done:
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ErrFlushTimeout
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrFlushTimeout
	}
}

// Shutdown rejects further spans, flushes what is queued and shuts the
// exporter down. Only the first call has an effect.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.stopOnce.Do(func() { close(p.stop) })
		var flushErr error
		select {
		case <-p.stopped:
		case <-ctx.Done():
			flushErr = ErrFlushTimeout
		}

		p.shutdownErr = errors.Join(flushErr, p.exp.Shutdown(ctx))
	})
	return p.shutdownErr
}

// Stats returns a snapshot of the counters.
func (p *Processor) Stats() Stats {
	return Stats{
		Enqueued:      p.enqueued.Load(),
		Dropped:       p.dropped.Load(),
		Exported:      p.exported.Load(),
		Batches:       p.batches.Load(),
		FailedBatches: p.failed.Load(),
	}
}

func (p *Processor) run() {
	defer close(p.stopped)

	timer := time.NewTimer(p.cfg.ScheduleDelay)
	defer timer.Stop()

	for {
		select {
		case <-p.stop:
			p.drain(false)
			return
		case <-p.kick:
			p.drain(true)
		case <-timer.C:
			p.drain(false)
		case done := <-p.flushReq:
			p.drain(false)
			close(done)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.cfg.ScheduleDelay)
	}
}

// drain exports batches until the queue is empty, or when fullOnly is set,
// until less than one full batch remains.
func (p *Processor) drain(fullOnly bool) {
	for {
		batch := p.take(fullOnly)
		if batch == nil {
			return
		}
		p.export(batch)
	}
}

func (p *Processor) take(fullOnly bool) []*model.Span {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.queue)
	if n == 0 || (fullOnly && n < p.cfg.MaxExportBatchSize) {
		p.flushing = false
		return nil
	}
	if n > p.cfg.MaxExportBatchSize {
		n = p.cfg.MaxExportBatchSize
	}
	batch := make([]*model.Span, n)
	copy(batch, p.queue[:n])
	rest := copy(p.queue, p.queue[n:])
	clear(p.queue[rest:])
	p.queue = p.queue[:rest]
	p.flushing = true
	return batch
}

func (p *Processor) export(batch []*model.Span) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ExportTimeout)
	defer cancel()

	p.batches.Add(1)
	if err := p.exp.Export(ctx, batch); err != nil {
		p.failed.Add(1)
		p.log.Error().Err(err).Int("spans", len(batch)).Msg("batch export failed, dropping batch")
		return
	}
	p.exported.Add(uint64(len(batch)))
	p.log.Debug().Int("spans", len(batch)).Msg("batch exported")
}
