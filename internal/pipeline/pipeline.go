// Package pipeline wires admission, decoding, scrubbing and the batch
// queue into the two callbacks span producers invoke.
package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ppiankov/tapwire/internal/admit"
	"github.com/ppiankov/tapwire/internal/decode"
	"github.com/ppiankov/tapwire/internal/model"
	"github.com/ppiankov/tapwire/internal/scrub"
)

// Queue accepts finished spans for export.
type Queue interface {
	Enqueue(s *model.Span) bool
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type scrubberRef struct {
	s scrub.Scrubber
}

// Pipeline processes spans on the producer's goroutine up to the queue.
type Pipeline struct {
	filter   *admit.Filter
	stage    *decode.Stage
	queue    Queue
	log      zerolog.Logger
	scrubber atomic.Pointer[scrubberRef]
}

// New builds a pipeline. A nil scrubber disables scrubbing.
func New(filter *admit.Filter, stage *decode.Stage, s scrub.Scrubber, q Queue, log zerolog.Logger) *Pipeline {
	p := &Pipeline{filter: filter, stage: stage, queue: q, log: log}
	p.SetScrubber(s)
	return p
}

// SetScrubber swaps the scrubber used for spans ending from now on.
func (p *Pipeline) SetScrubber(s scrub.Scrubber) {
	if s == nil {
		s = scrub.NoOp{}
	}
	p.scrubber.Store(&scrubberRef{s: s})
}

// Scrubber returns the scrubber in use.
func (p *Pipeline) Scrubber() scrub.Scrubber {
	return p.scrubber.Load().s
}

// OnStart reports whether s will be retained. Nothing is queued.
func (p *Pipeline) OnStart(s *model.Span) bool {
	return p.filter.AcceptSpan(s)
}

// OnEnd admits, decodes and scrubs a copy of s, then queues it. It reports
// whether the span was queued. Internal failures are logged, never raised.
func (p *Pipeline) OnEnd(s *model.Span) (queued bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("span", s.Name).Msg("span processing failed")
			queued = false
		}
	}()

	if !p.filter.AcceptSpan(s) {
		return false
	}

	c := s.Clone()
	p.stage.Decode(c)
	c.Attributes = p.Scrubber().Scrub(c.Attributes)

	return p.queue.Enqueue(c)
}

// ForceFlush flushes the queue.
func (p *Pipeline) ForceFlush(ctx context.Context) error {
	return p.queue.ForceFlush(ctx)
}

// Shutdown flushes and stops the queue.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	return p.queue.Shutdown(ctx)
}
