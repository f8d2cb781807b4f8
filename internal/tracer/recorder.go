// Package tracer turns capture events and explicit calls into spans and
// hands them to the pipeline.
package tracer

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/tapwire/internal/model"
)

// ScopeName identifies spans produced by this package.
const ScopeName = model.Namespace + "/capture"

// Span names and attributes produced by the recorder.
const (
	BillingSpanName   = model.Namespace + ".billing"
	KeyBillingSuccess = "billing_success"
)

// Processor receives span lifecycle callbacks.
type Processor interface {
	OnStart(s *model.Span) bool
	OnEnd(s *model.Span) bool
}

// Recorder builds spans and reports them to a Processor.
type Recorder struct {
	proc  Processor
	scope model.Scope
	log   zerolog.Logger
}

// New creates a recorder reporting to proc.
func New(proc Processor, version string, log zerolog.Logger) *Recorder {
	return &Recorder{
		proc:  proc,
		scope: model.Scope{Name: ScopeName, Version: version},
		log:   log,
	}
}

// Emit converts a terminal capture event into a span and ends it.
func (r *Recorder) Emit(ctx context.Context, ev *model.CaptureEvent) {
	s := r.newSpan(ctx, ev.Name, ev.Start)
	s.Attributes.Merge(ev.Attributes())
	r.proc.OnStart(s)

	s.Finish(ev.End)
	switch {
	case ev.Err != nil:
		s.SetStatus(model.StatusError, ev.Err.Error())
	case statusCode(s.Attributes) >= http.StatusBadRequest:
		s.SetStatus(model.StatusError, fmt.Sprintf("HTTP %d", statusCode(s.Attributes)))
	default:
		s.SetStatus(model.StatusOK, "")
	}
	r.proc.OnEnd(s)
}

// Start opens a span named name. The returned context carries it as the
// parent of spans recorded under ctx.
func (r *Recorder) Start(ctx context.Context, name string, attrs model.Attributes) (context.Context, *Active) {
	s := r.newSpan(ctx, name, time.Now())
	s.Attributes.Merge(attrs)
	r.proc.OnStart(s)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    s.TraceID,
		SpanID:     s.SpanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(ctx, sc), &Active{rec: r, span: s}
}

// RecordBilling records a billing span. Values are stored as strings under
// the billing prefix.
func (r *Recorder) RecordBilling(ctx context.Context, success bool, values map[string]any) {
	s := r.newSpan(ctx, BillingSpanName, time.Now())
	for k, v := range values {
		s.Attributes[model.BillingPrefix+k] = fmt.Sprint(v)
	}
	s.Attributes[model.KeyBillingSpan] = true
	s.Attributes[KeyBillingSuccess] = success
	r.proc.OnStart(s)

	s.Finish(time.Now())
	s.SetStatus(model.StatusOK, "")
	r.proc.OnEnd(s)
}

func (r *Recorder) newSpan(ctx context.Context, name string, start time.Time) *model.Span {
	s := model.NewSpan(name, start)
	if parent := trace.SpanContextFromContext(ctx); parent.IsValid() {
		s.TraceID = parent.TraceID()
		s.ParentSpanID = parent.SpanID()
	}
	scope := r.scope
	s.Scope = &scope
	s.Attributes.Merge(baggageAttributes(ctx))
	return s
}

// Active is a span opened with Start and not yet ended.
type Active struct {
	rec  *Recorder
	span *model.Span

	mu    sync.Mutex
	ended bool
}

// SetAttribute records key=value. It is ignored after End.
func (a *Active) SetAttribute(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ended {
		a.span.Attributes[key] = value
	}
}

// AddEvent appends a timestamped event. It is ignored after End.
func (a *Active) AddEvent(name string, attrs model.Attributes) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ended {
		a.span.AddEvent(name, time.Now(), attrs)
	}
}

// End closes the span with an OK status, or ERROR when err is non-nil.
// Only the first call has an effect.
func (a *Active) End(err error) {
	a.mu.Lock()
	if a.ended {
		a.mu.Unlock()
		return
	}
	a.ended = true
	a.mu.Unlock()

	a.span.Finish(time.Now())
	if err != nil {
		a.span.SetStatus(model.StatusError, err.Error())
	} else {
		a.span.SetStatus(model.StatusOK, "")
	}
	a.rec.proc.OnEnd(a.span)
}

// SpanID returns the span id.
func (a *Active) SpanID() trace.SpanID { return a.span.SpanID }

// TraceID returns the trace id.
func (a *Active) TraceID() trace.TraceID { return a.span.TraceID }

func statusCode(attrs model.Attributes) int {
	switch v := attrs[model.KeyStatusCode].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
