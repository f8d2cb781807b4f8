// Package otelbridge feeds spans produced by OpenTelemetry-instrumented code
// into the capture pipeline.
package otelbridge

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ppiankov/tapwire/internal/model"
)

// Pipeline is the span sink the bridge forwards to.
type Pipeline interface {
	OnEnd(s *model.Span) bool
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Processor is an sdktrace.SpanProcessor that hands ended spans to a
// Pipeline. The pipeline applies admission, so unrelated spans cost one
// conversion.
type Processor struct {
	pipe Pipeline
	log  zerolog.Logger
}

var _ sdktrace.SpanProcessor = (*Processor)(nil)

// New returns a bridge processor for pipe.
func New(pipe Pipeline, log zerolog.Logger) *Processor {
	return &Processor{pipe: pipe, log: log}
}

// OnStart copies namespaced baggage from the parent context onto s.
func (p *Processor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	if !strings.HasPrefix(s.Name(), model.Namespace) {
		return
	}
	for _, m := range baggage.FromContext(parent).Members() {
		if strings.HasPrefix(m.Key(), model.Namespace) {
			s.SetAttributes(attribute.String(m.Key(), m.Value()))
		}
	}
}

// OnEnd converts s and forwards it.
func (p *Processor) OnEnd(s sdktrace.ReadOnlySpan) {
	if !strings.HasPrefix(s.Name(), model.Namespace) {
		return
	}
	if !p.pipe.OnEnd(Convert(s)) {
		p.log.Trace().Str("span", s.Name()).Msg("span not queued")
	}
}

// ForceFlush flushes the pipeline queue.
func (p *Processor) ForceFlush(ctx context.Context) error {
	return p.pipe.ForceFlush(ctx)
}

// Shutdown stops the pipeline.
func (p *Processor) Shutdown(ctx context.Context) error {
	return p.pipe.Shutdown(ctx)
}

// Convert maps an OpenTelemetry span onto the pipeline's span model.
func Convert(s sdktrace.ReadOnlySpan) *model.Span {
	sc := s.SpanContext()
	out := &model.Span{
		Name:       s.Name(),
		TraceID:    sc.TraceID(),
		SpanID:     sc.SpanID(),
		Start:      s.StartTime(),
		Attributes: attributes(s.Attributes()),
	}
	if parent := s.Parent(); parent.IsValid() {
		out.ParentSpanID = parent.SpanID()
	}
	out.Finish(s.EndTime())

	switch st := s.Status(); st.Code {
	case codes.Ok:
		out.SetStatus(model.StatusOK, st.Description)
	case codes.Error:
		out.SetStatus(model.StatusError, st.Description)
	}

	for _, e := range s.Events() {
		out.AddEvent(e.Name, e.Time, attributes(e.Attributes))
	}
	for _, l := range s.Links() {
		out.Links = append(out.Links, model.Link{
			TraceID:    l.SpanContext.TraceID(),
			SpanID:     l.SpanContext.SpanID(),
			Attributes: attributes(l.Attributes),
		})
	}
	if is := s.InstrumentationScope(); is.Name != "" {
		out.Scope = &model.Scope{Name: is.Name, Version: is.Version}
	}
	return out
}

func attributes(kvs []attribute.KeyValue) model.Attributes {
	attrs := make(model.Attributes, len(kvs))
	for _, kv := range kvs {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	return attrs
}
