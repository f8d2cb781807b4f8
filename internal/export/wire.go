// Package export serialises span batches and delivers them to a collector.
package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ppiankov/tapwire/internal/model"
)

// Exporter delivers batches. An error is terminal for the batch.
type Exporter interface {
	Export(ctx context.Context, spans []*model.Span) error
	Shutdown(ctx context.Context) error
}

// Payload is the request body sent to the collector.
type Payload struct {
	Spans []WireSpan `json:"spans"`
}

// WireSpan is the collector's view of one span.
type WireSpan struct {
	Name                string           `json:"name"`
	TraceID             string           `json:"trace_id"`
	SpanID              string           `json:"span_id"`
	ParentSpanID        *string          `json:"parent_span_id"`
	StartTime           int64            `json:"start_time"`
	EndTime             int64            `json:"end_time"`
	Status              *WireStatus      `json:"status"`
	Attributes          map[string]any   `json:"attributes"`
	Events              []WireEvent      `json:"events"`
	Links               []WireLink       `json:"links"`
	InstrumentationInfo *Instrumentation `json:"instrumentation_info"`
}

// WireStatus carries the status code name and optional description.
type WireStatus struct {
	StatusCode  string  `json:"status_code"`
	Description *string `json:"description"`
}

// WireEvent is a span event.
type WireEvent struct {
	Name       string         `json:"name"`
	Timestamp  int64          `json:"timestamp"`
	Attributes map[string]any `json:"attributes"`
}

// WireLink is a span link.
type WireLink struct {
	Context    LinkContext    `json:"context"`
	Attributes map[string]any `json:"attributes"`
}

// LinkContext identifies the linked span.
type LinkContext struct {
	TraceID string `json:"trace_id"`
	SpanID  string `json:"span_id"`
}

// Instrumentation names the producer of a span.
type Instrumentation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToWire converts a span to its wire form.
func ToWire(s *model.Span) WireSpan {
	w := WireSpan{
		Name:       s.Name,
		TraceID:    s.TraceID.String(),
		SpanID:     s.SpanID.String(),
		StartTime:  s.Start.UnixNano(),
		EndTime:    s.End.UnixNano(),
		Attributes: orEmpty(s.Attributes),
		Events:     make([]WireEvent, 0, len(s.Events)),
		Links:      make([]WireLink, 0, len(s.Links)),
	}
	if s.HasParent() {
		p := s.ParentSpanID.String()
		w.ParentSpanID = &p
	}
	if s.Status != nil {
		st := &WireStatus{StatusCode: s.Status.Code.String()}
		if s.Status.Description != "" {
			d := s.Status.Description
			st.Description = &d
		}
		w.Status = st
	}
	for _, e := range s.Events {
		w.Events = append(w.Events, WireEvent{
			Name:       e.Name,
			Timestamp:  e.Time.UnixNano(),
			Attributes: orEmpty(e.Attributes),
		})
	}
	for _, l := range s.Links {
		w.Links = append(w.Links, WireLink{
			Context:    LinkContext{TraceID: l.TraceID.String(), SpanID: l.SpanID.String()},
			Attributes: orEmpty(l.Attributes),
		})
	}
	if s.Scope != nil {
		w.InstrumentationInfo = &Instrumentation{Name: s.Scope.Name, Version: s.Scope.Version}
	}
	return w
}

// Encode builds the JSON request body for spans.
func Encode(spans []*model.Span) ([]byte, error) {
	p := Payload{Spans: make([]WireSpan, 0, len(spans))}
	for _, s := range spans {
		p.Spans = append(p.Spans, ToWire(s))
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode spans: %w", err)
	}
	return b, nil
}

func orEmpty(a model.Attributes) map[string]any {
	if a == nil {
		return map[string]any{}
	}
	return a
}
