package model

import (
	"time"

	"go.opentelemetry.io/otel/trace"
)

// StatusCode is the outcome recorded on a span.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

// String returns the wire name of the status code.
func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	default:
		return "UNSET"
	}
}

// Status is a status code plus an optional description.
type Status struct {
	Code        StatusCode
	Description string
}

// Event is a timestamped annotation on a span.
type Event struct {
	Name       string
	Time       time.Time
	Attributes Attributes
}

// Link points at another span context.
type Link struct {
	TraceID    trace.TraceID
	SpanID     trace.SpanID
	Attributes Attributes
}

// Scope names the instrumentation that produced a span.
type Scope struct {
	Name    string
	Version string
}

// Span is one retained unit of an outbound call.
type Span struct {
	Name         string
	TraceID      trace.TraceID
	SpanID       trace.SpanID
	ParentSpanID trace.SpanID // invalid (all zero) when the span is a root
	Start        time.Time
	End          time.Time
	Status       *Status
	Attributes   Attributes
	Events       []Event
	Links        []Link
	Scope        *Scope
}

// NewSpan creates a span with fresh ids and an empty attribute map.
func NewSpan(name string, start time.Time) *Span {
	return &Span{
		Name:       name,
		TraceID:    NewTraceID(),
		SpanID:     NewSpanID(),
		Start:      start,
		Attributes: Attributes{},
	}
}

// HasParent reports whether a parent span id is recorded.
func (s *Span) HasParent() bool {
	return s.ParentSpanID.IsValid()
}

// HasBinary reports whether either reserved binary buffer is still attached.
func (s *Span) HasBinary() bool {
	_, req := s.Attributes[KeyRequestBinary]
	_, resp := s.Attributes[KeyResponseBinary]
	return req || resp
}

// Finish sets the end time, clamping it so End is never before Start.
func (s *Span) Finish(end time.Time) {
	if end.Before(s.Start) {
		end = s.Start
	}
	s.End = end
}

// SetStatus records the span outcome.
func (s *Span) SetStatus(code StatusCode, description string) {
	s.Status = &Status{Code: code, Description: description}
}

// AddEvent appends a timestamped event.
func (s *Span) AddEvent(name string, at time.Time, attrs Attributes) {
	s.Events = append(s.Events, Event{Name: name, Time: at, Attributes: attrs})
}

// Clone returns a deep copy of the span.
func (s *Span) Clone() *Span {
	c := *s
	c.Attributes = s.Attributes.Clone()
	if s.Status != nil {
		st := *s.Status
		c.Status = &st
	}
	if s.Scope != nil {
		sc := *s.Scope
		c.Scope = &sc
	}
	c.Events = make([]Event, len(s.Events))
	for i, e := range s.Events {
		c.Events[i] = Event{Name: e.Name, Time: e.Time, Attributes: e.Attributes.Clone()}
	}
	c.Links = make([]Link, len(s.Links))
	for i, l := range s.Links {
		c.Links[i] = Link{TraceID: l.TraceID, SpanID: l.SpanID, Attributes: l.Attributes.Clone()}
	}
	return &c
}
