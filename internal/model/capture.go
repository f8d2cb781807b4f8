package model

import (
	"sync"
	"time"
)

// CaptureEvent is the raw, pre-decode signal a collaborator delivers when an
// outbound call starts, streams, or ends. It is mutable until Finalize.
type CaptureEvent struct {
	Name  string
	Start time.Time
	End   time.Time
	Err   error

	mu         sync.Mutex
	attributes Attributes
	final      bool
}

// NewCaptureEvent creates an open event stamped with start.
func NewCaptureEvent(name string, start time.Time, attrs Attributes) *CaptureEvent {
	if attrs == nil {
		attrs = Attributes{}
	}
	return &CaptureEvent{Name: name, Start: start, attributes: attrs}
}

// SetAttribute records key=value. It returns false once the event is final.
func (e *CaptureEvent) SetAttribute(key string, value any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.final {
		return false
	}
	e.attributes[key] = value
	return true
}

// Finalize marks the event terminal. Later calls are no-ops and return false.
func (e *CaptureEvent) Finalize(end time.Time, err error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.final {
		return false
	}
	e.final = true
	e.End = end
	e.Err = err
	return true
}

// Final reports whether the event is terminal.
func (e *CaptureEvent) Final() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.final
}

// Attributes returns a copy of the attribute map.
func (e *CaptureEvent) Attributes() Attributes {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(Attributes, len(e.attributes))
	for k, v := range e.attributes {
		out[k] = v
	}
	return out
}
