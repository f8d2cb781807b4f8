package model

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// NewTraceID generates a random 128-bit trace id.
func NewTraceID() trace.TraceID {
	var id trace.TraceID
	fill(id[:])
	return id
}

// NewSpanID generates a random 64-bit span id.
func NewSpanID() trace.SpanID {
	var id trace.SpanID
	fill(id[:])
	return id
}

func fill(b []byte) {
	if _, err := rand.Read(b); err == nil && !allZero(b) {
		return
	}
	// Fallback to a timestamp-based id if crypto/rand fails.
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixNano())|1)
	for i := range b {
		b[i] = ts[i%len(ts)]
	}
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
