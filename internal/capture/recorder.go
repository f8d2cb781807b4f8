// Package capture observes outbound call bodies as they stream past and
// turns each completed call into a model.CaptureEvent.
package capture

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/tapwire/internal/model"
)

// Event names emitted by this package.
const (
	HTTPEventName = model.Namespace + ".http.response"
	GRPCEventName = model.Namespace + ".grpc.response"
)

// EventSink receives terminal capture events. ctx is the context of the
// originating call.
type EventSink interface {
	Emit(ctx context.Context, ev *model.CaptureEvent)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, ev *model.CaptureEvent)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, ev *model.CaptureEvent) { f(ctx, ev) }

// Finalizer is invoked once with the full body observed by a wrapper.
type Finalizer interface {
	Finalize(body []byte)
}

// Meta is the ambient metadata of one HTTP call.
type Meta struct {
	Provider    string
	URL         string
	Host        string
	Method      string
	StatusCode  int
	Header      http.Header // response headers
	RequestBody []byte
	Start       time.Time
}

// Recorder builds and emits the capture event for one call. Emission
// errors and panics are logged and swallowed.
type Recorder struct {
	ctx  context.Context
	meta Meta
	sink EventSink
	log  zerolog.Logger
}

// NewRecorder returns a recorder emitting to sink.
func NewRecorder(ctx context.Context, meta Meta, sink EventSink, log zerolog.Logger) *Recorder {
	if meta.Start.IsZero() {
		meta.Start = time.Now()
	}
	return &Recorder{ctx: ctx, meta: meta, sink: sink, log: log}
}

// Finalize emits a successful event carrying body as the response buffer.
func (r *Recorder) Finalize(body []byte) {
	r.emit(body, nil)
}

// Empty emits a terminal event for a response that has no body.
func (r *Recorder) Empty() {
	r.emit(nil, nil)
}

// Fail emits a terminal event recording a transport error.
func (r *Recorder) Fail(err error) {
	r.emit(nil, err)
}

func (r *Recorder) emit(body []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Str("url", r.meta.URL).Interface("panic", p).Msg("capture finalize failed")
		}
	}()

	ev := model.NewCaptureEvent(HTTPEventName, r.meta.Start, r.attributes())
	if body != nil {
		ev.SetAttribute(model.KeyResponseBinary, body)
	}
	ev.Finalize(time.Now(), err)
	r.sink.Emit(r.ctx, ev)
}

func (r *Recorder) attributes() model.Attributes {
	m := r.meta
	attrs := model.Attributes{
		model.KeyProvider: m.Provider,
		model.KeyURL:      m.URL,
		model.KeyHost:     m.Host,
		model.KeyMethod:   m.Method,
	}
	if m.StatusCode != 0 {
		attrs[model.KeyStatusCode] = m.StatusCode
	}
	if m.Header != nil {
		attrs[model.KeyContentType] = m.Header.Get("Content-Type")
		attrs[model.KeyContentEncoding] = m.Header.Get("Content-Encoding")
		for k, v := range m.Header {
			attrs[model.ResponseHeaderPrefix+k] = strings.Join(v, ", ")
		}
	}
	if len(m.RequestBody) > 0 {
		attrs[model.KeyRequestBinary] = m.RequestBody
	}
	return attrs
}

// safely runs fn, logging instead of propagating a panic.
func safely(log zerolog.Logger, what string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("stage", what).Err(fmt.Errorf("%v", p)).Msg("capture wrapper recovered")
		}
	}()
	fn()
}
