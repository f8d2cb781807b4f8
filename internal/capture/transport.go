package capture

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Transport is an http.RoundTripper that captures calls to recognised
// provider hosts. Other hosts pass straight through.
type Transport struct {
	base   http.RoundTripper
	sink   EventSink
	log    zerolog.Logger
	lookup func(host string) (string, bool)
}

// TransportOption customises a Transport.
type TransportOption func(*Transport)

// WithLookup replaces the host catalog lookup.
func WithLookup(fn func(host string) (string, bool)) TransportOption {
	return func(t *Transport) { t.lookup = fn }
}

// WithProvider attributes every call to provider, whatever its host.
func WithProvider(provider string) TransportOption {
	return WithLookup(func(string) (string, bool) { return provider, true })
}

// NewTransport wraps base; a nil base means http.DefaultTransport.
func NewTransport(base http.RoundTripper, sink EventSink, log zerolog.Logger, opts ...TransportOption) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &Transport{base: base, sink: sink, log: log, lookup: LookupHost}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	provider, ok := t.lookup(req.URL.Host)
	if !ok {
		return t.base.RoundTrip(req)
	}

	start := time.Now()
	out, reqBody := t.snapshot(req)

	resp, err := t.base.RoundTrip(out)
	meta := Meta{
		Provider:    provider,
		URL:         req.URL.String(),
		Host:        req.URL.Hostname(),
		Method:      req.Method,
		RequestBody: reqBody,
		Start:       start,
	}
	if err != nil {
		NewRecorder(req.Context(), meta, t.sink, t.log).Fail(err)
		return nil, err
	}

	meta.StatusCode = resp.StatusCode
	meta.Header = resp.Header.Clone()
	rec := NewRecorder(req.Context(), meta, t.sink, t.log)

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotModified ||
		resp.ContentLength == 0 || resp.Body == nil || resp.Body == http.NoBody {
		rec.Empty()
		return resp, nil
	}
	resp.Body = NewReader(resp.Body, rec, t.log)
	return resp, nil
}

// snapshot copies the request body so it can be captured and still sent.
// Multipart bodies are not captured.
func (t *Transport) snapshot(req *http.Request) (*http.Request, []byte) {
	if req.Body == nil || req.Body == http.NoBody || isMultipart(req.Header.Get("Content-Type")) {
		return req, nil
	}
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	if err != nil {
		t.log.Warn().Err(err).Str("url", req.URL.String()).Msg("request body snapshot incomplete")
		return out, nil
	}
	return out, body
}

func isMultipart(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && strings.HasPrefix(mt, "multipart/")
}
