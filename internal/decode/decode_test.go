package decode

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/tapwire/internal/capture"
	"github.com/ppiankov/tapwire/internal/logging"
	"github.com/ppiankov/tapwire/internal/model"
	"github.com/ppiankov/tapwire/internal/provider"
	"github.com/ppiankov/tapwire/internal/scrub"
)

func newStage() *Stage {
	return NewStage(provider.NewRegistry(), logging.Nop())
}

func span(attrs model.Attributes) *model.Span {
	s := model.NewSpan("tapwire.http.response", time.Now())
	s.Attributes = attrs
	return s
}

func TestSafeDecodeTotal(t *testing.T) {
	for i := 0; i < 256; i++ {
		out := SafeDecode([]byte{byte(i)})
		assert.True(t, utf8.ValidString(out), "byte %#x", i)
		assert.NotEmpty(t, out, "byte %#x", i)
	}

	// "é" truncated after its lead byte
	out := SafeDecode([]byte{'c', 'a', 'f', 0xC3})
	assert.Equal(t, "cafÃ", out)
}

func TestSafeDecodeFallbacks(t *testing.T) {
	assert.Equal(t, "héllo", SafeDecode([]byte("héllo")))

	assert.Equal(t, "“quoted”", SafeDecode([]byte{0x93, 'q', 'u', 'o', 't', 'e', 'd', 0x94}))
	assert.Equal(t, "€", SafeDecode([]byte{0x80}))
	assert.Equal(t, "—", SafeDecode([]byte{0x97}))

	// bytes Windows-1252 leaves undefined force the Latin-1 path
	out := SafeDecode([]byte("Test\x81\x8d\x8f\x90\x9d"))
	assert.Equal(t, 9, utf8.RuneCountInString(out))
	assert.Equal(t, "Test\u0081\u008d\u008f\u0090\u009d", out)
}

func TestDecompress(t *testing.T) {
	payload := []byte(`{"id":"x"}`)

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, _ = w.Write(payload)
	require.NoError(t, w.Close())

	var zl bytes.Buffer
	zw := zlib.NewWriter(&zl)
	_, _ = zw.Write(payload)
	require.NoError(t, zw.Close())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zs := enc.EncodeAll(payload, nil)

	tests := []struct {
		encoding string
		in       []byte
		ok       bool
	}{
		{"gzip", gz.Bytes(), true},
		{"GZIP ", gz.Bytes(), true},
		{"deflate", zl.Bytes(), true},
		{"zstd", zs, true},
		{"", payload, true},
		{"identity", payload, true},
		{"gzip", payload, false},
		{"zstd", payload, false},
		{"deflate", payload, false},
	}
	for _, tt := range tests {
		out, ok := Decompress(tt.encoding, tt.in)
		assert.Equal(t, tt.ok, ok, tt.encoding)
		assert.Equal(t, payload, out, tt.encoding)
	}
}

func TestJSONBodyThenScrub(t *testing.T) {
	s := span(model.Attributes{
		model.KeyProvider:       "openai",
		model.KeyContentType:    "application/json",
		model.KeyResponseBinary: []byte(`{"ok":true,"password":"x"}`),
	})
	newStage().Decode(s)
	out := scrub.MustNew().Scrub(s.Attributes)

	assert.Equal(t, true, out["ok"])
	assert.Equal(t, scrub.Marker("password"), out["password"])
	assert.NotContains(t, out, model.KeyResponseBinary)
	assert.Equal(t, 26, out[model.KeyResponseSize])
}

func TestGzipMismatchStillDecodes(t *testing.T) {
	s := span(model.Attributes{
		model.KeyProvider:        "serpapi",
		model.KeyContentType:     "application/json; charset=utf-8",
		model.KeyContentEncoding: "gzip",
		model.KeyResponseBinary:  []byte(`{"search_metadata":{"id":"1"}}`),
	})
	newStage().Decode(s)

	assert.Equal(t, true, s.Attributes[KeyContentEncodingMismatch])
	assert.Equal(t, map[string]any{"id": "1"}, s.Attributes["search_metadata"])
}

func TestUnknownContentType(t *testing.T) {
	s := span(model.Attributes{
		model.KeyProvider:       "openai",
		model.KeyContentType:    "application/octet-stream",
		model.KeyURL:            "https://api.openai.com/v1/files",
		model.KeyResponseBinary: []byte{0x00, 0x01, 0x02},
	})
	newStage().Decode(s)

	assert.False(t, s.HasBinary())
	assert.Equal(t, model.Attributes{
		model.KeyProvider:     "openai",
		model.KeyContentType:  "application/octet-stream",
		model.KeyURL:          "https://api.openai.com/v1/files",
		model.KeyResponseSize: 3,
	}, s.Attributes)
}

func TestAudio(t *testing.T) {
	s := span(model.Attributes{
		model.KeyProvider:       "elevenlabs",
		model.KeyContentType:    "audio/mpeg",
		model.KeyResponseBinary: bytes.Repeat([]byte{0xFF}, 1024),
	})
	newStage().Decode(s)

	assert.Equal(t, 1024, s.Attributes[KeyAudioSize])
	assert.Equal(t, "audio/mpeg", s.Attributes[KeyAudioFormat])
}

func TestEventStream(t *testing.T) {
	s := span(model.Attributes{
		model.KeyProvider:       "openai",
		model.KeyContentType:    "text/event-stream",
		model.KeyResponseBinary: []byte("event: response.completed\ndata: {\"response\": {\"id\": \"r1\", \"usage\": {\"total_tokens\": 3}}}\n\n"),
	})
	newStage().Decode(s)

	assert.Equal(t, "r1", s.Attributes["id"])
	assert.Contains(t, s.Attributes, "usage")
}

func TestMalformedJSON(t *testing.T) {
	s := span(model.Attributes{
		model.KeyProvider:       "anthropic",
		model.KeyContentType:    "application/json",
		model.KeyResponseBinary: []byte(`{"truncated":`),
	})
	newStage().Decode(s)

	assert.Equal(t, `{"truncated":`, s.Attributes[KeyRawContent])
	assert.NotEmpty(t, s.Attributes[KeyParseError])
	assert.Equal(t, "application/json", s.Attributes[KeyResponseContentType])
}

func TestContentTypeMismatch(t *testing.T) {
	s := span(model.Attributes{
		model.KeyProvider:       "openai",
		model.KeyContentType:    "application/json",
		model.KeyResponseBinary: []byte("data: {\"id\":1}\n\n"),
	})
	newStage().Decode(s)

	assert.Equal(t, true, s.Attributes[KeyContentTypeMismatch])
	assert.Contains(t, s.Attributes, KeyRawContent)
}

func TestRequestSide(t *testing.T) {
	s := span(model.Attributes{
		model.KeyProvider: "openai",
		model.KeyRequestBinary: []byte(`{"model":"gpt-image-1","input":[` +
			`{"id":"ig_123","type":"image_generation_call","result":"iVBORw0KGgo="},` +
			`{"id":"msg_1","result":"kept"},"plain"]}`),
	})
	newStage().Decode(s)

	assert.Equal(t, "gpt-image-1", s.Attributes["model"])
	input := s.Attributes["input"].([]any)
	assert.NotContains(t, input[0].(map[string]any), "result")
	assert.Equal(t, "kept", input[1].(map[string]any)["result"])
	assert.NotContains(t, s.Attributes, model.KeyRequestBinary)
}

func TestRequestMalformed(t *testing.T) {
	s := span(model.Attributes{
		model.KeyProvider:      "openai",
		model.KeyRequestBinary: []byte("not json"),
	})
	newStage().Decode(s)

	assert.NotEmpty(t, s.Attributes[KeyRequestParseError])
	assert.False(t, s.HasBinary())
}

func TestUnknownProviderFallsBack(t *testing.T) {
	s := span(model.Attributes{
		model.KeyProvider:       "acme",
		model.KeyContentType:    "application/json",
		model.KeyResponseBinary: []byte(`{"answer":42}`),
	})
	newStage().Decode(s)

	assert.Equal(t, float64(42), s.Attributes["answer"])
	assert.Contains(t, s.Attributes[KeyProviderError], "provider not found")
}

func TestResponseHeadersMoved(t *testing.T) {
	attrs := model.Attributes{
		model.KeyProvider:       "scrapingbee",
		model.KeyContentType:    "text/html",
		model.KeyResponseBinary: []byte("<html></html>"),
	}
	attrs[model.ResponseHeaderPrefix+"Spb-Cost"] = "5"
	attrs[model.ResponseHeaderPrefix+"Content-Type"] = "text/html"
	s := span(attrs)
	newStage().Decode(s)

	assert.Equal(t, "5", s.Attributes["cost"])
	for k := range s.Attributes {
		assert.NotContains(t, k, model.ResponseHeaderPrefix)
	}
}

type eventList struct {
	mu     sync.Mutex
	events []*model.CaptureEvent
}

func (l *eventList) Emit(_ context.Context, ev *model.CaptureEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func TestCapturedScrapingBeeCost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("spb-cost", "5")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	sink := &eventList{}
	client := &http.Client{Transport: capture.NewTransport(nil, sink, logging.Nop(), capture.WithProvider("scrapingbee"))}
	resp, err := client.Get(srv.URL + "/api/v1/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := io.ReadAll(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	_ = resp.Body.Close()

	sink.mu.Lock()
	events := sink.events
	sink.mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	s := span(events[0].Attributes())
	newStage().Decode(s)
	if got := s.Attributes["cost"]; got != "5" {
		t.Errorf("cost = %v, want 5", got)
	}
	for k := range s.Attributes {
		if strings.HasPrefix(k, model.ResponseHeaderPrefix) {
			t.Errorf("header attribute %q left on span", k)
		}
	}
}

func TestNoBuffersIsNoop(t *testing.T) {
	in := model.Attributes{model.KeyProvider: "openai", "x": 1}
	s := span(in.Clone())
	newStage().Decode(s)
	assert.Equal(t, in, s.Attributes)
}
