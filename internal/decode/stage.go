// Package decode turns the raw request and response buffers captured on a
// span into structured, provider-shaped attributes.
package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ppiankov/tapwire/internal/model"
	"github.com/ppiankov/tapwire/internal/provider"
)

// Annotation keys recorded when decoding degrades.
const (
	KeyRequestParseError       = "request.parse_error"
	KeyParseError              = "parse_error"
	KeyRawContent              = "raw_content"
	KeyResponseContentType     = "content_type"
	KeyContentTypeMismatch     = "content_type_mismatch"
	KeyContentEncodingMismatch = "content_encoding_mismatch"
	KeyProviderError           = "provider_error"
	KeyAudioSize               = "audio_size_bytes"
	KeyAudioFormat             = "audio_format"
)

// imageGenerationPrefix marks input items carrying generated images.
const imageGenerationPrefix = "ig_"

var audioTypes = []string{"audio/mpeg", "audio/mp3", "audio/wav", "audio/ogg", "audio/pcm", "audio/flac"}

var errNotObject = errors.New("body is not a JSON object")

// Stage decodes span buffers. It is stateless apart from the shared
// registry and safe for concurrent use.
type Stage struct {
	registry *provider.Registry
	log      zerolog.Logger
}

// NewStage returns a stage resolving providers from reg.
func NewStage(reg *provider.Registry, log zerolog.Logger) *Stage {
	return &Stage{registry: reg, log: log}
}

// Decode replaces the reserved buffers on s with structured attributes.
// It never fails: malformed input is annotated and the buffers are removed.
func (st *Stage) Decode(s *model.Span) {
	if s.Attributes == nil {
		s.Attributes = model.Attributes{}
	}
	defer func() {
		if r := recover(); r != nil {
			st.log.Error().Interface("panic", r).Str("span", s.Name).Msg("decode panicked")
			s.Attributes[KeyParseError] = fmt.Sprint(r)
			delete(s.Attributes, model.KeyRequestBinary)
			delete(s.Attributes, model.KeyResponseBinary)
		}
	}()

	s.Attributes = st.Request(s.Attributes)
	s.Attributes = st.Response(s.Attributes)
}

// Request decodes the request buffer into attrs.
func (st *Stage) Request(attrs model.Attributes) model.Attributes {
	raw := attrs.Bytes(model.KeyRequestBinary)
	delete(attrs, model.KeyRequestBinary)
	if len(raw) == 0 {
		return attrs
	}

	body, err := parseObject(raw)
	if err != nil {
		st.log.Debug().Err(err).Msg("request body is not JSON")
		attrs[KeyRequestParseError] = err.Error()
		return attrs
	}
	stripGeneratedResults(body)

	p := st.provider(attrs)
	attrs.Merge(p.ParseRequestAttributes(body))
	return attrs
}

// Response decodes the response buffer and the captured response headers
// into attrs. Parsed body and header attributes win on key collision.
func (st *Stage) Response(attrs model.Attributes) model.Attributes {
	raw := attrs.Bytes(model.KeyResponseBinary)
	delete(attrs, model.KeyResponseBinary)
	if len(raw) == 0 {
		return attrs
	}

	body, ok := Decompress(attrs.String(model.KeyContentEncoding), raw)
	if !ok {
		attrs[KeyContentEncodingMismatch] = true
	}
	attrs[model.KeyResponseSize] = len(body)

	p := st.provider(attrs)
	ct := attrs.String(model.KeyContentType)
	parsed := st.parseBody(p, ct, body, attrs)
	parsed = p.ParseResponseAttributes(parsed)

	headers := model.Attributes{}
	for k, v := range attrs {
		if strings.HasPrefix(k, model.ResponseHeaderPrefix) {
			headers[k] = v
			delete(attrs, k)
		}
	}
	derived := p.ParseResponseHeaders(headers)

	attrs.Merge(parsed)
	attrs.Merge(derived)
	return attrs
}

func (st *Stage) parseBody(p provider.Provider, contentType string, body []byte, attrs model.Attributes) model.Attributes {
	ct := strings.ToLower(contentType)
	switch {
	case isAudio(ct):
		return model.Attributes{KeyAudioSize: len(body), KeyAudioFormat: contentType}

	case strings.Contains(ct, "text/event-stream"):
		return p.HandleEventStream(SafeDecode(body))

	case strings.Contains(ct, "application/json"):
		if looksLikeEventStream(body) {
			attrs[KeyContentTypeMismatch] = true
		}
		text := SafeDecode(body)
		obj, err := parseObject([]byte(text))
		if err != nil {
			return model.Attributes{
				KeyRawContent:          text,
				KeyParseError:          err.Error(),
				KeyResponseContentType: contentType,
			}
		}
		return obj

	default:
		return model.Attributes{}
	}
}

// provider resolves the span's provider, falling back to the defaults
// when the key is unknown.
func (st *Stage) provider(attrs model.Attributes) provider.Provider {
	key := attrs.String(model.KeyProvider)
	if key == "" {
		return provider.Base{}
	}
	p, err := st.registry.Get(key)
	if err != nil {
		st.log.Warn().Err(err).Msg("decoding with default provider")
		attrs[KeyProviderError] = err.Error()
		return provider.Base{}
	}
	return p
}

func parseObject(b []byte) (model.Attributes, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return model.Attributes(m), nil
}

// stripGeneratedResults removes generated image payloads echoed back in
// request input items.
func stripGeneratedResults(body model.Attributes) {
	items, ok := body["input"].([]any)
	if !ok {
		return
	}
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := m["id"].(string); strings.HasPrefix(id, imageGenerationPrefix) {
			delete(m, "result")
		}
	}
}

func isAudio(ct string) bool {
	for _, a := range audioTypes {
		if strings.Contains(ct, a) {
			return true
		}
	}
	return false
}

func looksLikeEventStream(b []byte) bool {
	b = bytes.TrimLeft(b, " \t\r\n")
	return bytes.HasPrefix(b, []byte("event:")) || bytes.HasPrefix(b, []byte("data:"))
}
