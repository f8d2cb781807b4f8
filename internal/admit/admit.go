// Package admit decides which recorded spans enter the pipeline. It runs
// before any decode work so decompression, JSON/SSE parsing and scrubbing
// are only spent on spans that will be exported.
package admit

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/ppiankov/tapwire/internal/model"
)

// Filter is the accept/reject gate applied at span start and span end.
type Filter struct {
	prefix string
	log    zerolog.Logger
}

// New creates a filter for the reserved namespace.
func New(log zerolog.Logger) *Filter {
	return &Filter{prefix: model.Namespace, log: log}
}

// Accept reports whether a record named name with attrs is relevant:
// the name carries the namespace prefix and the record names a provider
// or is marked as a billing span.
func (f *Filter) Accept(name string, attrs model.Attributes) bool {
	if !strings.HasPrefix(name, f.prefix) {
		f.log.Trace().Str("span", name).Msg("rejected: outside namespace")
		return false
	}
	if attrs.String(model.KeyProvider) == "" && !attrs.Truthy(model.KeyBillingSpan) {
		f.log.Trace().Str("span", name).Msg("rejected: no provider or billing marker")
		return false
	}
	return true
}

// AcceptSpan is Accept applied to a span.
func (f *Filter) AcceptSpan(s *model.Span) bool {
	return f.Accept(s.Name, s.Attributes)
}
