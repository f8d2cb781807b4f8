// Package provider holds the per-API strategies that decide which captured
// attributes are kept, derived or dropped before a span is exported.
package provider

import (
	"strings"

	"github.com/ppiankov/tapwire/internal/model"
)

// Provider shapes the attributes captured for one third-party API.
// Implementations are stateless and safe for concurrent use.
type Provider interface {
	// ParseRequestAttributes shapes the decoded request body.
	ParseRequestAttributes(attrs model.Attributes) model.Attributes
	// ParseResponseAttributes shapes the decoded response body.
	ParseResponseAttributes(attrs model.Attributes) model.Attributes
	// ParseResponseHeaders derives attributes from captured response
	// headers. Keys carry the full response header prefix.
	ParseResponseHeaders(headers model.Attributes) model.Attributes
	// HandleEventStream reassembles a server-sent event body.
	HandleEventStream(text string) model.Attributes
}

// Base supplies the default behaviour. Concrete providers embed it and
// override what they need.
type Base struct{}

// ParseRequestAttributes returns attrs unchanged.
func (Base) ParseRequestAttributes(attrs model.Attributes) model.Attributes { return attrs }

// ParseResponseAttributes returns attrs unchanged.
func (Base) ParseResponseAttributes(attrs model.Attributes) model.Attributes { return attrs }

// ParseResponseHeaders keeps no headers.
func (Base) ParseResponseHeaders(model.Attributes) model.Attributes { return model.Attributes{} }

// HandleEventStream returns the data of the last record that carried a
// JSON object, or an empty map.
func (Base) HandleEventStream(text string) model.Attributes {
	records := ParseSSE(text)
	for i := len(records) - 1; i >= 0; i-- {
		if len(records[i].Data) > 0 {
			return model.Attributes(records[i].Data)
		}
	}
	return model.Attributes{}
}

// drop deletes keys from attrs in place and returns it.
func drop(attrs model.Attributes, keys ...string) model.Attributes {
	if attrs == nil {
		return model.Attributes{}
	}
	for _, k := range keys {
		delete(attrs, k)
	}
	return attrs
}

// keep returns a new map holding only keys present in attrs.
func keep(attrs model.Attributes, keys ...string) model.Attributes {
	out := make(model.Attributes, len(keys))
	for _, k := range keys {
		if v, ok := attrs[k]; ok {
			out[k] = v
		}
	}
	return out
}

// header returns the captured response header name, matched without regard
// to case. Transports store canonical names, other producers may not.
func header(headers model.Attributes, name string) (any, bool) {
	for k, v := range headers {
		if rest, ok := strings.CutPrefix(k, model.ResponseHeaderPrefix); ok && strings.EqualFold(rest, name) {
			return v, true
		}
	}
	return nil, false
}
