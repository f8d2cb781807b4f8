package provider

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrProviderNotFound is returned for an unrecognised provider key.
var ErrProviderNotFound = errors.New("provider not found")

// Constructor builds a provider. It must not perform I/O.
type Constructor func() Provider

// builtin maps every provider key to its constructor.
var builtin = map[string]Constructor{
	"openai":      func() Provider { return OpenAI{} },
	"anthropic":   func() Provider { return Anthropic{} },
	"mistral":     func() Provider { return Mistral{} },
	"vertexai":    func() Provider { return VertexAI{} },
	"voyageai":    func() Provider { return VoyageAI{} },
	"perplexity":  func() Provider { return Perplexity{} },
	"bedrock":     func() Provider { return Bedrock{} },
	"deepgram":    func() Provider { return Deepgram{} },
	"elevenlabs":  func() Provider { return ElevenLabs{} },
	"firecrawl":   func() Provider { return Firecrawl{} },
	"scrapingbee": func() Provider { return ScrapingBee{} },
	"serpapi":     func() Provider { return SerpAPI{} },

	"gcp-documentai": func() Provider { return DocumentAI{} },
	"gcp-vision":     func() Provider { return Vision{} },
	"gcp-vertexai":   func() Provider { return VertexAI{} },
	"aws-textract":   func() Provider { return Textract{} },
}

// Registry maps provider keys to cached strategy instances. Instances are
// built lazily on first lookup and kept for the registry's lifetime.
type Registry struct {
	ctors map[string]Constructor
	cache sync.Map // string -> Provider
}

// Option customises a Registry at construction.
type Option func(*Registry)

// WithProvider registers ctor under key, replacing any built-in entry.
func WithProvider(key string, ctor Constructor) Option {
	return func(r *Registry) {
		r.ctors[key] = ctor
	}
}

// NewRegistry returns a registry over the built-in providers.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{ctors: make(map[string]Constructor, len(builtin))}
	for k, c := range builtin {
		r.ctors[k] = c
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the provider for key. Concurrent first lookups may construct
// more than one instance; the last store wins and any instance is valid.
func (r *Registry) Get(key string) (Provider, error) {
	if p, ok := r.cache.Load(key); ok {
		return p.(Provider), nil
	}
	ctor, ok := r.ctors[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, key)
	}
	p := ctor()
	r.cache.Store(key, p)
	return p, nil
}

// Keys returns the registered provider keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.ctors))
	for k := range r.ctors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
