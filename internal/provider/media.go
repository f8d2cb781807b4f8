package provider

import (
	"github.com/ppiankov/tapwire/internal/model"
)

// Deepgram keeps billing-relevant metadata from speech-to-text responses.
type Deepgram struct{ Base }

func (Deepgram) ParseResponseAttributes(attrs model.Attributes) model.Attributes {
	if meta := mapField(attrs, "metadata"); meta != nil {
		for _, k := range []string{"duration", "summary_info", "sentiment_info", "topics_info", "intents_info"} {
			if v, ok := meta[k]; ok && truthy(v) {
				attrs[k] = v
			}
		}
	}
	return drop(attrs, "metadata", "results")
}

// ElevenLabs records the end of the last transcribed word and drops the
// transcript.
type ElevenLabs struct{ Base }

// KeyLastWordEnd holds the end timestamp of the latest word.
const KeyLastWordEnd = "elevenlabs.last_word_end"

func (ElevenLabs) ParseResponseAttributes(attrs model.Attributes) model.Attributes {
	if words, ok := attrs["words"].([]any); ok {
		var (
			last  float64
			found bool
		)
		for _, w := range words {
			m, ok := w.(map[string]any)
			if !ok {
				continue
			}
			end, ok := m["end"].(float64)
			if !ok {
				continue
			}
			if !found || end > last {
				last, found = end, true
			}
		}
		if found {
			attrs[KeyLastWordEnd] = last
		}
	}
	return drop(attrs, "words", "text")
}

// Firecrawl drops scraped page data.
type Firecrawl struct{ Base }

func (Firecrawl) ParseResponseAttributes(attrs model.Attributes) model.Attributes {
	return drop(attrs, "data")
}

// ScrapingBee bills from a response header; the scraped body is discarded.
type ScrapingBee struct{ Base }

// costHeader carries ScrapingBee credit cost.
const costHeader = "Spb-Cost"

func (ScrapingBee) ParseResponseHeaders(headers model.Attributes) model.Attributes {
	if v, ok := header(headers, costHeader); ok && v != nil {
		return model.Attributes{"cost": v}
	}
	return model.Attributes{}
}

func (ScrapingBee) ParseResponseAttributes(model.Attributes) model.Attributes {
	return model.Attributes{}
}

// SerpAPI keeps the response as is.
type SerpAPI struct{ Base }

// DocumentAI shapes gcp-documentai gRPC traffic.
type DocumentAI struct{ Base }

func (DocumentAI) ParseRequestAttributes(attrs model.Attributes) model.Attributes {
	return drop(attrs, "rawDocument", "inlineDocument", "gcsDocument")
}

// ParseResponseAttributes replaces the processed document with its page
// count.
func (DocumentAI) ParseResponseAttributes(attrs model.Attributes) model.Attributes {
	if doc := mapField(attrs, "document"); doc != nil {
		if pages, ok := doc["pages"].([]any); ok {
			attrs["page_count"] = len(pages)
		}
	}
	return drop(attrs, "document")
}

// Vision shapes gcp-vision gRPC traffic.
type Vision struct{ Base }

func (Vision) ParseRequestAttributes(attrs model.Attributes) model.Attributes {
	reqs, ok := attrs["requests"].([]any)
	if !ok {
		return attrs
	}
	out := make([]any, 0, len(reqs))
	for _, r := range reqs {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		c := cloneMap(m)
		delete(c, "image")
		out = append(out, c)
	}
	attrs["requests"] = out
	return attrs
}

// ParseResponseAttributes replaces the annotations with their count.
func (Vision) ParseResponseAttributes(attrs model.Attributes) model.Attributes {
	if resps, ok := attrs["responses"].([]any); ok {
		attrs["response_count"] = len(resps)
	}
	return drop(attrs, "responses")
}

// Textract shapes aws-textract traffic.
type Textract struct{ Base }

func (Textract) ParseRequestAttributes(attrs model.Attributes) model.Attributes {
	return drop(attrs, "Document")
}

func (Textract) ParseResponseAttributes(attrs model.Attributes) model.Attributes {
	return drop(attrs, "Blocks", "ExpenseDocuments", "IdentityDocuments")
}

// truthy mirrors JSON truthiness for metadata fields.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}
