package provider

import (
	"sort"

	"github.com/ppiankov/tapwire/internal/model"
)

// OpenAI shapes chat completion and responses API traffic.
type OpenAI struct{ Base }

// ParseResponseAttributes drops generated text. Output items keep their
// type, id and status but lose content and generated payloads.
func (OpenAI) ParseResponseAttributes(attrs model.Attributes) model.Attributes {
	attrs = drop(attrs, "choices")
	items, ok := attrs["output"].([]any)
	if !ok {
		return attrs
	}
	out := make([]any, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		c := make(map[string]any, len(m))
		for k, v := range m {
			switch k {
			case "content", "result", "summary", "arguments":
			default:
				c[k] = v
			}
		}
		out = append(out, c)
	}
	attrs["output"] = out
	return attrs
}

// HandleEventStream prefers the terminal response.completed record, then
// the finished output items, then the usage carried by chat completion
// chunks.
func (OpenAI) HandleEventStream(text string) model.Attributes {
	records := ParseSSE(text)

	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.Event == "response.completed" && r.Data != nil {
			resp := mapField(r.Data, "response")
			if resp == nil {
				return model.Attributes{}
			}
			return model.Attributes(resp)
		}
	}

	output := []any{}
	for _, r := range records {
		if r.Event != "response.output_item.done" || r.Data == nil {
			continue
		}
		if item, ok := r.Data["item"]; ok && item != nil {
			output = append(output, item)
		}
	}
	if len(output) > 0 {
		return model.Attributes{"output": output}
	}

	if chunk := chatChunks(records); len(chunk) > 0 {
		return chunk
	}
	return model.Attributes{"output": output}
}

// chatChunks folds chat.completion.chunk records into one summary.
func chatChunks(records []SSERecord) model.Attributes {
	out := model.Attributes{}
	for _, r := range records {
		if r.Event != "" || r.Data == nil {
			continue
		}
		if obj, _ := r.Data["object"].(string); obj != "chat.completion.chunk" {
			continue
		}
		for _, k := range []string{"id", "model", "created", "system_fingerprint"} {
			if v, ok := r.Data[k]; ok && v != nil {
				out[k] = v
			}
		}
		if u := mapField(r.Data, "usage"); u != nil {
			out["usage"] = u
		}
	}
	if len(out) > 0 {
		out["object"] = "chat.completion"
	}
	return out
}

// Anthropic shapes messages API traffic.
type Anthropic struct{ Base }

// ParseResponseAttributes drops the generated content blocks.
func (Anthropic) ParseResponseAttributes(attrs model.Attributes) model.Attributes {
	return drop(attrs, "content")
}

// HandleEventStream rebuilds the final message from message_start,
// content_block_* and message_delta records.
func (Anthropic) HandleEventStream(text string) model.Attributes {
	resp := model.Attributes{
		"id":            nil,
		"type":          "message",
		"role":          "assistant",
		"model":         nil,
		"content":       []any{},
		"stop_reason":   nil,
		"stop_sequence": nil,
		"usage":         map[string]any{},
	}
	type block struct {
		typ  string
		text string
	}
	blocks := map[int]*block{}

	for _, r := range ParseSSE(text) {
		data := r.Data
		if data == nil {
			data = map[string]any{}
		}
		switch r.Event {
		case "message_start":
			msg := mapField(data, "message")
			resp["id"] = msg["id"]
			resp["model"] = msg["model"]
			if role, ok := msg["role"].(string); ok && role != "" {
				resp["role"] = role
			}
			if u := mapField(msg, "usage"); u != nil {
				resp["usage"] = cloneMap(u)
			}
		case "content_block_start":
			idx := intField(data, "index")
			cb := mapField(data, "content_block")
			typ, _ := cb["type"].(string)
			if typ == "" {
				typ = "text"
			}
			txt, _ := cb["text"].(string)
			blocks[idx] = &block{typ: typ, text: txt}
		case "content_block_delta":
			idx := intField(data, "index")
			delta := mapField(data, "delta")
			if t, _ := delta["type"].(string); t != "text_delta" {
				continue
			}
			b, ok := blocks[idx]
			if !ok {
				b = &block{typ: "text"}
				blocks[idx] = b
			}
			txt, _ := delta["text"].(string)
			b.text += txt
		case "message_delta":
			delta := mapField(data, "delta")
			if v, ok := delta["stop_reason"]; ok {
				resp["stop_reason"] = v
			}
			if v, ok := delta["stop_sequence"]; ok {
				resp["stop_sequence"] = v
			}
			if u := mapField(data, "usage"); len(u) > 0 {
				usage := resp["usage"].(map[string]any)
				for k, v := range u {
					usage[k] = v
				}
			}
		}
	}

	idxs := make([]int, 0, len(blocks))
	for i := range blocks {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	content := make([]any, 0, len(idxs))
	for _, i := range idxs {
		content = append(content, map[string]any{"type": blocks[i].typ, "text": blocks[i].text})
	}
	resp["content"] = content
	return resp
}

// Mistral shapes chat completion and OCR traffic. Only usage and model
// survive.
type Mistral struct{ Base }

func (Mistral) ParseRequestAttributes(attrs model.Attributes) model.Attributes {
	return drop(attrs, "document", "messages", "response_format")
}

func (Mistral) ParseResponseAttributes(attrs model.Attributes) model.Attributes {
	return drop(attrs, "pages", "choices")
}

// VertexAI shapes Gemini and partner-model traffic on Vertex AI, over REST
// or gRPC.
type VertexAI struct{ Base }

func (VertexAI) ParseRequestAttributes(attrs model.Attributes) model.Attributes {
	return drop(attrs, "document", "messages", "response_format", "contents", "instances")
}

func (VertexAI) ParseResponseAttributes(attrs model.Attributes) model.Attributes {
	return drop(attrs, "candidates", "candidatesTokensDetails", "predictions")
}

// VoyageAI shapes embedding and rerank traffic.
type VoyageAI struct{ Base }

func (VoyageAI) ParseResponseAttributes(attrs model.Attributes) model.Attributes {
	return drop(attrs, "data", "object")
}

// Perplexity keeps usage and model only.
type Perplexity struct{ Base }

func (Perplexity) ParseResponseAttributes(attrs model.Attributes) model.Attributes {
	return model.Attributes{
		"usage": orEmpty(attrs["usage"]),
		"model": attrs["model"],
	}
}

// HandleEventStream reads data records until [DONE], keeping the last
// usage and model seen.
func (Perplexity) HandleEventStream(text string) model.Attributes {
	var usage, mdl any
	for _, r := range ParseSSE(text) {
		if len(r.Raw) > 0 && r.Raw[0] == "[DONE]" {
			break
		}
		if u, ok := r.Data["usage"]; ok && u != nil {
			usage = u
		}
		if m, ok := r.Data["model"]; ok && m != nil {
			mdl = m
		}
	}
	return model.Attributes{"usage": usage, "model": mdl}
}

// Bedrock shapes Bedrock runtime Converse and InvokeModel traffic.
type Bedrock struct{ Base }

func (Bedrock) ParseRequestAttributes(attrs model.Attributes) model.Attributes {
	return drop(attrs, "messages", "system", "prompt", "inputText")
}

func (Bedrock) ParseResponseAttributes(attrs model.Attributes) model.Attributes {
	return drop(attrs, "output", "content", "results", "completion", "generation")
}

func orEmpty(v any) any {
	if v == nil {
		return map[string]any{}
	}
	return v
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
