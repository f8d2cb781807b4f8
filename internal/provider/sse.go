package provider

import (
	"encoding/json"
	"strings"
)

// SSERecord is one reassembled server-sent event.
type SSERecord struct {
	Event string
	// Data merges every data line that parsed as a JSON object.
	Data map[string]any
	// Raw holds data lines that were not JSON objects, in order.
	Raw []string
}

func (r *SSERecord) empty() bool {
	return r.Event == "" && len(r.Data) == 0 && len(r.Raw) == 0
}

// ParseSSE splits an event-stream body into records. A record ends on a
// blank line or when a new event line starts while the current record has
// content. Comment, id and retry lines are ignored.
func ParseSSE(text string) []SSERecord {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var records []SSERecord
	cur := SSERecord{}
	flush := func() {
		if !cur.empty() {
			records = append(records, cur)
		}
		cur = SSERecord{}
	}

	for _, line := range strings.Split(text, "\n") {
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			if !cur.empty() {
				flush()
			}
			cur.Event = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			cur.addData(strings.TrimSpace(line[len("data:"):]))
		default:
			// ":" comments, id:, retry: and anything unknown
		}
	}
	flush()
	return records
}

func (r *SSERecord) addData(s string) {
	if s == "" {
		return
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err == nil && obj != nil {
		if r.Data == nil {
			r.Data = make(map[string]any, len(obj))
		}
		for k, v := range obj {
			r.Data[k] = v
		}
		return
	}
	r.Raw = append(r.Raw, s)
}

// mapField returns m[key] if it is a JSON object.
func mapField(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}
