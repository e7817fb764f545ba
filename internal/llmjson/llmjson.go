// Package llmjson centralizes the markdown-fence-tolerant JSON parsing
// idiom repeated across the teacher's LLM response parsers
// (internal/extract/classify.go, resolve.go, enrich.go,
// internal/observe/resolve_llm.go): strip ```json fences, decode what
// remains as one JSON value, and unwrap a small set of well-known wrapper
// keys when the LLM returns an object wrapping the expected array. Prose
// around the JSON value, other than a fence, is not skipped: it makes the
// decode fail.
package llmjson

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WrapperKeys is the recognized key set the unwrapper searches when an LLM
// response is a JSON object wrapping the expected array instead of a bare
// array — spec.md §9 "Open questions": {conflicts, results, data,
// conflict_list}.
var WrapperKeys = []string{"conflicts", "results", "data", "conflict_list"}

// StripFences removes a leading/trailing ``` or ```json code fence and
// trims surrounding whitespace, leaving the raw JSON payload.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// DecodeObject strips fences and unmarshals a single JSON object into v.
func DecodeObject(raw string, v interface{}) error {
	clean := StripFences(raw)
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		return fmt.Errorf("llmjson: decode object: %w", err)
	}
	return nil
}

// DecodeArray strips fences and unmarshals a JSON array into v, where v
// is a pointer to a slice. If the payload is an object instead of a bare
// array, DecodeArray searches WrapperKeys in order and unwraps the first
// one present, per spec.md §9.
func DecodeArray(raw string, v interface{}) error {
	clean := StripFences(raw)

	var probe json.RawMessage
	if err := json.Unmarshal([]byte(clean), &probe); err != nil {
		return fmt.Errorf("llmjson: decode array: %w", err)
	}

	trimmed := strings.TrimSpace(string(probe))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(probe, v); err != nil {
			return fmt.Errorf("llmjson: decode array: %w", err)
		}
		return nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(probe, &wrapper); err != nil {
			return fmt.Errorf("llmjson: decode wrapper object: %w", err)
		}
		for _, key := range WrapperKeys {
			if inner, ok := wrapper[key]; ok {
				if err := json.Unmarshal(inner, v); err != nil {
					return fmt.Errorf("llmjson: decode wrapped %q: %w", key, err)
				}
				return nil
			}
		}
		return fmt.Errorf("llmjson: object response has no recognized array key among %v", WrapperKeys)
	}

	return fmt.Errorf("llmjson: response is neither array nor object")
}
