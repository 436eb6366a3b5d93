package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shone114/alternate-history/internal/model"
)

// ErrNoJSONObject means the reply contained no '{' ... '}' span.
var ErrNoJSONObject = errors.New("no JSON object in model response")

// stripFences removes a leading ```json or ``` marker and a trailing ```.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// ExtractJSON recovers the outermost JSON object from a model reply. Code
// fences are dropped, then the span from the first '{' to the last '}' is
// decoded.
func ExtractJSON(raw string) (model.Payload, error) {
	text := stripFences(raw)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, ErrNoJSONObject
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("decoding model response: %w", err)
	}
	if obj == nil {
		return nil, ErrNoJSONObject
	}
	return model.Payload(obj), nil
}
