package jsonx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed marks model or upstream text that holds no decodable JSON object.
var ErrMalformed = errors.New("malformed JSON reply")

// DecodeObject parses the first JSON object in text. Markdown code fences and
// prose around the object are ignored.
func DecodeObject(text string) (map[string]any, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, fmt.Errorf("%w: empty text", ErrMalformed)
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		return obj, nil
	}
	start := strings.Index(s, "{")
	if start < 0 {
		return nil, fmt.Errorf("%w: no object found", ErrMalformed)
	}
	dec := json.NewDecoder(strings.NewReader(s[start:]))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return normalizeNumbers(obj).(map[string]any), nil
}

// Float reads a number from a decoded object, accepting numeric strings.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		var f float64
		if err := json.Unmarshal([]byte(strings.TrimSpace(n)), &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = normalizeNumbers(val)
		}
		return x
	case []any:
		for i, val := range x {
			x[i] = normalizeNumbers(val)
		}
		return x
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	default:
		return v
	}
}
