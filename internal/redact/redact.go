// Package redact strips sensitive fields from JSON-like values before they
// are persisted or logged.
package redact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Sentinel replaces the value of every sensitive field.
const Sentinel = "[REDACTED]"

var sensitiveTerms = []string{
	"password",
	"passwd",
	"token",
	"key",
	"secret",
	"authorization",
	"credential",
	"credit_card",
	"card_number",
	"cvv",
	"ssn",
}

// Value returns a copy of v with every sensitive field replaced by Sentinel,
// recursing into nested objects and arrays. Values decoded from JSON are the
// only object-like shapes handled (map[string]any and []any); primitives and
// nil pass through unchanged.
func Value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if IsSensitiveKey(k) {
				out[k] = Sentinel
				continue
			}
			out[k] = Value(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = Value(inner)
		}
		return out
	default:
		// string, number, bool, nil, or a non-JSON shape we do not inspect.
		return v
	}
}

// Raw redacts a pre-encoded JSON document. Invalid or empty input is
// returned unchanged rather than failing the caller.
func Raw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return raw
	}

	redacted, err := json.Marshal(Value(generic))
	if err != nil {
		return raw
	}
	return redacted
}

// Any redacts an arbitrary Go value by round-tripping it through JSON so
// struct fields are matched by their encoded names.
func Any(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()

	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}

	return Value(generic), nil
}

// IsSensitiveKey reports whether an object key names a sensitive field.
// Matching is case-insensitive and by substring, so "apiKey" and
// "stripe_secret_key" are both caught.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, term := range sensitiveTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
