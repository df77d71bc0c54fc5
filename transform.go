package renteasy

import (
	"encoding/json"
	"strings"
	"unicode"
)

// The RentEasy API speaks snake_case while application code uses camelCase.
// Outgoing bodies pass through ToWire, incoming through FromWire. Both walk
// the decoded JSON value and rewrite object keys recursively; values are
// untouched. The conversions are idempotent, so already-converted payloads
// survive a second pass unchanged.

// ToWire rewrites all object keys in a JSON document to snake_case.
func ToWire(raw json.RawMessage) (json.RawMessage, error) {
	return transformKeys(raw, snakeCase)
}

// FromWire rewrites all object keys in a JSON document to camelCase.
func FromWire(raw json.RawMessage) (json.RawMessage, error) {
	return transformKeys(raw, camelCase)
}

func transformKeys(raw json.RawMessage, fn func(string) string) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}

	out, err := json.Marshal(walkKeys(value, fn))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func walkKeys(value any, fn func(string) string) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[fn(key)] = walkKeys(val, fn)
		}
		return out
	case []any:
		for i, val := range v {
			v[i] = walkKeys(val, fn)
		}
		return v
	default:
		return value
	}
}

// snakeCase converts camelCase to snake_case. Runs of upper-case letters
// collapse into a single word so "propertyID" becomes "property_id".
func snakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)

	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && runes[i-1] != '_' && (prevLower || nextLower) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// camelCase converts snake_case to camelCase. Strings without underscores
// pass through untouched.
func camelCase(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	upperNext := false
	for i, r := range s {
		if r == '_' {
			// Leading and trailing underscores are preserved as-is.
			if i == 0 || i == len(s)-1 {
				b.WriteRune(r)
				continue
			}
			upperNext = true
			continue
		}
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
