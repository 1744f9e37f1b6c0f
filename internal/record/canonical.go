package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// EncodeCanonical produces deterministic JSON for a schema-less document.
//
// Differences from standard json.Marshal:
//  1. Object keys sorted by UTF-16 code units (RFC 8785 ordering)
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized at the serialization boundary
//  4. time.Time values encode as RFC3339Nano UTC strings
//
// Unlike strict RFC 8785, null and floats are legal: payloads are arbitrary
// documents supplied by external collaborators.
func EncodeCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return encodeCanonicalString(val)
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case int:
		return []byte(fmt.Sprintf("%d", val)), nil
	case int64:
		return []byte(fmt.Sprintf("%d", val)), nil
	case float32:
		return json.Marshal(val)
	case float64:
		return json.Marshal(val)
	case json.Number:
		return []byte(val.String()), nil
	case time.Time:
		return encodeCanonicalString(val.UTC().Format(time.RFC3339Nano))
	case []any:
		return encodeCanonicalArray(val)
	case map[string]any:
		return encodeCanonicalObject(val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// encodeCanonicalString emits a JSON string with NFC normalization and
// HTML escaping disabled.
func encodeCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder appends a trailing newline, remove it.
	out := buf.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	return out, nil
}

func encodeCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := EncodeCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func encodeCanonicalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := encodeCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')

		vb, err := EncodeCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// compareKeysUTF16 orders keys by UTF-16 code units per RFC 8785.
// Go's sort.Strings uses UTF-8 bytes, which produces a different order
// for strings containing surrogate-pair code points.
func compareKeysUTF16(a, b string) int {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ua) < len(ub):
		return -1
	case len(ua) > len(ub):
		return 1
	default:
		return 0
	}
}
