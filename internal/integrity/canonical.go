package integrity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize rewrites a JSON document into a canonical byte form:
// object keys sorted, no insignificant whitespace, no HTML escaping,
// strings NFC-normalized, numbers kept as their literal text.
// It returns an error if data is not exactly one JSON value.
func Canonicalize(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	// Хвост после первого значения означает, что это не один JSON документ
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after json value")
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		return writeCanonicalString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported json type %T", v)
	}

	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return fmt.Errorf("failed to encode string: %w", err)
	}
	// Encoder всегда дописывает '\n'
	buf.Write(bytes.TrimSuffix(out.Bytes(), []byte{'\n'}))
	return nil
}
