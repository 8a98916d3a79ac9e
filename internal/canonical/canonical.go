// Package canonical produces deterministic JSON for envelopes that leave the
// service (Kafka messages, S3 archive objects). Object keys are sorted,
// array order is kept, numbers keep their textual form and HTML characters
// are not escaped.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal encodes v canonically. Structs are first normalized through their
// JSON tags, so the output matches what encoding/json would emit modulo key
// order.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := plainJSON(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: %w", err)
	}
	var tree interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}
	var buf bytes.Buffer
	if err := write(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func plainJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func write(buf *bytes.Buffer, node interface{}) error {
	switch n := node.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := write(buf, n[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range n {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := write(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return writeScalar(buf, n)
	}
	return nil
}

func writeScalar(buf *bytes.Buffer, v interface{}) error {
	if num, ok := v.(json.Number); ok {
		buf.WriteString(num.String())
		return nil
	}
	b, err := plainJSON(v)
	if err != nil {
		return fmt.Errorf("canonical: scalar: %w", err)
	}
	buf.Write(b)
	return nil
}
