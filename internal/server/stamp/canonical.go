package stamp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonicalize serializes a flat object as JSON with its keys in sorted
// order. The output depends only on the keys and values of fields.
func Canonicalize(fields map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')

		switch fields[k].(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("canonicalize: field %q is not a scalar", k)
		}
		vb, err := json.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("canonicalize: field %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
