package mmp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is one incident record. Field order is kept as it appeared in the
// source object because the first row of a harvest decides the column order
// of the published CSV.
type Row struct {
	keys   []string
	values map[string]string
}

// NewRow builds a row from alternating field names and values.
func NewRow(pairs ...string) Row {
	if len(pairs)%2 != 0 {
		panic("NewRow expects field/value pairs")
	}
	var r Row
	for i := 0; i < len(pairs); i += 2 {
		r.Set(pairs[i], pairs[i+1])
	}
	return r
}

// Set assigns a field, a new field is appended to the key order.
func (r *Row) Set(field, value string) {
	if r.values == nil {
		r.values = map[string]string{}
	}
	if _, exists := r.values[field]; !exists {
		r.keys = append(r.keys, field)
	}
	r.values[field] = value
}

func (r Row) Get(field string) (string, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Keys returns the field names in source order.
func (r Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r Row) Len() int {
	return len(r.keys)
}

// Collection is the ordered concatenation of every non-empty year batch.
type Collection []Row

func (r *Row) UnmarshalJSON(data []byte) error {
	*r = Row{}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("row: expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		field, ok := tok.(string)
		if !ok {
			return fmt.Errorf("row: expected field name, got %v", tok)
		}
		var raw json.RawMessage
		err = dec.Decode(&raw)
		if err != nil {
			return fmt.Errorf("row: field %q: %w", field, err)
		}
		value, err := fieldText(raw)
		if err != nil {
			return fmt.Errorf("row: field %q: %w", field, err)
		}
		r.Set(field, value)
	}

	_, err = dec.Token()
	return err
}

// fieldText flattens a json value into the text written to the CSV. Strings
// are unquoted, null is empty, numbers and booleans keep their literal, and
// nested values are kept as compact json.
func fieldText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case 'n':
		return "", nil
	case '{', '[':
		var buf bytes.Buffer
		err := json.Compact(&buf, raw)
		return buf.String(), err
	}
	return string(raw), nil
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodeRows parses one year's payload. An empty body or a json null is an
// absent payload and returns no rows. Null or empty elements carry no fields
// and are dropped.
func DecodeRows(data []byte) ([]Row, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] != '[' {
		return nil, fmt.Errorf("expected a json array of rows")
	}
	var decoded []Row
	err := json.Unmarshal(data, &decoded)
	if err != nil {
		return nil, err
	}
	rows := decoded[:0]
	for _, r := range decoded {
		if r.Len() > 0 {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows, nil
}
