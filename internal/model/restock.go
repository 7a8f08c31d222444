package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned when a restock request is not a JSON object.
var ErrNotObject = errors.New("restock request must be a JSON object")

// StatusKey is the only field the patch operation writes.
const StatusKey = "status"

type field struct {
	key   string
	value json.RawMessage
}

// RestockRequest is an arbitrary caller-supplied JSON object.
//
// Keys keep their submission order and values are stored as compacted raw
// JSON, so re-encoding a record never reorders or rewrites fields.
//
// Elements of a stored array that are not objects are kept verbatim in raw so
// they survive a load and store; they have no fields and cannot be patched.
type RestockRequest struct {
	fields []field
	raw    json.RawMessage
}

// ParseRestockRequest decodes b, which must be a JSON object.
func ParseRestockRequest(b []byte) (RestockRequest, error) {
	var r RestockRequest
	if err := r.UnmarshalJSON(b); err != nil {
		return RestockRequest{}, err
	}
	if !r.IsObject() {
		return RestockRequest{}, ErrNotObject
	}
	return r, nil
}

// IsObject reports whether r holds a JSON object.
func (r RestockRequest) IsObject() bool { return r.raw == nil }

// UnmarshalJSON implements json.Unmarshaler. Any JSON value is accepted;
// see IsObject.
func (r *RestockRequest) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return fmt.Errorf("%w: %v", ErrNotObject, err)
		}
		r.fields, r.raw = nil, buf.Bytes()
		return nil
	}
	r.raw = nil
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return ErrNotObject
	}
	r.fields = r.fields[:0]
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := kt.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", kt)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := r.Set(key, raw); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after restock request")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r RestockRequest) MarshalJSON() ([]byte, error) {
	if r.raw != nil {
		return append([]byte(nil), r.raw...), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(f.value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the raw value stored under key.
func (r RestockRequest) Get(key string) (json.RawMessage, bool) {
	for _, f := range r.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return nil, false
}

// Set replaces the value under key in place, or appends the key if new.
func (r *RestockRequest) Set(key string, value json.RawMessage) error {
	if r.raw != nil {
		return ErrNotObject
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return fmt.Errorf("value for %q: %w", key, err)
	}
	v := json.RawMessage(buf.Bytes())
	for i := range r.fields {
		if r.fields[i].key == key {
			r.fields[i].value = v
			return nil
		}
	}
	r.fields = append(r.fields, field{key: key, value: v})
	return nil
}

// StringField returns the value under key when it is a JSON string.
func (r RestockRequest) StringField(key string) (string, bool) {
	raw, ok := r.Get(key)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Keys returns the field names in order.
func (r RestockRequest) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.key
	}
	return keys
}

// Clone returns a deep copy.
func (r RestockRequest) Clone() RestockRequest {
	if r.raw != nil {
		return RestockRequest{raw: append(json.RawMessage(nil), r.raw...)}
	}
	out := RestockRequest{fields: make([]field, len(r.fields))}
	for i, f := range r.fields {
		out.fields[i] = field{key: f.key, value: append(json.RawMessage(nil), f.value...)}
	}
	return out
}

// CloneAll deep-copies a slice of records.
func CloneAll(in []RestockRequest) []RestockRequest {
	out := make([]RestockRequest, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
