package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fiscalbox/fiscalbox/internal/schema"
)

// Record is one opaque document belonging to exactly one collection.
// Values round-trip through JSON; numbers decode as json.Number so large
// integer keys survive without float64 precision loss.
type Record map[string]any

// Key returns the record's value for the given primary key field.
func (r Record) Key(pk string) (any, bool) {
	v, ok := r[pk]
	return v, ok
}

// Int64 reads a numeric field as int64. Returns false when the field is
// absent or not numeric.
func (r Record) Int64(field string) (int64, bool) {
	switch v := r[field].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// String reads a string field. Returns "" when absent or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Bool reads a boolean field. Absent or non-boolean is false.
func (r Record) Bool(field string) bool {
	b, _ := r[field].(bool)
	return b
}

func marshalRecord(rec Record) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(rec)); err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalRecord(data string) (Record, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

// normalizeKey coerces a caller-supplied key to the storage key type for
// the collection: int64 for auto-increment collections, string otherwise.
func normalizeKey(coll schema.Collection, key any) (any, error) {
	if coll.AutoIncrement {
		switch v := key.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case float64:
			return int64(v), nil
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, fmt.Errorf("key %v: %w", key, err)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("collection %q uses integer keys, got %T", coll.Name, key)
		}
	}
	s, ok := key.(string)
	if !ok {
		return nil, fmt.Errorf("collection %q uses string keys, got %T", coll.Name, key)
	}
	return s, nil
}

// recordKey extracts the primary key from the record body, if present.
func recordKey(coll schema.Collection, rec Record) (any, bool, error) {
	raw, ok := rec.Key(coll.PrimaryKey)
	if !ok || raw == nil {
		return nil, false, nil
	}
	key, err := normalizeKey(coll, raw)
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}
