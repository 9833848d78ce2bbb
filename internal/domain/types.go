// Package domain – database value types.
//
// This file defines the custom column types used by the Thread and
// MessageRecord models: a deduplicated string set stored as a delimited
// string, and JSON-encoded map/list values. Parsing happens once, at scan
// time; the rest of the application works with the typed values.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StringSet is an ordered, deduplicated collection of identifiers. The
// persistence encoding is a comma-delimited string; everywhere else the type
// behaves as a set: Add ignores duplicates and Remove of an absent element is
// a no-op.
type StringSet []string

// Contains reports whether id is in the set.
func (s StringSet) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add returns the set with id appended, unless it is already present.
func (s StringSet) Add(id string) StringSet {
	if id == "" || s.Contains(id) {
		return s
	}
	return append(s, id)
}

// Remove returns the set without id. Removing an absent id is a no-op.
func (s StringSet) Remove(id string) StringSet {
	for i, v := range s {
		if v == id {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}

// Value implements driver.Valuer using comma-delimited encoding.
func (s StringSet) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "", nil
	}
	return strings.Join(s, ","), nil
}

// Scan implements sql.Scanner.
func (s *StringSet) Scan(v any) error {
	raw, err := columnText(v)
	if err != nil {
		return fmt.Errorf("scan StringSet: %w", err)
	}
	if raw == "" {
		*s = nil
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make(StringSet, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = out.Add(p)
		}
	}
	*s = out
	return nil
}

// Metadata is an open key/value map stored as a JSON column.
type Metadata map[string]string

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(v any) error {
	raw, err := columnText(v)
	if err != nil {
		return fmt.Errorf("scan Metadata: %w", err)
	}
	if raw == "" {
		*m = nil
		return nil
	}
	return json.Unmarshal([]byte(raw), m)
}

// StringList is an ordered list of strings stored as a JSON column.
// Unlike StringSet it preserves duplicates.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(v any) error {
	raw, err := columnText(v)
	if err != nil {
		return fmt.Errorf("scan StringList: %w", err)
	}
	if raw == "" {
		*l = nil
		return nil
	}
	return json.Unmarshal([]byte(raw), l)
}

func columnText(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return "", fmt.Errorf("unsupported column type %T", v)
	}
}
