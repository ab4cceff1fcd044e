//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Fields is a projection: key → 1 to include, key → 0 to exclude.
// A projection with any positive entry is an inclusion projection; otherwise it excludes the zero keys.
type Fields map[string]int

// Inclusive reports whether the projection lists fields to include.
func (f Fields) Inclusive() bool {
	for _, v := range f {
		if v > 0 {
			return true
		}
	}
	return false
}

// Allows reports whether key survives the projection.
func (f Fields) Allows(key string) bool {
	if f == nil {
		return true
	}
	if f.Inclusive() {
		return f[key] > 0
	}
	v, ok := f[key]
	return !ok || v > 0
}

// ParseFields decodes a JSON projection such as {"username":1} or {"password":0}.
// Boolean values are accepted as 1/0.
func ParseFields(raw string) (Fields, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("invalid fields: %w", err)
	}
	out := make(Fields, len(decoded))
	for k, v := range decoded {
		switch val := v.(type) {
		case bool:
			if val {
				out[k] = 1
			} else {
				out[k] = 0
			}
		case float64:
			if val > 0 {
				out[k] = 1
			} else {
				out[k] = 0
			}
		default:
			return nil, fmt.Errorf("invalid fields: %q must be 0 or 1", k)
		}
	}
	return out, nil
}

// UserFilter selects records. Zero values match everything.
type UserFilter struct {
	ID       string
	Username *string
	// Properties match by equality against free-form fields.
	Properties map[string]any
}

// SortKey orders results by a sortable column.
type SortKey struct {
	Field string
	Desc  bool
}

// sortableFields lists the columns results can be ordered by.
var sortableFields = map[string]bool{
	UsernameField:  true,
	createdAtField: true,
}

// ParseSort decodes {"username":1,"created_at":-1}. Unknown fields are rejected.
// Keys are applied in lexical order since JSON objects carry no order.
func ParseSort(raw string) ([]SortKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var decoded map[string]int
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("invalid sort: %w", err)
	}
	keys := make([]string, 0, len(decoded))
	for k := range decoded {
		if !sortableFields[k] {
			return nil, fmt.Errorf("invalid sort: %q is not sortable", k)
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]SortKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, SortKey{Field: k, Desc: decoded[k] < 0})
	}
	return out, nil
}

// UserQuery carries filtering, projection, ordering and paging for reads.
type UserQuery struct {
	Filter UserFilter
	Fields Fields
	Sort   []SortKey
	Limit  int
	Skip   int
}
