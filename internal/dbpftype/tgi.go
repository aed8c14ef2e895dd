// Package dbpftype holds the types shared by the archive, index and catalog packages.
package dbpftype

import (
	"fmt"
	"strconv"
	"strings"
)

// TGI is the Type-Group-Instance triple identifying a resource.
type TGI struct {
	Type     uint32
	Group    uint32
	Instance uint32
}

// String formats the triple as 0xTTTTTTTT-0xGGGGGGGG-0xIIIIIIII.
func (t TGI) String() string {
	return fmt.Sprintf("0x%08X-0x%08X-0x%08X", t.Type, t.Group, t.Instance)
}

// Query returns a query matching exactly this triple.
func (t TGI) Query() Query {
	return Query{}.WithType(t.Type).WithGroup(t.Group).WithInstance(t.Instance)
}

// IsZero reports whether all three components are zero.
func (t TGI) IsZero() bool {
	return t == TGI{}
}

// ParseTGI parses "T-G-I" where each component is decimal or 0x-prefixed hex.
func ParseTGI(s string) (TGI, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == ',' || r == ' ' })
	if len(parts) != 3 {
		return TGI{}, fmt.Errorf("dbpf: invalid tgi %q", s)
	}
	var vals [3]uint32
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 0, 32)
		if err != nil {
			return TGI{}, fmt.Errorf("dbpf: invalid tgi %q: %w", s, err)
		}
		vals[i] = uint32(v)
	}
	return TGI{Type: vals[0], Group: vals[1], Instance: vals[2]}, nil
}

// Query selects triples by any combination of components.
// Nil components match everything.
type Query struct {
	Type     *uint32
	Group    *uint32
	Instance *uint32
}

// WithType returns a copy of q constrained to type t.
func (q Query) WithType(t uint32) Query {
	q.Type = &t
	return q
}

// WithGroup returns a copy of q constrained to group g.
func (q Query) WithGroup(g uint32) Query {
	q.Group = &g
	return q
}

// WithInstance returns a copy of q constrained to instance i.
func (q Query) WithInstance(i uint32) Query {
	q.Instance = &i
	return q
}

// Match reports whether t satisfies the query.
func (q Query) Match(t TGI) bool {
	if q.Type != nil && *q.Type != t.Type {
		return false
	}
	if q.Group != nil && *q.Group != t.Group {
		return false
	}
	if q.Instance != nil && *q.Instance != t.Instance {
		return false
	}
	return true
}

// Empty reports whether the query has no constraints.
func (q Query) Empty() bool {
	return q.Type == nil && q.Group == nil && q.Instance == nil
}
