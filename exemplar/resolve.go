package exemplar

import (
	"fmt"

	"github.com/meigma/dbpf/internal/dbpftype"
)

// LookupFunc loads the exemplar or cohort stored under tgi.
// It returns nil with a nil error when no such resource exists.
type LookupFunc func(tgi dbpftype.TGI) (*Exemplar, error)

// Resolver looks up properties through the parent cohort chain.
type Resolver struct {
	Lookup LookupFunc
}

// Property returns the first definition of id found on ex or its ancestors.
// The walk stops at a zero parent, a parent that cannot be found, or a
// parent already visited.
func (r Resolver) Property(ex *Exemplar, id uint32) (*Property, bool, error) {
	seen := make(map[dbpftype.TGI]struct{})
	for cur := ex; cur != nil; {
		if p, ok := cur.Get(id); ok {
			return p, true, nil
		}
		parent := cur.Parent
		if parent.IsZero() || r.Lookup == nil {
			return nil, false, nil
		}
		if _, ok := seen[parent]; ok {
			return nil, false, nil
		}
		seen[parent] = struct{}{}

		next, err := r.Lookup(parent)
		if err != nil {
			return nil, false, fmt.Errorf("exemplar: load parent %s: %w", parent, err)
		}
		cur = next
	}
	return nil, false, nil
}
