package schema

import "sort"

// Index describes a secondary index over one record field.
type Index struct {
	// Name is the index label within its collection.
	Name string

	// Field is the record field the index covers.
	Field string

	// Unique rejects duplicate values at the storage layer.
	Unique bool

	// Partial restricts the index to rows where Field is truthy.
	// Combined with Unique this enforces an at-most-one invariant.
	Partial bool
}

// Collection describes one named set of records.
type Collection struct {
	Name          string
	PrimaryKey    string
	AutoIncrement bool

	// Restricted collections require the privileged role.
	Restricted bool

	// Indexes sorted by name for deterministic iteration.
	Indexes []Index
}

// Index returns the named index, if declared.
func (c Collection) Index(name string) (Index, bool) {
	for _, idx := range c.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// Step is one idempotent structural action: create an index on a
// collection. Creating an index that already exists is a no-op.
type Step struct {
	Collection string
	Index      string
}

// Segment is the ordered list of steps registered for one
// (from → to) version transition.
type Segment struct {
	From  int
	To    int
	Steps []Step
}

// Registry is the compiled manifest: the single source of truth for what
// the store contains. It is immutable after Load.
type Registry struct {
	Version     int
	collections map[string]Collection
	segments    []Segment
}

// Collection returns the named collection declaration.
func (r *Registry) Collection(name string) (Collection, bool) {
	c, ok := r.collections[name]
	return c, ok
}

// Has reports whether the collection is declared.
func (r *Registry) Has(name string) bool {
	_, ok := r.collections[name]
	return ok
}

// Restricted reports whether the collection requires the privileged role.
// Unknown collections are not restricted; callers must check Has first.
func (r *Registry) Restricted(name string) bool {
	return r.collections[name].Restricted
}

// Collections returns every declaration sorted by name.
func (r *Registry) Collections() []Collection {
	out := make([]Collection, 0, len(r.collections))
	for _, c := range r.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StepsBetween returns the ordered migration steps covering an upgrade
// from version old to version new.
//
// Segments are walked as a chain: every registered segment that lies
// inside (old, new] contributes its steps in (From, To) order. Because
// steps are idempotent and structure is declared as an end state, opening
// old→new directly yields the same result as stepping through each
// intermediate version.
func (r *Registry) StepsBetween(old, new int) []Step {
	if new <= old {
		return nil
	}
	segs := make([]Segment, 0, len(r.segments))
	for _, s := range r.segments {
		if s.From >= old && s.To <= new {
			segs = append(segs, s)
		}
	}
	sort.Slice(segs, func(i, j int) bool {
		if segs[i].From != segs[j].From {
			return segs[i].From < segs[j].From
		}
		return segs[i].To < segs[j].To
	})
	var steps []Step
	for _, s := range segs {
		steps = append(steps, s.Steps...)
	}
	return steps
}
