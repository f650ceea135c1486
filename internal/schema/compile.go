package schema

import (
	_ "embed"
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed manifest.cue
var manifestCUE string

// CompileError reports an invalid manifest. Manifest errors are
// configuration errors: fatal, surfaced immediately, never retried.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: manifest %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("manifest %s: %s", e.Field, e.Message)
}

// Load compiles the embedded manifest into a Registry.
func Load() (*Registry, error) {
	return compile(manifestCUE)
}

// compile parses CUE manifest source into a Registry.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
func compile(src string) (*Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("manifest.cue"))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(false)); err != nil {
		return nil, formatCUEError(err)
	}

	reg := &Registry{collections: map[string]Collection{}}

	versionVal := v.LookupPath(cue.ParsePath("version"))
	if !versionVal.Exists() {
		return nil, &CompileError{Field: "version", Message: "version is required", Pos: v.Pos()}
	}
	version, err := versionVal.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	if version <= 0 {
		return nil, &CompileError{Field: "version", Message: fmt.Sprintf("version must be positive, got %d", version), Pos: versionVal.Pos()}
	}
	reg.Version = int(version)

	if err := parseCollections(v, reg); err != nil {
		return nil, err
	}
	if len(reg.collections) == 0 {
		return nil, &CompileError{Field: "collections", Message: "at least one collection is required", Pos: v.Pos()}
	}

	if err := parseMigrations(v, reg); err != nil {
		return nil, err
	}

	return reg, nil
}

func parseCollections(v cue.Value, reg *Registry) error {
	collVal := v.LookupPath(cue.ParsePath("collections"))
	if !collVal.Exists() {
		return &CompileError{Field: "collections", Message: "collections is required", Pos: v.Pos()}
	}

	iter, err := collVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		coll, cerr := parseCollection(name, iter.Value())
		if cerr != nil {
			return cerr
		}
		reg.collections[name] = coll
	}
	return nil
}

func parseCollection(name string, v cue.Value) (Collection, error) {
	coll := Collection{Name: name}

	pk, err := stringField(v, "primaryKey")
	if err != nil {
		return coll, err
	}
	if pk == "" {
		return coll, &CompileError{Field: "collections." + name, Message: "primaryKey must not be empty", Pos: v.Pos()}
	}
	coll.PrimaryKey = pk

	if coll.AutoIncrement, err = boolField(v, "autoIncrement"); err != nil {
		return coll, err
	}
	if coll.Restricted, err = boolField(v, "restricted"); err != nil {
		return coll, err
	}

	idxVal := v.LookupPath(cue.ParsePath("indexes"))
	if idxVal.Exists() {
		iter, ierr := idxVal.Fields()
		if ierr != nil {
			return coll, formatCUEError(ierr)
		}
		for iter.Next() {
			idx, perr := parseIndex(name, iter.Label(), iter.Value())
			if perr != nil {
				return coll, perr
			}
			coll.Indexes = append(coll.Indexes, idx)
		}
	}
	sortIndexes(coll.Indexes)
	return coll, nil
}

func parseIndex(coll, name string, v cue.Value) (Index, error) {
	idx := Index{Name: name}

	field, err := stringField(v, "field")
	if err != nil {
		return idx, err
	}
	if field == "" {
		return idx, &CompileError{
			Field:   fmt.Sprintf("collections.%s.indexes.%s", coll, name),
			Message: "field is required",
			Pos:     v.Pos(),
		}
	}
	idx.Field = field

	if idx.Unique, err = boolField(v, "unique"); err != nil {
		return idx, err
	}
	if idx.Partial, err = boolField(v, "partial"); err != nil {
		return idx, err
	}
	return idx, nil
}

func parseMigrations(v cue.Value, reg *Registry) error {
	migVal := v.LookupPath(cue.ParsePath("migrations"))
	if !migVal.Exists() {
		return nil
	}

	iter, err := migVal.List()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		seg, serr := parseSegment(iter.Value(), reg)
		if serr != nil {
			return serr
		}
		reg.segments = append(reg.segments, seg)
	}
	return nil
}

func parseSegment(v cue.Value, reg *Registry) (Segment, error) {
	var seg Segment

	from, err := intField(v, "from")
	if err != nil {
		return seg, err
	}
	to, err := intField(v, "to")
	if err != nil {
		return seg, err
	}
	if to <= from {
		return seg, &CompileError{
			Field:   "migrations",
			Message: fmt.Sprintf("segment %d→%d: target version must exceed source", from, to),
			Pos:     v.Pos(),
		}
	}
	if to > reg.Version {
		return seg, &CompileError{
			Field:   "migrations",
			Message: fmt.Sprintf("segment %d→%d: target version exceeds manifest version %d", from, to, reg.Version),
			Pos:     v.Pos(),
		}
	}
	seg.From, seg.To = from, to

	stepsVal := v.LookupPath(cue.ParsePath("steps"))
	if stepsVal.Exists() {
		iter, ierr := stepsVal.List()
		if ierr != nil {
			return seg, formatCUEError(ierr)
		}
		for iter.Next() {
			step, perr := parseStep(iter.Value(), reg)
			if perr != nil {
				return seg, perr
			}
			seg.Steps = append(seg.Steps, step)
		}
	}
	return seg, nil
}

func parseStep(v cue.Value, reg *Registry) (Step, error) {
	var step Step

	collName, err := stringField(v, "collection")
	if err != nil {
		return step, err
	}
	idxName, err := stringField(v, "index")
	if err != nil {
		return step, err
	}

	// Steps only create what the manifest declares; a dangling reference is
	// a configuration error, not a runtime surprise.
	coll, ok := reg.collections[collName]
	if !ok {
		return step, &CompileError{
			Field:   "migrations",
			Message: fmt.Sprintf("step references undeclared collection %q", collName),
			Pos:     v.Pos(),
		}
	}
	if _, ok := coll.Index(idxName); !ok {
		return step, &CompileError{
			Field:   "migrations",
			Message: fmt.Sprintf("step references undeclared index %q on collection %q", idxName, collName),
			Pos:     v.Pos(),
		}
	}

	step.Collection = collName
	step.Index = idxName
	return step, nil
}

func stringField(v cue.Value, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func boolField(v cue.Value, name string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func intField(v cue.Value, name string) (int, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return 0, &CompileError{Field: name, Message: name + " is required", Pos: v.Pos()}
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(n), nil
}

func sortIndexes(indexes []Index) {
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
}

// formatCUEError converts a CUE error into a CompileError with position.
func formatCUEError(err error) error {
	if cueErr, ok := err.(errors.Error); ok {
		return &CompileError{
			Field:   "manifest",
			Message: cueErr.Error(),
			Pos:     cueErr.Position(),
		}
	}
	return &CompileError{Field: "manifest", Message: err.Error()}
}
