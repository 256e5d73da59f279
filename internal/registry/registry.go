// internal/registry/registry.go
//
// Field Registry.
//
// Context
// -------
// One opinionated mapping drives the whole write path:
//
//	block type  →  scalar fields it may write
//	scalar field →  cache partition tag
//	scalar field →  requires draft staging?
//
// The tables are assembled once at process start into an immutable
// *Registry and injected into the coordinator, the block store, and the
// profile cache.  New validates completeness up front so a field that no
// cache tag would ever invalidate can never reach a request.
//
// Notes
// -----
//   - A Registry is read-only after New; share it freely across goroutines.
//   - Block types absent from the canonical map are soft blocks.
//   - Two spaces after periods.
package registry

import (
	"fmt"
	"sort"

	"github.com/yanizio/uniprofile/internal/apperr"
)

// Field is the public camelCase name of a University scalar.
type Field string

// Tag names one cache partition of a merged profile.
type Tag string

const (
	TagIdentity     Tag = "identity"
	TagAdmissions   Tag = "admissions"
	TagCost         Tag = "cost"
	TagLocation     Tag = "location"
	TagOutcomes     Tag = "outcomes"
	TagResearch     Tag = "research"
	TagMicrocontent Tag = "microcontent"
	TagCanonical    Tag = "canonical"
)

// AllTags lists every partition in a stable order.
func AllTags() []Tag {
	return []Tag{
		TagIdentity, TagAdmissions, TagCost, TagLocation,
		TagOutcomes, TagResearch, TagMicrocontent, TagCanonical,
	}
}

// ScalarTags lists the tags a scalar field may map to.
func ScalarTags() []Tag {
	return []Tag{TagIdentity, TagAdmissions, TagCost, TagLocation, TagOutcomes, TagResearch}
}

func isScalarTag(t Tag) bool {
	for _, s := range ScalarTags() {
		if s == t {
			return true
		}
	}
	return false
}

// Domain selects the derivation applied to a canonical block's payload.
type Domain string

const (
	DomainAdmissions Domain = "admissions"
	DomainFinancials Domain = "financials"
	DomainGeography  Domain = "geography"
	DomainOutcomes   Domain = "outcomes"
)

// FieldSpec describes one scalar column pair.
type FieldSpec struct {
	Name        Field
	Column      string // live column in `university`
	DraftColumn string // empty unless Staged
	Tag         Tag
	Kind        Kind
	Staged      bool
}

// BlockSpec registers one hard block type.
type BlockSpec struct {
	Type   string
	Domain Domain
	Fields []Field
}

// Definition is the raw table set handed to New.
type Definition struct {
	Fields []FieldSpec
	Blocks []BlockSpec
}

// Registry is the validated, immutable lookup object.
type Registry struct {
	fields   map[Field]FieldSpec
	order    []Field
	blocks   map[string]BlockSpec
	writable map[string]map[Field]struct{}
}

// New validates def and builds a Registry.  Every problem is reported in a
// single *apperr.ConfigurationError.
func New(def Definition) (*Registry, error) {
	r := &Registry{
		fields:   make(map[Field]FieldSpec, len(def.Fields)),
		blocks:   make(map[string]BlockSpec, len(def.Blocks)),
		writable: make(map[string]map[Field]struct{}, len(def.Blocks)),
	}
	var problems []string

	for _, fs := range def.Fields {
		switch {
		case fs.Name == "":
			problems = append(problems, "field with empty name")
			continue
		case fs.Column == "":
			problems = append(problems, fmt.Sprintf("field %s has no column", fs.Name))
		case fs.Tag == "":
			problems = append(problems, fmt.Sprintf("field %s has no cache tag", fs.Name))
		case !isScalarTag(fs.Tag):
			problems = append(problems, fmt.Sprintf("field %s maps to unknown tag %q", fs.Name, fs.Tag))
		case fs.Staged && fs.DraftColumn == "":
			problems = append(problems, fmt.Sprintf("staged field %s has no draft column", fs.Name))
		}
		if _, dup := r.fields[fs.Name]; dup {
			problems = append(problems, fmt.Sprintf("field %s registered twice", fs.Name))
			continue
		}
		r.fields[fs.Name] = fs
		r.order = append(r.order, fs.Name)
	}

	for _, bs := range def.Blocks {
		if bs.Type == "" {
			problems = append(problems, "block type with empty name")
			continue
		}
		if _, dup := r.blocks[bs.Type]; dup {
			problems = append(problems, fmt.Sprintf("block type %s registered twice", bs.Type))
			continue
		}
		set := make(map[Field]struct{}, len(bs.Fields))
		for _, f := range bs.Fields {
			fs, ok := r.fields[f]
			if !ok || fs.Tag == "" {
				problems = append(problems,
					fmt.Sprintf("block type %s writes field %s which has no cache tag", bs.Type, f))
				continue
			}
			set[f] = struct{}{}
		}
		r.blocks[bs.Type] = bs
		r.writable[bs.Type] = set
	}

	if len(problems) > 0 {
		return nil, &apperr.ConfigurationError{Problems: problems}
	}
	return r, nil
}

// MustDefault returns the Default registry or panics.  Intended for tests.
func MustDefault() *Registry {
	r, err := Default()
	if err != nil {
		panic(err)
	}
	return r
}

// WritableFields returns the fields blockType may write, sorted by name.
// Empty means blockType is a soft block.
func (r *Registry) WritableFields(blockType string) []Field {
	set := r.writable[blockType]
	out := make([]Field, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CanWrite reports whether f is in blockType's writable set.
func (r *Registry) CanWrite(blockType string, f Field) bool {
	_, ok := r.writable[blockType][f]
	return ok
}

// RequiresStaging reports whether edits to f go through a draft column.
func (r *Registry) RequiresStaging(f Field) bool {
	return r.fields[f].Staged
}

// CacheTag returns the partition tag for f.  The bool is false only for
// unregistered fields.
func (r *Registry) CacheTag(f Field) (Tag, bool) {
	fs, ok := r.fields[f]
	return fs.Tag, ok
}

// IsHardBlockType reports whether blockType is registered as canonical.
func (r *Registry) IsHardBlockType(blockType string) bool {
	_, ok := r.blocks[blockType]
	return ok
}

// Block returns the BlockSpec of a hard block type.
func (r *Registry) Block(blockType string) (BlockSpec, bool) {
	bs, ok := r.blocks[blockType]
	return bs, ok
}

// Spec returns the column metadata of f.
func (r *Registry) Spec(f Field) (FieldSpec, bool) {
	fs, ok := r.fields[f]
	return fs, ok
}

// Fields returns every registered field in registration order.
func (r *Registry) Fields() []Field {
	out := make([]Field, len(r.order))
	copy(out, r.order)
	return out
}

// FieldsByTag returns every field mapped to t, in registration order.
func (r *Registry) FieldsByTag(t Tag) []Field {
	var out []Field
	for _, f := range r.order {
		if r.fields[f].Tag == t {
			out = append(out, f)
		}
	}
	return out
}

// HardBlockTypes lists every canonical block type, sorted.
func (r *Registry) HardBlockTypes() []string {
	out := make([]string, 0, len(r.blocks))
	for t := range r.blocks {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
