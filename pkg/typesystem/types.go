// Package typesystem implements the schema cache and mutation surface
// (TypeManager, spec §4.2) that backs an engine.SchemaFacts view: type
// kinds, the rooted sub partial order, owns/plays/relates edges, value
// types, and the annotation set that decorates them (spec §3).
package typesystem

import "github.com/pthm/typecore/engine"

// Kind re-exports engine's four disjoint schema kinds so callers outside
// this package don't need a second import for the same concept.
type Kind = engine.Kind

const (
	KindEntity    = engine.KindEntity
	KindRelation  = engine.KindRelation
	KindAttribute = engine.KindAttribute
	KindRole      = engine.KindRole
)

// TypeID identifies a schema type; re-exported from engine for the same
// reason as Kind.
type TypeID = engine.TypeID

// ValueCategory is re-exported from engine, where Comparable() also
// lives, since the Checker needs it without importing typesystem.
type ValueCategory = engine.ValueCategory

const (
	ValueBool       = engine.ValueBool
	ValueLong       = engine.ValueLong
	ValueDouble     = engine.ValueDouble
	ValueDecimal    = engine.ValueDecimal
	ValueDate       = engine.ValueDate
	ValueDateTime   = engine.ValueDateTime
	ValueDateTimeTZ = engine.ValueDateTimeTZ
	ValueDuration   = engine.ValueDuration
	ValueString     = engine.ValueString
	ValueStruct     = engine.ValueStruct
)

// OwnsEdge is a type's declared ownership of an attribute type, carrying
// the annotations attached to that specific edge (spec §3: Owns edges
// may carry Unique/Key/Cardinality/Distinct independent of the
// attribute type's own annotations).
type OwnsEdge struct {
	AttrType    TypeID
	Annotations []Annotation
}

// OwnedEdge pairs an OwnsEdge with the type that actually declared it,
// for callers walking the full inherited set rather than looking up one
// known attribute type (see TypeManager.OwnsEdgesForOwner).
type OwnedEdge struct {
	Edge       OwnsEdge
	DeclaredOn TypeID
}

// PlaysEdge is a type's declared ability to play a role.
type PlaysEdge struct {
	RoleType    TypeID
	Annotations []Annotation
}

// RelatesEdge is a relation type's declared role.
type RelatesEdge struct {
	RoleType    TypeID
	Annotations []Annotation
}

// TypeDef is one schema type: its kind, label, position in the sub
// hierarchy, declared edges, and annotations. Role types additionally
// populate RoleName (the short, possibly-shared name used by
// RoleName(n) constraint resolution, spec §4.4.1) and RelatingType.
type TypeDef struct {
	ID    TypeID
	Label string

	Supertype *TypeID
	Subtypes  []TypeID // direct only; TypeManager computes transitive closures

	Owns    []OwnsEdge
	Plays   []PlaysEdge
	Relates []RelatesEdge // relation types only

	ValueType   *ValueCategory // attribute types only; nil means abstract-only
	Annotations []Annotation

	// RoleName and RelatingType are populated for Role kind types only.
	RoleName     string
	RelatingType TypeID

	// IndexEnabled toggles all-pairs role-player index maintenance for
	// relation types (spec §4.3, §9). Ignored for other kinds.
	IndexEnabled bool
}

func (t *TypeDef) hasAnnotation(cat AnnotationCategory) bool {
	for _, a := range t.Annotations {
		if a.Category == cat {
			return true
		}
	}
	return false
}

// IsAbstract reports whether t carries the Abstract annotation.
func (t *TypeDef) IsAbstract() bool { return t.hasAnnotation(AnnotationAbstract) }
