// Package pattern defines the data shapes an external parser produces
// and the type-inference compiler (pkg/inference) consumes: Conjunction,
// the Constraint sum type of spec §4.4.1, and the three NestedPattern
// kinds (disjunction, negation, optional). No grammar or tokenizer
// lives here — test fixtures and callers construct these values
// directly, the same way the teacher's pkg/parser isolates its ANTLR
// grammar behind a thin boundary of plain structs.
package pattern

import "github.com/pthm/typecore/engine"

// Variable is a query-scoped name, matching engine.Vertex.Variable.
type Variable string

// VarCategory distinguishes the three kinds of value a variable may be
// bound to (spec §4.4.1).
type VarCategory int

const (
	CategoryThing VarCategory = iota
	CategoryType
	CategoryValue
)

// ConstraintKind enumerates every binary and unary constraint from spec
// §4.4.1.
type ConstraintKind int

const (
	ConstraintIsa ConstraintKind = iota
	ConstraintSub
	ConstraintOwns
	ConstraintPlays
	ConstraintRelates
	ConstraintHas
	ConstraintLinks
	ConstraintComparison
	ConstraintIs
	ConstraintKindOf // unary Kind(k)
	ConstraintLabel  // unary Label(l)
	ConstraintRoleName
	ConstraintValue // unary Value(vt)
)

// CompareOp is an alias of engine.CompareOp, re-exported here with its
// constants so a parser can name comparison operators through this
// package.
type CompareOp = engine.CompareOp

const (
	CompareEQ       = engine.CompareEQ
	CompareNEQ      = engine.CompareNEQ
	CompareLT       = engine.CompareLT
	CompareLTE      = engine.CompareLTE
	CompareGT       = engine.CompareGT
	CompareGTE      = engine.CompareGTE
	CompareLike     = engine.CompareLike
	CompareContains = engine.CompareContains
)

// Constraint is one leaf of a Conjunction. Exactly the fields relevant
// to Kind are populated; Left/Right name the variables it relates
// (unary constraints populate only Left).
type Constraint struct {
	Kind ConstraintKind

	Left  Variable
	Right Variable // empty for unary constraints

	// Unary constraint payloads.
	KindOf   engine.Kind // ConstraintKindOf
	Label    string      // ConstraintLabel, ConstraintRoleName
	ValueCat engine.ValueCategory // ConstraintValue

	// ConstraintLinks additionally carries the role variable/label
	// linking Left (relation) and Right (player).
	RoleVar Variable

	// ConstraintComparison payload; RightLiteral is used instead of
	// Right when comparing against a fixed value.
	Op           CompareOp
	RightLiteral engine.Value
}

// Conjunction is a non-empty set of constraints sharing variable scope,
// the atomic unit of type inference (spec GLOSSARY).
type Conjunction struct {
	Constraints []Constraint
	Nested      []NestedPattern
}

// NestedKind distinguishes the three nested pattern shapes.
type NestedKind int

const (
	NestedDisjunction NestedKind = iota
	NestedNegation
	NestedOptional
)

// NestedPattern is a disjunction, negation, or optional sub-pattern
// (spec §3, GLOSSARY). Disjunction populates Branches (2+); negation and
// optional populate exactly Branches[0].
type NestedPattern struct {
	Kind     NestedKind
	Branches []Conjunction
}
