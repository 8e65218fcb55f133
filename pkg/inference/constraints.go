package inference

import (
	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/pattern"
)

// binaryBehavior is the per-ConstraintKind behavior table spec §9 asks
// for ("a sum type for Constraint with a behavior table ... rather than
// dynamic dispatch"): Admissible decides schema-validity of a concrete
// pair (used for pruning and edge materialization, spec §4.4.3),
// StepLeftToRight/StepRightToLeft compute the propagation step function
// of spec §4.4.2 ("if exactly one side has an annotation set S, set the
// other side to ∪_{t∈S} step(t)"). A nil step function means the
// constraint never propagates (Comparison: "not used to propagate, it
// overgenerates").
type binaryBehavior struct {
	Admissible      func(schema Schema, c pattern.Constraint, l, r engine.TypeID) bool
	StepLeftToRight func(schema Schema, c pattern.Constraint, l engine.TypeID) []engine.TypeID
	StepRightToLeft func(schema Schema, c pattern.Constraint, r engine.TypeID) []engine.TypeID
}

// byPredicate enumerates every type of kind k admitted by pred, used to
// build step functions from a boolean admissibility test when the
// schema doesn't expose a direct enumerator (spec §4.2's TypeManager
// surface tests membership, not enumeration, for owns/plays/relates).
func byPredicate(schema Schema, k engine.Kind, pred func(t engine.TypeID) bool) []engine.TypeID {
	var out []engine.TypeID
	for _, t := range schema.GetKindTypes(k) {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}

var binaryBehaviors = map[pattern.ConstraintKind]binaryBehavior{
	// Isa: the instance's runtime type is right, or a subtype of right
	// (the pattern's declared type). Resolved (spec table's wording
	// reads backwards) to the semantically consistent IsSubtype(l, r).
	pattern.ConstraintIsa: {
		Admissible: func(schema Schema, _ pattern.Constraint, l, r engine.TypeID) bool {
			return schema.IsSubtype(l, r)
		},
		StepLeftToRight: func(schema Schema, _ pattern.Constraint, l engine.TypeID) []engine.TypeID {
			return append([]engine.TypeID{l}, schema.SupertypesTransitive(l)...)
		},
		StepRightToLeft: func(schema Schema, _ pattern.Constraint, r engine.TypeID) []engine.TypeID {
			return schema.SubtypesTransitive(r)
		},
	},
	// Sub: left sub* right, same shape as Isa.
	pattern.ConstraintSub: {
		Admissible: func(schema Schema, _ pattern.Constraint, l, r engine.TypeID) bool {
			return schema.IsSubtype(l, r)
		},
		StepLeftToRight: func(schema Schema, _ pattern.Constraint, l engine.TypeID) []engine.TypeID {
			return append([]engine.TypeID{l}, schema.SupertypesTransitive(l)...)
		},
		StepRightToLeft: func(schema Schema, _ pattern.Constraint, r engine.TypeID) []engine.TypeID {
			return schema.SubtypesTransitive(r)
		},
	},
	pattern.ConstraintOwns: {
		Admissible: func(schema Schema, _ pattern.Constraint, l, r engine.TypeID) bool {
			return schema.Owns(l, r)
		},
		StepLeftToRight: func(schema Schema, _ pattern.Constraint, l engine.TypeID) []engine.TypeID {
			return byPredicate(schema, engine.KindAttribute, func(r engine.TypeID) bool { return schema.Owns(l, r) })
		},
		StepRightToLeft: func(schema Schema, _ pattern.Constraint, r engine.TypeID) []engine.TypeID {
			var out []engine.TypeID
			out = append(out, byPredicate(schema, engine.KindEntity, func(l engine.TypeID) bool { return schema.Owns(l, r) })...)
			out = append(out, byPredicate(schema, engine.KindRelation, func(l engine.TypeID) bool { return schema.Owns(l, r) })...)
			return out
		},
	},
	pattern.ConstraintPlays: {
		Admissible: func(schema Schema, _ pattern.Constraint, l, r engine.TypeID) bool {
			return schema.Plays(l, r)
		},
		StepLeftToRight: func(schema Schema, _ pattern.Constraint, l engine.TypeID) []engine.TypeID {
			return byPredicate(schema, engine.KindRole, func(r engine.TypeID) bool { return schema.Plays(l, r) })
		},
		StepRightToLeft: func(schema Schema, _ pattern.Constraint, r engine.TypeID) []engine.TypeID {
			var out []engine.TypeID
			out = append(out, byPredicate(schema, engine.KindEntity, func(l engine.TypeID) bool { return schema.Plays(l, r) })...)
			out = append(out, byPredicate(schema, engine.KindRelation, func(l engine.TypeID) bool { return schema.Plays(l, r) })...)
			return out
		},
	},
	pattern.ConstraintRelates: {
		Admissible: func(schema Schema, _ pattern.Constraint, l, r engine.TypeID) bool {
			return schema.Relates(l, r)
		},
		StepLeftToRight: func(schema Schema, _ pattern.Constraint, l engine.TypeID) []engine.TypeID {
			return byPredicate(schema, engine.KindRole, func(r engine.TypeID) bool { return schema.Relates(l, r) })
		},
		StepRightToLeft: func(schema Schema, _ pattern.Constraint, r engine.TypeID) []engine.TypeID {
			return byPredicate(schema, engine.KindRelation, func(l engine.TypeID) bool { return schema.Relates(l, r) })
		},
	},
	// Has: attribute-type ∈ owns(owner-type); both sides are instance
	// ("thing") candidate-type sets rather than declared-type sets, but
	// the admissibility rule is Owns at the type level.
	pattern.ConstraintHas: {
		Admissible: func(schema Schema, _ pattern.Constraint, l, r engine.TypeID) bool {
			return schema.Owns(l, r)
		},
		StepLeftToRight: func(schema Schema, _ pattern.Constraint, l engine.TypeID) []engine.TypeID {
			return byPredicate(schema, engine.KindAttribute, func(r engine.TypeID) bool { return schema.Owns(l, r) })
		},
		StepRightToLeft: func(schema Schema, _ pattern.Constraint, r engine.TypeID) []engine.TypeID {
			var out []engine.TypeID
			out = append(out, byPredicate(schema, engine.KindEntity, func(l engine.TypeID) bool { return schema.Owns(l, r) })...)
			out = append(out, byPredicate(schema, engine.KindRelation, func(l engine.TypeID) bool { return schema.Owns(l, r) })...)
			return out
		},
	},
	// Comparison: admissible iff value-type categories are comparable
	// (spec §4.4.1, §4.6). No step functions — propagation would
	// overgenerate (spec §4.4.2).
	pattern.ConstraintComparison: {
		Admissible: func(schema Schema, _ pattern.Constraint, l, r engine.TypeID) bool {
			lc, ok := schema.ValueType(l)
			if !ok {
				return false
			}
			rc, ok := schema.ValueType(r)
			if !ok {
				return false
			}
			return engine.Comparable(lc, rc)
		},
	},
	// Is: identity — mutual compatibility under sub in either direction.
	pattern.ConstraintIs: {
		Admissible: func(schema Schema, _ pattern.Constraint, l, r engine.TypeID) bool {
			return schema.IsSubtype(l, r) || schema.IsSubtype(r, l)
		},
		StepLeftToRight: func(schema Schema, _ pattern.Constraint, l engine.TypeID) []engine.TypeID {
			out := append([]engine.TypeID{}, schema.SupertypesTransitive(l)...)
			out = append(out, schema.SubtypesTransitive(l)...)
			return out
		},
		StepRightToLeft: func(schema Schema, _ pattern.Constraint, r engine.TypeID) []engine.TypeID {
			out := append([]engine.TypeID{}, schema.SupertypesTransitive(r)...)
			out = append(out, schema.SubtypesTransitive(r)...)
			return out
		},
	},
}

// linksBehaviors resolves the decomposed Links constraint (spec §4.4.1:
// "Links (decomposed) | relation↔role, player↔role | — | relates +
// plays"): one Links constraint contributes a relates-shaped edge
// (relation, role) and a plays-shaped edge (player, role), both keyed
// off the same role variable.
func linksRelatesBehavior() binaryBehavior { return binaryBehaviors[pattern.ConstraintRelates] }
func linksPlaysBehavior() binaryBehavior   { return binaryBehaviors[pattern.ConstraintPlays] }
