package inference

import "github.com/pthm/typecore/pkg/pattern"

// inferVarCategories assigns each variable referenced in conj its
// VarCategory (spec §4.4.1: thing, type, or value), so seeding knows
// which "unbounded" fallback set (§4.4.2's "assign the unbounded set for
// its category") and which pruning rules (I4 applies to thing variables
// only) apply. A variable's category is determined by the constraint
// position it occupies; Isa/Has/Links/Is name thing variables, Sub
// names type variables, Comparison names value variables, and
// Owns/Plays/Relates name type variables on both sides.
func inferVarCategories(conj pattern.Conjunction) map[pattern.Variable]pattern.VarCategory {
	out := make(map[pattern.Variable]pattern.VarCategory)
	assign := func(v pattern.Variable, cat pattern.VarCategory) {
		if v == "" {
			return
		}
		if _, ok := out[v]; !ok {
			out[v] = cat
		}
	}
	for _, c := range conj.Constraints {
		switch c.Kind {
		case pattern.ConstraintIsa:
			assign(c.Left, pattern.CategoryThing)
			assign(c.Right, pattern.CategoryType)
		case pattern.ConstraintSub:
			assign(c.Left, pattern.CategoryType)
			assign(c.Right, pattern.CategoryType)
		case pattern.ConstraintOwns, pattern.ConstraintPlays, pattern.ConstraintRelates:
			assign(c.Left, pattern.CategoryType)
			assign(c.Right, pattern.CategoryType)
		case pattern.ConstraintHas:
			assign(c.Left, pattern.CategoryThing)
			assign(c.Right, pattern.CategoryThing)
		case pattern.ConstraintLinks:
			assign(c.Left, pattern.CategoryThing)
			assign(c.Right, pattern.CategoryThing)
			assign(c.RoleVar, pattern.CategoryType)
		case pattern.ConstraintComparison:
			assign(c.Left, pattern.CategoryValue)
			assign(c.Right, pattern.CategoryValue)
		case pattern.ConstraintIs:
			assign(c.Left, pattern.CategoryThing)
			assign(c.Right, pattern.CategoryThing)
		case pattern.ConstraintKindOf, pattern.ConstraintLabel:
			assign(c.Left, pattern.CategoryType)
		case pattern.ConstraintRoleName:
			assign(c.Left, pattern.CategoryType)
		case pattern.ConstraintValue:
			assign(c.Left, pattern.CategoryType)
		}
	}
	return out
}
