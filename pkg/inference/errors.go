package inference

import "fmt"

// UnsatisfiableError reports a vertex whose candidate set was pruned to
// empty (spec §4.4.2: "if any vertex's set becomes
// empty and the vertex isn't under a negation/optional, the whole
// conjunction is unsatisfiable"; spec §8 scenario 2).
type UnsatisfiableError struct {
	// Variable is the vertex variable name that went empty. The seeding
	// pass reports only variable vertices.
	Variable string
	// Label is a label vertex's name; the seeding pass leaves it empty.
	Label string
	// ConstraintIndex is an index into Conjunction.Constraints. The
	// seeding pass does not record which edge emptied the vertex and
	// leaves it 0, which Error prints as is.
	ConstraintIndex int
}

func (e *UnsatisfiableError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("detected unsatisfiable edge: variable %q has no admissible types after constraint %d", e.Variable, e.ConstraintIndex)
	}
	return fmt.Sprintf("detected unsatisfiable edge: label %q has no admissible types after constraint %d", e.Label, e.ConstraintIndex)
}

// IsUnsatisfiableErr reports whether err is an *UnsatisfiableError.
func IsUnsatisfiableErr(err error) bool {
	_, ok := err.(*UnsatisfiableError)
	return ok
}
