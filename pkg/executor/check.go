package executor

import (
	"context"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/concept"
)

// CheckStep adapts a batch of engine.CheckInstructions into an
// engine.ExecutionStep: it runs them against the input row and emits
// the row unchanged if all pass, dropping it otherwise (spec §4.6, §4.7
// "a check step doesn't expand cardinality").
type CheckStep struct {
	Checker      *engine.Checker
	Instructions []engine.CheckInstruction
}

func (s CheckStep) Run(ctx context.Context, row engine.Row, emit func(engine.Row) error) error {
	ok, err := s.Checker.Run(ctx, s.Instructions, row)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return emit(row)
}

// ValueCompareCheck evaluates a Comparison constraint (spec §4.4.1)
// between two attribute-thing variables, or one and a literal. An
// attribute's ThingRef.ID carries its value's inline encoding
// (pkg/concept's put-if-absent vertex ID scheme) for every value short
// enough to inline; out-of-line (hashed) values cannot be recovered from
// the ID alone and such a comparison is never satisfied. Small
// fixed-width categories like Long are always inline. The comparison
// runs per row once the attribute variable is bound; no value range is
// derived from it or passed to an iterator, so attribute scans are not
// narrowed by it.
type ValueCompareCheck struct {
	Schema   engine.SchemaFacts
	LeftVar  string
	RightVar string // empty if comparing against Literal
	Literal  engine.Value
	Op       engine.CompareOp
}

func (c ValueCompareCheck) Evaluate(_ context.Context, _ *engine.Checker, row engine.Row) (bool, error) {
	left, ok := row[c.LeftVar]
	if !ok || !left.IsThing() {
		return false, nil
	}
	cat, ok := c.Schema.ValueType(left.Thing.Type)
	if !ok {
		return false, nil
	}

	var right engine.Value
	if c.RightVar != "" {
		rb, ok := row[c.RightVar]
		if !ok || !rb.IsThing() {
			return false, nil
		}
		right = rb.Thing.ID
	} else {
		right = c.Literal
	}

	cmp := concept.CompareValues(cat, left.Thing.ID, right)
	return evalCompareOp(c.Op, cmp), nil
}

func evalCompareOp(op engine.CompareOp, cmp int) bool {
	switch op {
	case engine.CompareEQ:
		return cmp == 0
	case engine.CompareNEQ:
		return cmp != 0
	case engine.CompareLT:
		return cmp < 0
	case engine.CompareLTE:
		return cmp <= 0
	case engine.CompareGT:
		return cmp > 0
	case engine.CompareGTE:
		return cmp >= 0
	default:
		// Like/Contains only make sense over raw strings, which this
		// thing-to-thing path doesn't decode; unsupported here.
		return false
	}
}
