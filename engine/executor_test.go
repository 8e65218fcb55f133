package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func bindingFor(id string) Binding {
	ref := ThingRef{Type: personType, ID: []byte(id)}
	return Binding{Thing: &ref}
}

func sourceOf(ids ...string) IteratorFactory {
	items := make([]SortedBinding, len(ids))
	for i, id := range ids {
		items[i] = SortedBinding{Key: Key(id), Binding: bindingFor(id)}
	}
	return func(context.Context, Row) (TypedIterator, error) {
		return NewSliceTypedIterator(items), nil
	}
}

func TestIntersectionStepMergesMultipleSources(t *testing.T) {
	step := IntersectionStep{
		Var: "x",
		Sources: []IteratorFactory{
			sourceOf("a", "b", "c", "d"),
			sourceOf("b", "c", "d", "e"),
			sourceOf("c", "d"),
		},
	}

	var got []string
	err := step.Run(context.Background(), Row{}, func(row Row) error {
		got = append(got, string(row["x"].Thing.ID))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "d"}, got)
}

func TestIntersectionStepSingleSourceScans(t *testing.T) {
	step := IntersectionStep{Var: "x", Sources: []IteratorFactory{sourceOf("a", "b")}}

	var got []string
	err := step.Run(context.Background(), Row{}, func(row Row) error {
		got = append(got, string(row["x"].Thing.ID))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)
}

func TestIntersectionStepEmptyIntersectionEmitsNothing(t *testing.T) {
	step := IntersectionStep{
		Var: "x",
		Sources: []IteratorFactory{
			sourceOf("a"),
			sourceOf("b"),
		},
	}
	emitted := false
	err := step.Run(context.Background(), Row{}, func(Row) error {
		emitted = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, emitted)
}

func TestMatchExecutorChainsStepsInOrder(t *testing.T) {
	step1 := IntersectionStep{Var: "x", Sources: []IteratorFactory{sourceOf("a", "b")}}
	step2 := CheckStep{
		Checker:      NewChecker(newFakeSchema(), newFakeThings()),
		Instructions: []CheckInstruction{ThingTypeListCheck{Var: "x", Allowed: []TypeID{personType}}},
	}
	exec := NewMatchExecutor([]ExecutionStep{step1, step2}, nil)

	var got []string
	err := exec.Execute(context.Background(), Row{}, func(row Row) error {
		got = append(got, string(row["x"].Thing.ID))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)
}

func TestMatchExecutorSurfacesInterrupt(t *testing.T) {
	src := NewInterruptSource()
	exec := NewMatchExecutor(
		[]ExecutionStep{IntersectionStep{Var: "x", Sources: []IteratorFactory{sourceOf("a")}}},
		src.NewReceiver(),
	)
	src.Fire(InterruptTransactionCommitted)

	err := exec.Execute(context.Background(), Row{}, func(Row) error { return nil })
	require.Error(t, err)
	require.True(t, IsQueryInterrupted(err))
}

func TestNegationStepPassesThroughWhenInnerEmpty(t *testing.T) {
	inner := IntersectionStep{Var: "y", Sources: []IteratorFactory{sourceOf()}}
	step := NegationStep{Inner: inner}

	emitted := false
	err := step.Run(context.Background(), Row{}, func(Row) error {
		emitted = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, emitted)
}

func TestNegationStepBlocksWhenInnerProducesRows(t *testing.T) {
	inner := IntersectionStep{Var: "y", Sources: []IteratorFactory{sourceOf("z")}}
	step := NegationStep{Inner: inner}

	emitted := false
	err := step.Run(context.Background(), Row{}, func(Row) error {
		emitted = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, emitted)
}

func TestOptionalStepFallsBackToOriginalRow(t *testing.T) {
	inner := IntersectionStep{Var: "y", Sources: []IteratorFactory{sourceOf()}}
	step := OptionalStep{Inner: inner}

	var got []Row
	err := step.Run(context.Background(), Row{"seed": bindingFor("s")}, func(row Row) error {
		got = append(got, row)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	_, hasY := got[0]["y"]
	require.False(t, hasY)
}

func TestDisjunctionStepDeduplicatesAcrossBranches(t *testing.T) {
	branchA := IntersectionStep{Var: "x", Sources: []IteratorFactory{sourceOf("a", "b")}}
	branchB := IntersectionStep{Var: "x", Sources: []IteratorFactory{sourceOf("b", "c")}}
	step := DisjunctionStep{Branches: []ExecutionStep{branchA, branchB}, DedupVars: []string{"x"}}

	var got []string
	err := step.Run(context.Background(), Row{}, func(row Row) error {
		got = append(got, string(row["x"].Thing.ID))
		return nil
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b", "c"}, got)
}
