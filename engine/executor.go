package engine

import (
	"context"
	"sort"
)

// SortedBinding is one candidate value a TypedIterator can yield for its
// bound variable, ordered by Key so IntersectionStep can sort-merge
// several iterators in lockstep (spec §4.7).
type SortedBinding struct {
	Key     Key
	Binding Binding
}

// TypedIterator yields SortedBindings for a single variable in
// non-decreasing Key order. Concrete implementations are built in
// pkg/executor (iterators.go) with NewSliceTypedIterator over the
// instances, attribute owners and role players pkg/concept returns;
// engine only consumes the interface.
type TypedIterator interface {
	Next(ctx context.Context) bool
	Item() SortedBinding
	// Seek advances to the first item whose Key is >= target, or
	// exhausts the iterator if none exists.
	Seek(ctx context.Context, target Key) bool
	Err() error
	Close() error
}

// IteratorFactory produces a fresh TypedIterator for Var, seeded with
// whatever bindings the partial Row already carries (so a nested
// iterator inside a Cartesian expansion can specialize its scan).
type IteratorFactory func(ctx context.Context, row Row) (TypedIterator, error)

// ExecutionStep is one stage of a compiled match plan (spec §4.7). A
// plan is a flat slice of steps executed in order; each step consumes
// and produces Rows.
type ExecutionStep interface {
	// Run applies the step to a single input row, invoking emit for each
	// output row it produces. Steps that don't expand cardinality (most
	// checks) emit at most once.
	Run(ctx context.Context, row Row, emit func(Row) error) error
}

// IntersectionStep computes the n-way sort-merge intersection of several
// TypedIterators that all bind the same variable, advancing the
// furthest-behind iterator via Seek until all agree on a Key (spec
// §4.7). This is the core positive-iteration primitive; a single-source
// binding (len(Sources) == 1) degenerates to a plain scan.
type IntersectionStep struct {
	Var     string
	Sources []IteratorFactory
}

func (s IntersectionStep) Run(ctx context.Context, row Row, emit func(Row) error) error {
	if len(s.Sources) == 0 {
		return nil
	}
	iters := make([]TypedIterator, len(s.Sources))
	for i, f := range s.Sources {
		it, err := f(ctx, row)
		if err != nil {
			return err
		}
		iters[i] = it
	}
	defer func() {
		for _, it := range iters {
			_ = it.Close()
		}
	}()

	if len(iters) == 1 {
		return s.scanSingle(ctx, iters[0], row, emit)
	}
	return s.mergeAll(ctx, iters, row, emit)
}

func (s IntersectionStep) scanSingle(ctx context.Context, it TypedIterator, row Row, emit func(Row) error) error {
	for it.Next(ctx) {
		out := row.Clone()
		out[s.Var] = it.Item().Binding
		if err := emit(out); err != nil {
			return err
		}
	}
	return it.Err()
}

// mergeAll advances every iterator to the start, then repeatedly finds
// the maximum current key and seeks every other iterator up to it; once
// all keys agree, it is a match and every iterator advances once.
func (s IntersectionStep) mergeAll(ctx context.Context, iters []TypedIterator, row Row, emit func(Row) error) error {
	for _, it := range iters {
		if !it.Next(ctx) {
			return it.Err()
		}
	}
	for {
		maxKey := iters[0].Item().Key
		for _, it := range iters[1:] {
			if bytesLess(maxKey, it.Item().Key) {
				maxKey = it.Item().Key
			}
		}

		allMatch := true
		for _, it := range iters {
			k := it.Item().Key
			if bytesEqualKey(k, maxKey) {
				continue
			}
			allMatch = false
			if !it.Seek(ctx, maxKey) {
				return it.Err()
			}
		}
		if !allMatch {
			continue
		}

		out := row.Clone()
		out[s.Var] = iters[0].Item().Binding
		if err := emit(out); err != nil {
			return err
		}
		for _, it := range iters {
			if !it.Next(ctx) {
				return it.Err()
			}
		}
	}
}

func bytesLess(a, b Key) bool {
	la, lb := len(a), len(b)
	for i := 0; i < la && i < lb; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return la < lb
}

func bytesEqualKey(a, b Key) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CartesianStep nests a sub-iterator (itself typically an
// IntersectionStep or another CartesianStep) for every row surviving the
// outer stage, generalizing n-ary patterns whose variables cannot all
// share one sort-merge key (spec §4.7: "Cartesian sub-iterators" for
// patterns an IntersectionStep cannot express directly, e.g. unrelated
// variable pairs joined only by a later Checker residual).
type CartesianStep struct {
	Inner ExecutionStep
}

func (s CartesianStep) Run(ctx context.Context, row Row, emit func(Row) error) error {
	return s.Inner.Run(ctx, row, emit)
}

// CheckStep filters rows through a Checker without expanding cardinality.
type CheckStep struct {
	Checker      *Checker
	Instructions []CheckInstruction
}

func (s CheckStep) Run(ctx context.Context, row Row, emit func(Row) error) error {
	ok, err := s.Checker.Run(ctx, s.Instructions, row)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return emit(row)
}

// NegationStep succeeds (passing the row through unmodified) iff Inner
// produces no rows at all when run against a clone of row (spec §4.4.2
// nested negation). Inner is expected to be a small self-contained
// sub-plan compiled by pkg/inference for the negated pattern.
type NegationStep struct {
	Inner ExecutionStep
}

func (s NegationStep) Run(ctx context.Context, row Row, emit func(Row) error) error {
	found := false
	err := s.Inner.Run(ctx, row.Clone(), func(Row) error {
		found = true
		return errStopIteration
	})
	if err != nil && err != errStopIteration {
		return err
	}
	if found {
		return nil
	}
	return emit(row)
}

var errStopIteration = stopIteration{}

type stopIteration struct{}

func (stopIteration) Error() string { return "engine: iteration stopped early" }

// DisjunctionStep runs every branch against a clone of the input row and
// emits the union of their outputs, deduplicated by the set of variables
// named in DedupVars (spec §4.4.2, §4.5.4 "intersect-then-union"
// reconciliation happens earlier at the type level; at execution time a
// disjunction is a plain union of branch results).
type DisjunctionStep struct {
	Branches  []ExecutionStep
	DedupVars []string
}

func (s DisjunctionStep) Run(ctx context.Context, row Row, emit func(Row) error) error {
	seen := make(map[string]bool)
	for _, branch := range s.Branches {
		err := branch.Run(ctx, row.Clone(), func(out Row) error {
			key := rowKey(out, s.DedupVars)
			if seen[key] {
				return nil
			}
			seen[key] = true
			return emit(out)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func rowKey(row Row, vars []string) string {
	if len(vars) == 0 {
		return ""
	}
	parts := make([]string, len(vars))
	for i, v := range vars {
		b, ok := row[v]
		if !ok {
			parts[i] = "\x00"
			continue
		}
		switch {
		case b.IsThing():
			parts[i] = b.Thing.Type.String() + ":" + string(b.Thing.ID)
		case b.TypeVal != nil:
			parts[i] = b.TypeVal.String()
		default:
			parts[i] = string(b.Value)
		}
	}
	key := ""
	for _, p := range parts {
		key += p + "\x1f"
	}
	return key
}

// OptionalStep runs Inner against the row; if Inner produces no rows the
// original row passes through unmodified (its optional variables remain
// unbound, to be filtered later by a NotNoneCheck if the query demands
// it), otherwise every row Inner produced is emitted (spec §4.4.2).
type OptionalStep struct {
	Inner ExecutionStep
}

func (s OptionalStep) Run(ctx context.Context, row Row, emit func(Row) error) error {
	produced := false
	err := s.Inner.Run(ctx, row.Clone(), func(out Row) error {
		produced = true
		return emit(out)
	})
	if err != nil {
		return err
	}
	if !produced {
		return emit(row)
	}
	return nil
}

// MatchExecutor runs a compiled, flat sequence of ExecutionSteps over a
// stream of input rows, checking the supplied Interrupt between rows so
// a long-running match can be cancelled promptly (spec §4.7, §5).
type MatchExecutor struct {
	Steps     []ExecutionStep
	Interrupt Interrupt
}

// NewMatchExecutor builds an executor for steps, defaulting to
// NoInterrupt() when interrupt is nil.
func NewMatchExecutor(steps []ExecutionStep, interrupt Interrupt) *MatchExecutor {
	if interrupt == nil {
		interrupt = NoInterrupt()
	}
	return &MatchExecutor{Steps: steps, Interrupt: interrupt}
}

// Execute runs the whole plan starting from a single seed row (typically
// empty, or pre-bound with query input parameters), invoking emit for
// every completed output row. Execute checks the interrupt before
// running each step invocation, surfacing a QueryInterrupted error the
// instant one fires rather than after the current row drains.
func (e *MatchExecutor) Execute(ctx context.Context, seed Row, emit func(Row) error) error {
	return e.runFrom(ctx, 0, seed, emit)
}

func (e *MatchExecutor) runFrom(ctx context.Context, idx int, row Row, emit func(Row) error) error {
	if kind, fired := e.Interrupt.Check(); fired {
		return &QueryInterrupted{Interrupt: kind}
	}
	if idx >= len(e.Steps) {
		return emit(row)
	}
	return e.Steps[idx].Run(ctx, row, func(out Row) error {
		return e.runFrom(ctx, idx+1, out, emit)
	})
}

// sortedKeys orders items by Key for NewSliceTypedIterator, so a caller
// that builds its candidate set eagerly rather than streaming it gets
// back a slice-backed TypedIterator that is already ordered (spec §4.7
// requires Key order for IntersectionStep correctness).
func sortedKeys(items []SortedBinding) []SortedBinding {
	sort.Slice(items, func(i, j int) bool { return bytesLess(items[i].Key, items[j].Key) })
	return items
}

// SliceTypedIterator adapts a pre-sorted slice of SortedBindings into a
// TypedIterator, for backends (or tests) that materialize candidates
// rather than streaming them from a Snapshot.
type SliceTypedIterator struct {
	items []SortedBinding
	pos   int
}

// NewSliceTypedIterator sorts items by Key and returns a ready iterator.
func NewSliceTypedIterator(items []SortedBinding) *SliceTypedIterator {
	return &SliceTypedIterator{items: sortedKeys(items), pos: -1}
}

func (it *SliceTypedIterator) Next(_ context.Context) bool {
	it.pos++
	return it.pos < len(it.items)
}

func (it *SliceTypedIterator) Item() SortedBinding { return it.items[it.pos] }

func (it *SliceTypedIterator) Seek(_ context.Context, target Key) bool {
	idx := sort.Search(len(it.items), func(i int) bool { return !bytesLess(it.items[i].Key, target) })
	it.pos = idx
	return it.pos < len(it.items)
}

func (it *SliceTypedIterator) Err() error   { return nil }
func (it *SliceTypedIterator) Close() error { return nil }
