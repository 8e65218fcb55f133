package inference

import (
	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/pattern"
)

// SeedingContext is C5 (spec §2, §4.4.2): it builds and solves a C4
// graph against a fixed schema view.
type SeedingContext struct {
	Schema Schema
}

// NewSeedingContext builds a seeding context over the given schema view.
func NewSeedingContext(schema Schema) *SeedingContext {
	return &SeedingContext{Schema: schema}
}

// CreateGraph builds and seeds a type inference graph for conj, folding
// in upstreamVars (bindings already fixed by an enclosing pipeline
// stage) before the fixpoint loop runs (spec §4.4.2 create_graph).
func (ctx *SeedingContext) CreateGraph(upstreamVars map[Vertex]*TypeSet, conj pattern.Conjunction) (*Graph, error) {
	g := ctx.buildRecursive(conj)
	for v := range allVariables(conj) {
		vertex := varVertex(v)
		up, ok := upstreamVars[vertex]
		if !ok {
			continue
		}
		if cur, ok := g.Vertices[vertex]; ok {
			g.Vertices[vertex] = cur.Intersect(up)
		} else {
			g.Vertices[vertex] = up.Clone()
		}
	}
	if err := ctx.seedTypes(g, nil); err != nil {
		return g, err
	}
	return g, nil
}

// buildRecursive constructs empty shells for conj's nested disjunctions,
// negations, and optionals (spec §4.4.2: "g := build_recursive(conjunction)
// // shells for disjunctions/negations/optionals").
func (ctx *SeedingContext) buildRecursive(conj pattern.Conjunction) *Graph {
	g := newGraph(conj)
	outer := topLevelVariables(conj)
	for _, nested := range conj.Nested {
		switch nested.Kind {
		case pattern.NestedDisjunction:
			branches := make([]*Graph, len(nested.Branches))
			sharedSet := make(map[pattern.Variable]struct{})
			for i, b := range nested.Branches {
				branches[i] = ctx.buildRecursive(b)
				for v := range allVariables(b) {
					if _, ok := outer[v]; ok {
						sharedSet[v] = struct{}{}
					}
				}
			}
			shared := make([]Vertex, 0, len(sharedSet))
			for v := range sharedSet {
				shared = append(shared, varVertex(v))
			}
			g.NestedDisjunctions = append(g.NestedDisjunctions, DisjunctionNode{
				Branches:        branches,
				SharedVariables: shared,
			})
		case pattern.NestedNegation:
			g.NestedNegations = append(g.NestedNegations, ctx.buildRecursive(nested.Branches[0]))
		case pattern.NestedOptional:
			g.NestedOptionals = append(g.NestedOptionals, ctx.buildRecursive(nested.Branches[0]))
		}
	}
	return g
}

// seedTypes is spec §4.4.2's seed_types: merge inherited vertices,
// resolve unary constraints, run binary propagation and disjunction
// reconciliation to a fixpoint, prune abstract types from thing
// vertices, materialize edges, then recurse into negations/optionals.
func (ctx *SeedingContext) seedTypes(g *Graph, parentVars map[Vertex]*TypeSet) error {
	for v, set := range parentVars {
		if cur, ok := g.Vertices[v]; ok {
			g.Vertices[v] = cur.Intersect(set)
		} else {
			g.Vertices[v] = set.Clone()
		}
	}

	varCats := inferVarCategories(g.Conjunction)
	ctx.applyUnary(g, varCats)

	// Seed disjunction branches with whatever is already known for
	// their shared variables, ahead of the fixpoint loop proper (spec
	// §4.4.2: "recurse into nested disjunction branches (vertices only)").
	for _, dn := range g.NestedDisjunctions {
		for _, shared := range dn.SharedVariables {
			set, ok := g.Vertices[shared]
			if !ok {
				continue
			}
			for _, branch := range dn.Branches {
				if cur, ok := branch.Vertices[shared]; ok {
					branch.Vertices[shared] = cur.Intersect(set)
				} else {
					branch.Vertices[shared] = set.Clone()
				}
			}
		}
	}

	for {
		changed := true
		for changed {
			changed = ctx.propagateBinary(g)
			if ctx.reconcileDisjunctions(g) {
				changed = true
			}
		}
		if ctx.assignUnboundedForUnseeded(g, varCats) {
			continue
		}
		break
	}

	if err := ctx.pruneAbstractFromThingVertices(g, varCats); err != nil {
		return err
	}
	if err := ctx.seedEdges(g); err != nil {
		return err
	}

	// Fully solve each disjunction branch now that shared variables
	// carry their final parent annotation; each branch is a complete C4
	// in its own right and needs its own edges materialized.
	for _, dn := range g.NestedDisjunctions {
		for _, branch := range dn.Branches {
			if err := ctx.seedTypes(branch, nil); err != nil {
				return err
			}
		}
	}

	// Negations/optionals are seeded from the now-solved parent
	// vertices but never feed annotations back (spec §3: "do not feed
	// annotations back").
	for _, neg := range g.NestedNegations {
		if err := ctx.seedTypes(neg, g.Vertices); err != nil {
			return err
		}
	}
	for _, opt := range g.NestedOptionals {
		if err := ctx.seedTypes(opt, g.Vertices); err != nil {
			return err
		}
	}
	return nil
}

// propagateBinary runs one pass of spec §4.4.2's propagate_binary: for
// every binary constraint with exactly one side seeded, fills the other
// via its step function. Reports whether any vertex changed.
func (ctx *SeedingContext) propagateBinary(g *Graph) bool {
	changed := false
	for _, c := range g.Conjunction.Constraints {
		switch c.Kind {
		case pattern.ConstraintLinks:
			if ctx.propagatePair(g, varVertex(c.Left), varVertex(c.RoleVar), linksRelatesBehavior(), c) {
				changed = true
			}
			if ctx.propagatePair(g, varVertex(c.Right), varVertex(c.RoleVar), linksPlaysBehavior(), c) {
				changed = true
			}
		default:
			behavior, ok := binaryBehaviors[c.Kind]
			if !ok || c.Right == "" {
				continue
			}
			if ctx.propagatePair(g, varVertex(c.Left), varVertex(c.Right), behavior, c) {
				changed = true
			}
		}
	}
	return changed
}

func (ctx *SeedingContext) propagatePair(g *Graph, lv, rv Vertex, behavior binaryBehavior, c pattern.Constraint) bool {
	ls, lok := g.Vertices[lv]
	rs, rok := g.Vertices[rv]
	switch {
	case lok && !rok && behavior.StepLeftToRight != nil:
		out := NewTypeSet()
		for _, t := range ls.Slice() {
			for _, r := range behavior.StepLeftToRight(ctx.Schema, c, t) {
				out.Add(r)
			}
		}
		g.Vertices[rv] = out
		return true
	case rok && !lok && behavior.StepRightToLeft != nil:
		out := NewTypeSet()
		for _, t := range rs.Slice() {
			for _, l := range behavior.StepRightToLeft(ctx.Schema, c, t) {
				out.Add(l)
			}
		}
		g.Vertices[lv] = out
		return true
	default:
		// Both sides set (pruning fixes the edge later), or neither
		// set, or no step function in this direction (e.g. Comparison).
		return false
	}
}

// reconcileDisjunctions is spec §4.4.2's reconcile_disjunctions: push
// parent knowledge of shared variables into each branch, propagate each
// branch to its own fixpoint, then union branch annotations of
// all-branch-present shared variables back into the parent.
func (ctx *SeedingContext) reconcileDisjunctions(g *Graph) bool {
	changed := false
	for _, dn := range g.NestedDisjunctions {
		for _, shared := range dn.SharedVariables {
			parentSet, ok := g.Vertices[shared]
			if !ok {
				continue
			}
			for _, branch := range dn.Branches {
				if cur, ok := branch.Vertices[shared]; ok {
					branch.Vertices[shared] = cur.Intersect(parentSet)
				} else {
					branch.Vertices[shared] = parentSet.Clone()
				}
			}
		}

		for _, branch := range dn.Branches {
			inner := true
			for inner {
				inner = ctx.propagateBinary(branch)
				if ctx.reconcileDisjunctions(branch) {
					inner = true
				}
			}
		}

		for _, shared := range dn.SharedVariables {
			var union *TypeSet
			presentInAll := true
			for _, branch := range dn.Branches {
				set, ok := branch.Vertices[shared]
				if !ok {
					presentInAll = false
					break
				}
				if union == nil {
					union = set.Clone()
				} else {
					union = union.Union(set)
				}
			}
			if !presentInAll || union == nil {
				continue
			}
			if cur, ok := g.Vertices[shared]; !ok || !cur.Equal(union) {
				g.Vertices[shared] = union
				changed = true
			}
		}
	}
	return changed
}

// assignUnboundedForUnseeded fills any local variable still lacking an
// annotation with the unbounded set for its category (spec §4.4.2: "if
// any local variable lacks an annotation, assign the unbounded set for
// its category and continue"). Value-category variables are skipped:
// they bind to literal values, never a TypeSet (spec I1).
func (ctx *SeedingContext) assignUnboundedForUnseeded(g *Graph, varCats map[pattern.Variable]pattern.VarCategory) bool {
	changed := false
	for v := range topLevelVariables(g.Conjunction) {
		vertex := varVertex(v)
		if _, ok := g.Vertices[vertex]; ok {
			continue
		}
		cat := varCats[v]
		if cat == pattern.CategoryValue {
			continue
		}
		g.Vertices[vertex] = ctx.unboundedSetForCategory(cat)
		changed = true
	}
	return changed
}

func (ctx *SeedingContext) unboundedSetForCategory(cat pattern.VarCategory) *TypeSet {
	out := NewTypeSet()
	kinds := []engine.Kind{engine.KindEntity, engine.KindRelation, engine.KindAttribute}
	if cat == pattern.CategoryType {
		kinds = append(kinds, engine.KindRole)
	}
	for _, k := range kinds {
		for _, t := range ctx.Schema.GetKindTypes(k) {
			out.Add(t)
		}
	}
	return out
}

// applyUnary resolves Kind/Label/RoleName/Value unary constraints into
// their vertex's candidate set (spec §4.4.1, §4.4.2). A vertex already
// seeded (e.g. by a second unary constraint on the same variable) is
// intersected rather than overwritten.
func (ctx *SeedingContext) applyUnary(g *Graph, _ map[pattern.Variable]pattern.VarCategory) {
	for _, c := range g.Conjunction.Constraints {
		var set *TypeSet
		switch c.Kind {
		case pattern.ConstraintKindOf:
			set = NewTypeSet(ctx.Schema.GetKindTypes(c.KindOf)...)
		case pattern.ConstraintLabel:
			if id, ok := ctx.resolveLabel(c.Label); ok {
				set = NewTypeSet(id)
			} else {
				set = NewTypeSet()
			}
		case pattern.ConstraintRoleName:
			set = NewTypeSet(ctx.Schema.GetRolesByName(c.Label)...)
		case pattern.ConstraintValue:
			set = NewTypeSet(ctx.Schema.AttributeTypesWithValueType(c.ValueCat)...)
		default:
			continue
		}
		vertex := varVertex(c.Left)
		if cur, ok := g.Vertices[vertex]; ok {
			g.Vertices[vertex] = cur.Intersect(set)
		} else {
			g.Vertices[vertex] = set
		}
	}
}

// resolveLabel finds the type a fixed schema label names. Labels are
// unique across all four kind namespaces (spec §4.5), so the first kind
// matching wins.
func (ctx *SeedingContext) resolveLabel(label string) (engine.TypeID, bool) {
	for _, k := range []engine.Kind{engine.KindEntity, engine.KindRelation, engine.KindAttribute, engine.KindRole} {
		if id, ok := ctx.Schema.GetTypeIDByLabel(k, label); ok {
			return id, true
		}
	}
	return engine.TypeID{}, false
}

// pruneAbstractFromThingVertices removes abstract types from every
// thing-category vertex (spec I4, §4.4.3: "Abstract types are removed
// from instance variables in a separate pass before edge seeding").
// A thing vertex pruned to empty is unsatisfiable (spec I3).
func (ctx *SeedingContext) pruneAbstractFromThingVertices(g *Graph, varCats map[pattern.Variable]pattern.VarCategory) error {
	for v, cat := range varCats {
		if cat != pattern.CategoryThing {
			continue
		}
		vertex := varVertex(v)
		set, ok := g.Vertices[vertex]
		if !ok {
			continue
		}
		pruned := NewTypeSet()
		for _, t := range set.Slice() {
			if !ctx.Schema.IsAbstract(t) {
				pruned.Add(t)
			}
		}
		g.Vertices[vertex] = pruned
		if pruned.Len() == 0 {
			err := &UnsatisfiableError{Variable: string(v)}
			g.Unsatisfiable = err
			return err
		}
	}
	return nil
}

type edgeEndpoint struct {
	edge *Edge
	left bool
}

// seedEdges materializes every binary constraint's left/right mapping
// (spec §4.4.2 seed_edges) then iterates spec §4.4.3's pruning fixpoint:
// filter each edge to pairs whose endpoints are still live, then shrink
// each vertex to types appearing in every incident edge, repeating
// until stable. A thing vertex emptied this way is unsatisfiable.
func (ctx *SeedingContext) seedEdges(g *Graph) error {
	incidence := make(map[Vertex][]edgeEndpoint)

	build := func(i int, lv, rv Vertex, behavior binaryBehavior, c pattern.Constraint, edges map[int]*Edge) {
		ls, lok := g.Vertices[lv]
		rs, rok := g.Vertices[rv]
		if !lok || !rok {
			return
		}
		e := newEdge()
		for _, l := range ls.Slice() {
			for _, r := range rs.Slice() {
				if behavior.Admissible(ctx.Schema, c, l, r) {
					e.link(l, r)
				}
			}
		}
		edges[i] = e
		incidence[lv] = append(incidence[lv], edgeEndpoint{edge: e, left: true})
		incidence[rv] = append(incidence[rv], edgeEndpoint{edge: e, left: false})
	}

	for i, c := range g.Conjunction.Constraints {
		switch c.Kind {
		case pattern.ConstraintLinks:
			build(i, varVertex(c.Left), varVertex(c.RoleVar), linksRelatesBehavior(), c, g.Edges)
			build(i, varVertex(c.Right), varVertex(c.RoleVar), linksPlaysBehavior(), c, g.LinksPlaysEdges)
		default:
			behavior, ok := binaryBehaviors[c.Kind]
			if !ok || c.Right == "" {
				continue
			}
			build(i, varVertex(c.Left), varVertex(c.Right), behavior, c, g.Edges)
		}
	}

	refilter := func(e *Edge, lv, rv Vertex) {
		ls := g.Vertices[lv]
		rs := g.Vertices[rv]
		ne := newEdge()
		for l, rset := range e.LeftToRight {
			if !ls.Contains(l) {
				continue
			}
			for _, r := range rset.Slice() {
				if rs.Contains(r) {
					ne.link(l, r)
				}
			}
		}
		*e = *ne
	}

	for {
		changed := false
		for vertex, sides := range incidence {
			set, ok := g.Vertices[vertex]
			if !ok {
				continue
			}
			kept := NewTypeSet()
			for _, t := range set.Slice() {
				inAll := true
				for _, s := range sides {
					var present bool
					if s.left {
						_, present = s.edge.LeftToRight[t]
					} else {
						_, present = s.edge.RightToLeft[t]
					}
					if !present {
						inAll = false
						break
					}
				}
				if inAll {
					kept.Add(t)
				}
			}
			if kept.Len() != set.Len() {
				g.Vertices[vertex] = kept
				changed = true
			}
		}
		if !changed {
			break
		}
		for i, c := range g.Conjunction.Constraints {
			switch c.Kind {
			case pattern.ConstraintLinks:
				if e, ok := g.Edges[i]; ok {
					refilter(e, varVertex(c.Left), varVertex(c.RoleVar))
				}
				if e, ok := g.LinksPlaysEdges[i]; ok {
					refilter(e, varVertex(c.Right), varVertex(c.RoleVar))
				}
			default:
				if e, ok := g.Edges[i]; ok && c.Right != "" {
					refilter(e, varVertex(c.Left), varVertex(c.Right))
				}
			}
		}
	}

	varCats := inferVarCategories(g.Conjunction)
	for vertex := range incidence {
		v := pattern.Variable(vertex.Variable)
		if varCats[v] != pattern.CategoryThing {
			continue
		}
		if set, ok := g.Vertices[vertex]; ok && set.Len() == 0 {
			err := &UnsatisfiableError{Variable: vertex.Variable}
			g.Unsatisfiable = err
			return err
		}
	}
	return nil
}

func topLevelVariables(conj pattern.Conjunction) map[pattern.Variable]struct{} {
	out := make(map[pattern.Variable]struct{})
	add := func(v pattern.Variable) {
		if v != "" {
			out[v] = struct{}{}
		}
	}
	for _, c := range conj.Constraints {
		add(c.Left)
		add(c.Right)
		add(c.RoleVar)
	}
	return out
}

// allVariables collects every variable referenced anywhere in conj,
// including inside nested disjunctions/negations/optionals (spec I1's
// vertex-coverage requirement spans the whole conjunction tree).
func allVariables(conj pattern.Conjunction) map[pattern.Variable]struct{} {
	out := topLevelVariables(conj)
	for _, n := range conj.Nested {
		for _, b := range n.Branches {
			for v := range allVariables(b) {
				out[v] = struct{}{}
			}
		}
	}
	return out
}
