package inference

import (
	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/pattern"
)

// Vertex re-exports engine.Vertex: a variable, schema label, or
// parameter slot (spec §3, GLOSSARY).
type Vertex = engine.Vertex

// Edge is the bipartite mapping of admissible type pairs for one binary
// constraint (spec §3: "for each binary constraint, left→right and
// right→left mappings Type -> Set<Type>"). Pair symmetry (spec §8) means
// LeftToRight[l] contains r iff RightToLeft[r] contains l, once seeded.
type Edge struct {
	LeftToRight map[engine.TypeID]*TypeSet
	RightToLeft map[engine.TypeID]*TypeSet
}

func newEdge() *Edge {
	return &Edge{LeftToRight: make(map[engine.TypeID]*TypeSet), RightToLeft: make(map[engine.TypeID]*TypeSet)}
}

func (e *Edge) link(l, r engine.TypeID) {
	if e.LeftToRight[l] == nil {
		e.LeftToRight[l] = NewTypeSet()
	}
	e.LeftToRight[l].Add(r)
	if e.RightToLeft[r] == nil {
		e.RightToLeft[r] = NewTypeSet()
	}
	e.RightToLeft[r].Add(l)
}

// DisjunctionNode is one `or` nested pattern: several branch graphs plus
// the variables shared with (and visible in) the parent scope (spec §3).
type DisjunctionNode struct {
	Branches        []*Graph
	SharedVariables []Vertex
}

// Graph is the per-conjunction type inference graph (C4, spec §3).
type Graph struct {
	Conjunction pattern.Conjunction

	Vertices map[Vertex]*TypeSet
	// Edges is keyed by the constraint's index within Conjunction.Constraints.
	Edges map[int]*Edge

	// LinksPlaysEdges holds the player↔role half of a decomposed Links
	// constraint (spec §4.4.1: "Links (decomposed) ... relates + plays").
	// Edges holds the relation↔role half for the same constraint index.
	LinksPlaysEdges map[int]*Edge

	NestedDisjunctions []DisjunctionNode
	NestedNegations    []*Graph
	NestedOptionals    []*Graph

	// Unsatisfiable holds the first pruning failure discovered for this
	// graph, if any (spec §8 scenario 2: DetectedUnsatisfiableEdge).
	Unsatisfiable *UnsatisfiableError
}

func newGraph(conj pattern.Conjunction) *Graph {
	return &Graph{
		Conjunction:     conj,
		Vertices:        make(map[Vertex]*TypeSet),
		Edges:           make(map[int]*Edge),
		LinksPlaysEdges: make(map[int]*Edge),
	}
}

// varVertex builds the Vertex value for a pattern.Variable.
func varVertex(v pattern.Variable) Vertex { return Vertex{Variable: string(v)} }

// labelVertex builds the Vertex value for a fixed schema label.
func labelVertex(label string) Vertex { return Vertex{Label: label} }
