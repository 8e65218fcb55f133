// Package engine provides the hot execution path of typecore: the
// Snapshot contract and its in-memory implementation (MemStore), per-row
// predicate checking, and the intersection-step match executor. Instance
// storage lives in the root module (pkg/concept) and is read here only
// through the ThingFacts interface.
//
// # Module Structure
//
// This is the Go runtime module (github.com/pthm/typecore/engine), which
// has zero external dependencies (stdlib only). It provides the types
// that a planner (not specified here) targets and that a transaction
// service (github.com/pthm/typecore/pkg/txn, in the root module) drives.
//
// The root module (github.com/pthm/typecore) contains the schema cache,
// type-inference compiler, concrete storage backends, and CLI. Embedding
// applications that only need to execute an already-planned pipeline
// against their own Snapshot implementation can depend on this module
// alone.
//
// # Basic Usage
//
//	// steps is an already-planned []engine.ExecutionStep; its check
//	// steps use engine.NewChecker(schemaFacts, thingFacts).
//	exec := engine.NewMatchExecutor(steps, engine.NoInterrupt())
//	err := exec.Execute(ctx, engine.Row{}, func(row engine.Row) error {
//		fmt.Println(row)
//		return nil
//	})
//
// # Interrupts
//
// Every blocking iteration step consults an Interrupt handle. Callers
// that need to cancel an in-flight query create an InterruptSource with
// NewInterruptSource, pass a receiver from its NewReceiver method down
// with the plan, and broadcast with Fire.
package engine

// Vertex identifies a node in a type inference graph: a variable, a
// schema label, or a parameter slot (spec §3, GLOSSARY: Vertex).
type Vertex struct {
	Variable  string // non-empty for variable vertices
	Label     string // non-empty for label (fixed-type) vertices
	Parameter string // non-empty for parameter-slot vertices
}

// Kind enumerates the four disjoint schema kinds.
type Kind int

const (
	KindEntity Kind = iota
	KindRelation
	KindAttribute
	KindRole
)

func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindRelation:
		return "relation"
	case KindAttribute:
		return "attribute"
	case KindRole:
		return "role"
	default:
		return "unknown"
	}
}

// TypeID identifies a schema type (entity, relation, attribute, or role
// type) independent of any particular snapshot's internal encoding.
type TypeID struct {
	Kind  Kind
	Label string
}

func (t TypeID) String() string {
	return t.Kind.String() + ":" + t.Label
}
