package engine

import "context"

// ThingFacts is the minimal read surface over instance data the checker
// and executor need: existence and cardinality of Has/Links edges and
// the role-player index (spec §4.3, §4.6). pkg/concept.ThingManager
// implements this.
type ThingFacts interface {
	// HasCount returns the Has edge count between owner and attr, or
	// (0, false) if absent.
	HasCount(ctx context.Context, owner, attr ThingRef) (uint64, bool, error)
	// LinksCount returns the Links edge count for (relation, player,
	// role), or (0, false) if absent.
	LinksCount(ctx context.Context, relation, player ThingRef, role TypeID) (uint64, bool, error)
	// IndexedPair reports whether the role-player index contains a
	// directed (start, end) pair for relation, and if so the
	// (startRole, endRole, count) annotation (spec §3).
	IndexedPair(ctx context.Context, relation, start, end ThingRef) (startRole, endRole TypeID, count uint64, ok bool, err error)
	// Exists reports whether a vertex with this ID is present (used by
	// the Iid check instruction).
	Exists(ctx context.Context, ref ThingRef) (bool, error)
}
