// Package executor wires a seeded type-inference graph (pkg/inference)
// to the abstract match executor (C7, engine/executor.go): it resolves
// each constraint's per-type candidate set into concrete
// engine.IteratorFactory closures backed by pkg/concept.ThingManager,
// and compiles residual predicates into engine.CheckInstructions.
//
// No query planning or cost-based ordering happens here (SPEC_FULL.md
// Non-goals carried through): the constraint order a Conjunction was
// authored in is the order its steps run in. A real deployment would
// sit a planner in front of this package; pkg/executor only consumes an
// already-ordered constraint list, in the same spirit as the teacher's
// pkg/graph/check consuming an already-expanded userset tree.
package executor

import (
	"context"
	"sort"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/concept"
	"github.com/pthm/typecore/pkg/inference"
)

// thingIteratorFromRefs sorts refs by type label then vertex ID
// (thingSortKey) and adapts them
// into an engine.TypedIterator, mirroring engine.NewSliceTypedIterator
// but binding a full ThingRef rather than a raw Key/Binding pair a
// caller would otherwise have to reassemble.
func thingIteratorFromRefs(refs []engine.ThingRef) engine.TypedIterator {
	items := make([]engine.SortedBinding, 0, len(refs))
	for _, r := range refs {
		r := r
		items = append(items, engine.SortedBinding{
			Key:     thingSortKey(r),
			Binding: engine.Binding{Thing: &r},
		})
	}
	return engine.NewSliceTypedIterator(items)
}

func thingSortKey(r engine.ThingRef) engine.Key {
	out := append([]byte{}, []byte(r.Type.String())...)
	out = append(out, 0x00)
	out = append(out, r.ID...)
	return out
}

// isaIteratorFactory returns an IteratorFactory yielding every instance
// of every type in the seeded TypeSet types, merging across
// concrete types since distinct types don't share a key prefix (spec
// §4.7's positive-iteration source for an Isa-bound variable).
func isaIteratorFactory(tm *concept.ThingManager, types *inference.TypeSet) engine.IteratorFactory {
	candidates := types.Slice()
	return func(ctx context.Context, _ engine.Row) (engine.TypedIterator, error) {
		var all []engine.ThingRef
		for _, t := range candidates {
			refs, err := tm.IterateInstancesOfType(ctx, t)
			if err != nil {
				return nil, err
			}
			all = append(all, refs...)
		}
		return thingIteratorFromRefs(all), nil
	}
}

// hasOwnerFactory yields attribute instances owned by the already-bound
// owner variable (spec §4.4.1 Has, left-to-right direction).
func hasOwnerFactory(tm *concept.ThingManager, ownerVar string) engine.IteratorFactory {
	return func(ctx context.Context, row engine.Row) (engine.TypedIterator, error) {
		owner, ok := row[ownerVar]
		if !ok || !owner.IsThing() {
			return engine.NewSliceTypedIterator(nil), nil
		}
		refs, err := tm.IterateAttributesOfOwner(ctx, *owner.Thing)
		if err != nil {
			return nil, err
		}
		return thingIteratorFromRefs(refs), nil
	}
}

// hasAttrFactory yields owner instances of the already-bound attribute
// variable (spec §4.4.1 Has, right-to-left direction).
func hasAttrFactory(tm *concept.ThingManager, attrVar string) engine.IteratorFactory {
	return func(ctx context.Context, row engine.Row) (engine.TypedIterator, error) {
		attr, ok := row[attrVar]
		if !ok || !attr.IsThing() {
			return engine.NewSliceTypedIterator(nil), nil
		}
		refs, err := tm.IterateOwnersOfAttribute(ctx, *attr.Thing)
		if err != nil {
			return nil, err
		}
		return thingIteratorFromRefs(refs), nil
	}
}

// linksPlayerFactory yields players of the already-bound relation
// variable, optionally restricted to roleTypes (spec §4.4.1 Links,
// relation-to-player direction).
func linksPlayerFactory(tm *concept.ThingManager, relationVar string, roleTypes *inference.TypeSet) engine.IteratorFactory {
	return func(ctx context.Context, row engine.Row) (engine.TypedIterator, error) {
		rel, ok := row[relationVar]
		if !ok || !rel.IsThing() {
			return engine.NewSliceTypedIterator(nil), nil
		}
		entries, err := tm.IteratePlayersOfRelation(ctx, *rel.Thing)
		if err != nil {
			return nil, err
		}
		var refs []engine.ThingRef
		for _, e := range entries {
			if roleTypes != nil && !roleTypes.Contains(e.Role) {
				continue
			}
			refs = append(refs, e.Player)
		}
		return thingIteratorFromRefs(refs), nil
	}
}

// linksRelationFactory yields relations the already-bound player
// variable plays in, optionally restricted to roleTypes (spec §4.4.1
// Links, player-to-relation direction).
func linksRelationFactory(tm *concept.ThingManager, playerVar string, roleTypes *inference.TypeSet) engine.IteratorFactory {
	return func(ctx context.Context, row engine.Row) (engine.TypedIterator, error) {
		player, ok := row[playerVar]
		if !ok || !player.IsThing() {
			return engine.NewSliceTypedIterator(nil), nil
		}
		entries, err := tm.IterateRelationsOfPlayer(ctx, *player.Thing)
		if err != nil {
			return nil, err
		}
		var refs []engine.ThingRef
		for _, e := range entries {
			if roleTypes != nil && !roleTypes.Contains(e.Role) {
				continue
			}
			refs = append(refs, e.Other)
		}
		return thingIteratorFromRefs(refs), nil
	}
}

// sortTypeIDs is a small helper so role-binding steps (which bind a type
// variable, not a thing) emit in deterministic order for tests.
func sortTypeIDs(ids []engine.TypeID) []engine.TypeID {
	out := append([]engine.TypeID{}, ids...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
