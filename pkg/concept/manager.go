package concept

import (
	"context"
	"fmt"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/typesystem"
)

// ThingManager is the write and read surface over one transaction's
// instance data (spec §4.3): entity/relation/attribute lifecycle, the
// Has and Links edges, the role-player index, and two-phase
// finalization. A ThingManager is bound to the ReadWriteSnapshot it was
// built over, the same way pkg/typesystem.TypeManager is bound to one
// snapshot's schema view.
type ThingManager struct {
	snapshot engine.Snapshot
	schema   *typesystem.TypeManager

	ordinals *ordinalRegistry

	// touched* track what this transaction changed, so Finalise doesn't
	// have to rescan the whole instance store to find candidates.
	touchedRelations  *bitmapWorklist
	touchedOwners     *bitmapWorklist
	touchedAttributes *bitmapWorklist

	// putAttributes remembers which attribute vertices this transaction
	// itself created via "put" semantics, so orphan cleanup can Unput
	// them instead of Delete (spec §4.1: Unput reverses a same-txn Put).
	putAttributes map[string]bool
}

// NewThingManager builds a ThingManager over snapshot/schema for the
// lifetime of one transaction. snapshot answers the engine.ThingFacts
// reads; write operations additionally take the ReadWriteSnapshot
// explicitly, mirroring pkg/typesystem.TypeManager's Set* methods.
func NewThingManager(snapshot engine.Snapshot, schema *typesystem.TypeManager) *ThingManager {
	reg := newOrdinalRegistry()
	return &ThingManager{
		snapshot:          snapshot,
		schema:            schema,
		ordinals:          reg,
		touchedRelations:  newBitmapWorklist(reg),
		touchedOwners:     newBitmapWorklist(reg),
		touchedAttributes: newBitmapWorklist(reg),
		putAttributes:     make(map[string]bool),
	}
}

// CreateEntity inserts a new entity vertex of t, registering it as a
// touched owner even before it has any Has edges so Finalise validates
// its mandatory (cardinality start >= 1) Owns edges against a true
// count of zero rather than skipping an owner it never saw.
func (m *ThingManager) CreateEntity(ctx context.Context, rw engine.ReadWriteSnapshot, t engine.TypeID) (engine.ThingRef, error) {
	if m.schema.IsAbstract(t) {
		return engine.ThingRef{}, fmt.Errorf("%w: %s", ErrAbstractType, t)
	}
	ref := newRef(t)
	if err := rw.Put(ctx, vertexKey(ref), []byte{1}); err != nil {
		return engine.ThingRef{}, err
	}
	m.touchedOwners.add(ref)
	return ref, nil
}

// CreateRelation inserts a new relation vertex of t, with no players
// yet, registering it as a touched owner for the same reason
// CreateEntity does.
func (m *ThingManager) CreateRelation(ctx context.Context, rw engine.ReadWriteSnapshot, t engine.TypeID) (engine.ThingRef, error) {
	if m.schema.IsAbstract(t) {
		return engine.ThingRef{}, fmt.Errorf("%w: %s", ErrAbstractType, t)
	}
	ref := newRef(t)
	if err := rw.Put(ctx, vertexKey(ref), []byte{1}); err != nil {
		return engine.ThingRef{}, err
	}
	m.touchedOwners.add(ref)
	return ref, nil
}

// CreateAttribute returns the attribute vertex holding value v, creating
// it if no vertex with that (type, value) already exists (spec §3's
// "put" semantics: equal values always resolve to the same vertex).
func (m *ThingManager) CreateAttribute(ctx context.Context, rw engine.ReadWriteSnapshot, t engine.TypeID, v AttributeValue) (engine.ThingRef, error) {
	if m.schema.IsAbstract(t) {
		return engine.ThingRef{}, fmt.Errorf("%w: %s", ErrAbstractType, t)
	}
	def, ok := m.schema.GetType(t)
	if !ok {
		return engine.ThingRef{}, fmt.Errorf("%w: %s", ErrVertexNotFound, t)
	}
	if err := validateValue(def, v); err != nil {
		return engine.ThingRef{}, err
	}

	raw := v.encode()
	id, inline := vertexID(raw)
	ref := engine.ThingRef{Type: t, ID: id}
	key := attributeVertexKey(ref)

	if _, found, err := rw.Get(ctx, key); err != nil {
		return engine.ThingRef{}, err
	} else if found {
		return ref, nil
	}

	if err := rw.PutVal(ctx, key, raw); err != nil {
		return engine.ThingRef{}, err
	}
	if !inline {
		if err := rw.PutVal(ctx, attributeHashKey(t, id), ref.ID); err != nil {
			return engine.ThingRef{}, err
		}
	}
	m.putAttributes[refKey(ref)] = true
	return ref, nil
}

// DeleteEntity removes an entity vertex. Callers are responsible for
// detaching its Has/Links edges first (or relying on Finalise's
// cascade for the relation/attribute side of that detachment).
func (m *ThingManager) DeleteEntity(ctx context.Context, rw engine.ReadWriteSnapshot, ref engine.ThingRef) error {
	return m.deleteVertex(ctx, rw, ref, vertexKey(ref))
}

// DeleteRelation removes a relation vertex directly, bypassing the
// finalize-time empty-relation cascade. Most callers should instead let
// DecrementLinksCount drop the last player and leave cleanup to
// Finalise; this is for an explicit delete-relation operation.
func (m *ThingManager) DeleteRelation(ctx context.Context, rw engine.ReadWriteSnapshot, ref engine.ThingRef) error {
	return m.deleteVertex(ctx, rw, ref, vertexKey(ref))
}

// DeleteAttribute removes an attribute vertex directly. Most callers
// should instead let UnsetHas drop the last owner and leave cleanup to
// Finalise, unless the attribute is Independent (spec §3) and must be
// removed explicitly.
func (m *ThingManager) DeleteAttribute(ctx context.Context, rw engine.ReadWriteSnapshot, ref engine.ThingRef) error {
	return m.deleteVertex(ctx, rw, ref, attributeVertexKey(ref))
}

func (m *ThingManager) deleteVertex(ctx context.Context, rw engine.ReadWriteSnapshot, ref engine.ThingRef, key engine.Key) error {
	if err := rw.UnmodifiableLockAdd(ctx, key); err != nil {
		return err
	}
	return rw.Delete(ctx, key)
}

// SetHasCount writes (or overwrites) the Has/HasReverse edge between
// owner and attr to count, and appends attr to owner's ordered-ownership
// list when ordered is true (spec §3: an Owns edge with the Distinct
// annotation off keeps insertion order via a side property).
func (m *ThingManager) SetHasCount(ctx context.Context, rw engine.ReadWriteSnapshot, owner, attr engine.ThingRef, count uint64, ordered bool) error {
	if err := rw.Put(ctx, hasKey(owner, attr), encodeHasValue(attr, count)); err != nil {
		return err
	}
	if err := rw.Put(ctx, hasReverseKey(owner, attr), encodeHasValue(owner, count)); err != nil {
		return err
	}
	if ordered {
		if err := m.appendHasOrder(ctx, rw, owner, attr); err != nil {
			return err
		}
	}
	m.touchedOwners.add(owner)
	m.touchedAttributes.add(attr)
	return nil
}

func (m *ThingManager) appendHasOrder(ctx context.Context, rw engine.ReadWriteSnapshot, owner, attr engine.ThingRef) error {
	key := hasOrderKey(owner, attr.Type)
	existing, _, err := rw.Get(ctx, key)
	if err != nil {
		return err
	}
	return rw.Put(ctx, key, appendOrderedID(existing, attr.ID))
}

// UnsetHas removes the Has/HasReverse edge between owner and attr. If
// putInTxn is true the edge was written earlier in this same
// transaction and is reversed with Unput rather than Delete.
func (m *ThingManager) UnsetHas(ctx context.Context, rw engine.ReadWriteSnapshot, owner, attr engine.ThingRef, putInTxn bool) error {
	fwd, rev := hasKey(owner, attr), hasReverseKey(owner, attr)
	if putInTxn {
		if err := rw.Unput(ctx, fwd); err != nil {
			return err
		}
		if err := rw.Unput(ctx, rev); err != nil {
			return err
		}
	} else {
		if err := rw.Delete(ctx, fwd); err != nil {
			return err
		}
		if err := rw.Delete(ctx, rev); err != nil {
			return err
		}
	}
	m.touchedOwners.add(owner)
	m.touchedAttributes.add(attr)
	return nil
}

// PutLinksUnordered writes the Links/LinksReverse edge (relation, role,
// player) with count, and regenerates the role-player index for
// relation if its type has the index enabled (spec §4.3, §9).
func (m *ThingManager) PutLinksUnordered(ctx context.Context, rw engine.ReadWriteSnapshot, relation engine.ThingRef, role engine.TypeID, player engine.ThingRef, count uint64) error {
	if err := rw.Put(ctx, linksKey(relation, role, player), encodeLinksValue(role, player, count)); err != nil {
		return err
	}
	if err := rw.Put(ctx, linksReverseKey(player, role, relation), encodeLinksValue(role, relation, count)); err != nil {
		return err
	}
	m.touchedRelations.add(relation)
	if m.schema.RelationIndexAvailable(relation.Type) {
		if err := m.regenerateIndex(ctx, rw, relation); err != nil {
			return err
		}
	}
	return nil
}

// IncrementLinksCount adds delta to the existing (relation, role,
// player) count, creating the edge if absent.
func (m *ThingManager) IncrementLinksCount(ctx context.Context, rw engine.ReadWriteSnapshot, relation engine.ThingRef, role engine.TypeID, player engine.ThingRef, delta uint64) error {
	key := linksKey(relation, role, player)
	if err := rw.ExclusiveLockAdd(ctx, key); err != nil {
		return err
	}
	current := uint64(0)
	if raw, found, err := rw.Get(ctx, key); err != nil {
		return err
	} else if found {
		_, _, current = decodeLinksValue(raw)
	}
	return m.PutLinksUnordered(ctx, rw, relation, role, player, current+delta)
}

// DecrementLinksCount subtracts delta from the existing count, removing
// the edge entirely (and queueing relation for Finalise's empty-relation
// cascade) once it reaches zero. It is an error to decrement below zero
// or an edge that does not exist.
func (m *ThingManager) DecrementLinksCount(ctx context.Context, rw engine.ReadWriteSnapshot, relation engine.ThingRef, role engine.TypeID, player engine.ThingRef, delta uint64) error {
	key := linksKey(relation, role, player)
	if err := rw.ExclusiveLockAdd(ctx, key); err != nil {
		return err
	}
	raw, found, err := rw.Get(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no links edge (%s, %s, %s)", ErrVertexNotFound, relation.Type, role, player.Type)
	}
	_, _, current := decodeLinksValue(raw)
	if delta > current {
		return fmt.Errorf("concept: links count underflow for (%s, %s, %s)", relation.Type, role, player.Type)
	}
	remaining := current - delta
	if remaining == 0 {
		if err := rw.Delete(ctx, key); err != nil {
			return err
		}
		if err := rw.Delete(ctx, linksReverseKey(player, role, relation)); err != nil {
			return err
		}
		m.touchedRelations.add(relation)
		if m.schema.RelationIndexAvailable(relation.Type) {
			if err := m.regenerateIndex(ctx, rw, relation); err != nil {
				return err
			}
		}
		return nil
	}
	return m.PutLinksUnordered(ctx, rw, relation, role, player, remaining)
}

// regenerateIndex rebuilds relation's all-pairs role-player index (spec
// §3, §8, §9): for every ordered pair of Links edges, the directed
// entry from start to end carries count = end's own link count (how
// many times end plays its role), and the self-pair (an edge paired
// with itself) carries count-1, per the invariant that a relation with
// players {(p_i, r_i, c_i)} indexes each unordered pair as directed
// edges (c_j, c_i) and the self-pair as c_i-1. A self-pair that would
// land at zero (a player appearing only once in its role) is omitted,
// matching how a zero-count Links edge is never stored either. This
// trades write amplification for O(1) indexed-pair lookups at match
// time.
func (m *ThingManager) regenerateIndex(ctx context.Context, rw engine.ReadWriteSnapshot, relation engine.ThingRef) error {
	stale, err := rw.IterateRange(ctx, indexedRangeForRelation(relation))
	if err != nil {
		return err
	}
	var staleKeys []engine.Key
	for stale.Next(ctx) {
		staleKeys = append(staleKeys, append(engine.Key{}, stale.Item().Key...))
	}
	if err := stale.Err(); err != nil {
		stale.Close()
		return err
	}
	stale.Close()
	for _, k := range staleKeys {
		if err := rw.Delete(ctx, k); err != nil {
			return err
		}
	}

	type player struct {
		role  engine.TypeID
		ref   engine.ThingRef
		count uint64
	}
	it, err := rw.IterateRange(ctx, linksRangeForRelation(relation))
	if err != nil {
		return err
	}
	var players []player
	for it.Next(ctx) {
		role, ref, count := decodeLinksValue(it.Item().Value)
		players = append(players, player{role: role, ref: ref, count: count})
	}
	if err := it.Err(); err != nil {
		it.Close()
		return err
	}
	it.Close()

	for i, start := range players {
		for j, end := range players {
			var count uint64
			if i == j {
				if start.count == 0 {
					continue
				}
				count = start.count - 1
				if count == 0 {
					continue
				}
			} else {
				count = end.count
			}
			key := indexedKey(relation, start.ref, end.ref)
			if err := rw.Put(ctx, key, encodeIndexedPair(start.role, end.role, count)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Exists implements engine.ThingFacts.
func (m *ThingManager) Exists(ctx context.Context, ref engine.ThingRef) (bool, error) {
	key := vertexKey(ref)
	if ref.Type.Kind == engine.KindAttribute {
		key = attributeVertexKey(ref)
	}
	_, ok, err := m.snapshot.Get(ctx, key)
	return ok, err
}

// HasCount implements engine.ThingFacts.
func (m *ThingManager) HasCount(ctx context.Context, owner, attr engine.ThingRef) (uint64, bool, error) {
	raw, ok, err := m.snapshot.Get(ctx, hasKey(owner, attr))
	if err != nil || !ok {
		return 0, ok, err
	}
	_, count := decodeHasValue(raw)
	return count, true, nil
}

// LinksCount implements engine.ThingFacts.
func (m *ThingManager) LinksCount(ctx context.Context, relation, player engine.ThingRef, role engine.TypeID) (uint64, bool, error) {
	raw, ok, err := m.snapshot.Get(ctx, linksKey(relation, role, player))
	if err != nil || !ok {
		return 0, ok, err
	}
	_, _, count := decodeLinksValue(raw)
	return count, true, nil
}

// IndexedPair implements engine.ThingFacts.
func (m *ThingManager) IndexedPair(ctx context.Context, relation, start, end engine.ThingRef) (startRole, endRole engine.TypeID, count uint64, ok bool, err error) {
	raw, found, err := m.snapshot.Get(ctx, indexedKey(relation, start, end))
	if err != nil || !found {
		return engine.TypeID{}, engine.TypeID{}, 0, found, err
	}
	startRole, endRole, count = decodeIndexedPair(raw)
	return startRole, endRole, count, true, nil
}

// IterateInstancesOfType scans every vertex of exactly t (not its
// subtypes; callers iterating an Isa edge's full TypeSet call this once
// per concrete type and merge), in vertex-ID order, for pkg/executor's
// Isa iterator factories.
func (m *ThingManager) IterateInstancesOfType(ctx context.Context, t engine.TypeID) ([]engine.ThingRef, error) {
	prefix := append([]byte{prefixVertex}, typeIDBytes(t)...)
	if t.Kind == engine.KindAttribute {
		prefix = append([]byte{prefixAttributeVertex}, typeIDBytes(t)...)
	}
	it, err := m.snapshot.IterateRange(ctx, engine.Within(prefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []engine.ThingRef
	for it.Next(ctx) {
		kv := it.Item()
		id := append([]byte{}, kv.Key[len(prefix):]...)
		out = append(out, engine.ThingRef{Type: t, ID: id})
	}
	return out, it.Err()
}

// IterateAttributesOfOwner scans the Has edges for owner, for pkg/executor's
// Has iterator factory (owner -> attribute direction).
func (m *ThingManager) IterateAttributesOfOwner(ctx context.Context, owner engine.ThingRef) ([]engine.ThingRef, error) {
	it, err := m.snapshot.IterateRange(ctx, hasRangeForOwner(owner))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []engine.ThingRef
	for it.Next(ctx) {
		attr, _ := decodeHasValue(it.Item().Value)
		out = append(out, attr)
	}
	return out, it.Err()
}

// IterateOwnersOfAttribute scans the HasReverse edges for attr, for
// pkg/executor's Has iterator factory (attribute -> owner direction).
func (m *ThingManager) IterateOwnersOfAttribute(ctx context.Context, attr engine.ThingRef) ([]engine.ThingRef, error) {
	it, err := m.snapshot.IterateRange(ctx, hasReverseRangeForAttr(attr))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []engine.ThingRef
	for it.Next(ctx) {
		owner, _ := decodeHasValue(it.Item().Value)
		out = append(out, owner)
	}
	return out, it.Err()
}

// LinksEntry is one role-player edge yielded by IteratePlayersOfRelation
// or IterateRelationsOfPlayer.
type LinksEntry struct {
	Role   engine.TypeID
	Player engine.ThingRef
	Other  engine.ThingRef
}

// IteratePlayersOfRelation scans the Links edges for relation, for
// pkg/executor's Links iterator factory (relation -> player direction).
func (m *ThingManager) IteratePlayersOfRelation(ctx context.Context, relation engine.ThingRef) ([]LinksEntry, error) {
	it, err := m.snapshot.IterateRange(ctx, linksRangeForRelation(relation))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []LinksEntry
	for it.Next(ctx) {
		role, player, _ := decodeLinksValue(it.Item().Value)
		out = append(out, LinksEntry{Role: role, Player: player, Other: relation})
	}
	return out, it.Err()
}

// IterateRelationsOfPlayer scans the LinksReverse edges for player, for
// pkg/executor's Links iterator factory (player -> relation direction).
func (m *ThingManager) IterateRelationsOfPlayer(ctx context.Context, player engine.ThingRef) ([]LinksEntry, error) {
	it, err := m.snapshot.IterateRange(ctx, linksReverseRangeForPlayer(player))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []LinksEntry
	for it.Next(ctx) {
		role, relation, _ := decodeLinksValue(it.Item().Value)
		out = append(out, LinksEntry{Role: role, Player: player, Other: relation})
	}
	return out, it.Err()
}

// CountIndexedPairs reports how many all-pairs entries regenerateIndex
// has materialized for relation, for comparing an enabled index's size
// with the relation's player count.
func (m *ThingManager) CountIndexedPairs(ctx context.Context, relation engine.ThingRef) (int, error) {
	it, err := m.snapshot.IterateRange(ctx, indexedRangeForRelation(relation))
	if err != nil {
		return 0, err
	}
	defer it.Close()
	n := 0
	for it.Next(ctx) {
		n++
	}
	return n, it.Err()
}
