package concept

import (
	"context"
	"fmt"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/typesystem"
)

// Finalise runs the two-phase commit-time pass spec §4.3 describes:
// first a cleanup fixpoint (relations that lost their last player,
// attributes that lost their last owner and aren't Independent), then
// validation of every Owns/Relates cardinality and Key constraint the
// transaction's writes touched. Every violation found is collected
// rather than the first one short-circuiting the rest, so a caller can
// report everything wrong with a transaction at once.
func (m *ThingManager) Finalise(ctx context.Context, rw engine.ReadWriteSnapshot) error {
	owners := m.touchedOwners.items()
	relationsForValidation := m.touchedRelations.items()

	if err := m.cleanupEmptyRelations(ctx, rw); err != nil {
		return err
	}
	if err := m.cleanupOrphanedAttributes(ctx, rw); err != nil {
		return err
	}

	var violations []error
	violations = append(violations, m.validateOwnsCardinality(ctx, rw, owners)...)
	violations = append(violations, m.validateRelatesCardinality(ctx, rw, relationsForValidation)...)

	if len(violations) > 0 {
		return &WriteError{Violations: violations}
	}
	return nil
}

// cleanupEmptyRelations drops every touched relation left with zero
// players, then folds every relation in which a dropped relation was
// itself a player into the next round (spec §4.3: "iterated to fixpoint, then again
// over freshly-inserted empty relations").
func (m *ThingManager) cleanupEmptyRelations(ctx context.Context, rw engine.ReadWriteSnapshot) error {
	pending := newBitmapWorklist(m.ordinals)
	m.touchedRelations.drainInto(pending)

	for !pending.isEmpty() {
		next := newBitmapWorklist(m.ordinals)
		for _, relation := range pending.items() {
			empty, err := m.relationHasNoPlayers(ctx, rw, relation)
			if err != nil {
				return err
			}
			if !empty {
				continue
			}
			affected, err := m.purgeRelation(ctx, rw, relation)
			if err != nil {
				return err
			}
			for _, a := range affected {
				next.add(a)
			}
		}
		pending = next
	}
	return nil
}

func (m *ThingManager) relationHasNoPlayers(ctx context.Context, rw engine.ReadWriteSnapshot, relation engine.ThingRef) (bool, error) {
	it, err := rw.IterateRange(ctx, linksRangeForRelation(relation))
	if err != nil {
		return false, err
	}
	defer it.Close()
	has := it.Next(ctx)
	return !has, it.Err()
}

// purgeRelation deletes relation's own vertex plus every Links edge
// where relation itself was the player, returning the relations on the
// other end of those edges (they may now be empty too, cascading the
// fixpoint).
func (m *ThingManager) purgeRelation(ctx context.Context, rw engine.ReadWriteSnapshot, relation engine.ThingRef) ([]engine.ThingRef, error) {
	it, err := rw.IterateRange(ctx, linksReverseRangeForPlayer(relation))
	if err != nil {
		return nil, err
	}
	type playedIn struct {
		key    engine.Key
		role   engine.TypeID
		parent engine.ThingRef
	}
	var entries []playedIn
	for it.Next(ctx) {
		role, parent, _ := decodeLinksValue(it.Item().Value)
		entries = append(entries, playedIn{append(engine.Key{}, it.Item().Key...), role, parent})
	}
	if err := it.Err(); err != nil {
		it.Close()
		return nil, err
	}
	it.Close()

	affected := make([]engine.ThingRef, 0, len(entries))
	for _, e := range entries {
		if err := rw.Delete(ctx, e.key); err != nil {
			return nil, err
		}
		if err := rw.Delete(ctx, linksKey(e.parent, e.role, relation)); err != nil {
			return nil, err
		}
		affected = append(affected, e.parent)
	}
	if err := rw.Delete(ctx, vertexKey(relation)); err != nil {
		return nil, err
	}
	return affected, nil
}

// cleanupOrphanedAttributes drops every touched, non-Independent
// attribute left with zero owners, Unputting it if this same
// transaction created it and Deleting otherwise.
func (m *ThingManager) cleanupOrphanedAttributes(ctx context.Context, rw engine.ReadWriteSnapshot) error {
	for _, attr := range m.touchedAttributes.items() {
		if m.schema.IsIndependent(attr.Type) {
			continue
		}
		orphaned, err := m.attributeHasNoOwners(ctx, rw, attr)
		if err != nil {
			return err
		}
		if !orphaned {
			continue
		}
		key := attributeVertexKey(attr)
		if m.putAttributes[refKey(attr)] {
			if err := rw.Unput(ctx, key); err != nil {
				return err
			}
		} else if err := rw.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (m *ThingManager) attributeHasNoOwners(ctx context.Context, rw engine.ReadWriteSnapshot, attr engine.ThingRef) (bool, error) {
	it, err := rw.IterateRange(ctx, hasReverseRangeForAttr(attr))
	if err != nil {
		return false, err
	}
	defer it.Close()
	has := it.Next(ctx)
	return !has, it.Err()
}

// validateOwnsCardinality checks, for every touched owner, that every
// Owns edge declared on its type (including edges with zero matching
// instances — a missing mandatory attribute is still a cardinality
// violation) satisfies its declared Cardinality/Key annotation, and
// that a Unique/Key-annotated attribute instance isn't shared with
// another owner.
func (m *ThingManager) validateOwnsCardinality(ctx context.Context, rw engine.ReadWriteSnapshot, owners []engine.ThingRef) []error {
	var errs []error
	for _, owner := range owners {
		counts := make(map[engine.TypeID]uint64)
		var attrs []engine.ThingRef

		it, err := rw.IterateRange(ctx, hasRangeForOwner(owner))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for it.Next(ctx) {
			attr, _ := decodeHasValue(it.Item().Value)
			counts[attr.Type]++
			attrs = append(attrs, attr)
		}
		if err := it.Err(); err != nil {
			errs = append(errs, err)
		}
		it.Close()

		for _, owned := range m.schema.OwnsEdgesForOwner(owner.Type) {
			n := counts[owned.Edge.AttrType]
			for _, a := range owned.Edge.Annotations {
				if a.Category != typesystem.AnnotationCardinality && a.Category != typesystem.AnnotationKey {
					continue
				}
				if !a.Cardinality.Contains(n) {
					errs = append(errs, fmt.Errorf("%w: %s owns %d of %s via %s, outside declared cardinality",
						ErrCardinalityViolation, owner.Type, n, owned.Edge.AttrType, owned.DeclaredOn))
				}
			}
		}

		for _, attr := range attrs {
			edge, _, ok := m.schema.OwnsEdgeFor(owner.Type, attr.Type)
			if !ok {
				continue
			}
			if !hasKeyOrUniqueAnnotation(edge) {
				continue
			}
			shared, err := m.attributeHasMultipleOwners(ctx, rw, attr)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if shared {
				errs = append(errs, fmt.Errorf("%w: %s value shared by more than one %s owner",
					ErrKeyViolation, attr.Type, owner.Type))
			}
		}
	}
	return errs
}

func hasKeyOrUniqueAnnotation(edge typesystem.OwnsEdge) bool {
	for _, a := range edge.Annotations {
		if a.Category == typesystem.AnnotationKey || a.Category == typesystem.AnnotationUnique {
			return true
		}
	}
	return false
}

func (m *ThingManager) attributeHasMultipleOwners(ctx context.Context, rw engine.ReadWriteSnapshot, attr engine.ThingRef) (bool, error) {
	it, err := rw.IterateRange(ctx, hasReverseRangeForAttr(attr))
	if err != nil {
		return false, err
	}
	defer it.Close()
	n := 0
	for it.Next(ctx) {
		n++
		if n > 1 {
			return true, it.Err()
		}
	}
	return false, it.Err()
}

// validateRelatesCardinality checks, for every touched relation, that
// each role with at least one Links edge has a player count within the
// Relates edge's declared Cardinality. A role with no players at all is
// not checked.
func (m *ThingManager) validateRelatesCardinality(ctx context.Context, rw engine.ReadWriteSnapshot, relations []engine.ThingRef) []error {
	var errs []error
	for _, relation := range relations {
		counts := make(map[engine.TypeID]uint64)

		it, err := rw.IterateRange(ctx, linksRangeForRelation(relation))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for it.Next(ctx) {
			role, _, count := decodeLinksValue(it.Item().Value)
			counts[role] += count
		}
		if err := it.Err(); err != nil {
			errs = append(errs, err)
		}
		it.Close()

		for role, n := range counts {
			edge, ok := m.schema.RelatesEdgeFor(relation.Type, role)
			if !ok {
				continue
			}
			for _, a := range edge.Annotations {
				if a.Category == typesystem.AnnotationCardinality && !a.Cardinality.Contains(n) {
					errs = append(errs, fmt.Errorf("%w: %s relates %d players in role %s, outside declared cardinality",
						ErrCardinalityViolation, relation.Type, n, role))
				}
			}
		}
	}
	return errs
}
