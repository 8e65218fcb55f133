package typesystem

import (
	"context"
	"testing"

	"github.com/pthm/typecore/engine"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*TypeManager, *engine.MemStore) {
	t.Helper()
	store := engine.NewMemStore()
	mgr, err := Load(context.Background(), store.OpenReadOnly())
	require.NoError(t, err)
	return mgr, store
}

func ptrU64(n uint64) *uint64 { return &n }

func TestCreateTypeAndSetSupertype(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	animal := TypeID{Kind: KindEntity, Label: "animal"}
	cat := TypeID{Kind: KindEntity, Label: "cat"}
	require.NoError(t, mgr.CreateType(ctx, rw, TypeDef{ID: animal, Label: "animal"}))
	require.NoError(t, mgr.CreateType(ctx, rw, TypeDef{ID: cat, Label: "cat"}))
	require.NoError(t, mgr.SetSupertype(ctx, rw, cat, animal))

	require.True(t, mgr.IsSubtype(cat, animal))
	require.True(t, mgr.IsSubtype(cat, cat))
	require.False(t, mgr.IsSubtype(animal, cat))
	require.Equal(t, []TypeID{animal}, mgr.SupertypesTransitive(cat))
}

func TestSetSupertypeRejectsCycle(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	a := TypeID{Kind: KindEntity, Label: "a"}
	b := TypeID{Kind: KindEntity, Label: "b"}
	require.NoError(t, mgr.CreateType(ctx, rw, TypeDef{ID: a, Label: "a"}))
	require.NoError(t, mgr.CreateType(ctx, rw, TypeDef{ID: b, Label: "b"}))
	require.NoError(t, mgr.SetSupertype(ctx, rw, b, a))

	err := mgr.SetSupertype(ctx, rw, a, b)
	require.Error(t, err)
	require.True(t, IsCyclicSubErr(err))
}

func TestSetSupertypeRejectsMismatchedKind(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	entityType := TypeID{Kind: KindEntity, Label: "thing"}
	relType := TypeID{Kind: KindRelation, Label: "friendship"}
	require.NoError(t, mgr.CreateType(ctx, rw, TypeDef{ID: entityType, Label: "thing"}))
	require.NoError(t, mgr.CreateType(ctx, rw, TypeDef{ID: relType, Label: "friendship"}))

	err := mgr.SetSupertype(ctx, rw, entityType, relType)
	require.Error(t, err)
}

func TestOwnsIsInheritedBySubtype(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	animal := TypeID{Kind: KindEntity, Label: "animal"}
	cat := TypeID{Kind: KindEntity, Label: "cat"}
	name := TypeID{Kind: KindAttribute, Label: "name"}
	stringCat := ValueString

	require.NoError(t, mgr.CreateType(ctx, rw, TypeDef{ID: animal, Label: "animal"}))
	require.NoError(t, mgr.CreateType(ctx, rw, TypeDef{ID: cat, Label: "cat"}))
	require.NoError(t, mgr.CreateType(ctx, rw, TypeDef{ID: name, Label: "name", ValueType: &stringCat}))
	require.NoError(t, mgr.SetSupertype(ctx, rw, cat, animal))
	require.NoError(t, mgr.SetOwns(ctx, rw, animal, name, nil))

	require.True(t, mgr.Owns(animal, name))
	require.True(t, mgr.Owns(cat, name), "cat must inherit animal's owns edge")
}

func TestSetRelatesCreatesRoleAndRejectsDuplicateName(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	friendship := TypeID{Kind: KindRelation, Label: "friendship"}
	require.NoError(t, mgr.CreateType(ctx, rw, TypeDef{ID: friendship, Label: "friendship"}))

	role, err := mgr.SetRelates(ctx, rw, friendship, "friend", nil)
	require.NoError(t, err)
	require.Equal(t, KindRole, role.Kind)
	require.True(t, mgr.Relates(friendship, role))

	_, err = mgr.SetRelates(ctx, rw, friendship, "friend", nil)
	require.Error(t, err, "duplicate label must be rejected")
}

func TestSetAnnotationRejectsKeyAndCardinalityTogether(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	person := TypeID{Kind: KindEntity, Label: "person"}
	require.NoError(t, mgr.CreateType(ctx, rw, TypeDef{ID: person, Label: "person"}))
	require.NoError(t, mgr.SetAnnotation(ctx, rw, person, Annotation{Category: AnnotationKey, Cardinality: Cardinality{Start: 1, End: ptrU64(1)}}))

	err := mgr.SetAnnotation(ctx, rw, person, Annotation{Category: AnnotationCardinality, Cardinality: Cardinality{Start: 0, End: ptrU64(5)}})
	require.Error(t, err)
	require.True(t, IsAnnotationConflictErr(err))
}

func TestSetAnnotationRejectsInvalidCardinality(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	person := TypeID{Kind: KindEntity, Label: "person"}
	require.NoError(t, mgr.CreateType(ctx, rw, TypeDef{ID: person, Label: "person"}))

	err := mgr.SetAnnotation(ctx, rw, person, Annotation{Category: AnnotationCardinality, Cardinality: Cardinality{Start: 5, End: ptrU64(1)}})
	require.Error(t, err)
}

func TestLoadRebuildsCacheFromSnapshot(t *testing.T) {
	store := engine.NewMemStore()
	ctx := context.Background()

	mgr, err := Load(ctx, store.OpenReadOnly())
	require.NoError(t, err)
	rw := store.OpenReadWrite()
	person := TypeID{Kind: KindEntity, Label: "person"}
	require.NoError(t, mgr.CreateType(ctx, rw, TypeDef{ID: person, Label: "person"}))
	_, err = rw.Finalise(ctx, engine.CommitProfile{})
	require.NoError(t, err)

	reloaded, err := Load(ctx, store.OpenReadOnly())
	require.NoError(t, err)
	_, ok := reloaded.GetType(person)
	require.True(t, ok)
}

func TestCardinalitySubIntervalOf(t *testing.T) {
	parent := Cardinality{Start: 0, End: ptrU64(10)}
	require.True(t, (Cardinality{Start: 2, End: ptrU64(5)}).SubIntervalOf(parent))
	require.False(t, (Cardinality{Start: 0, End: ptrU64(11)}).SubIntervalOf(parent))
	require.True(t, (Cardinality{Start: 1, End: nil}).SubIntervalOf(Cardinality{Start: 0, End: nil}))
}
