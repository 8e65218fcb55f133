package concept

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/typesystem"
)

func newTestSchema(t *testing.T) (*typesystem.TypeManager, *engine.MemStore) {
	t.Helper()
	store := engine.NewMemStore()
	mgr, err := typesystem.Load(context.Background(), store.OpenReadOnly())
	require.NoError(t, err)
	return mgr, store
}

func TestCreateEntityAndRelationExist(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	person := engine.TypeID{Kind: engine.KindEntity, Label: "person"}
	friendship := engine.TypeID{Kind: engine.KindRelation, Label: "friendship"}
	require.NoError(t, schema.CreateType(ctx, rw, typesystem.TypeDef{ID: person, Label: "person"}))
	require.NoError(t, schema.CreateType(ctx, rw, typesystem.TypeDef{ID: friendship, Label: "friendship"}))

	tm := NewThingManager(rw, schema)
	p, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	f, err := tm.CreateRelation(ctx, rw, friendship)
	require.NoError(t, err)

	exists, err := tm.Exists(ctx, p)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = tm.Exists(ctx, f)
	require.NoError(t, err)
	require.True(t, exists)

	missing, err := tm.Exists(ctx, newRef(person))
	require.NoError(t, err)
	require.False(t, missing)
}

func TestCreateInstanceOfAbstractTypeRejected(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	animal := engine.TypeID{Kind: engine.KindEntity, Label: "animal"}
	require.NoError(t, schema.CreateType(ctx, rw, typesystem.TypeDef{ID: animal, Label: "animal"}))
	require.NoError(t, schema.SetAnnotation(ctx, rw, animal, typesystem.Annotation{Category: typesystem.AnnotationAbstract}))

	tm := NewThingManager(rw, schema)
	_, err := tm.CreateEntity(ctx, rw, animal)
	require.Error(t, err)
	require.True(t, IsAbstractTypeErr(err))
}

func longValueType(ctx context.Context, schema *typesystem.TypeManager, rw engine.ReadWriteSnapshot, label string) (engine.TypeID, error) {
	id := engine.TypeID{Kind: engine.KindAttribute, Label: label}
	cat := engine.ValueLong
	return id, schema.CreateType(ctx, rw, typesystem.TypeDef{ID: id, Label: label, ValueType: &cat})
}

func TestCreateAttributePutDedupInline(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	age, err := longValueType(ctx, schema, rw, "age")
	require.NoError(t, err)

	tm := NewThingManager(rw, schema)
	a1, err := tm.CreateAttribute(ctx, rw, age, AttributeValue{Category: engine.ValueLong, Long: 42})
	require.NoError(t, err)
	a2, err := tm.CreateAttribute(ctx, rw, age, AttributeValue{Category: engine.ValueLong, Long: 42})
	require.NoError(t, err)

	require.Equal(t, a1, a2, "equal values must resolve to the same vertex")

	a3, err := tm.CreateAttribute(ctx, rw, age, AttributeValue{Category: engine.ValueLong, Long: 43})
	require.NoError(t, err)
	require.NotEqual(t, a1, a3)
}

func TestCreateAttributePutDedupHashed(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	name := engine.TypeID{Kind: engine.KindAttribute, Label: "bio"}
	cat := engine.ValueString
	require.NoError(t, schema.CreateType(ctx, rw, typesystem.TypeDef{ID: name, Label: "bio", ValueType: &cat}))

	long := "this biography is deliberately longer than the inline threshold of twenty-four bytes"
	tm := NewThingManager(rw, schema)
	a1, err := tm.CreateAttribute(ctx, rw, name, AttributeValue{Category: engine.ValueString, String: long})
	require.NoError(t, err)
	a2, err := tm.CreateAttribute(ctx, rw, name, AttributeValue{Category: engine.ValueString, String: long})
	require.NoError(t, err)
	require.Equal(t, a1, a2)
	require.Greater(t, len(a1.ID), maxInlineValueLen, "long string should be addressed by hash")

	_, found, err := rw.Get(ctx, attributeHashKey(name, a1.ID))
	require.NoError(t, err)
	require.True(t, found)
}

func TestValidateValueRejectsOutOfRange(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	score, err := longValueType(ctx, schema, rw, "score")
	require.NoError(t, err)
	encOne := AttributeValue{Category: engine.ValueLong, Long: 1}.encode()
	encHundred := AttributeValue{Category: engine.ValueLong, Long: 100}.encode()
	require.NoError(t, schema.SetAnnotation(ctx, rw, score, typesystem.Annotation{
		Category: typesystem.AnnotationRange,
		Range:    typesystem.RangeBound{Start: encOne, End: encHundred},
	}))

	tm := NewThingManager(rw, schema)
	_, err = tm.CreateAttribute(ctx, rw, score, AttributeValue{Category: engine.ValueLong, Long: 1000})
	require.Error(t, err)
	require.True(t, IsValueConstraintErr(err))

	ref, err := tm.CreateAttribute(ctx, rw, score, AttributeValue{Category: engine.ValueLong, Long: 50})
	require.NoError(t, err)
	require.NotNil(t, ref.ID)
}

func TestHasCountRoundtrip(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	person := engine.TypeID{Kind: engine.KindEntity, Label: "person"}
	age, err := longValueType(ctx, schema, rw, "age")
	require.NoError(t, err)
	require.NoError(t, schema.CreateType(ctx, rw, typesystem.TypeDef{ID: person, Label: "person"}))
	require.NoError(t, schema.SetOwns(ctx, rw, person, age, nil))

	tm := NewThingManager(rw, schema)
	p, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	a, err := tm.CreateAttribute(ctx, rw, age, AttributeValue{Category: engine.ValueLong, Long: 30})
	require.NoError(t, err)

	require.NoError(t, tm.SetHasCount(ctx, rw, p, a, 1, false))

	count, ok, err := tm.HasCount(ctx, p, a)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), count)

	require.NoError(t, tm.UnsetHas(ctx, rw, p, a, true))
	_, ok, err = tm.HasCount(ctx, p, a)
	require.NoError(t, err)
	require.False(t, ok)
}

func setupFriendship(t *testing.T, schema *typesystem.TypeManager, ctx context.Context, rw engine.ReadWriteSnapshot) (person, friendship, friend engine.TypeID) {
	t.Helper()
	person = engine.TypeID{Kind: engine.KindEntity, Label: "person"}
	friendship = engine.TypeID{Kind: engine.KindRelation, Label: "friendship"}
	require.NoError(t, schema.CreateType(ctx, rw, typesystem.TypeDef{ID: person, Label: "person"}))
	require.NoError(t, schema.CreateType(ctx, rw, typesystem.TypeDef{ID: friendship, Label: "friendship"}))
	friend, err := schema.SetRelates(ctx, rw, friendship, "friend", nil)
	require.NoError(t, err)
	require.NoError(t, schema.SetPlays(ctx, rw, person, friend, nil))
	return person, friendship, friend
}

func TestLinksCountRoundtripAndDecrementRemovesEdge(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()
	person, friendship, friend := setupFriendship(t, schema, ctx, rw)

	tm := NewThingManager(rw, schema)
	alice, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	bob, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	f, err := tm.CreateRelation(ctx, rw, friendship)
	require.NoError(t, err)

	require.NoError(t, tm.IncrementLinksCount(ctx, rw, f, friend, alice, 1))
	require.NoError(t, tm.IncrementLinksCount(ctx, rw, f, friend, bob, 1))

	count, ok, err := tm.LinksCount(ctx, f, alice, friend)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), count)

	require.NoError(t, tm.DecrementLinksCount(ctx, rw, f, friend, alice, 1))
	_, ok, err = tm.LinksCount(ctx, f, alice, friend)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegenerateIndexTracksAllPairs(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()
	person, friendship, friend := setupFriendship(t, schema, ctx, rw)
	require.NoError(t, schema.SetRelationIndexEnabled(ctx, rw, friendship, true))

	tm := NewThingManager(rw, schema)
	alice, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	bob, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	f, err := tm.CreateRelation(ctx, rw, friendship)
	require.NoError(t, err)

	require.NoError(t, tm.IncrementLinksCount(ctx, rw, f, friend, alice, 1))
	require.NoError(t, tm.IncrementLinksCount(ctx, rw, f, friend, bob, 1))

	startRole, endRole, count, ok, err := tm.IndexedPair(ctx, f, alice, bob)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, friend, startRole)
	require.Equal(t, friend, endRole)
	require.Equal(t, uint64(1), count)

	_, _, _, ok, err = tm.IndexedPair(ctx, f, bob, alice)
	require.NoError(t, err)
	require.True(t, ok)
}

// TestRegenerateIndexDirectedCountIsOppositePlayers verifies spec §8's
// role-player index invariant directly: for players with counts (c_i,
// c_j), the directed edge i->j carries count(j) and j->i carries
// count(i), not a pair-collision counter.
func TestRegenerateIndexDirectedCountIsOppositePlayers(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()
	person, friendship, friend := setupFriendship(t, schema, ctx, rw)
	require.NoError(t, schema.SetRelationIndexEnabled(ctx, rw, friendship, true))

	tm := NewThingManager(rw, schema)
	alice, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	bob, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	f, err := tm.CreateRelation(ctx, rw, friendship)
	require.NoError(t, err)

	require.NoError(t, tm.IncrementLinksCount(ctx, rw, f, friend, alice, 3))
	require.NoError(t, tm.IncrementLinksCount(ctx, rw, f, friend, bob, 2))

	_, _, count, ok, err := tm.IndexedPair(ctx, f, alice, bob)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), count, "alice->bob must carry bob's own count")

	_, _, count, ok, err = tm.IndexedPair(ctx, f, bob, alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), count, "bob->alice must carry alice's own count")
}

// TestRegenerateIndexSelfPairIsCountMinusOne verifies the self-pair
// invariant: a player appearing with count c_i in its own role indexes
// against itself with count c_i-1, and is omitted entirely once that
// would be zero.
func TestRegenerateIndexSelfPairIsCountMinusOne(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()
	person, friendship, friend := setupFriendship(t, schema, ctx, rw)
	require.NoError(t, schema.SetRelationIndexEnabled(ctx, rw, friendship, true))

	tm := NewThingManager(rw, schema)
	alice, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	f, err := tm.CreateRelation(ctx, rw, friendship)
	require.NoError(t, err)

	require.NoError(t, tm.IncrementLinksCount(ctx, rw, f, friend, alice, 1))
	_, _, _, ok, err := tm.IndexedPair(ctx, f, alice, alice)
	require.NoError(t, err)
	require.False(t, ok, "a player appearing once must not self-index")

	require.NoError(t, tm.IncrementLinksCount(ctx, rw, f, friend, alice, 2))
	_, _, count, ok, err := tm.IndexedPair(ctx, f, alice, alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), count, "count 3 must self-index at count-1")
}
