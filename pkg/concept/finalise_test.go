package concept

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/typesystem"
)

func TestFinaliseRemovesRelationThatLostLastPlayer(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()
	person, friendship, friend := setupFriendship(t, schema, ctx, rw)

	tm := NewThingManager(rw, schema)
	alice, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	f, err := tm.CreateRelation(ctx, rw, friendship)
	require.NoError(t, err)
	require.NoError(t, tm.IncrementLinksCount(ctx, rw, f, friend, alice, 1))
	require.NoError(t, tm.DecrementLinksCount(ctx, rw, f, friend, alice, 1))

	require.NoError(t, tm.Finalise(ctx, rw))

	exists, err := tm.Exists(ctx, f)
	require.NoError(t, err)
	require.False(t, exists, "relation that lost its last player must be purged at finalize")
}

func TestFinaliseRemovesOrphanedNonIndependentAttribute(t *testing.T) {
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
	require.NoError(t, tm.UnsetHas(ctx, rw, p, a, true))

	require.NoError(t, tm.Finalise(ctx, rw))

	exists, err := tm.Exists(ctx, a)
	require.NoError(t, err)
	require.False(t, exists, "non-independent attribute with no remaining owner must be purged")
}

func TestFinaliseKeepsIndependentOrphanedAttribute(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	person := engine.TypeID{Kind: engine.KindEntity, Label: "person"}
	tag, err := longValueType(ctx, schema, rw, "tag")
	require.NoError(t, err)
	require.NoError(t, schema.SetAnnotation(ctx, rw, tag, typesystem.Annotation{Category: typesystem.AnnotationIndependent}))
	require.NoError(t, schema.CreateType(ctx, rw, typesystem.TypeDef{ID: person, Label: "person"}))
	require.NoError(t, schema.SetOwns(ctx, rw, person, tag, nil))

	tm := NewThingManager(rw, schema)
	p, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	a, err := tm.CreateAttribute(ctx, rw, tag, AttributeValue{Category: engine.ValueLong, Long: 7})
	require.NoError(t, err)
	require.NoError(t, tm.SetHasCount(ctx, rw, p, a, 1, false))
	require.NoError(t, tm.UnsetHas(ctx, rw, p, a, true))

	require.NoError(t, tm.Finalise(ctx, rw))

	exists, err := tm.Exists(ctx, a)
	require.NoError(t, err)
	require.True(t, exists, "independent attributes survive losing their last owner")
}

func TestFinaliseReportsOwnsCardinalityViolation(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	person := engine.TypeID{Kind: engine.KindEntity, Label: "person"}
	ssn, err := longValueType(ctx, schema, rw, "ssn")
	require.NoError(t, err)
	require.NoError(t, schema.CreateType(ctx, rw, typesystem.TypeDef{ID: person, Label: "person"}))
	one := uint64(1)
	require.NoError(t, schema.SetOwns(ctx, rw, person, ssn, []typesystem.Annotation{
		{Category: typesystem.AnnotationCardinality, Cardinality: typesystem.Cardinality{Start: 1, End: &one}},
	}))

	tm := NewThingManager(rw, schema)
	p, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	a1, err := tm.CreateAttribute(ctx, rw, ssn, AttributeValue{Category: engine.ValueLong, Long: 1})
	require.NoError(t, err)
	a2, err := tm.CreateAttribute(ctx, rw, ssn, AttributeValue{Category: engine.ValueLong, Long: 2})
	require.NoError(t, err)
	require.NoError(t, tm.SetHasCount(ctx, rw, p, a1, 1, false))
	require.NoError(t, tm.SetHasCount(ctx, rw, p, a2, 1, false))

	err = tm.Finalise(ctx, rw)
	require.Error(t, err)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	require.NotEmpty(t, writeErr.Violations)
	require.True(t, IsCardinalityViolationErr(writeErr.Violations[0]))
}

func TestFinaliseReportsMissingMandatoryOwns(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	person := engine.TypeID{Kind: engine.KindEntity, Label: "person"}
	name, err := longValueType(ctx, schema, rw, "name")
	require.NoError(t, err)
	require.NoError(t, schema.CreateType(ctx, rw, typesystem.TypeDef{ID: person, Label: "person"}))
	one := uint64(1)
	require.NoError(t, schema.SetOwns(ctx, rw, person, name, []typesystem.Annotation{
		{Category: typesystem.AnnotationCardinality, Cardinality: typesystem.Cardinality{Start: 1, End: &one}},
	}))

	tm := NewThingManager(rw, schema)
	_, err = tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)

	err = tm.Finalise(ctx, rw)
	require.Error(t, err, "a mandatory owns edge with zero instances must be reported at finalize")
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	require.NotEmpty(t, writeErr.Violations)
	require.True(t, IsCardinalityViolationErr(writeErr.Violations[0]))
}

func TestFinaliseReportsKeyViolationWhenAttributeShared(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	person := engine.TypeID{Kind: engine.KindEntity, Label: "person"}
	ssn, err := longValueType(ctx, schema, rw, "ssn")
	require.NoError(t, err)
	require.NoError(t, schema.CreateType(ctx, rw, typesystem.TypeDef{ID: person, Label: "person"}))
	one := uint64(1)
	require.NoError(t, schema.SetOwns(ctx, rw, person, ssn, []typesystem.Annotation{
		{Category: typesystem.AnnotationKey, Cardinality: typesystem.Cardinality{Start: 1, End: &one}},
	}))

	tm := NewThingManager(rw, schema)
	alice, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	bob, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	shared, err := tm.CreateAttribute(ctx, rw, ssn, AttributeValue{Category: engine.ValueLong, Long: 555})
	require.NoError(t, err)
	require.NoError(t, tm.SetHasCount(ctx, rw, alice, shared, 1, false))
	require.NoError(t, tm.SetHasCount(ctx, rw, bob, shared, 1, false))

	err = tm.Finalise(ctx, rw)
	require.Error(t, err)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	require.NotEmpty(t, writeErr.Violations)
	found := false
	for _, v := range writeErr.Violations {
		if IsKeyViolationErr(v) {
			found = true
			break
		}
	}
	require.True(t, found, "expected a key-violation among the reported write errors")
}

func TestFinaliseReportsRelatesCardinalityViolation(t *testing.T) {
	schema, store := newTestSchema(t)
	ctx := context.Background()
	rw := store.OpenReadWrite()

	person := engine.TypeID{Kind: engine.KindEntity, Label: "person"}
	committee := engine.TypeID{Kind: engine.KindRelation, Label: "committee"}
	require.NoError(t, schema.CreateType(ctx, rw, typesystem.TypeDef{ID: person, Label: "person"}))
	require.NoError(t, schema.CreateType(ctx, rw, typesystem.TypeDef{ID: committee, Label: "committee"}))
	one := uint64(1)
	chair, err := schema.SetRelates(ctx, rw, committee, "chair", []typesystem.Annotation{
		{Category: typesystem.AnnotationCardinality, Cardinality: typesystem.Cardinality{Start: 1, End: &one}},
	})
	require.NoError(t, err)
	require.NoError(t, schema.SetPlays(ctx, rw, person, chair, nil))

	tm := NewThingManager(rw, schema)
	alice, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	bob, err := tm.CreateEntity(ctx, rw, person)
	require.NoError(t, err)
	c, err := tm.CreateRelation(ctx, rw, committee)
	require.NoError(t, err)
	require.NoError(t, tm.IncrementLinksCount(ctx, rw, c, chair, alice, 1))
	require.NoError(t, tm.IncrementLinksCount(ctx, rw, c, chair, bob, 1))

	err = tm.Finalise(ctx, rw)
	require.Error(t, err)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	require.NotEmpty(t, writeErr.Violations)
	require.True(t, IsCardinalityViolationErr(writeErr.Violations[0]))
}
