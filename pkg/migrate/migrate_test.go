package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/typesystem"
)

const sampleManifest = `
types:
  - kind: attribute
    label: name
    valueType: string
  - kind: attribute
    label: age
    valueType: long
  - kind: entity
    label: person
    owns:
      - attribute: name
        key: true
      - attribute: age
  - kind: relation
    label: friendship
    relates:
      - roleName: friend
        cardinality:
          start: 2
          end: 2
    plays: []
`

func newSchema(t *testing.T) (*typesystem.TypeManager, *engine.MemStore) {
	t.Helper()
	store := engine.NewMemStore()
	mgr, err := typesystem.Load(context.Background(), store.OpenReadOnly())
	require.NoError(t, err)
	return mgr, store
}

func TestApplyCreatesTypesAndEdges(t *testing.T) {
	schema, store := newSchema(t)
	rw := store.OpenReadWrite()
	ctx := context.Background()

	manifest, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	res, err := Apply(ctx, rw, schema, manifest)
	require.NoError(t, err)
	require.Len(t, res.Created, 4)

	person := engine.TypeID{Kind: engine.KindEntity, Label: "person"}
	name := engine.TypeID{Kind: engine.KindAttribute, Label: "name"}
	edge, _, ok := schema.OwnsEdgeFor(person, name)
	require.True(t, ok)
	found := false
	for _, a := range edge.Annotations {
		if a.Category == typesystem.AnnotationKey {
			found = true
		}
	}
	require.True(t, found, "name should be a key attribute of person")

	friendship := engine.TypeID{Kind: engine.KindRelation, Label: "friendship"}
	friend, ok := schema.GetTypeIDByLabel(engine.KindRole, "friendship:friend")
	require.True(t, ok)
	relatesEdge, ok := schema.RelatesEdgeFor(friendship, friend)
	require.True(t, ok)
	require.Equal(t, uint64(2), relatesEdge.Annotations[0].Cardinality.Start)
}

func TestApplyIsIdempotent(t *testing.T) {
	schema, store := newSchema(t)
	rw := store.OpenReadWrite()
	ctx := context.Background()

	manifest, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	_, err = Apply(ctx, rw, schema, manifest)
	require.NoError(t, err)

	res, err := Apply(ctx, rw, schema, manifest)
	require.NoError(t, err)
	require.Empty(t, res.Created, "second application should create nothing new")
	require.Len(t, res.Skipped, 4)
}

func TestApplyRejectsUnresolvedPlaysRole(t *testing.T) {
	schema, store := newSchema(t)
	rw := store.OpenReadWrite()
	ctx := context.Background()

	manifest, err := ParseManifest([]byte(`
types:
  - kind: entity
    label: person
    plays:
      - role: "friendship:friend"
`))
	require.NoError(t, err)

	_, err = Apply(ctx, rw, schema, manifest)
	require.Error(t, err)
	require.True(t, IsUnresolvedErr(err))
}
