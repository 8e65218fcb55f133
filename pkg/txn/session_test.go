package txn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/inference"
	"github.com/pthm/typecore/pkg/pattern"
	"github.com/pthm/typecore/pkg/typesystem"
)

// memStoreAdapter lifts engine.MemStore's synchronous, error-free
// OpenReadOnly/OpenReadWrite onto the ctx/error-returning Store
// interface pkg/storage/postgres.Store satisfies natively, so tests can
// exercise Session against the in-memory backend.
type memStoreAdapter struct {
	store *engine.MemStore
}

func (a memStoreAdapter) OpenReadOnly(context.Context) (engine.Snapshot, error) {
	return a.store.OpenReadOnly(), nil
}

func (a memStoreAdapter) OpenReadWrite(context.Context) (engine.ReadWriteSnapshot, error) {
	return a.store.OpenReadWrite(), nil
}

func TestSessionWriteThenReadCommit(t *testing.T) {
	ctx := context.Background()
	store := memStoreAdapter{store: engine.NewMemStore()}

	write, err := Open(ctx, store, TransactionSchema, OpenOptions{})
	require.NoError(t, err)

	person := engine.TypeID{Kind: engine.KindEntity, Label: "person"}
	rw := write.rw
	require.NoError(t, write.Schema.CreateType(ctx, rw, typesystem.TypeDef{ID: person, Label: "person"}))
	_, err = write.Things.CreateEntity(ctx, rw, person)
	require.NoError(t, err)

	require.NoError(t, write.Commit(ctx))

	read, err := Open(ctx, store, TransactionRead, OpenOptions{})
	require.NoError(t, err)
	defer read.Close(ctx)

	conj := pattern.Conjunction{Constraints: []pattern.Constraint{
		{Kind: pattern.ConstraintIsa, Left: "p", Right: "persontype"},
		{Kind: pattern.ConstraintLabel, Left: "persontype", Label: "person"},
	}}
	g, err := inference.NewSeedingContext(read.Schema).CreateGraph(nil, conj)
	require.NoError(t, err)
	require.Nil(t, g.Unsatisfiable)

	handle, err := read.Query(ctx, g, engine.Row{}, 10, false)
	require.NoError(t, err)

	var rows []engine.Row
	for {
		batch, done, err := handle.Next(ctx)
		require.NoError(t, err)
		rows = append(rows, batch...)
		if done {
			break
		}
		handle.StreamContinue()
	}
	require.Len(t, rows, 1)
}

func TestSessionRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := memStoreAdapter{store: engine.NewMemStore()}

	write, err := Open(ctx, store, TransactionSchema, OpenOptions{})
	require.NoError(t, err)
	person := engine.TypeID{Kind: engine.KindEntity, Label: "person"}
	require.NoError(t, write.Schema.CreateType(ctx, write.rw, typesystem.TypeDef{ID: person, Label: "person"}))
	require.NoError(t, write.Rollback(ctx))

	read, err := Open(ctx, store, TransactionRead, OpenOptions{})
	require.NoError(t, err)
	defer read.Close(ctx)
	_, ok := read.Schema.GetTypeIDByLabel(engine.KindEntity, "person")
	require.False(t, ok)
}

func TestSessionCommitAfterCloseFails(t *testing.T) {
	ctx := context.Background()
	store := memStoreAdapter{store: engine.NewMemStore()}
	s, err := Open(ctx, store, TransactionWrite, OpenOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))
	require.ErrorIs(t, s.Commit(ctx), ErrTransactionClosed)
}
