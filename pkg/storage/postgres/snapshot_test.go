//go:build integration

// Integration tests require Docker; run with `go test -tags=integration ./...`.
package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/pthm/typecore/engine"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("typecore"),
		postgres.WithUsername("typecore"),
		postgres.WithPassword("typecore"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestStorePutAndGetRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rw, err := store.OpenReadWrite(ctx)
	require.NoError(t, err)
	require.NoError(t, rw.Put(ctx, engine.Key("a"), engine.Value("1")))
	_, err = rw.Finalise(ctx, engine.CommitProfile{})
	require.NoError(t, err)

	ro, err := store.OpenReadOnly(ctx)
	require.NoError(t, err)
	v, ok, err := ro.Get(ctx, engine.Key("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, engine.Value("1"), v)
}

func TestStoreRangeScanRespectsBounds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rw, err := store.OpenReadWrite(ctx)
	require.NoError(t, err)
	for _, k := range []string{"b/1", "b/2", "b/3", "c/1"} {
		require.NoError(t, rw.Put(ctx, engine.Key(k), engine.Value(k)))
	}
	_, err = rw.Finalise(ctx, engine.CommitProfile{})
	require.NoError(t, err)

	ro, err := store.OpenReadOnly(ctx)
	require.NoError(t, err)
	it, err := ro.IterateRange(ctx, engine.Within(engine.Key("b/")))
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.Next(ctx) {
		got = append(got, string(it.Item().Key))
	}
	require.NoError(t, it.Err())
	require.Equal(t, []string{"b/1", "b/2", "b/3"}, got)
}

func TestStoreRollbackDiscardsBufferedWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rw, err := store.OpenReadWrite(ctx)
	require.NoError(t, err)
	require.NoError(t, rw.Put(ctx, engine.Key("x"), engine.Value("y")))
	require.NoError(t, rw.Rollback(ctx))

	ro, err := store.OpenReadOnly(ctx)
	require.NoError(t, err)
	_, ok, err := ro.Get(ctx, engine.Key("x"))
	require.NoError(t, err)
	require.False(t, ok)
}
