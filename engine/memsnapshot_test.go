package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStorePutGetRoundTrip(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	rw := store.OpenReadWrite()
	require.NoError(t, rw.Put(ctx, Key("a"), Value("1")))
	require.NoError(t, rw.Put(ctx, Key("b"), Value("2")))
	_, err := rw.Finalise(ctx, CommitProfile{})
	require.NoError(t, err)

	snap := store.OpenReadOnly()
	v, ok, err := snap.Get(ctx, Key("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Value("1"), v)

	_, ok, err = snap.Get(ctx, Key("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemStoreReadOnlySnapshotRejectsWrites(t *testing.T) {
	store := NewMemStore()
	snap := store.OpenReadOnly()
	_, ok := snap.(ReadWriteSnapshot)
	require.False(t, ok, "OpenReadOnly must not return a ReadWriteSnapshot")
}

func TestMemStoreIsolatesUncommittedWrites(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	rw := store.OpenReadWrite()
	require.NoError(t, rw.Put(ctx, Key("x"), Value("pending")))

	other := store.OpenReadOnly()
	_, ok, err := other.Get(ctx, Key("x"))
	require.NoError(t, err)
	require.False(t, ok, "uncommitted write from another snapshot must not be visible")

	_, err = rw.Finalise(ctx, CommitProfile{})
	require.NoError(t, err)
}

func TestMemStoreUnputReversesOwnWrite(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	rw := store.OpenReadWrite()
	require.NoError(t, rw.Put(ctx, Key("k"), Value("v")))
	require.NoError(t, rw.Unput(ctx, Key("k")))

	_, ok, err := rw.Get(ctx, Key("k"))
	require.NoError(t, err)
	require.False(t, ok)

	err = rw.Unput(ctx, Key("never-put"))
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestMemStoreIterateRangeRespectsBounds(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	rw := store.OpenReadWrite()
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, rw.Put(ctx, Key(k), Value(k)))
	}
	_, err := rw.Finalise(ctx, CommitProfile{})
	require.NoError(t, err)

	snap := store.OpenReadOnly()
	it, err := snap.IterateRange(ctx, KeyRange{
		Start: Key("b"), StartBound: BoundInclusive,
		End: Key("d"), EndBound: BoundExclusive,
	})
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.Next(ctx) {
		got = append(got, string(it.Item().Key))
	}
	require.NoError(t, it.Err())
	require.Equal(t, []string{"b", "c"}, got)
}

func TestMemStoreIterateRangeFixedWidthPrefix(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	rw := store.OpenReadWrite()
	require.NoError(t, rw.Put(ctx, Key("p1"), Value("1")))
	require.NoError(t, rw.Put(ctx, Key("p2"), Value("2")))
	require.NoError(t, rw.Put(ctx, Key("q1"), Value("3")))
	_, err := rw.Finalise(ctx, CommitProfile{})
	require.NoError(t, err)

	snap := store.OpenReadOnly()
	it, err := snap.IterateRange(ctx, Within(Key("p")))
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.Next(ctx) {
		got = append(got, string(it.Item().Key))
	}
	require.Equal(t, []string{"p1", "p2"}, got)
}

func TestMemStoreIteratorSeekResyncs(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	rw := store.OpenReadWrite()
	for _, k := range []string{"a", "c", "e", "g"} {
		require.NoError(t, rw.Put(ctx, Key(k), Value(k)))
	}
	_, err := rw.Finalise(ctx, CommitProfile{})
	require.NoError(t, err)

	snap := store.OpenReadOnly()
	it, err := snap.IterateRange(ctx, KeyRange{})
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Seek(ctx, Key("d")))
	require.Equal(t, Key("e"), it.Item().Key)
}

func TestMemStoreFinaliseTwiceFails(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	rw := store.OpenReadWrite()
	_, err := rw.Finalise(ctx, CommitProfile{})
	require.NoError(t, err)
	_, err = rw.Finalise(ctx, CommitProfile{})
	require.ErrorIs(t, err, ErrSnapshotClosed)
}
