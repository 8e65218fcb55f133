package engine

import "context"

// Key is an opaque, ordered byte string. Comparisons use the natural
// byte-lexicographic order; callers must keep (owner-prefix,
// attribute-prefix) ordering stable across schema evolution (spec §6).
type Key []byte

// Value is an opaque byte string associated with a Key.
type Value []byte

// RangeBound describes one end of a KeyRange.
type RangeBound int

const (
	// BoundUnbounded means the range extends to the natural start/end
	// of the keyspace on that side.
	BoundUnbounded RangeBound = iota
	BoundInclusive
	BoundExclusive
)

// KeyRange describes an ordered scan window. FixedWidth hints that every
// key in the range shares a fixed-width encoding, letting a Snapshot
// implementation pick a tighter scan strategy (spec §4.1).
type KeyRange struct {
	Start      Key
	StartBound RangeBound
	End        Key
	EndBound   RangeBound
	FixedWidth bool
}

// Within returns a KeyRange covering every key with the given prefix.
func Within(prefix Key) KeyRange {
	end := make(Key, len(prefix))
	copy(end, prefix)
	return KeyRange{
		Start:      prefix,
		StartBound: BoundInclusive,
		End:        end,
		EndBound:   BoundUnbounded,
		FixedWidth: true,
	}
}

// KV is one (key, value) pair returned from a range iteration.
type KV struct {
	Key   Key
	Value Value
}

// LockMode distinguishes the two write-time lock flavors supported by a
// Snapshot (spec §4.1).
type LockMode int

const (
	// LockExclusive serializes concurrent modifiers of the same key.
	LockExclusive LockMode = iota
	// LockUnmodifiable asserts the key will not be deleted by a
	// concurrently committing transaction.
	LockUnmodifiable
)

// CommitProfile carries the bookkeeping a Snapshot needs to finalize a
// write transaction (timing, isolation mode, caller identity). It is
// intentionally opaque to the engine package; storage backends define
// their own concrete profile and type-assert it back out if needed.
type CommitProfile struct {
	IsolationLabel string
}

// CommitRecord is the result of a successful Finalise.
type CommitRecord struct {
	SequenceNumber uint64
}

// Snapshot is a transactional, sequence-numbered read-and-write view over
// an underlying key-value store (spec §4.1, GLOSSARY). Read-only
// snapshots are handed out as a Snapshot; a backend whose read-only
// snapshot type still carries write methods returns ErrReadOnly from
// them. ReadWriteSnapshot documents the full write surface.
type Snapshot interface {
	// Get performs a point read respecting the snapshot's sequence
	// number. ok is false if the key is absent.
	Get(ctx context.Context, key Key) (value Value, ok bool, err error)

	// GetMapped performs a point read and applies f to the value
	// in-place, avoiding an intermediate copy for callers that only need
	// a derived scalar.
	GetMapped(ctx context.Context, key Key, f func(Value) (any, error)) (result any, ok bool, err error)

	// IterateRange returns an ordered iterator over KeyRange, merging
	// any buffered writes this transaction has made.
	IterateRange(ctx context.Context, r KeyRange) (Iterator, error)

	// SequenceNumber is the snapshot's fixed read sequence number.
	SequenceNumber() uint64
}

// ReadWriteSnapshot extends Snapshot with the buffered-write and locking
// surface used by write transactions (spec §4.1).
type ReadWriteSnapshot interface {
	Snapshot

	Put(ctx context.Context, key Key, value Value) error
	// PutVal is like Put but signals the value is attribute-typed data
	// eligible for the "put" (insert-if-absent, dedup) semantics of
	// spec §4.3 rather than a plain overwrite.
	PutVal(ctx context.Context, key Key, value Value) error
	Delete(ctx context.Context, key Key) error
	// Unput reverses a Put made earlier in the same transaction. It is
	// an error to Unput a key that was not Put in this transaction.
	Unput(ctx context.Context, key Key) error

	// IterateBufferedWritesRange scopes IterateRange to only the writes
	// buffered by this transaction, used by finalize-time validation
	// that must walk exactly what changed (spec §4.3).
	IterateBufferedWritesRange(ctx context.Context, r KeyRange) (Iterator, error)

	ExclusiveLockAdd(ctx context.Context, key Key) error
	UnmodifiableLockAdd(ctx context.Context, key Key) error

	// Finalise commits the transaction's buffered writes and locks.
	Finalise(ctx context.Context, profile CommitProfile) (CommitRecord, error)

	// Rollback discards all buffered writes and locks without committing.
	Rollback(ctx context.Context) error

	// Closed reports whether Finalise or Rollback has already run.
	Closed() bool
}

// Iterator yields ordered KV pairs from a range scan. It is not safe for
// concurrent use by multiple goroutines.
type Iterator interface {
	// Next advances the iterator. It returns false when exhausted or
	// when an error occurred (check Err).
	Next(ctx context.Context) bool
	Item() KV
	// Seek advances the iterator to the first key >= target, used by
	// IntersectionStep to resynchronize a lagging iterator (spec §4.7).
	Seek(ctx context.Context, target Key) bool
	Err() error
	Close() error
}
