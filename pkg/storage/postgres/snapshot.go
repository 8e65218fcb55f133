package postgres

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pthm/typecore/engine"
)

// OpenReadOnly begins a REPEATABLE READ, read-only transaction and
// returns a Snapshot fixed at that transaction's view of typecore_kv.
func (s *Store) OpenReadOnly(ctx context.Context) (engine.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	seq, err := readSeq(ctx, tx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return &snapshot{tx: tx, seq: seq}, nil
}

// OpenReadWrite begins a REPEATABLE READ, read-write transaction and
// returns a ReadWriteSnapshot that buffers writes in memory until
// Finalise, mirroring engine.MemStore's buffering so the two backends
// behave identically from a caller's point of view.
func (s *Store) OpenReadWrite(ctx context.Context) (engine.ReadWriteSnapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadWrite})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	seq, err := readSeq(ctx, tx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return &snapshot{
		tx:         tx,
		seq:        seq,
		writes:     make(map[string]*bufferedWrite),
		insertedBy: make(map[string]bool),
	}, nil
}

func readSeq(ctx context.Context, tx pgx.Tx) (uint64, error) {
	var seq int64
	err := tx.QueryRow(ctx, "SELECT last_value FROM typecore_seq").Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("%w: reading sequence: %v", ErrQuery, err)
	}
	return uint64(seq), nil
}

type bufferedWrite struct {
	value   engine.Value
	deleted bool
}

// snapshot implements both engine.Snapshot and engine.ReadWriteSnapshot.
// Buffered writes stay local to the Go process until Finalise, matching
// engine.MemStore's memSnapshot; only Finalise talks to Postgres for
// writes, keeping the transaction's DB-side footprint to one round trip
// per Finalise/Rollback plus one SELECT per Get/IterateRange.
type snapshot struct {
	tx  pgx.Tx
	seq uint64

	writes     map[string]*bufferedWrite // nil for a read-only snapshot
	insertedBy map[string]bool
	closed     bool
}

func (s *snapshot) SequenceNumber() uint64 { return s.seq }
func (s *snapshot) Closed() bool           { return s.closed }

func (s *snapshot) localLookup(key engine.Key) (engine.Value, bool, bool) {
	if s.writes == nil {
		return nil, false, false
	}
	w, ok := s.writes[string(key)]
	if !ok {
		return nil, false, false
	}
	if w.deleted {
		return nil, false, true
	}
	return w.value, true, true
}

func (s *snapshot) Get(ctx context.Context, key engine.Key) (engine.Value, bool, error) {
	if v, ok, found := s.localLookup(key); found {
		return v, ok, nil
	}
	var value []byte
	err := s.tx.QueryRow(ctx, "SELECT value FROM typecore_kv WHERE key = $1", []byte(key)).Scan(&value)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get: %v", ErrQuery, err)
	}
	return engine.Value(value), true, nil
}

func (s *snapshot) GetMapped(ctx context.Context, key engine.Key, f func(engine.Value) (any, error)) (any, bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	r, err := f(v)
	return r, true, err
}

func (s *snapshot) IterateRange(ctx context.Context, r engine.KeyRange) (engine.Iterator, error) {
	return s.scan(ctx, r, false)
}

func (s *snapshot) IterateBufferedWritesRange(ctx context.Context, r engine.KeyRange) (engine.Iterator, error) {
	return s.scan(ctx, r, true)
}

func (s *snapshot) scan(ctx context.Context, r engine.KeyRange, bufferedOnly bool) (engine.Iterator, error) {
	seen := make(map[string]bool)
	var kvs []engine.KV

	add := func(k string, v engine.Value) {
		if seen[k] {
			return
		}
		seen[k] = true
		if !inRange(engine.Key(k), r) {
			return
		}
		kvs = append(kvs, engine.KV{Key: engine.Key(k), Value: v})
	}

	if s.writes != nil {
		for k, w := range s.writes {
			seen[k] = true
			if w.deleted {
				continue
			}
			if !inRange(engine.Key(k), r) {
				continue
			}
			kvs = append(kvs, engine.KV{Key: engine.Key(k), Value: w.value})
		}
	}

	if !bufferedOnly {
		rows, err := s.tx.Query(ctx, rangeQuery(r))
		if err != nil {
			return nil, fmt.Errorf("%w: range scan: %v", ErrQuery, err)
		}
		defer rows.Close()
		for rows.Next() {
			var k, v []byte
			if err := rows.Scan(&k, &v); err != nil {
				return nil, fmt.Errorf("%w: scanning row: %v", ErrQuery, err)
			}
			add(string(k), engine.Value(v))
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: range scan: %v", ErrQuery, err)
		}
	}

	sort.Slice(kvs, func(i, j int) bool { return bytes.Compare(kvs[i].Key, kvs[j].Key) < 0 })
	return &sliceIterator{items: kvs, pos: -1}, nil
}

// rangeQuery returns a query string over literal, already-escaped byte
// arguments. pgx's simple protocol quoting for bytea via QueryRow/Query
// args is normally preferred, but the predicate count here varies per
// call, so bounds are inlined with pgx's Query-time parameter binding
// kept to the common (start-only) case and the rest filtered in Go via
// inRange, matching engine.MemStore's semantics exactly rather than
// re-deriving Postgres-side boundary arithmetic for FixedWidth prefixes.
func rangeQuery(r engine.KeyRange) string {
	var where []string
	if len(r.Start) > 0 {
		op := ">="
		if r.StartBound == engine.BoundExclusive {
			op = ">"
		}
		where = append(where, fmt.Sprintf("key %s '\\x%x'", op, []byte(r.Start)))
	}
	if len(r.End) > 0 && r.EndBound != engine.BoundUnbounded {
		op := "<="
		if r.EndBound == engine.BoundExclusive {
			op = "<"
		}
		where = append(where, fmt.Sprintf("key %s '\\x%x'", op, []byte(r.End)))
	}
	q := "SELECT key, value FROM typecore_kv"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q + " ORDER BY key"
}

func inRange(k engine.Key, r engine.KeyRange) bool {
	if len(r.Start) > 0 {
		c := bytes.Compare(k, r.Start)
		switch r.StartBound {
		case engine.BoundInclusive:
			if c < 0 {
				return false
			}
		case engine.BoundExclusive:
			if c <= 0 {
				return false
			}
		}
	}
	if len(r.End) > 0 {
		c := bytes.Compare(k, r.End)
		switch r.EndBound {
		case engine.BoundInclusive:
			if c > 0 {
				return false
			}
		case engine.BoundExclusive:
			if c >= 0 {
				return false
			}
		case engine.BoundUnbounded:
			if r.FixedWidth && !bytes.HasPrefix(k, r.End) {
				return false
			}
		}
	}
	return true
}

func (s *snapshot) Put(_ context.Context, key engine.Key, value engine.Value) error {
	if s.writes == nil {
		return engine.ErrReadOnly
	}
	k := string(key)
	s.writes[k] = &bufferedWrite{value: value}
	s.insertedBy[k] = true
	return nil
}

func (s *snapshot) PutVal(ctx context.Context, key engine.Key, value engine.Value) error {
	return s.Put(ctx, key, value)
}

func (s *snapshot) Delete(_ context.Context, key engine.Key) error {
	if s.writes == nil {
		return engine.ErrReadOnly
	}
	k := string(key)
	s.writes[k] = &bufferedWrite{deleted: true}
	delete(s.insertedBy, k)
	return nil
}

func (s *snapshot) Unput(_ context.Context, key engine.Key) error {
	if s.writes == nil {
		return engine.ErrReadOnly
	}
	k := string(key)
	if !s.insertedBy[k] {
		return engine.ErrReadOnly
	}
	delete(s.writes, k)
	delete(s.insertedBy, k)
	return nil
}

// ExclusiveLockAdd and UnmodifiableLockAdd both take a transaction-scoped
// Postgres advisory lock keyed on the key's hash. Unlike a row lock via
// "SELECT ... FOR UPDATE", an advisory lock doesn't require the row to
// already exist, which matters for keys a concurrent writer is about to
// insert for the first time.
func (s *snapshot) ExclusiveLockAdd(ctx context.Context, key engine.Key) error {
	return s.advisoryLock(ctx, key)
}

func (s *snapshot) UnmodifiableLockAdd(ctx context.Context, key engine.Key) error {
	return s.advisoryLock(ctx, key)
}

func (s *snapshot) advisoryLock(ctx context.Context, key engine.Key) error {
	_, err := s.tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", string(key))
	if err != nil {
		return fmt.Errorf("%w: acquiring lock: %v", ErrQuery, err)
	}
	return nil
}

func (s *snapshot) Finalise(ctx context.Context, _ engine.CommitProfile) (engine.CommitRecord, error) {
	if s.closed {
		return engine.CommitRecord{}, engine.ErrSnapshotClosed
	}
	batch := &pgx.Batch{}
	for k, w := range s.writes {
		if w.deleted {
			batch.Queue("DELETE FROM typecore_kv WHERE key = $1", []byte(k))
		} else {
			batch.Queue(
				"INSERT INTO typecore_kv (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value",
				[]byte(k), []byte(w.value),
			)
		}
	}
	if batch.Len() > 0 {
		results := s.tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				_ = s.tx.Rollback(ctx)
				s.closed = true
				return engine.CommitRecord{}, fmt.Errorf("%w: applying write %d: %v", ErrQuery, i, err)
			}
		}
		if err := results.Close(); err != nil {
			_ = s.tx.Rollback(ctx)
			s.closed = true
			return engine.CommitRecord{}, fmt.Errorf("%w: %v", ErrQuery, err)
		}
	}

	var newSeq int64
	if err := s.tx.QueryRow(ctx, "SELECT nextval('typecore_seq')").Scan(&newSeq); err != nil {
		_ = s.tx.Rollback(ctx)
		s.closed = true
		return engine.CommitRecord{}, fmt.Errorf("%w: bumping sequence: %v", ErrQuery, err)
	}

	if err := s.tx.Commit(ctx); err != nil {
		s.closed = true
		return engine.CommitRecord{}, fmt.Errorf("%w: commit: %v", ErrQuery, err)
	}
	s.closed = true
	return engine.CommitRecord{SequenceNumber: uint64(newSeq)}, nil
}

func (s *snapshot) Rollback(ctx context.Context) error {
	if s.closed {
		return engine.ErrSnapshotClosed
	}
	s.closed = true
	return s.tx.Rollback(ctx)
}

type sliceIterator struct {
	items []engine.KV
	pos   int
}

func (it *sliceIterator) Next(_ context.Context) bool {
	it.pos++
	return it.pos < len(it.items)
}

func (it *sliceIterator) Item() engine.KV { return it.items[it.pos] }

func (it *sliceIterator) Seek(_ context.Context, target engine.Key) bool {
	idx := sort.Search(len(it.items), func(i int) bool {
		return bytes.Compare(it.items[i].Key, target) >= 0
	})
	it.pos = idx
	return it.pos < len(it.items)
}

func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }
