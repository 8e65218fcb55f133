// Package txn implements the per-session transaction lifecycle of spec
// §4.8 (C8): Open, Query, StreamContinue, Commit, Rollback, Close over a
// query queue with bounded streaming and cooperative interrupts. It is
// the collaborator a client wire protocol (out of scope, §1/§6) would
// sit in front of.
//
// Scheduling (spec §4.8, §5) is expressed with a sync.RWMutex rather
// than a hand-rolled FIFO: a running write query holds the exclusive
// lock, so no read can start until it releases; concurrent reads hold
// the shared lock, so a write started afterward waits for all of them.
// Query execution itself is offloaded to a worker goroutine per query,
// tracked by a golang.org/x/sync/errgroup.Group so Commit/Rollback/Close
// can wait for every in-flight pipeline to observe an interrupt and
// return, matching §5's async-loop/blocking-worker split.
package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/concept"
	"github.com/pthm/typecore/pkg/typesystem"
)

// TransactionType selects a session's access mode (spec §6
// TransactionOpen.type).
type TransactionType int

const (
	TransactionRead TransactionType = iota
	TransactionWrite
	TransactionSchema
)

func (t TransactionType) String() string {
	switch t {
	case TransactionRead:
		return "read"
	case TransactionWrite:
		return "write"
	case TransactionSchema:
		return "schema"
	default:
		return "unknown"
	}
}

// OpenOptions mirrors spec §6's TransactionOpen.options.
type OpenOptions struct {
	TimeoutMS                  int
	SchemaLockAcquireTimeoutMS int
	NetworkLatencyMS           int
}

// Store is the snapshot-opening surface a Session needs from a storage
// backend; pkg/storage/postgres.Store implements it.
type Store interface {
	OpenReadOnly(ctx context.Context) (engine.Snapshot, error)
	OpenReadWrite(ctx context.Context) (engine.ReadWriteSnapshot, error)
}

// Session is one open transaction (spec §4.8). Not safe for concurrent
// calls to Open/Commit/Rollback/Close from multiple goroutines; Query
// and StreamContinue are.
type Session struct {
	typ       TransactionType
	opts      OpenOptions
	openedAt  time.Time
	timeoutAt time.Time

	snapshot engine.Snapshot         // always set
	rw       engine.ReadWriteSnapshot // set for Write/Schema only

	Schema *typesystem.TypeManager
	Things *concept.ThingManager

	interrupt *engine.InterruptSource
	gate      sync.RWMutex // write = Lock, read = RLock (spec §4.8 scheduling rules)

	group      *errgroup.Group
	mu         sync.Mutex
	closed     bool
	writeErr   error
	responders map[string]*QueryHandle
}

// Open begins a new session against store, loading the current schema
// and instance managers over the chosen snapshot kind (spec §4.8
// states, §6 TransactionOpen).
func Open(ctx context.Context, store Store, typ TransactionType, opts OpenOptions) (*Session, error) {
	s := &Session{
		typ:        typ,
		opts:       opts,
		openedAt:   time.Now(),
		interrupt:  engine.NewInterruptSource(),
		group:      new(errgroup.Group),
		responders: make(map[string]*QueryHandle),
	}
	if opts.TimeoutMS > 0 {
		s.timeoutAt = s.openedAt.Add(time.Duration(opts.TimeoutMS) * time.Millisecond)
	}

	switch typ {
	case TransactionRead:
		snap, err := store.OpenReadOnly(ctx)
		if err != nil {
			return nil, err
		}
		s.snapshot = snap
	case TransactionWrite, TransactionSchema:
		rw, err := store.OpenReadWrite(ctx)
		if err != nil {
			return nil, err
		}
		s.snapshot, s.rw = rw, rw
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnrecognisedTransactionType, typ)
	}

	schema, err := typesystem.Load(ctx, s.snapshot)
	if err != nil {
		if s.rw != nil {
			_ = s.rw.Rollback(ctx)
		}
		return nil, err
	}
	s.Schema = schema
	s.Things = concept.NewThingManager(s.snapshot, schema)
	return s, nil
}

// TimedOut reports whether opts.TimeoutMS has elapsed since Open.
func (s *Session) TimedOut() bool {
	return !s.timeoutAt.IsZero() && time.Now().After(s.timeoutAt)
}

// Type returns the session's transaction type.
func (s *Session) Type() TransactionType { return s.typ }

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrTransactionClosed
	}
	return nil
}

// Commit waits for every in-flight query (the active write, and any
// reads sharing the gate) to finish, rejects if a write query failed or
// this is a read transaction, then finalizes the instance manager and
// the underlying snapshot (spec §4.8 Commit, §4.3 two-phase finalise).
func (s *Session) Commit(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.typ == TransactionRead {
		return ErrCommitOnReadTransaction
	}

	s.gate.Lock()
	defer s.gate.Unlock()
	if err := s.group.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	writeErr := s.writeErr
	s.mu.Unlock()
	if writeErr != nil {
		return writeErr
	}

	if err := s.Things.Finalise(ctx, s.rw); err != nil {
		return err
	}
	if _, err := s.rw.Finalise(ctx, engine.CommitProfile{IsolationLabel: s.typ.String()}); err != nil {
		return err
	}

	s.interrupt.Fire(engine.InterruptTransactionCommitted)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Rollback interrupts every in-flight query, waits for them to return,
// then discards the snapshot's buffered writes (spec §4.8 Rollback).
func (s *Session) Rollback(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.interrupt.Fire(engine.InterruptTransactionRolledBack)
	_ = s.group.Wait()

	var err error
	if s.rw != nil {
		err = s.rw.Rollback(ctx)
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

// Close interrupts and drains in-flight queries and releases the
// session's snapshot without committing (spec §4.8 Close). Closing an
// already-closed or already-committed session is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.interrupt.Fire(engine.InterruptTransactionClosed)
	_ = s.group.Wait()
	if s.rw != nil && !s.rw.Closed() {
		return s.rw.Rollback(ctx)
	}
	return nil
}
