package txn

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/executor"
	"github.com/pthm/typecore/pkg/inference"
)

// rowBatch is one unit the producer goroutine hands to a QueryHandle's
// consumer: either up to prefetch rows, or a terminal Done/Err signal
// (spec §4.8's Ok/batch/Done streaming states).
type rowBatch struct {
	Rows []engine.Row
	Done bool
	Err  error
}

// QueryHandle is the consumer-facing half of one streaming query (spec
// §4.8 QueryInitial/QueryResponse/StreamRequest). The producer
// goroutine buffers at most prefetch rows before blocking on cont, so a
// slow or absent consumer cannot make the session buffer unboundedly
// much less affect other in-flight queries sharing the session's gate.
type QueryHandle struct {
	id       string
	prefetch int
	out      chan rowBatch
	cont     chan struct{}
	cancel   context.CancelFunc
}

// ID is the request id a client's StreamRequest would echo back.
func (h *QueryHandle) ID() string { return h.id }

// Next blocks for the next batch of rows, or the terminal signal. Next
// must not be called again after it returns a batch with Done true.
func (h *QueryHandle) Next(ctx context.Context) ([]engine.Row, bool, error) {
	select {
	case b, ok := <-h.out:
		if !ok {
			return nil, true, nil
		}
		return b.Rows, b.Done, b.Err
	case <-ctx.Done():
		return nil, true, ctx.Err()
	}
}

// StreamContinue releases the producer to fill and send the next batch
// (spec §4.8 StreamRequest), the flow-control half of the protocol.
func (h *QueryHandle) StreamContinue() {
	select {
	case h.cont <- struct{}{}:
	default:
	}
}

// Cancel interrupts the underlying pipeline without affecting the rest
// of the session; used when a client abandons a stream mid-flight.
func (h *QueryHandle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Query compiles and runs one match pipeline over g, streaming rows
// back through the returned QueryHandle in prefetch-sized batches (spec
// §4.8, §4.7). write selects the scheduling lock this query takes on the
// session's gate: true acquires the exclusive side, so the query waits
// for every running query and blocks new ones; false acquires the shared
// side, so read queries run alongside each other.
func (s *Session) Query(ctx context.Context, g *inference.Graph, seed engine.Row, prefetch int, write bool) (*QueryHandle, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if prefetch < 1 {
		return nil, ErrInvalidPrefetchSize
	}

	qctx, cancel := context.WithCancel(ctx)
	h := &QueryHandle{
		id:       uuid.NewString(),
		prefetch: prefetch,
		out:      make(chan rowBatch, 1),
		cont:     make(chan struct{}, 1),
		cancel:   cancel,
	}

	s.mu.Lock()
	s.responders[h.id] = h
	s.mu.Unlock()

	receiver := s.interrupt.NewReceiver()
	s.group.Go(func() error {
		defer cancel()
		defer func() {
			s.mu.Lock()
			delete(s.responders, h.id)
			s.mu.Unlock()
		}()

		if write {
			s.gate.Lock()
			defer s.gate.Unlock()
		} else {
			s.gate.RLock()
			defer s.gate.RUnlock()
		}

		err := s.runPipeline(qctx, g, seed, receiver, h)
		if write && err != nil {
			s.mu.Lock()
			if s.writeErr == nil {
				s.writeErr = err
			}
			s.mu.Unlock()
		}
		return nil // query errors are delivered via h.out, not the group
	})

	return h, nil
}

func (s *Session) runPipeline(ctx context.Context, g *inference.Graph, seed engine.Row, interrupt engine.Interrupt, h *QueryHandle) error {
	var buf []engine.Row
	flush := func(done bool, err error) error {
		h.out <- rowBatch{Rows: buf, Done: done, Err: err}
		buf = nil
		if done {
			return nil
		}
		select {
		case <-h.cont:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	runErr := executor.Run(ctx, s.Things, s.Schema, g, seed, interrupt, func(row engine.Row) error {
		buf = append(buf, row)
		if len(buf) < h.prefetch {
			return nil
		}
		return flush(false, nil)
	})

	if runErr != nil {
		return flush(true, runErr)
	}
	return flush(true, nil)
}

// StreamContinue looks up id's handle and releases its producer,
// matching spec §4.8's StreamRequest{request_id}.
func (s *Session) StreamContinue(id string) error {
	s.mu.Lock()
	h, ok := s.responders[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrQueryStreamNotFound, id)
	}
	h.StreamContinue()
	return nil
}
