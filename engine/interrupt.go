package engine

import "sync"

// Interrupt is consulted by every blocking iterator advance (spec §4.7,
// §5, §9). It is cheap and non-blocking by design: a single failed send
// on the broadcasting side should never stall a hot loop.
type Interrupt interface {
	// Check reports whether an interrupt has been signalled and, if so,
	// its kind.
	Check() (InterruptKind, bool)
}

// noInterrupt never fires. Useful for tests and for one-shot internal
// scans that don't participate in a transaction's lifecycle.
type noInterrupt struct{}

func (noInterrupt) Check() (InterruptKind, bool) { return 0, false }

// NoInterrupt returns an Interrupt that never fires.
func NoInterrupt() Interrupt { return noInterrupt{} }

// InterruptSource is the broadcasting side of an Interrupt: a
// TransactionService (pkg/txn) holds one per open transaction and
// broadcasts to every clone handed to a running iterator (spec §9).
type InterruptSource struct {
	mu     sync.Mutex
	fired  bool
	kind   InterruptKind
	clones []*interruptReceiver
}

// NewInterruptSource creates a fresh, unfired interrupt source.
func NewInterruptSource() *InterruptSource {
	return &InterruptSource{}
}

// NewReceiver clones a non-blocking receiver for a newly-spawned
// iterator. If the source has already fired, the clone observes that
// immediately.
func (s *InterruptSource) NewReceiver() Interrupt {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &interruptReceiver{}
	if s.fired {
		r.fired = true
		r.kind = s.kind
	}
	s.clones = append(s.clones, r)
	return r
}

// Fire broadcasts kind to every existing and future receiver. Firing
// twice is a no-op; the first kind wins.
func (s *InterruptSource) Fire(kind InterruptKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		return
	}
	s.fired = true
	s.kind = kind
	for _, c := range s.clones {
		c.mu.Lock()
		c.fired = true
		c.kind = kind
		c.mu.Unlock()
	}
}

type interruptReceiver struct {
	mu    sync.Mutex
	fired bool
	kind  InterruptKind
}

func (r *interruptReceiver) Check() (InterruptKind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kind, r.fired
}
