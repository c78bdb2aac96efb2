package state

import (
	"sync/atomic"
	"time"
)

// DefaultAcquireTimeout bounds how long a worker may wait for the
// guard before falling back to defaults.
const DefaultAcquireTimeout = 10 * time.Millisecond

// Guard is a mutual-exclusion primitive with bounded-wait acquisition.
// A one-slot channel carries the lock token; acquisition races the
// token against a deadline.
type Guard struct {
	sem      chan struct{}
	timeout  time.Duration
	timeouts atomic.Uint64

	// onTimeout, when set, observes every failed acquisition.
	onTimeout func()
}

// NewGuard creates a guard with the given acquire timeout.
func NewGuard(timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	return &Guard{sem: make(chan struct{}, 1), timeout: timeout}
}

// SetTimeoutHook installs an observer for failed acquisitions. Must be
// called before the guard is shared.
func (g *Guard) SetTimeoutHook(fn func()) { g.onTimeout = fn }

// Acquire obtains the guard, waiting at most the configured timeout.
func (g *Guard) Acquire() bool {
	select {
	case g.sem <- struct{}{}:
		return true
	default:
	}
	t := time.NewTimer(g.timeout)
	defer t.Stop()
	select {
	case g.sem <- struct{}{}:
		return true
	case <-t.C:
		g.timeouts.Add(1)
		if g.onTimeout != nil {
			g.onTimeout()
		}
		return false
	}
}

// Release returns the guard. Must only be called after a successful
// Acquire.
func (g *Guard) Release() { <-g.sem }

// Timeouts reports how many acquisitions have timed out.
func (g *Guard) Timeouts() uint64 { return g.timeouts.Load() }

// Store owns the shared State behind a bounded-timeout guard.
type Store struct {
	guard *Guard
	st    State
}

// NewStore creates a store with initial sensor values and an uplink
// that starts connected.
func NewStore(guard *Guard) *Store {
	s := &Store{guard: guard}
	s.st = State{
		Sensors: Reading{
			Vibration:   2.45,
			Temperature: 45.2,
			RPM:         20.1,
			Current:     50.0,
			Timestamp:   time.Now(),
		},
		Anomalies: AnomalyResult{HealthScore: 100.0},
		Uplink:    UplinkSection{Connected: true},
		Workers:   make(map[string]WorkerStats),
		StartedAt: time.Now(),
	}
	return s
}

// Update runs fn with exclusive access to the state. It returns false
// without running fn when the guard cannot be acquired in time; the
// caller proceeds with its documented fallback.
func (s *Store) Update(fn func(*State)) bool {
	if !s.guard.Acquire() {
		return false
	}
	defer s.guard.Release()
	fn(&s.st)
	return true
}

// View runs fn with exclusive read access. Readers use the same guard
// as writers; fn must not mutate the state.
func (s *Store) View(fn func(*State)) bool {
	if !s.guard.Acquire() {
		return false
	}
	defer s.guard.Release()
	fn(&s.st)
	return true
}

// Snapshot returns a deep copy of the state, or ok=false on guard
// timeout.
func (s *Store) Snapshot() (State, bool) {
	var out State
	ok := s.View(func(st *State) {
		out = *st
		out.Stacks = append([]StackEntry(nil), st.Stacks...)
		out.Workers = make(map[string]WorkerStats, len(st.Workers))
		for k, v := range st.Workers {
			out.Workers[k] = v
		}
	})
	return out, ok
}

// GuardTimeouts reports the guard's timeout count.
func (s *Store) GuardTimeouts() uint64 { return s.guard.Timeouts() }
