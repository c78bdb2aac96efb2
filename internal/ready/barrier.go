// Package ready implements the startup readiness barrier.
//
// Three independently-initializing workers each set one flag exactly
// once; the safety governor AND-waits on all three before it starts
// monitoring. Flags are never cleared. The wait is unbounded by
// design: safety monitoring must never run against an uninitialized
// system, so a producer that dies before signaling deliberately
// deadlocks the waiter (process shutdown via context stays possible).
package ready

import (
	"context"
	"sync"
)

// Flag identifies one readiness bit.
type Flag uint8

const (
	// SensorsCalibrated is set by the telemetry producer after its
	// warm-up cycles.
	SensorsCalibrated Flag = 1 << iota
	// NetworkConnected is set by the transmission worker once the
	// simulated uplink is first up.
	NetworkConnected
	// BaselineReady is set by the anomaly detector once its trailing
	// window has filled.
	BaselineReady
)

// AllReady is the union the safety governor waits for.
const AllReady = SensorsCalibrated | NetworkConnected | BaselineReady

// String returns the flag name.
func (f Flag) String() string {
	switch f {
	case SensorsCalibrated:
		return "sensors-calibrated"
	case NetworkConnected:
		return "network-connected"
	case BaselineReady:
		return "baseline-ready"
	default:
		return "unknown"
	}
}

// Barrier is a set-once flag group with an AND-wait.
type Barrier struct {
	mu   sync.Mutex
	set  Flag
	done chan struct{}
}

// NewBarrier creates an empty barrier.
func NewBarrier() *Barrier {
	return &Barrier{done: make(chan struct{})}
}

// Signal sets a flag. Setting an already-set flag is a no-op.
func (b *Barrier) Signal(f Flag) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.set&f == f {
		return
	}
	b.set |= f
	if b.set&AllReady == AllReady {
		select {
		case <-b.done:
		default:
			close(b.done)
		}
	}
}

// Flags returns the union of flags currently set.
func (b *Barrier) Flags() Flag {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.set
}

// Ready reports whether all flags are set.
func (b *Barrier) Ready() bool {
	return b.Flags()&AllReady == AllReady
}

// WaitAll blocks until every flag is set, then returns the union
// observed. It returns ctx.Err() only on process shutdown.
func (b *Barrier) WaitAll(ctx context.Context) (Flag, error) {
	select {
	case <-b.done:
		return b.Flags(), nil
	case <-ctx.Done():
		return b.Flags(), ctx.Err()
	}
}
