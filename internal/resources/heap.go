// Package resources implements the proactive resource-health monitors:
// a heap accountant for dynamic packet buffers and a per-worker stack
// tracker with hysteresis warnings.
package resources

import (
	"errors"
	"sync"

	"github.com/aeolus-works/turbine-sentry/internal/state"
)

// ErrBudgetExhausted is returned when an allocation would exceed the
// simulated heap budget.
var ErrBudgetExhausted = errors.New("heap budget exhausted")

// Accountant tracks dynamic allocations against a fixed simulated heap
// budget. Counters are purely additive except for the min/max marks.
type Accountant struct {
	mu sync.Mutex

	budget    uint64
	allocated uint64

	allocations uint64
	frees       uint64
	failures    uint64
	peakUsage   uint64
	minFree     uint64
	active      uint32
}

// NewAccountant creates an accountant over the given byte budget.
func NewAccountant(budget uint64) *Accountant {
	return &Accountant{budget: budget, minFree: budget}
}

// Alloc reserves n bytes, or returns ErrBudgetExhausted leaving all
// counters except the failure count untouched.
func (a *Accountant) Alloc(n uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.allocated+n > a.budget {
		a.failures++
		return ErrBudgetExhausted
	}
	a.allocated += n
	a.allocations++
	a.active++
	if a.allocated > a.peakUsage {
		a.peakUsage = a.allocated
	}
	if free := a.budget - a.allocated; free < a.minFree {
		a.minFree = free
	}
	return nil
}

// Free releases n bytes reserved by a prior Alloc.
func (a *Accountant) Free(n uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n > a.allocated {
		n = a.allocated
	}
	a.allocated -= n
	a.frees++
	if a.active > 0 {
		a.active--
	}
}

// Stats returns the accounting mirror for the shared state store.
func (a *Accountant) Stats() state.MemorySection {
	a.mu.Lock()
	defer a.mu.Unlock()

	return state.MemorySection{
		Allocations:    a.allocations,
		Frees:          a.frees,
		Failures:       a.failures,
		BytesAllocated: a.allocated,
		PeakUsage:      a.peakUsage,
		CurrentFree:    a.budget - a.allocated,
		MinimumFree:    a.minFree,
		Active:         a.active,
	}
}
