package resources

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/logging"
	"github.com/aeolus-works/turbine-sentry/internal/shared/worker"
	"github.com/aeolus-works/turbine-sentry/internal/state"
)

// Stack usage hysteresis band, in percent of capacity. A worker crossing
// the warning line is counted once and stays latched until it falls back
// below the reset line.
const (
	StackWarnPercent     = 70
	StackCriticalPercent = 85
	StackResetPercent    = 60
)

// Tracker maintains per-worker stack accounting. Workers report their
// free words each cycle; the renderer samples the aggregate once per
// second.
type Tracker struct {
	mu      sync.Mutex
	log     *logging.Logger
	entries map[worker.ID]*state.StackEntry

	warnings uint64

	// onWarning, when set, observes every latched warning.
	onWarning func(worker.ID)
	// halt is invoked when a worker reports zero free words. The
	// default logs fatally and terminates the process.
	halt func(worker.ID)
}

// NewTracker creates a tracker covering every declared worker.
func NewTracker(log *logging.Logger) *Tracker {
	t := &Tracker{
		log:     log,
		entries: make(map[worker.ID]*state.StackEntry, len(worker.All())),
	}
	for _, id := range worker.All() {
		cfg := id.Config()
		t.entries[id] = &state.StackEntry{
			Worker:           id,
			WorkerName:       cfg.Name,
			CapacityWords:    cfg.StackWords,
			CurrentFreeWords: cfg.StackWords,
			MinFreeWords:     cfg.StackWords,
		}
	}
	t.halt = func(id worker.ID) {
		log.Fatal("worker stack exhausted, halting", zap.String("worker", id.String()))
	}
	return t
}

// SetWarningHook installs an observer for latched warnings. Must be
// called before workers start reporting.
func (t *Tracker) SetWarningHook(fn func(worker.ID)) { t.onWarning = fn }

// SetHaltHook replaces the fatal-halt action taken on stack exhaustion.
func (t *Tracker) SetHaltHook(fn func(worker.ID)) { t.halt = fn }

// Observe records one worker's reported free words and applies the
// warning hysteresis.
func (t *Tracker) Observe(id worker.ID, freeWords uint32) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return
	}

	e.CurrentFreeWords = freeWords
	if freeWords < e.MinFreeWords {
		e.MinFreeWords = freeWords
	}
	e.UsagePercent = usagePercent(e.CapacityWords, freeWords)
	e.PeakUsagePercent = usagePercent(e.CapacityWords, e.MinFreeWords)
	e.LastCheck = time.Now()

	var (
		latched  bool
		released bool
	)
	switch {
	case !e.WarningLatched && e.UsagePercent >= StackWarnPercent:
		e.WarningLatched = true
		t.warnings++
		latched = true
	case e.WarningLatched && e.UsagePercent < StackResetPercent:
		e.WarningLatched = false
		released = true
	}
	usage := e.UsagePercent
	t.mu.Unlock()

	if latched {
		fields := []zap.Field{
			zap.String("worker", id.String()),
			zap.Uint32("usage_percent", usage),
			zap.Uint32("free_words", freeWords),
		}
		if usage >= StackCriticalPercent {
			t.log.Error("worker stack critically high", fields...)
		} else {
			t.log.Warn("worker stack high", fields...)
		}
		if t.onWarning != nil {
			t.onWarning(id)
		}
	}
	if released {
		t.log.Info("worker stack recovered",
			zap.String("worker", id.String()),
			zap.Uint32("usage_percent", usage))
	}
	if freeWords == 0 {
		t.halt(id)
	}
}

// Sample returns a copy of every worker's entry in priority order.
func (t *Tracker) Sample() []state.StackEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]state.StackEntry, 0, len(t.entries))
	for _, id := range worker.All() {
		if e, ok := t.entries[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// Warnings reports how many warning excursions have been latched.
func (t *Tracker) Warnings() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.warnings
}

func usagePercent(capacity, free uint32) uint32 {
	if capacity == 0 {
		return 0
	}
	return (capacity - free) * 100 / capacity
}

// StackSim produces plausible free-word readings for workers. Usage
// drifts as a small random walk inside a band that keeps steady-state
// operation below the warning line.
type StackSim struct {
	mu    sync.Mutex
	rng   *rand.Rand
	usage map[worker.ID]float64 // fraction of capacity in use
}

// NewStackSim creates a simulator seeded for non-reproducible runs.
func NewStackSim() *StackSim {
	return NewStackSimWithSource(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewStackSimWithSource creates a simulator over the given source.
func NewStackSimWithSource(rng *rand.Rand) *StackSim {
	s := &StackSim{rng: rng, usage: make(map[worker.ID]float64, len(worker.All()))}
	for _, id := range worker.All() {
		s.usage[id] = 0.35 + rng.Float64()*0.15
	}
	return s
}

// FreeWords returns the simulated free words for one worker.
func (s *StackSim) FreeWords(id worker.ID) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.usage[id] + (s.rng.Float64()-0.5)*0.02
	if u < 0.25 {
		u = 0.25
	}
	if u > 0.65 {
		u = 0.65
	}
	s.usage[id] = u

	capacity := id.Config().StackWords
	return capacity - uint32(float64(capacity)*u)
}
