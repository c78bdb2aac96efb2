package status

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/logging"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/monitoring"
	"github.com/aeolus-works/turbine-sentry/internal/resources"
	"github.com/aeolus-works/turbine-sentry/internal/shared/worker"
	"github.com/aeolus-works/turbine-sentry/internal/state"
)

// A full status line goes to the log at this cycle interval.
const summaryInterval = 10

// View is the rendered system picture served over HTTP and pushed over
// the websocket stream.
type View struct {
	State         state.State         `json:"state"`
	Metrics       monitoring.Snapshot `json:"metrics"`
	GuardTimeouts uint64              `json:"guard_timeouts"`
	Dashboards    int                 `json:"dashboards"`
	UptimeSeconds float64             `json:"uptime_seconds"`
	RenderedAt    time.Time           `json:"rendered_at"`
}

// Renderer assembles the full snapshot once per second, folds the
// stack sample into the shared state, and feeds the hub.
type Renderer struct {
	log     *logging.Logger
	store   *state.Store
	metrics *monitoring.Metrics
	tracker *resources.Tracker
	stacks  *resources.StackSim
	hub     *Hub

	cycle  uint64
	lastMu sync.RWMutex
	last   View
}

// NewRenderer wires a renderer to the store, tracker, and hub.
func NewRenderer(
	log *logging.Logger,
	store *state.Store,
	metrics *monitoring.Metrics,
	tracker *resources.Tracker,
	stacks *resources.StackSim,
	hub *Hub,
) *Renderer {
	return &Renderer{
		log:     log,
		store:   store,
		metrics: metrics,
		tracker: tracker,
		stacks:  stacks,
		hub:     hub,
	}
}

// Run renders until ctx is cancelled.
func (r *Renderer) Run(ctx context.Context) {
	cfg := worker.Renderer.Config()
	pacer := worker.NewPacer(cfg.Period)
	r.log.Info("status renderer started", zap.Duration("period", cfg.Period))

	for pacer.Wait(ctx) {
		start := time.Now()
		r.cycle++
		r.render(start, pacer.Overruns())
		r.metrics.RecordCycle(cfg.Name, time.Since(start))
		r.tracker.Observe(worker.Renderer, r.stacks.FreeWords(worker.Renderer))
	}
	r.log.Info("status renderer stopped", zap.Uint64("cycles", r.cycle))
}

func (r *Renderer) render(start time.Time, overruns uint64) {
	entries := r.tracker.Sample()
	for _, e := range entries {
		r.metrics.StackUsage.WithLabelValues(e.WorkerName).Set(float64(e.UsagePercent))
	}

	var snap state.State
	ok := r.store.Update(func(st *state.State) {
		st.Stacks = entries
		st.Workers[worker.Renderer.String()] = state.WorkerStats{
			Cycles:        r.cycle,
			Overruns:      overruns,
			LastCycleTime: time.Since(start),
		}
		snap = *st
		snap.Stacks = append([]state.StackEntry(nil), st.Stacks...)
		snap.Workers = make(map[string]state.WorkerStats, len(st.Workers))
		for k, v := range st.Workers {
			snap.Workers[k] = v
		}
	})
	if !ok {
		r.log.Warn("state guard busy, frame skipped", zap.Uint64("cycle", r.cycle))
		return
	}

	view := View{
		State:         snap,
		Metrics:       r.metrics.GetSnapshot(),
		GuardTimeouts: r.store.GuardTimeouts(),
		Dashboards:    r.hub.Clients(),
		UptimeSeconds: time.Since(snap.StartedAt).Seconds(),
		RenderedAt:    time.Now(),
	}
	r.setLast(view)

	if frame, err := sonic.Marshal(view); err == nil {
		r.hub.Broadcast(frame)
	} else {
		r.log.Error("frame encoding failed", zap.Error(err))
	}

	if r.cycle%summaryInterval == 0 {
		r.log.Info("system status",
			zap.Float64("health", snap.Anomalies.HealthScore),
			zap.Bool("emergency_stop", snap.Safety.EmergencyStop),
			zap.Bool("uplink", snap.Uplink.Connected),
			zap.Uint64("packets_sent", snap.Uplink.PacketsSent),
			zap.Uint64("alarm_count", snap.Safety.AlarmCount),
			zap.Uint64("guard_timeouts", view.GuardTimeouts))
	}
}

func (r *Renderer) setLast(v View) {
	r.lastMu.Lock()
	r.last = v
	r.lastMu.Unlock()
}

// Last returns the most recently rendered view.
func (r *Renderer) Last() View {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	return r.last
}
