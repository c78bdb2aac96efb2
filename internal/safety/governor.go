// Package safety implements the emergency-stop governor: the highest
// priority worker, polling sensor values against critical limits and
// latching an emergency stop when multiple limits are breached at
// once.
package safety

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/config"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/logging"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/monitoring"
	"github.com/aeolus-works/turbine-sentry/internal/ready"
	"github.com/aeolus-works/turbine-sentry/internal/resources"
	"github.com/aeolus-works/turbine-sentry/internal/shared/worker"
	"github.com/aeolus-works/turbine-sentry/internal/state"
)

// StopThreshold is how many alarms must be active simultaneously to
// latch the emergency stop. A single tripped limit alarms but does not
// stop the turbine.
const StopThreshold = 2

// Alarm condition labels, indexed by alarmIndex.
const (
	alarmVibration = iota
	alarmTemperature
	alarmRPM
	alarmCurrent
	alarmConditions
)

var alarmNames = [alarmConditions]string{"vibration", "temperature", "rpm", "current"}

// Governor runs the emergency-stop state machine. It owns the safety
// section of the shared state; the telemetry producer may pre-set the
// stop flag on an extreme pulse, and the governor adopts that latch as
// its own.
type Governor struct {
	cfg        config.SafetyConfig
	thresholds config.Thresholds
	log        *logging.Logger
	store      *state.Store
	metrics    *monitoring.Metrics
	barrier    *ready.Barrier
	tracker    *resources.Tracker
	stacks     *resources.StackSim

	alarms     [alarmConditions]bool
	alarmCount uint64
	stopped    bool
	stoppedAt  time.Time

	lastReading state.Reading
	haveReading bool
	guardMisses uint64
	cycle       uint64
}

// NewGovernor wires a governor to the shared state and monitors.
func NewGovernor(
	cfg config.SafetyConfig,
	thresholds config.Thresholds,
	log *logging.Logger,
	store *state.Store,
	metrics *monitoring.Metrics,
	barrier *ready.Barrier,
	tracker *resources.Tracker,
	stacks *resources.StackSim,
) *Governor {
	return &Governor{
		cfg:        cfg,
		thresholds: thresholds,
		log:        log,
		store:      store,
		metrics:    metrics,
		barrier:    barrier,
		tracker:    tracker,
		stacks:     stacks,
	}
}

// Run waits for the system to come ready, then monitors until ctx is
// cancelled. Monitoring never starts against uninitialized producers.
func (g *Governor) Run(ctx context.Context) {
	g.log.Info("safety governor waiting for system readiness")
	flags, err := g.barrier.WaitAll(ctx)
	if err != nil {
		g.log.Info("shutdown before system ready", zap.String("flags", flagNames(flags)))
		return
	}
	now := time.Now()
	g.store.Update(func(st *state.State) { st.ReadyAt = now })
	g.log.Info("system ready, safety monitoring active")

	cfg := worker.Safety.Config()
	pacer := worker.NewPacer(cfg.Period)
	for pacer.Wait(ctx) {
		start := time.Now()
		g.cycle++
		g.runCycle(start, pacer.Overruns())
		g.metrics.RecordCycle(cfg.Name, time.Since(start))
		g.tracker.Observe(worker.Safety, g.stacks.FreeWords(worker.Safety))
	}
	g.log.Info("safety governor stopped",
		zap.Uint64("cycles", g.cycle),
		zap.Uint64("alarm_count", g.alarmCount))
}

func (g *Governor) runCycle(start time.Time, overruns uint64) {
	reading, forced, forcedAt := g.observe()
	if !g.haveReading {
		return
	}

	// Adopt a stop latched externally before applying this cycle's
	// transitions.
	if forced && !g.stopped {
		g.stopped = true
		g.stoppedAt = forcedAt
		g.metrics.EmergencyStop.Set(1)
		g.log.Error("emergency stop adopted from extreme pulse")
	}

	active := g.updateAlarms(reading)
	cleared := g.transition(active)
	g.mirror(cleared, time.Since(start), overruns)
}

// observe reads the latest sensor values, falling back to the previous
// reading when the guard is busy. Safety polling never blocks past the
// guard deadline.
func (g *Governor) observe() (state.Reading, bool, time.Time) {
	var (
		reading  state.Reading
		forced   bool
		forcedAt time.Time
	)
	ok := g.store.View(func(st *state.State) {
		reading = st.Sensors
		forced = st.Safety.EmergencyStop
		forcedAt = st.Safety.StopActivatedAt
	})
	if !ok {
		g.guardMisses++
		return g.lastReading, false, time.Time{}
	}
	g.lastReading = reading
	g.haveReading = true
	return reading, forced, forcedAt
}

// updateAlarms applies edge-triggered alarm detection and returns how
// many alarms are currently active. The cumulative count moves only on
// rising edges.
func (g *Governor) updateAlarms(r state.Reading) int {
	t := g.thresholds
	now := [alarmConditions]bool{
		alarmVibration:   r.Vibration > t.VibrationCritical,
		alarmTemperature: r.Temperature > t.TemperatureCritical,
		alarmRPM:         r.RPM < t.RPMMin || r.RPM > t.RPMMax,
		alarmCurrent:     r.Current > t.CurrentMax,
	}

	active := 0
	for i, on := range now {
		if on {
			active++
		}
		if on && !g.alarms[i] {
			g.alarmCount++
			g.metrics.AlarmsTotal.WithLabelValues(alarmNames[i]).Inc()
			g.log.Warn("safety alarm raised",
				zap.String("condition", alarmNames[i]),
				zap.Float64("vibration", r.Vibration),
				zap.Float64("temperature", r.Temperature),
				zap.Float64("rpm", r.RPM),
				zap.Float64("current", r.Current))
		}
		g.alarms[i] = on
	}
	return active
}

// transition latches or releases the emergency stop. Release requires
// the stop to have been held for the minimum duration and every alarm
// to be clear.
func (g *Governor) transition(active int) bool {
	if !g.stopped {
		if active >= StopThreshold {
			g.stopped = true
			g.stoppedAt = time.Now()
			g.metrics.EmergencyStop.Set(1)
			g.log.Error("emergency stop latched",
				zap.Int("active_alarms", active),
				zap.Uint64("alarm_count", g.alarmCount))
		}
		return false
	}
	if active == 0 && time.Since(g.stoppedAt) >= g.cfg.MinStopHold {
		g.stopped = false
		g.metrics.EmergencyStop.Set(0)
		g.log.Info("emergency stop released",
			zap.Duration("held", time.Since(g.stoppedAt)))
		return true
	}
	return false
}

func (g *Governor) mirror(cleared bool, elapsed time.Duration, overruns uint64) {
	section := state.SafetySection{
		EmergencyStop:    g.stopped,
		StopActivatedAt:  g.stoppedAt,
		VibrationAlarm:   g.alarms[alarmVibration],
		TemperatureAlarm: g.alarms[alarmTemperature],
		RPMAlarm:         g.alarms[alarmRPM],
		CurrentAlarm:     g.alarms[alarmCurrent],
		AlarmCount:       g.alarmCount,
	}
	ok := g.store.Update(func(st *state.State) {
		// An extreme-pulse stop latched between observe and mirror
		// must survive the write-back.
		if st.Safety.EmergencyStop && !section.EmergencyStop && !cleared {
			section.EmergencyStop = true
			section.StopActivatedAt = st.Safety.StopActivatedAt
			g.stopped = true
			g.stoppedAt = st.Safety.StopActivatedAt
		}
		st.Safety = section
		st.Workers[worker.Safety.String()] = state.WorkerStats{
			Cycles:        g.cycle,
			Overruns:      overruns,
			LastCycleTime: elapsed,
		}
	})
	if !ok {
		g.guardMisses++
	}
}

func flagNames(f ready.Flag) string {
	if f == 0 {
		return "none"
	}
	out := ""
	for _, bit := range []ready.Flag{ready.SensorsCalibrated, ready.NetworkConnected, ready.BaselineReady} {
		if f&bit == 0 {
			continue
		}
		if out != "" {
			out += ","
		}
		out += bit.String()
	}
	return out
}
