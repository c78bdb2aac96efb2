package telemetry

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/config"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/logging"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/monitoring"
	"github.com/aeolus-works/turbine-sentry/internal/queue"
	"github.com/aeolus-works/turbine-sentry/internal/ready"
	"github.com/aeolus-works/turbine-sentry/internal/resources"
	"github.com/aeolus-works/turbine-sentry/internal/shared/worker"
	"github.com/aeolus-works/turbine-sentry/internal/state"
)

// Drift rates per cycle toward the current simulation targets.
const (
	vibrationDriftRate   = 0.02
	temperatureDriftRate = 0.01

	// Targets re-roll and anomaly spikes are considered every this
	// many cycles.
	driftRollInterval = 50
)

// Producer assembles one consistent sensor reading per cycle from the
// simulated turbine, publishes it to the shared state, and forwards it
// to the anomaly detector.
type Producer struct {
	cfg     config.TelemetryConfig
	log     *logging.Logger
	store   *state.Store
	metrics *monitoring.Metrics
	barrier *ready.Barrier
	tracker *resources.Tracker
	stacks  *resources.StackSim

	pulses   *queue.Bounded[Pulse]
	readings *queue.Bounded[state.Reading]

	rng *rand.Rand

	// baseVibration carries the drifted base level to the pulse
	// sampler as raw float bits.
	baseVibration atomic.Uint64

	cycle       uint64
	vibration   float64
	temperature float64
	vibTarget   float64
	tempTarget  float64
	calibrated  bool
}

// NewProducer wires a producer to its queues and monitors.
func NewProducer(
	cfg config.TelemetryConfig,
	log *logging.Logger,
	store *state.Store,
	metrics *monitoring.Metrics,
	barrier *ready.Barrier,
	tracker *resources.Tracker,
	stacks *resources.StackSim,
	pulses *queue.Bounded[Pulse],
	readings *queue.Bounded[state.Reading],
) *Producer {
	p := &Producer{
		cfg:         cfg,
		log:         log,
		store:       store,
		metrics:     metrics,
		barrier:     barrier,
		tracker:     tracker,
		stacks:      stacks,
		pulses:      pulses,
		readings:    readings,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		vibration:   2.45,
		temperature: 45.2,
		vibTarget:   2.45,
		tempTarget:  45.2,
	}
	p.baseVibration.Store(math.Float64bits(p.vibration))
	return p
}

// BaseVibration returns the current drifted base level. Safe to call
// from any goroutine.
func (p *Producer) BaseVibration() float64 {
	return math.Float64frombits(p.baseVibration.Load())
}

// Run produces readings until ctx is cancelled.
func (p *Producer) Run(ctx context.Context) {
	cfg := worker.Telemetry.Config()
	pacer := worker.NewPacer(cfg.Period)
	p.log.Info("telemetry producer started",
		zap.Duration("period", cfg.Period),
		zap.Int("warmup_cycles", p.cfg.WarmupCycles))

	for pacer.Wait(ctx) {
		start := time.Now()
		p.cycle++
		reading, extreme := p.step()
		p.publish(reading, extreme, time.Since(start), pacer.Overruns())
		p.metrics.RecordCycle(cfg.Name, time.Since(start))
		p.tracker.Observe(worker.Telemetry, p.stacks.FreeWords(worker.Telemetry))
	}
	p.log.Info("telemetry producer stopped", zap.Uint64("cycles", p.cycle))
}

// step advances the simulation one cycle and assembles the reading.
func (p *Producer) step() (state.Reading, bool) {
	p.roll()
	p.drift()
	p.baseVibration.Store(math.Float64bits(p.vibration))

	vibration := p.vibration
	pulse, drained, extreme := p.drainPulses()
	if drained > 0 {
		vibration = pulse.Value
	}
	if p.cycle%driftRollInterval == 0 && p.rng.Float64() < 0.40 {
		vibration += 3.0
		p.log.Warn("injected vibration spike",
			zap.Uint64("cycle", p.cycle),
			zap.Float64("vibration", vibration))
	}

	rpm := 15.0 + (math.Sin(float64(p.cycle)*0.01)*0.5+0.5)*10.0
	return state.Reading{
		Vibration:   vibration,
		Temperature: p.temperature,
		RPM:         rpm,
		Current:     40.0 + rpm*2.0,
		Timestamp:   time.Now(),
	}, extreme
}

// roll re-targets the drift occasionally so runs wander between calm
// and stressed regimes.
func (p *Producer) roll() {
	if p.cycle%driftRollInterval != 0 {
		return
	}
	if p.rng.Float64() < 0.30 {
		p.vibTarget = 1.0 + p.rng.Float64()*8.0
		p.tempTarget = 40.0 + p.rng.Float64()*40.0
		p.log.Info("drift targets re-rolled",
			zap.Float64("vibration_target", p.vibTarget),
			zap.Float64("temperature_target", p.tempTarget))
	}
}

func (p *Producer) drift() {
	p.vibration = stepToward(p.vibration, p.vibTarget, vibrationDriftRate)
	p.temperature = stepToward(p.temperature, p.tempTarget, temperatureDriftRate)
}

// drainPulses consumes at most DrainCap queued pulses, keeping the most
// recent. The cap keeps a flooded queue from extending this cycle.
func (p *Producer) drainPulses() (last Pulse, drained int, extreme bool) {
	for drained < p.cfg.DrainCap {
		pulse, ok := p.pulses.TryRecv()
		if !ok {
			break
		}
		last = pulse
		drained++
		if pulse.Value > ExtremePulse {
			extreme = true
		}
	}
	return last, drained, extreme
}

func (p *Producer) publish(reading state.Reading, extreme bool, elapsed time.Duration, overruns uint64) {
	updated := p.store.Update(func(st *state.State) {
		st.Sensors = reading
		if extreme && !st.Safety.EmergencyStop {
			// The one sanctioned cross-owner write: an extreme raw
			// pulse must not wait for the detector or governor.
			st.Safety.EmergencyStop = true
			st.Safety.StopActivatedAt = time.Now()
		}
		st.Workers[worker.Telemetry.String()] = state.WorkerStats{
			Cycles:        p.cycle,
			Overruns:      overruns,
			LastCycleTime: elapsed,
		}
	})
	if !updated {
		p.log.Warn("state guard busy, reading not published", zap.Uint64("cycle", p.cycle))
	}
	if extreme {
		p.log.Error("extreme vibration pulse, emergency stop forced",
			zap.Uint64("cycle", p.cycle))
	}

	p.readings.SendTimeout(reading, p.cfg.SendTimeout)

	if !p.calibrated && p.cycle >= uint64(p.cfg.WarmupCycles) {
		p.calibrated = true
		p.barrier.Signal(ready.SensorsCalibrated)
		p.log.Info("sensors calibrated", zap.Uint64("cycle", p.cycle))
	}
}

func stepToward(v, target, rate float64) float64 {
	switch {
	case v < target-rate:
		return v + rate
	case v > target+rate:
		return v - rate
	default:
		return target
	}
}
