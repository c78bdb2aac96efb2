package detect

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/config"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/logging"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/monitoring"
	"github.com/aeolus-works/turbine-sentry/internal/queue"
	"github.com/aeolus-works/turbine-sentry/internal/ready"
	"github.com/aeolus-works/turbine-sentry/internal/resources"
	"github.com/aeolus-works/turbine-sentry/internal/ring"
	"github.com/aeolus-works/turbine-sentry/internal/shared/id"
	"github.com/aeolus-works/turbine-sentry/internal/shared/worker"
	"github.com/aeolus-works/turbine-sentry/internal/state"
)

// A deviation beyond this many spreads from the baseline flags the
// channel.
const sigmaBand = 3.0

// Health penalties per channel, scaled by how far toward (or past)
// the band the value sits and capped so no single channel can zero
// the score alone.
const (
	vibrationPenaltyScale = 20.0
	vibrationPenaltyCap   = 30.0
	channelPenaltyScale   = 15.0
	channelPenaltyCap     = 25.0
)

// Detector consumes sensor readings, maintains trailing-window
// baselines per channel, and publishes the per-cycle anomaly verdict
// and health score.
type Detector struct {
	cfg        config.DetectionConfig
	thresholds config.Thresholds
	log        *logging.Logger
	store      *state.Store
	metrics    *monitoring.Metrics
	barrier    *ready.Barrier
	tracker    *resources.Tracker
	stacks     *resources.StackSim

	readings *queue.Bounded[state.Reading]
	alerts   *queue.Bounded[Alert]

	vibration   *ring.Ring
	temperature *ring.Ring
	rpm         *ring.Ring

	cycle         uint64
	samples       int
	anomalyCount  uint64
	baselineReady bool
	last          state.Reading
	haveLast      bool
}

// NewDetector wires a detector to its queues and monitors.
func NewDetector(
	cfg config.DetectionConfig,
	thresholds config.Thresholds,
	log *logging.Logger,
	store *state.Store,
	metrics *monitoring.Metrics,
	barrier *ready.Barrier,
	tracker *resources.Tracker,
	stacks *resources.StackSim,
	readings *queue.Bounded[state.Reading],
	alerts *queue.Bounded[Alert],
) *Detector {
	return &Detector{
		cfg:         cfg,
		thresholds:  thresholds,
		log:         log,
		store:       store,
		metrics:     metrics,
		barrier:     barrier,
		tracker:     tracker,
		stacks:      stacks,
		readings:    readings,
		alerts:      alerts,
		vibration:   ring.New(cfg.HistoryCap),
		temperature: ring.New(cfg.HistoryCap),
		rpm:         ring.New(cfg.HistoryCap),
	}
}

// Run detects anomalies until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	cfg := worker.Detector.Config()
	pacer := worker.NewPacer(cfg.Period)
	d.log.Info("anomaly detector started",
		zap.Duration("period", cfg.Period),
		zap.Int("window", d.cfg.Window))

	for pacer.Wait(ctx) {
		start := time.Now()
		d.cycle++
		d.runCycle(pacer.Overruns(), start)
		d.metrics.RecordCycle(cfg.Name, time.Since(start))
		d.tracker.Observe(worker.Detector, d.stacks.FreeWords(worker.Detector))
	}
	d.log.Info("anomaly detector stopped", zap.Uint64("cycles", d.cycle))
}

func (d *Detector) runCycle(overruns uint64, start time.Time) {
	// Consuming one or two readings on alternating cycles keeps the
	// detector roughly paced with the producer without ever blocking
	// on an empty queue.
	want := 1
	if d.cycle%2 == 0 {
		want = 2
	}
	for i := 0; i < want; i++ {
		r, ok := d.readings.TryRecv()
		if !ok {
			break
		}
		d.Ingest(r)
	}
	if !d.haveLast {
		return
	}

	result := d.Evaluate(d.last)
	d.publish(result, time.Since(start), overruns)

	if !d.baselineReady && d.samples >= d.cfg.Window {
		d.baselineReady = true
		d.barrier.Signal(ready.BaselineReady)
		d.log.Info("baseline established", zap.Int("samples", d.samples))
	}

	if d.cycle%2 == 0 && result.Any() {
		d.emitAlert(d.last, result)
	}
}

// Ingest appends one reading to the per-channel histories.
func (d *Detector) Ingest(r state.Reading) {
	d.vibration.Push(r.Vibration)
	d.temperature.Push(r.Temperature)
	d.rpm.Push(r.RPM)
	d.samples++
	d.last = r
	d.haveLast = true
}

// Evaluate computes the anomaly verdict for r against the trailing
// windows, over however much history exists.
func (d *Detector) Evaluate(r state.Reading) state.AnomalyResult {
	t := d.thresholds

	vib := d.judge(d.vibration, r.Vibration, r.Vibration > t.VibrationWarning)
	temp := d.judge(d.temperature, r.Temperature, r.Temperature > t.TemperatureWarning)
	rpm := d.judge(d.rpm, r.RPM, r.RPM < t.RPMMin || r.RPM > t.RPMMax)

	result := state.AnomalyResult{
		Vibration:   vib.flagged,
		Temperature: temp.flagged,
		RPM:         rpm.flagged,
		HealthScore: 100.0,
	}

	// Health degrades with any measurable deviation from baseline,
	// flagged or not; per-channel caps keep one channel from zeroing
	// the score on its own.
	if vib.spread > 0 {
		result.HealthScore -= math.Min(vibrationPenaltyScale*vib.ratio, vibrationPenaltyCap)
	}
	if temp.spread > 0 {
		result.HealthScore -= math.Min(channelPenaltyScale*temp.ratio, channelPenaltyCap)
	}
	if rpm.spread > 0 {
		result.HealthScore -= math.Min(channelPenaltyScale*rpm.ratio, channelPenaltyCap)
	}
	result.HealthScore = clamp(result.HealthScore, 0, 100)

	// The cumulative counter moves once per flagged channel, not once
	// per cycle.
	if vib.flagged {
		d.anomalyCount++
		d.metrics.AnomaliesTotal.WithLabelValues("vibration").Inc()
	}
	if temp.flagged {
		d.anomalyCount++
		d.metrics.AnomaliesTotal.WithLabelValues("temperature").Inc()
	}
	if rpm.flagged {
		d.anomalyCount++
		d.metrics.AnomaliesTotal.WithLabelValues("rpm").Inc()
	}
	result.AnomalyCount = d.anomalyCount
	return result
}

type verdict struct {
	flagged bool
	// ratio is the deviation in units of the band width; spread is
	// the window's population standard deviation. A zero spread means
	// no deviation is measurable, so no health penalty applies.
	ratio  float64
	spread float64
}

// judge applies the statistical band and the absolute rule to one
// channel.
func (d *Detector) judge(history *ring.Ring, value float64, absolute bool) verdict {
	window := history.Window(d.cfg.Window)
	if len(window) == 0 {
		return verdict{flagged: absolute}
	}

	baseline := stat.Mean(window, nil)
	spread := stat.PopStdDev(window, nil)
	deviation := math.Abs(value - baseline)

	v := verdict{flagged: absolute, spread: spread}
	if spread > 0 {
		v.ratio = deviation / (sigmaBand * spread)
		if deviation > sigmaBand*spread {
			v.flagged = true
		}
	}
	return v
}

func (d *Detector) publish(result state.AnomalyResult, elapsed time.Duration, overruns uint64) {
	final := result
	updated := d.store.Update(func(st *state.State) {
		if st.Safety.EmergencyStop {
			final.HealthScore = 0
		}
		st.Anomalies = final
		st.Workers[worker.Detector.String()] = state.WorkerStats{
			Cycles:        d.cycle,
			Overruns:      overruns,
			LastCycleTime: elapsed,
		}
	})
	if !updated {
		d.log.Warn("state guard busy, verdict not published", zap.Uint64("cycle", d.cycle))
		return
	}
	d.metrics.HealthScore.Set(final.HealthScore)
}

func (d *Detector) emitAlert(r state.Reading, result state.AnomalyResult) {
	alert := Alert{
		ID:        id.NewAlertID(),
		Timestamp: time.Now(),
	}
	switch {
	case result.Vibration:
		alert.Channel = "vibration"
		alert.Severity = SeverityVibration
		alert.Value = r.Vibration
		alert.Baseline = stat.Mean(d.vibration.Window(d.cfg.Window), nil)
	case result.Temperature:
		alert.Channel = "temperature"
		alert.Severity = SeverityWarning
		alert.Value = r.Temperature
		alert.Baseline = stat.Mean(d.temperature.Window(d.cfg.Window), nil)
	default:
		alert.Channel = "rpm"
		alert.Severity = SeverityWarning
		alert.Value = r.RPM
		alert.Baseline = stat.Mean(d.rpm.Window(d.cfg.Window), nil)
	}

	if d.alerts.TrySend(alert) {
		d.metrics.RecordAlert()
		d.log.Warn("anomaly alert emitted",
			zap.String("alert_id", alert.ID.String()),
			zap.String("channel", alert.Channel),
			zap.Int("severity", alert.Severity),
			zap.Float64("value", alert.Value))
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
