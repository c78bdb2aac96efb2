package detect

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/config"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/logging"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/monitoring"
	"github.com/aeolus-works/turbine-sentry/internal/queue"
	"github.com/aeolus-works/turbine-sentry/internal/ready"
	"github.com/aeolus-works/turbine-sentry/internal/resources"
	"github.com/aeolus-works/turbine-sentry/internal/state"
)

// Prometheus collectors register globally, so the package shares one
// instance across tests.
var testMetrics = monitoring.New()

type detectorFixture struct {
	detector *Detector
	store    *state.Store
	barrier  *ready.Barrier
	readings *queue.Bounded[state.Reading]
	alerts   *queue.Bounded[Alert]
}

func newFixture(t *testing.T) *detectorFixture {
	t.Helper()
	log := &logging.Logger{Logger: zap.NewNop()}
	cfg := config.Default()
	store := state.NewStore(state.NewGuard(0))
	barrier := ready.NewBarrier()
	readings := queue.NewBounded[state.Reading](cfg.Telemetry.ReadingChanCap)
	alerts := queue.NewBounded[Alert](cfg.Detection.AlertChanCap)
	tracker := resources.NewTracker(log)
	stacks := resources.NewStackSim()

	d := NewDetector(cfg.Detection, cfg.Thresholds, log, store, testMetrics,
		barrier, tracker, stacks, readings, alerts)
	return &detectorFixture{
		detector: d,
		store:    store,
		barrier:  barrier,
		readings: readings,
		alerts:   alerts,
	}
}

func stableReading() state.Reading {
	return state.Reading{
		Vibration:   2.5,
		Temperature: 45.0,
		RPM:         20.0,
		Current:     80.0,
		Timestamp:   time.Now(),
	}
}

func (f *detectorFixture) warmUp(n int) {
	for i := 0; i < n; i++ {
		f.detector.Ingest(stableReading())
	}
}

// warmAlternating ingests n readings oscillating around the nominal
// operating point, giving every channel a nonzero spread: vibration
// 2.4/2.6, temperature 44/46, rpm 19.5/20.5.
func (f *detectorFixture) warmAlternating(n int) {
	for i := 0; i < n; i++ {
		r := state.Reading{Vibration: 2.4, Temperature: 44.0, RPM: 19.5, Current: 80.0}
		if i%2 == 1 {
			r.Vibration, r.Temperature, r.RPM = 2.6, 46.0, 20.5
		}
		f.detector.Ingest(r)
	}
}

func TestStableWindowIsClean(t *testing.T) {
	f := newFixture(t)
	f.warmUp(25)

	result := f.detector.Evaluate(stableReading())
	assert.False(t, result.Any())
	assert.Equal(t, 100.0, result.HealthScore)
	assert.Zero(t, result.AnomalyCount)
}

func TestVibrationSpikeFlagged(t *testing.T) {
	f := newFixture(t)
	f.warmUp(25)

	spike := stableReading()
	spike.Vibration = 12.0
	f.detector.Ingest(spike)

	result := f.detector.Evaluate(spike)
	assert.True(t, result.Vibration)
	assert.False(t, result.Temperature)
	assert.False(t, result.RPM)
	assert.Less(t, result.HealthScore, 100.0)
	assert.GreaterOrEqual(t, result.HealthScore, 70.0)
	assert.Equal(t, uint64(1), result.AnomalyCount)
}

func TestAllChannelsSpikedCompoundPenalty(t *testing.T) {
	f := newFixture(t)
	f.warmUp(25)

	bad := state.Reading{Vibration: 40.0, Temperature: 200.0, RPM: 90.0}
	f.detector.Ingest(bad)

	result := f.detector.Evaluate(bad)
	assert.True(t, result.Vibration)
	assert.True(t, result.Temperature)
	assert.True(t, result.RPM)

	// A single outlier against a constant window deviates by exactly
	// sqrt(19)/3 band widths, whatever its magnitude, so the combined
	// penalty is 50*sqrt(19)/3 points.
	want := 100.0 - 50.0*math.Sqrt(19)/3.0
	assert.InDelta(t, want, result.HealthScore, 1e-9)

	// Three flagged channels advance the counter by three.
	assert.Equal(t, uint64(3), result.AnomalyCount)
}

func TestSubBandDeviationReducesHealth(t *testing.T) {
	f := newFixture(t)
	f.warmAlternating(20)

	// Vibration baseline 2.5, spread 0.1. A value of 2.75 sits at 0.25,
	// five sixths of the 3-sigma band: not flagged, but the health
	// penalty of 20*(5/6) points still applies.
	r := state.Reading{Vibration: 2.75, Temperature: 45.0, RPM: 20.0}
	result := f.detector.Evaluate(r)
	assert.False(t, result.Any())
	assert.InDelta(t, 100.0-50.0/3.0, result.HealthScore, 1e-6)
	assert.Zero(t, result.AnomalyCount)
}

func TestStatisticalFlagDuringWarmup(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		r := stableReading()
		r.Vibration = 2.4
		if i%2 == 1 {
			r.Vibration = 2.6
		}
		f.detector.Ingest(r)
	}

	// Ten samples is half a window, but 4.5 already breaks the 3-sigma
	// band over the history that exists while staying under the
	// absolute warning ceiling.
	spike := stableReading()
	spike.Vibration = 4.5
	f.detector.Ingest(spike)

	result := f.detector.Evaluate(spike)
	assert.True(t, result.Vibration)
	assert.Equal(t, uint64(1), result.AnomalyCount)
}

func TestBaselineUsesOnlyRecentWindow(t *testing.T) {
	f := newFixture(t)

	// Ten grossly elevated readings that must age out of the window.
	for i := 0; i < 10; i++ {
		f.detector.Ingest(state.Reading{Vibration: 9.0, Temperature: 65.0, RPM: 28.0})
	}
	f.warmAlternating(20)

	// With the stale readings evicted, vibration statistics come from
	// the alternating block alone (baseline 2.5, spread 0.1) and the
	// temperature and rpm deviations are exactly zero.
	r := state.Reading{Vibration: 2.75, Temperature: 45.0, RPM: 20.0}
	result := f.detector.Evaluate(r)
	assert.False(t, result.Any())
	assert.InDelta(t, 100.0-50.0/3.0, result.HealthScore, 1e-6)
}

func TestCompoundPenaltiesBottomOutAtCaps(t *testing.T) {
	f := newFixture(t)
	f.warmAlternating(20)

	// Deviations far past every band saturate all three caps, so the
	// score lands on the 100-30-25-25 floor rather than zero.
	result := f.detector.Evaluate(state.Reading{Vibration: 40.0, Temperature: 200.0, RPM: 90.0})
	assert.True(t, result.Vibration)
	assert.True(t, result.Temperature)
	assert.True(t, result.RPM)
	assert.Equal(t, 20.0, result.HealthScore)
}

func TestClampBounds(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-12.5, 0, 100))
	assert.Equal(t, 100.0, clamp(104.2, 0, 100))
	assert.Equal(t, 55.0, clamp(55.0, 0, 100))
}

func TestAbsoluteThresholdAppliesBeforeBaseline(t *testing.T) {
	f := newFixture(t)

	hot := stableReading()
	hot.Vibration = 6.0
	f.detector.Ingest(hot)

	// A one-sample window has zero spread, so the absolute rule flags
	// the channel but no deviation penalty is measurable yet.
	result := f.detector.Evaluate(hot)
	assert.True(t, result.Vibration)
	assert.Equal(t, 100.0, result.HealthScore)
	assert.Equal(t, uint64(1), result.AnomalyCount)
}

func TestEmergencyStopZeroesHealth(t *testing.T) {
	f := newFixture(t)
	f.store.Update(func(st *state.State) { st.Safety.EmergencyStop = true })
	f.warmUp(25)

	result := f.detector.Evaluate(stableReading())
	f.detector.publish(result, 0, 0)

	snap, ok := f.store.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 0.0, snap.Anomalies.HealthScore)
}

func TestAlertSeverities(t *testing.T) {
	f := newFixture(t)
	f.warmUp(25)

	f.detector.emitAlert(state.Reading{Vibration: 12.0}, state.AnomalyResult{Vibration: true})
	alert, ok := f.alerts.TryRecv()
	require.True(t, ok)
	assert.Equal(t, "vibration", alert.Channel)
	assert.Equal(t, SeverityVibration, alert.Severity)
	assert.Contains(t, alert.ID.String(), "alr_")

	f.detector.emitAlert(state.Reading{Temperature: 95.0}, state.AnomalyResult{Temperature: true})
	alert, ok = f.alerts.TryRecv()
	require.True(t, ok)
	assert.Equal(t, "temperature", alert.Channel)
	assert.Equal(t, SeverityWarning, alert.Severity)
}

func TestAlternatingConsumption(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		require.True(t, f.readings.TrySend(stableReading()))
	}

	// Odd cycle consumes one reading, even cycle consumes two.
	f.detector.cycle = 1
	f.detector.runCycle(0, time.Now())
	assert.Equal(t, 4, f.readings.Len())

	f.detector.cycle = 2
	f.detector.runCycle(0, time.Now())
	assert.Equal(t, 2, f.readings.Len())
}

func TestEmptyQueueReusesLastReading(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.readings.TrySend(stableReading()))

	f.detector.cycle = 1
	f.detector.runCycle(0, time.Now())
	samples := f.detector.samples

	f.detector.cycle = 3
	f.detector.runCycle(0, time.Now())
	assert.Equal(t, samples, f.detector.samples)
}

func TestBaselineReadySignaled(t *testing.T) {
	f := newFixture(t)
	window := f.detector.cfg.Window

	for f.detector.samples < window {
		require.True(t, f.readings.TrySend(stableReading()))
		f.detector.cycle++
		f.detector.runCycle(0, time.Now())
	}

	assert.NotZero(t, f.barrier.Flags()&ready.BaselineReady)
}
