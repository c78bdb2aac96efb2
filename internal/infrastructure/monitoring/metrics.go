package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Guard metrics
	GuardTimeouts prometheus.Counter

	// Channel metrics
	QueueDropped *prometheus.CounterVec

	// Worker metrics
	CycleDuration *prometheus.HistogramVec
	CycleOverruns *prometheus.CounterVec

	// Detection metrics
	AnomaliesTotal *prometheus.CounterVec
	HealthScore    prometheus.Gauge
	AlertsEmitted  prometheus.Counter

	// Safety metrics
	AlarmsTotal   *prometheus.CounterVec
	EmergencyStop prometheus.Gauge

	// Uplink metrics
	PacketsSent    *prometheus.CounterVec
	PacketsFailed  prometheus.Counter
	BytesSent      prometheus.Counter
	Reconnects     prometheus.Counter
	LinkConnected  prometheus.Gauge

	// Resource metrics
	HeapBytesAllocated prometheus.Gauge
	HeapMinFree        prometheus.Gauge
	AllocFailures      prometheus.Counter
	StackUsage         *prometheus.GaugeVec
	StackWarnings      prometheus.Counter

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds headline metric values for the JSON status API.
type Snapshot struct {
	GuardTimeouts  int64
	DroppedItems   int64
	AlertsEmitted  int64
	PacketsSent    int64
	PacketsFailed  int64
	StackWarnings  int64
}

// New creates a metrics collector registered on the default registry.
func New() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		GuardTimeouts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sentry_guard_timeouts_total",
				Help: "Total bounded-timeout guard acquisitions that timed out",
			},
		),

		QueueDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentry_queue_dropped_total",
				Help: "Total items dropped on full bounded channels",
			},
			[]string{"queue"},
		),

		CycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentry_worker_cycle_duration_seconds",
				Help:    "Worker cycle body duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
			},
			[]string{"worker"},
		),
		CycleOverruns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentry_worker_cycle_overruns_total",
				Help: "Total worker releases that fired late",
			},
			[]string{"worker"},
		),

		AnomaliesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentry_anomalies_total",
				Help: "Total per-channel anomaly flags raised",
			},
			[]string{"channel"},
		),
		HealthScore: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentry_health_score",
				Help: "Composite turbine health score (0-100)",
			},
		),
		AlertsEmitted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sentry_alerts_emitted_total",
				Help: "Total anomaly alerts emitted toward the uplink",
			},
		),

		AlarmsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentry_safety_alarms_total",
				Help: "Total edge-triggered safety alarm activations",
			},
			[]string{"condition"},
		),
		EmergencyStop: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentry_emergency_stop",
				Help: "1 while the emergency stop latch is active",
			},
		),

		PacketsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentry_uplink_packets_sent_total",
				Help: "Total packets transmitted successfully, by class",
			},
			[]string{"class"},
		),
		PacketsFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sentry_uplink_packets_failed_total",
				Help: "Total simulated transmission failures",
			},
		),
		BytesSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sentry_uplink_bytes_sent_total",
				Help: "Total payload bytes transmitted",
			},
		),
		Reconnects: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sentry_uplink_reconnects_total",
				Help: "Total successful reconnect attempts",
			},
		),
		LinkConnected: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentry_uplink_connected",
				Help: "1 while the simulated uplink is connected",
			},
		),

		HeapBytesAllocated: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentry_heap_bytes_allocated",
				Help: "Bytes currently allocated from the simulated heap budget",
			},
		),
		HeapMinFree: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentry_heap_min_free_bytes",
				Help: "Minimum free heap ever observed",
			},
		),
		AllocFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sentry_alloc_failures_total",
				Help: "Total packet allocation failures",
			},
		),
		StackUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentry_stack_usage_percent",
				Help: "Per-worker simulated stack usage percentage",
			},
			[]string{"worker"},
		),
		StackWarnings: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sentry_stack_warnings_total",
				Help: "Total stack usage warnings latched",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentry_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordGuardTimeout records one guard acquire timeout.
func (m *Metrics) RecordGuardTimeout() {
	m.GuardTimeouts.Inc()
	m.mu.Lock()
	m.snapshot.GuardTimeouts++
	m.mu.Unlock()
}

// RecordDrop records one item dropped on a full channel.
func (m *Metrics) RecordDrop(queue string) {
	m.QueueDropped.WithLabelValues(queue).Inc()
	m.mu.Lock()
	m.snapshot.DroppedItems++
	m.mu.Unlock()
}

// RecordCycle records one worker cycle body duration.
func (m *Metrics) RecordCycle(worker string, d time.Duration) {
	m.CycleDuration.WithLabelValues(worker).Observe(d.Seconds())
}

// RecordAlert records one emitted anomaly alert.
func (m *Metrics) RecordAlert() {
	m.AlertsEmitted.Inc()
	m.mu.Lock()
	m.snapshot.AlertsEmitted++
	m.mu.Unlock()
}

// RecordPacket records one transmitted packet.
func (m *Metrics) RecordPacket(class string, bytes int) {
	m.PacketsSent.WithLabelValues(class).Inc()
	m.BytesSent.Add(float64(bytes))
	m.mu.Lock()
	m.snapshot.PacketsSent++
	m.mu.Unlock()
}

// RecordPacketFailure records one simulated transmission failure.
func (m *Metrics) RecordPacketFailure() {
	m.PacketsFailed.Inc()
	m.mu.Lock()
	m.snapshot.PacketsFailed++
	m.mu.Unlock()
}

// RecordStackWarning records one latched stack warning.
func (m *Metrics) RecordStackWarning() {
	m.StackWarnings.Inc()
	m.mu.Lock()
	m.snapshot.StackWarnings++
	m.mu.Unlock()
}

// GetSnapshot returns the current headline values.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
