package state

import (
	"time"

	"github.com/aeolus-works/turbine-sentry/internal/shared/worker"
)

// Reading is one consistent set of sensor values. Immutable once
// produced.
type Reading struct {
	Vibration   float64   `json:"vibration"`    // mm/s
	Temperature float64   `json:"temperature"`  // Celsius
	RPM         float64   `json:"rpm"`          // rotations per minute
	Current     float64   `json:"current"`      // Amps
	Timestamp   time.Time `json:"timestamp"`
}

// AnomalyResult is the detector's published verdict for the latest
// cycle. The health score is recomputed from scratch each cycle.
type AnomalyResult struct {
	Vibration    bool    `json:"vibration"`
	Temperature  bool    `json:"temperature"`
	RPM          bool    `json:"rpm"`
	HealthScore  float64 `json:"health_score"` // 0-100
	AnomalyCount uint64  `json:"anomaly_count"`
}

// Any reports whether any channel is currently flagged.
func (a AnomalyResult) Any() bool {
	return a.Vibration || a.Temperature || a.RPM
}

// SafetySection is owned by the safety governor.
type SafetySection struct {
	EmergencyStop    bool      `json:"emergency_stop"`
	StopActivatedAt  time.Time `json:"stop_activated_at"`
	VibrationAlarm   bool      `json:"vibration_alarm"`
	TemperatureAlarm bool      `json:"temperature_alarm"`
	RPMAlarm         bool      `json:"rpm_alarm"`
	CurrentAlarm     bool      `json:"current_alarm"`
	AlarmCount       uint64    `json:"alarm_count"`
}

// UplinkSection is owned by the transmission worker.
type UplinkSection struct {
	Connected       bool      `json:"connected"`
	PacketsSent     uint64    `json:"packets_sent"`
	PacketsFailed   uint64    `json:"packets_failed"`
	BytesSent       uint64    `json:"bytes_sent"`
	AlertsForwarded uint64    `json:"alerts_forwarded"`
	Reconnects      uint64    `json:"reconnects"`
	LastTransmitAt  time.Time `json:"last_transmit_at"`
}

// MemorySection mirrors the heap accountant. Owned by the transmission
// worker, which updates it in the same acquisition as its uplink
// counters so allocation totals and packet totals stay consistent.
type MemorySection struct {
	Allocations    uint64 `json:"allocations"`
	Frees          uint64 `json:"frees"`
	Failures       uint64 `json:"failures"`
	BytesAllocated uint64 `json:"bytes_allocated"`
	PeakUsage      uint64 `json:"peak_usage"`
	CurrentFree    uint64 `json:"current_free"`
	MinimumFree    uint64 `json:"minimum_free"`
	Active         uint32 `json:"active"`
}

// StackEntry is one worker's simulated stack accounting. The minimum
// high-water mark never moves upward.
type StackEntry struct {
	Worker           worker.ID `json:"-"`
	WorkerName       string    `json:"worker"`
	CapacityWords    uint32    `json:"capacity_words"`
	CurrentFreeWords uint32    `json:"current_free_words"`
	MinFreeWords     uint32    `json:"min_free_words"`
	UsagePercent     uint32    `json:"usage_percent"`
	PeakUsagePercent uint32    `json:"peak_usage_percent"`
	WarningLatched   bool      `json:"warning_latched"`
	LastCheck        time.Time `json:"last_check"`
}

// WorkerStats is one worker's runtime accounting. Each worker writes
// only its own slot.
type WorkerStats struct {
	Cycles        uint64        `json:"cycles"`
	Overruns      uint64        `json:"overruns"`
	LastCycleTime time.Duration `json:"last_cycle_ns"`
}

// State is the full shared structure. Section ownership:
//
//	Sensors   - telemetry producer
//	Anomalies - anomaly detector
//	Safety    - safety governor (EmergencyStop may also be forced by
//	            the telemetry producer on an extreme pulse sample; that
//	            is the single sanctioned cross-owner write and it only
//	            ever sets the flag)
//	Uplink    - transmission worker
//	Memory    - transmission worker
//	Stacks    - resource monitor
//	Workers   - one slot per worker
type State struct {
	Sensors   Reading                      `json:"sensors"`
	Anomalies AnomalyResult                `json:"anomalies"`
	Safety    SafetySection                `json:"safety"`
	Uplink    UplinkSection                `json:"uplink"`
	Memory    MemorySection                `json:"memory"`
	Stacks    []StackEntry                 `json:"stacks"`
	Workers   map[string]WorkerStats       `json:"workers"`
	ReadyAt   time.Time                    `json:"ready_at"`
	StartedAt time.Time                    `json:"started_at"`
}
