package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Status     StatusConfig
	Telemetry  TelemetryConfig
	Detection  DetectionConfig
	Safety     SafetyConfig
	Uplink     UplinkConfig
	Memory     MemoryConfig
	Logging    LogConfig
	Thresholds Thresholds
}

// StatusConfig holds the status API configuration.
type StatusConfig struct {
	Port              string `envconfig:"STATUS_PORT" default:"8090"`
	Host              string `envconfig:"STATUS_HOST" default:"0.0.0.0"`
	RequestsPerSecond int    `envconfig:"STATUS_RATE_RPS" default:"50"`
	Burst             int    `envconfig:"STATUS_RATE_BURST" default:"100"`
}

// TelemetryConfig holds sensor simulation parameters.
type TelemetryConfig struct {
	WarmupCycles   int           `envconfig:"TELEMETRY_WARMUP_CYCLES" default:"20"`
	DrainCap       int           `envconfig:"TELEMETRY_DRAIN_CAP" default:"32"`
	PulsePeriod    time.Duration `envconfig:"TELEMETRY_PULSE_PERIOD" default:"10ms"`
	PulseQueueCap  int           `envconfig:"TELEMETRY_PULSE_QUEUE_CAP" default:"10"`
	ReadingChanCap int           `envconfig:"TELEMETRY_READING_CHAN_CAP" default:"5"`
	SendTimeout    time.Duration `envconfig:"TELEMETRY_SEND_TIMEOUT" default:"10ms"`
}

// DetectionConfig holds anomaly detector parameters.
type DetectionConfig struct {
	HistoryCap   int `envconfig:"DETECTION_HISTORY_CAP" default:"100"`
	Window       int `envconfig:"DETECTION_WINDOW" default:"20"`
	AlertChanCap int `envconfig:"DETECTION_ALERT_CHAN_CAP" default:"3"`
}

// SafetyConfig holds safety governor parameters.
type SafetyConfig struct {
	MinStopHold time.Duration `envconfig:"SAFETY_MIN_STOP_HOLD" default:"5s"`
}

// UplinkConfig holds the simulated network parameters.
type UplinkConfig struct {
	TransmitLatency    time.Duration `envconfig:"UPLINK_TRANSMIT_LATENCY" default:"50ms"`
	FailurePercent     int           `envconfig:"UPLINK_FAILURE_PERCENT" default:"5"`
	ReconnectPercent   int           `envconfig:"UPLINK_RECONNECT_PERCENT" default:"50"`
	HeartbeatInterval  int           `envconfig:"UPLINK_HEARTBEAT_INTERVAL" default:"10"`
	HealthReportFloor  float64       `envconfig:"UPLINK_HEALTH_REPORT_FLOOR" default:"50"`
	BreakerTripStreak  int           `envconfig:"UPLINK_BREAKER_TRIP_STREAK" default:"3"`
	BreakerCooldown    time.Duration `envconfig:"UPLINK_BREAKER_COOLDOWN" default:"5s"`
	BreakerProbeQuota  int           `envconfig:"UPLINK_BREAKER_PROBE_QUOTA" default:"1"`
}

// MemoryConfig holds the simulated heap budget.
type MemoryConfig struct {
	HeapBudgetBytes uint64 `envconfig:"MEMORY_HEAP_BUDGET_BYTES" default:"65536"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Thresholds holds the alarm thresholds shared by the detector and the
// safety governor. A YAML profile file may override the defaults.
type Thresholds struct {
	VibrationWarning    float64 `envconfig:"THRESH_VIBRATION_WARNING" default:"5.0" yaml:"vibration_warning"`
	VibrationCritical   float64 `envconfig:"THRESH_VIBRATION_CRITICAL" default:"10.0" yaml:"vibration_critical"`
	TemperatureWarning  float64 `envconfig:"THRESH_TEMPERATURE_WARNING" default:"70.0" yaml:"temperature_warning"`
	TemperatureCritical float64 `envconfig:"THRESH_TEMPERATURE_CRITICAL" default:"85.0" yaml:"temperature_critical"`
	RPMMin              float64 `envconfig:"THRESH_RPM_MIN" default:"10.0" yaml:"rpm_min"`
	RPMMax              float64 `envconfig:"THRESH_RPM_MAX" default:"30.0" yaml:"rpm_max"`
	CurrentMax          float64 `envconfig:"THRESH_CURRENT_MAX" default:"100.0" yaml:"current_max"`
}

// Load loads configuration from environment variables, then applies the
// threshold profile file named by THRESHOLDS_FILE if one is set.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if path := os.Getenv("THRESHOLDS_FILE"); path != "" {
		if err := cfg.Thresholds.LoadProfile(path); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Status: StatusConfig{
			Port:              "8090",
			Host:              "0.0.0.0",
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Telemetry: TelemetryConfig{
			WarmupCycles:   20,
			DrainCap:       32,
			PulsePeriod:    10 * time.Millisecond,
			PulseQueueCap:  10,
			ReadingChanCap: 5,
			SendTimeout:    10 * time.Millisecond,
		},
		Detection: DetectionConfig{
			HistoryCap:   100,
			Window:       20,
			AlertChanCap: 3,
		},
		Safety: SafetyConfig{
			MinStopHold: 5 * time.Second,
		},
		Uplink: UplinkConfig{
			TransmitLatency:   50 * time.Millisecond,
			FailurePercent:    5,
			ReconnectPercent:  50,
			HeartbeatInterval: 10,
			HealthReportFloor: 50,
			BreakerTripStreak: 3,
			BreakerCooldown:   5 * time.Second,
			BreakerProbeQuota: 1,
		},
		Memory: MemoryConfig{
			HeapBudgetBytes: 64 * 1024,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Thresholds: DefaultThresholds(),
	}
}

// DefaultThresholds returns the stock alarm threshold profile.
func DefaultThresholds() Thresholds {
	return Thresholds{
		VibrationWarning:    5.0,
		VibrationCritical:   10.0,
		TemperatureWarning:  70.0,
		TemperatureCritical: 85.0,
		RPMMin:              10.0,
		RPMMax:              30.0,
		CurrentMax:          100.0,
	}
}

// LoadProfile overrides the thresholds from a YAML profile file.
func (t *Thresholds) LoadProfile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read threshold profile: %w", err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return fmt.Errorf("failed to parse threshold profile: %w", err)
	}
	return nil
}
