// Package detect implements statistical anomaly detection over the
// sensor stream: trailing-window baselines, per-channel deviation
// flags, a composite health score, and rate-limited alerts toward the
// uplink.
package detect

import (
	"time"

	"github.com/aeolus-works/turbine-sentry/internal/shared/id"
)

// Alert severities, higher is more urgent.
const (
	SeverityWarning   = 5
	SeverityVibration = 8
)

// Alert is one anomaly notification bound for the uplink.
type Alert struct {
	ID        id.AlertID `json:"id"`
	Channel   string     `json:"channel"`
	Severity  int        `json:"severity"`
	Value     float64    `json:"value"`
	Baseline  float64    `json:"baseline"`
	Timestamp time.Time  `json:"timestamp"`
}
