// Package monitoring provides Prometheus metrics for the plant.
//
// Metrics cover the shared-state guard (acquire timeouts), the bounded
// channels (drops), the detector (anomalies, health score), the safety
// governor (alarms, emergency stop), the uplink (packets, bytes,
// reconnects), and the resource monitors (heap bytes, stack usage).
// A snapshot mirror of the headline values backs the JSON status API.
package monitoring
