// Package transmit implements the simulated uplink: packet
// classification, dynamic packet buffers drawn from the heap
// accountant, a lossy link model, and a breaker that stops hammering a
// failing link.
package transmit

import (
	"time"

	"github.com/aeolus-works/turbine-sentry/internal/shared/id"
)

// Class identifies a packet type and fixes its wire size.
type Class int

const (
	Heartbeat Class = iota
	SensorSnapshot
	AnomalyReport
)

// Size returns the simulated wire size in bytes.
func (c Class) Size() uint64 {
	switch c {
	case Heartbeat:
		return 64
	case SensorSnapshot:
		return 256
	case AnomalyReport:
		return 512
	default:
		return 0
	}
}

// String returns the class name.
func (c Class) String() string {
	switch c {
	case Heartbeat:
		return "heartbeat"
	case SensorSnapshot:
		return "sensor-snapshot"
	case AnomalyReport:
		return "anomaly-report"
	default:
		return "unknown"
	}
}

// Packet is one outbound transmission.
type Packet struct {
	ID        id.PacketID `json:"id"`
	Class     Class       `json:"class"`
	Size      uint64      `json:"size"`
	Payload   []byte      `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}
