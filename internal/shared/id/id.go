// Package id provides typed ULID generation for alerts and packets.
//
// ULIDs are lexicographically sortable, so alert and packet logs sort
// by creation time without a separate timestamp column. Prefixes keep
// the two domains distinguishable in logs (alr_*, pkt_*).
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// AlertID identifies an anomaly alert.
type AlertID string

// PacketID identifies an outbound packet.
type PacketID string

const (
	alertPrefix  = "alr"
	packetPrefix = "pkt"
)

// Generator generates ULIDs from a guarded entropy source.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = &Generator{entropy: rand.Reader}
	})
	return defaultGenerator
}

// NewGeneratorWithEntropy creates a generator with a custom entropy
// source, for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

func (g *Generator) withPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewAlertID generates a new alert ID.
func NewAlertID() AlertID { return AlertID(Default().withPrefix(alertPrefix)) }

// NewPacketID generates a new packet ID.
func NewPacketID() PacketID { return PacketID(Default().withPrefix(packetPrefix)) }

func (id AlertID) String() string  { return string(id) }
func (id PacketID) String() string { return string(id) }
