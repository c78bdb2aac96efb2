package transmit

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrTransmitFailed is the simulated link-level transmission failure.
var ErrTransmitFailed = errors.New("transmission failed")

// Link models a lossy uplink: transmission takes a fixed latency and
// fails a configured percentage of the time, and a downed link
// reconnects with a configured probability per attempt.
type Link struct {
	latency          time.Duration
	failurePercent   int
	reconnectPercent int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLink creates a link with the given loss model.
func NewLink(latency time.Duration, failurePercent, reconnectPercent int) *Link {
	return NewLinkWithSource(latency, failurePercent, reconnectPercent,
		rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewLinkWithSource creates a link over the given randomness source.
func NewLinkWithSource(latency time.Duration, failurePercent, reconnectPercent int, rng *rand.Rand) *Link {
	return &Link{
		latency:          latency,
		failurePercent:   failurePercent,
		reconnectPercent: reconnectPercent,
		rng:              rng,
	}
}

// TryReconnect reports whether a reconnect attempt succeeded.
func (l *Link) TryReconnect() bool {
	return l.roll(l.reconnectPercent)
}

// Transmit simulates sending one packet: it blocks for the link
// latency, then fails at the configured rate.
func (l *Link) Transmit(ctx context.Context, _ Packet) error {
	t := time.NewTimer(l.latency)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	if l.roll(l.failurePercent) {
		return ErrTransmitFailed
	}
	return nil
}

func (l *Link) roll(percent int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(100) < percent
}
