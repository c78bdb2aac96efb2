// Package telemetry simulates the turbine sensor suite: a high-rate
// vibration pulse sampler feeding a slower producer that assembles
// consistent readings for the rest of the system.
package telemetry

import (
	"context"
	"math/rand"
	"time"

	"github.com/aeolus-works/turbine-sentry/internal/queue"
	"github.com/aeolus-works/turbine-sentry/internal/shared/worker"
)

// ExtremePulse is the raw pulse level that forces an immediate
// emergency stop, bypassing the statistical detector entirely.
const ExtremePulse = 80.0

// Pulse is one raw high-rate vibration sample.
type Pulse struct {
	Seq       uint64    `json:"seq"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Sampler emits raw vibration pulses at a rate an order of magnitude
// above the producer's. It reads the producer's base vibration without
// taking the state guard, so a stalled producer never stalls sampling.
type Sampler struct {
	base   *Producer
	pulses *queue.Bounded[Pulse]
	period time.Duration
	rng    *rand.Rand
	seq    uint64
}

// NewSampler creates a sampler feeding the given pulse queue.
func NewSampler(base *Producer, pulses *queue.Bounded[Pulse], period time.Duration) *Sampler {
	return &Sampler{
		base:   base,
		pulses: pulses,
		period: period,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run emits pulses until ctx is cancelled. A full queue drops the
// pulse; the queue counts the drop.
func (s *Sampler) Run(ctx context.Context) {
	pacer := worker.NewPacer(s.period)
	for pacer.Wait(ctx) {
		s.seq++
		s.pulses.TrySend(Pulse{
			Seq:       s.seq,
			Value:     s.base.BaseVibration() + (s.rng.Float64() - 0.5),
			Timestamp: time.Now(),
		})
	}
}
