package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigs(t *testing.T) {
	tests := []struct {
		id       ID
		name     string
		priority int
		period   time.Duration
	}{
		{Safety, "safety", 6, 20 * time.Millisecond},
		{Telemetry, "telemetry", 4, 100 * time.Millisecond},
		{Detector, "detector", 3, 200 * time.Millisecond},
		{Transmitter, "transmitter", 2, time.Second},
		{Renderer, "renderer", 1, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.id.Config()
			assert.Equal(t, tt.name, cfg.Name)
			assert.Equal(t, tt.priority, cfg.Priority)
			assert.Equal(t, tt.period, cfg.Period)
			assert.NotZero(t, cfg.StackWords)
			assert.Equal(t, tt.name, tt.id.String())
		})
	}
}

func TestAllIsPriorityOrdered(t *testing.T) {
	all := All()
	assert.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i-1].Config().Priority, all[i].Config().Priority)
	}
}

func TestUnknownID(t *testing.T) {
	assert.Equal(t, "unknown", ID(99).String())
}

func TestPacerReleasesAtPeriod(t *testing.T) {
	p := NewPacer(10 * time.Millisecond)
	start := time.Now()
	assert.True(t, p.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestPacerStopsOnCancel(t *testing.T) {
	p := NewPacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, p.Wait(ctx))
}

func TestPacerCountsOverruns(t *testing.T) {
	p := NewPacer(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.True(t, p.Wait(context.Background()))
	assert.Equal(t, uint64(1), p.Overruns())
}
