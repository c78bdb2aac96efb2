package ready

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarrierCompletesInAnyOrder(t *testing.T) {
	orders := [][]Flag{
		{SensorsCalibrated, NetworkConnected, BaselineReady},
		{BaselineReady, SensorsCalibrated, NetworkConnected},
		{NetworkConnected, BaselineReady, SensorsCalibrated},
	}

	for _, order := range orders {
		b := NewBarrier()
		assert.False(t, b.Ready())
		for _, f := range order {
			b.Signal(f)
		}
		assert.True(t, b.Ready())

		flags, err := b.WaitAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, AllReady, flags&AllReady)
	}
}

func TestSignalIsIdempotent(t *testing.T) {
	b := NewBarrier()
	b.Signal(SensorsCalibrated)
	b.Signal(SensorsCalibrated)
	b.Signal(NetworkConnected)
	b.Signal(BaselineReady)
	b.Signal(BaselineReady)

	assert.True(t, b.Ready())
	_, err := b.WaitAll(context.Background())
	assert.NoError(t, err)
}

func TestWaitBlocksUntilComplete(t *testing.T) {
	b := NewBarrier()
	b.Signal(SensorsCalibrated)
	b.Signal(NetworkConnected)

	done := make(chan Flag, 1)
	go func() {
		flags, _ := b.WaitAll(context.Background())
		done <- flags
	}()

	select {
	case <-done:
		t.Fatal("wait returned before all flags were set")
	case <-time.After(20 * time.Millisecond):
	}

	b.Signal(BaselineReady)
	select {
	case flags := <-done:
		assert.Equal(t, AllReady, flags)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after completion")
	}
}

func TestWaitAbortsOnShutdown(t *testing.T) {
	b := NewBarrier()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.WaitAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFlagNames(t *testing.T) {
	assert.Equal(t, "sensors-calibrated", SensorsCalibrated.String())
	assert.Equal(t, "network-connected", NetworkConnected.String())
	assert.Equal(t, "baseline-ready", BaselineReady.String())
}
