package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialState(t *testing.T) {
	s := NewStore(NewGuard(0))
	snap, ok := s.Snapshot()
	require.True(t, ok)

	assert.Equal(t, 2.45, snap.Sensors.Vibration)
	assert.Equal(t, 45.2, snap.Sensors.Temperature)
	assert.Equal(t, 20.1, snap.Sensors.RPM)
	assert.Equal(t, 50.0, snap.Sensors.Current)
	assert.Equal(t, 100.0, snap.Anomalies.HealthScore)
	assert.True(t, snap.Uplink.Connected)
	assert.False(t, snap.Safety.EmergencyStop)
}

func TestUpdateAndView(t *testing.T) {
	s := NewStore(NewGuard(0))
	ok := s.Update(func(st *State) {
		st.Sensors.Vibration = 7.7
	})
	require.True(t, ok)

	var got float64
	require.True(t, s.View(func(st *State) { got = st.Sensors.Vibration }))
	assert.Equal(t, 7.7, got)
}

func TestAcquireTimesOutUnderContention(t *testing.T) {
	g := NewGuard(5 * time.Millisecond)
	s := NewStore(g)

	hold := make(chan struct{})
	held := make(chan struct{})
	go s.Update(func(*State) {
		close(held)
		<-hold
	})
	<-held

	ok := s.Update(func(*State) {
		t.Error("update body ran despite guard timeout")
	})
	assert.False(t, ok)
	assert.Equal(t, uint64(1), s.GuardTimeouts())

	close(hold)
}

func TestTimeoutHook(t *testing.T) {
	g := NewGuard(time.Millisecond)
	fired := 0
	g.SetTimeoutHook(func() { fired++ })

	require.True(t, g.Acquire())
	assert.False(t, g.Acquire())
	assert.Equal(t, 1, fired)

	g.Release()
	assert.True(t, g.Acquire())
	g.Release()
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := NewStore(NewGuard(0))
	s.Update(func(st *State) {
		st.Stacks = []StackEntry{{WorkerName: "safety", CapacityWords: 1024}}
		st.Workers["safety"] = WorkerStats{Cycles: 1}
	})

	snap, ok := s.Snapshot()
	require.True(t, ok)
	snap.Stacks[0].WorkerName = "mutated"
	snap.Workers["safety"] = WorkerStats{Cycles: 99}

	fresh, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "safety", fresh.Stacks[0].WorkerName)
	assert.Equal(t, uint64(1), fresh.Workers["safety"].Cycles)
}
