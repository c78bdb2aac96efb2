package status

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/config"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/logging"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/monitoring"
	"github.com/aeolus-works/turbine-sentry/internal/ready"
	"github.com/aeolus-works/turbine-sentry/internal/resources"
	"github.com/aeolus-works/turbine-sentry/internal/shared/worker"
	"github.com/aeolus-works/turbine-sentry/internal/state"
)

var testMetrics = monitoring.New()

type statusFixture struct {
	renderer *Renderer
	store    *state.Store
	barrier  *ready.Barrier
	hub      *Hub
	api      *API
}

func newFixture(t *testing.T) *statusFixture {
	t.Helper()
	log := &logging.Logger{Logger: zap.NewNop()}
	store := state.NewStore(state.NewGuard(0))
	barrier := ready.NewBarrier()
	hub := NewHub(log)
	renderer := NewRenderer(log, store, testMetrics,
		resources.NewTracker(log), resources.NewStackSim(), hub)
	api := NewAPI(config.Default().Status, log, renderer, barrier, hub)
	return &statusFixture{
		renderer: renderer,
		store:    store,
		barrier:  barrier,
		hub:      hub,
		api:      api,
	}
}

func (f *statusFixture) render() {
	f.renderer.cycle++
	f.renderer.render(time.Now(), 0)
}

func TestRenderFoldsStacksIntoState(t *testing.T) {
	f := newFixture(t)
	f.render()

	snap, ok := f.store.Snapshot()
	require.True(t, ok)
	require.Len(t, snap.Stacks, len(worker.All()))
	assert.Equal(t, "safety", snap.Stacks[0].WorkerName)
	assert.Equal(t, uint64(1), snap.Workers["renderer"].Cycles)
}

func TestLastViewTracksRenders(t *testing.T) {
	f := newFixture(t)
	assert.Zero(t, f.renderer.Last().RenderedAt)

	f.store.Update(func(st *state.State) { st.Anomalies.HealthScore = 73.0 })
	f.render()

	view := f.renderer.Last()
	assert.Equal(t, 73.0, view.State.Anomalies.HealthScore)
	assert.False(t, view.RenderedAt.IsZero())
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.api.srv.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyzReflectsBarrier(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.api.srv.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	f.barrier.Signal(ready.SensorsCalibrated)
	f.barrier.Signal(ready.NetworkConnected)
	f.barrier.Signal(ready.BaselineReady)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusEndpointServesLastView(t *testing.T) {
	f := newFixture(t)
	f.store.Update(func(st *state.State) { st.Anomalies.HealthScore = 61.5 })
	f.render()

	srv := httptest.NewServer(f.api.srv.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var view View
	require.NoError(t, sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, 61.5, view.State.Anomalies.HealthScore)
	assert.Len(t, view.State.Stacks, len(worker.All()))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.api.srv.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHubBroadcastSkipsSlowClients(t *testing.T) {
	log := &logging.Logger{Logger: zap.NewNop()}
	hub := NewHub(log)

	// Register a client by hand with a full buffer.
	full := make(chan []byte, 1)
	full <- []byte("old")
	hub.clients["stuck"] = full

	open := make(chan []byte, 4)
	hub.clients["open"] = open

	hub.Broadcast([]byte("frame"))
	assert.Len(t, open, 1)
	assert.Len(t, full, 1)
	assert.Equal(t, 2, hub.Clients())

	hub.Close()
	assert.Equal(t, 0, hub.Clients())
}
