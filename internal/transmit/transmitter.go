package transmit

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/aeolus-works/turbine-sentry/internal/detect"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/config"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/logging"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/monitoring"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/resilience"
	"github.com/aeolus-works/turbine-sentry/internal/queue"
	"github.com/aeolus-works/turbine-sentry/internal/ready"
	"github.com/aeolus-works/turbine-sentry/internal/resources"
	"github.com/aeolus-works/turbine-sentry/internal/shared/id"
	"github.com/aeolus-works/turbine-sentry/internal/shared/worker"
	"github.com/aeolus-works/turbine-sentry/internal/state"
)

// Transmitter forwards alerts and periodic reports over the simulated
// uplink. Every packet buffer comes from the heap accountant and is
// returned in the same cycle, success or not.
type Transmitter struct {
	cfg     config.UplinkConfig
	log     *logging.Logger
	store   *state.Store
	metrics *monitoring.Metrics
	barrier *ready.Barrier
	tracker *resources.Tracker
	stacks  *resources.StackSim
	heap    *resources.Accountant
	link    *Link
	breaker *resilience.Breaker
	alerts  *queue.Bounded[detect.Alert]

	connected bool
	signaled  bool
	section   state.UplinkSection
	lastView  viewSnapshot
	cycle     uint64
}

// viewSnapshot is the slice of shared state the transmitter classifies
// packets from.
type viewSnapshot struct {
	sensors   state.Reading
	anomalies state.AnomalyResult
	safety    state.SafetySection
}

// NewTransmitter wires a transmitter to its link, breaker, and
// monitors.
func NewTransmitter(
	cfg config.UplinkConfig,
	log *logging.Logger,
	store *state.Store,
	metrics *monitoring.Metrics,
	barrier *ready.Barrier,
	tracker *resources.Tracker,
	stacks *resources.StackSim,
	heap *resources.Accountant,
	link *Link,
	alerts *queue.Bounded[detect.Alert],
) *Transmitter {
	t := &Transmitter{
		cfg:       cfg,
		log:       log,
		store:     store,
		metrics:   metrics,
		barrier:   barrier,
		tracker:   tracker,
		stacks:    stacks,
		heap:      heap,
		link:      link,
		alerts:    alerts,
		connected: true,
	}
	t.section.Connected = true
	t.breaker = resilience.New(resilience.Settings{
		TripStreak: cfg.BreakerTripStreak,
		Cooldown:   cfg.BreakerCooldown,
		ProbeQuota: cfg.BreakerProbeQuota,
		OnStateChange: func(from, to resilience.State) {
			log.Warn("uplink breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return t
}

// Run transmits until ctx is cancelled.
func (t *Transmitter) Run(ctx context.Context) {
	cfg := worker.Transmitter.Config()
	pacer := worker.NewPacer(cfg.Period)
	t.metrics.LinkConnected.Set(1)
	t.log.Info("transmitter started", zap.Duration("period", cfg.Period))

	for pacer.Wait(ctx) {
		start := time.Now()
		t.cycle++
		t.runCycle(ctx)
		t.mirror(time.Since(start), pacer.Overruns())
		t.metrics.RecordCycle(cfg.Name, time.Since(start))
		t.tracker.Observe(worker.Transmitter, t.stacks.FreeWords(worker.Transmitter))
	}
	t.log.Info("transmitter stopped",
		zap.Uint64("cycles", t.cycle),
		zap.Uint64("packets_sent", t.section.PacketsSent))
}

func (t *Transmitter) runCycle(ctx context.Context) {
	if !t.connected && !t.reconnect() {
		return
	}
	if !t.signaled {
		t.signaled = true
		t.barrier.Signal(ready.NetworkConnected)
		t.log.Info("uplink connected")
	}

	alert, hasAlert := t.alerts.TryRecv()
	view := t.observe()

	class := t.classify(view, hasAlert)
	size := class.Size()
	if err := t.heap.Alloc(size); err != nil {
		t.metrics.AllocFailures.Inc()
		t.log.Error("packet buffer allocation failed",
			zap.String("class", class.String()),
			zap.Uint64("size", size),
			zap.Error(err))
		return
	}
	defer t.heap.Free(size)

	pkt, err := t.build(class, view, alert, hasAlert)
	if err != nil {
		t.log.Error("packet encoding failed", zap.Error(err))
		return
	}

	err = t.breaker.Do(func() error { return t.link.Transmit(ctx, pkt) })
	switch {
	case err == nil:
		t.section.PacketsSent++
		t.section.BytesSent += size
		t.section.LastTransmitAt = time.Now()
		if hasAlert {
			t.section.AlertsForwarded++
		}
		t.metrics.RecordPacket(class.String(), int(size))
	case errors.Is(err, resilience.ErrBreakerOpen), errors.Is(err, resilience.ErrProbeQuota):
		t.log.Debug("transmission skipped, breaker open",
			zap.String("class", class.String()))
	case errors.Is(err, context.Canceled):
	default:
		t.section.PacketsFailed++
		t.connected = false
		t.metrics.RecordPacketFailure()
		t.metrics.LinkConnected.Set(0)
		t.log.Warn("transmission failed, link down",
			zap.String("packet_id", pkt.ID.String()),
			zap.String("class", class.String()))
	}
}

func (t *Transmitter) reconnect() bool {
	if !t.link.TryReconnect() {
		t.log.Debug("reconnect attempt failed", zap.Uint64("cycle", t.cycle))
		return false
	}
	t.connected = true
	t.section.Reconnects++
	t.metrics.Reconnects.Inc()
	t.metrics.LinkConnected.Set(1)
	t.log.Info("uplink reconnected", zap.Uint64("reconnects", t.section.Reconnects))
	return true
}

// observe reads the state slices packet classification depends on,
// reusing the previous view when the guard is busy.
func (t *Transmitter) observe() viewSnapshot {
	view := t.lastView
	ok := t.store.View(func(st *state.State) {
		view = viewSnapshot{
			sensors:   st.Sensors,
			anomalies: st.Anomalies,
			safety:    st.Safety,
		}
	})
	if ok {
		t.lastView = view
	}
	return view
}

// classify picks the packet class for this cycle: a periodic
// heartbeat, an anomaly report when the turbine is in distress, or a
// plain sensor snapshot.
func (t *Transmitter) classify(view viewSnapshot, hasAlert bool) Class {
	if t.cfg.HeartbeatInterval > 0 && t.cycle%uint64(t.cfg.HeartbeatInterval) == 0 {
		return Heartbeat
	}
	if view.safety.EmergencyStop || view.anomalies.HealthScore < t.cfg.HealthReportFloor || hasAlert {
		return AnomalyReport
	}
	return SensorSnapshot
}

type heartbeatPayload struct {
	Cycle       uint64 `json:"cycle"`
	PacketsSent uint64 `json:"packets_sent"`
	Timestamp   int64  `json:"timestamp"`
}

type snapshotPayload struct {
	Sensors     state.Reading `json:"sensors"`
	HealthScore float64       `json:"health_score"`
}

type anomalyPayload struct {
	Sensors   state.Reading       `json:"sensors"`
	Anomalies state.AnomalyResult `json:"anomalies"`
	Safety    state.SafetySection `json:"safety"`
	Alert     *detect.Alert       `json:"alert,omitempty"`
}

func (t *Transmitter) build(class Class, view viewSnapshot, alert detect.Alert, hasAlert bool) (Packet, error) {
	var body any
	switch class {
	case Heartbeat:
		body = heartbeatPayload{
			Cycle:       t.cycle,
			PacketsSent: t.section.PacketsSent,
			Timestamp:   time.Now().Unix(),
		}
	case SensorSnapshot:
		body = snapshotPayload{
			Sensors:     view.sensors,
			HealthScore: view.anomalies.HealthScore,
		}
	default:
		p := anomalyPayload{
			Sensors:   view.sensors,
			Anomalies: view.anomalies,
			Safety:    view.safety,
		}
		if hasAlert {
			p.Alert = &alert
		}
		body = p
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return Packet{}, err
	}
	return Packet{
		ID:        id.NewPacketID(),
		Class:     class,
		Size:      class.Size(),
		Payload:   payload,
		Timestamp: time.Now(),
	}, nil
}

func (t *Transmitter) mirror(elapsed time.Duration, overruns uint64) {
	t.section.Connected = t.connected
	memory := t.heap.Stats()
	ok := t.store.Update(func(st *state.State) {
		st.Uplink = t.section
		st.Memory = memory
		st.Workers[worker.Transmitter.String()] = state.WorkerStats{
			Cycles:        t.cycle,
			Overruns:      overruns,
			LastCycleTime: elapsed,
		}
	})
	if !ok {
		t.log.Warn("state guard busy, uplink counters not published",
			zap.Uint64("cycle", t.cycle))
	}
	t.metrics.HeapBytesAllocated.Set(float64(memory.BytesAllocated))
	t.metrics.HeapMinFree.Set(float64(memory.MinimumFree))
}
