// Package server wires the workers, queues, shared state, and status
// API into one runnable system.
package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aeolus-works/turbine-sentry/internal/detect"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/config"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/logging"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/monitoring"
	"github.com/aeolus-works/turbine-sentry/internal/queue"
	"github.com/aeolus-works/turbine-sentry/internal/ready"
	"github.com/aeolus-works/turbine-sentry/internal/resources"
	"github.com/aeolus-works/turbine-sentry/internal/safety"
	"github.com/aeolus-works/turbine-sentry/internal/shared/worker"
	"github.com/aeolus-works/turbine-sentry/internal/state"
	"github.com/aeolus-works/turbine-sentry/internal/status"
	"github.com/aeolus-works/turbine-sentry/internal/telemetry"
	"github.com/aeolus-works/turbine-sentry/internal/transmit"
)

const shutdownGrace = 5 * time.Second

// Server owns every long-running component.
type Server struct {
	cfg *config.Config
	log *logging.Logger

	store   *state.Store
	barrier *ready.Barrier

	sampler     *telemetry.Sampler
	producer    *telemetry.Producer
	detector    *detect.Detector
	governor    *safety.Governor
	transmitter *transmit.Transmitter
	renderer    *status.Renderer
	api         *status.API
}

// New builds the full system from configuration.
func New(cfg *config.Config, log *logging.Logger) *Server {
	metrics := monitoring.New()

	guard := state.NewGuard(state.DefaultAcquireTimeout)
	guard.SetTimeoutHook(metrics.RecordGuardTimeout)
	store := state.NewStore(guard)

	barrier := ready.NewBarrier()
	tracker := resources.NewTracker(log)
	tracker.SetWarningHook(func(worker.ID) { metrics.RecordStackWarning() })
	stacks := resources.NewStackSim()
	heap := resources.NewAccountant(cfg.Memory.HeapBudgetBytes)

	pulses := queue.NewBounded[telemetry.Pulse](cfg.Telemetry.PulseQueueCap)
	pulses.SetDropHook(func() { metrics.RecordDrop("pulses") })
	readings := queue.NewBounded[state.Reading](cfg.Telemetry.ReadingChanCap)
	readings.SetDropHook(func() { metrics.RecordDrop("readings") })
	alerts := queue.NewBounded[detect.Alert](cfg.Detection.AlertChanCap)
	alerts.SetDropHook(func() { metrics.RecordDrop("alerts") })

	producer := telemetry.NewProducer(cfg.Telemetry, log, store, metrics, barrier, tracker, stacks, pulses, readings)
	sampler := telemetry.NewSampler(producer, pulses, cfg.Telemetry.PulsePeriod)
	detector := detect.NewDetector(cfg.Detection, cfg.Thresholds, log, store, metrics, barrier, tracker, stacks, readings, alerts)
	governor := safety.NewGovernor(cfg.Safety, cfg.Thresholds, log, store, metrics, barrier, tracker, stacks)

	link := transmit.NewLink(cfg.Uplink.TransmitLatency, cfg.Uplink.FailurePercent, cfg.Uplink.ReconnectPercent)
	transmitter := transmit.NewTransmitter(cfg.Uplink, log, store, metrics, barrier, tracker, stacks, heap, link, alerts)

	hub := status.NewHub(log)
	renderer := status.NewRenderer(log, store, metrics, tracker, stacks, hub)
	api := status.NewAPI(cfg.Status, log, renderer, barrier, hub)

	return &Server{
		cfg:         cfg,
		log:         log,
		store:       store,
		barrier:     barrier,
		sampler:     sampler,
		producer:    producer,
		detector:    detector,
		governor:    governor,
		transmitter: transmitter,
		renderer:    renderer,
		api:         api,
	}
}

// Run starts every worker and blocks until ctx is cancelled or the
// status API fails, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.log.Info("turbine sentry starting",
		zap.Int("workers", len(worker.All())),
		zap.String("status_addr", s.cfg.Status.Host+":"+s.cfg.Status.Port))

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	// Start order follows declared priority so the governor is parked
	// on the barrier before any producer can complete it.
	run(s.governor.Run)
	run(s.producer.Run)
	run(s.sampler.Run)
	run(s.detector.Run)
	run(s.transmitter.Run)
	run(s.renderer.Run)

	apiErr := make(chan error, 1)
	go func() { apiErr <- s.api.Start() }()

	var err error
	select {
	case <-ctx.Done():
	case err = <-apiErr:
		if err != nil {
			s.log.Error("status API failed", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownGrace)
	defer done()
	if serr := s.api.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	wg.Wait()
	s.log.Info("turbine sentry stopped")
	return err
}
