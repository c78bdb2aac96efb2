// Command sentry runs the turbine monitoring system: simulated
// sensors, anomaly detection, the safety governor, the uplink, and the
// status API, all in one process.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/config"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/logging"
	"github.com/aeolus-works/turbine-sentry/internal/server"
)

func main() {
	port := flag.String("port", "", "status API port (overrides STATUS_PORT)")
	dev := flag.Bool("dev", false, "development logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Status.Port = *port
	}
	if *dev {
		cfg.Logging.Development = true
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.New(cfg, logger).Run(ctx); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(cfg config.LogConfig) (*logging.Logger, error) {
	if cfg.Development {
		return logging.NewDevelopment(), nil
	}
	lc := logging.DefaultConfig()
	lc.Level = cfg.Level
	return logging.New(lc)
}
