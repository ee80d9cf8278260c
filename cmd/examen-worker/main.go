// Package main runs the Temporal worker that hosts the attempt workflow and
// its activities, and serves Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-examen/internal/assessment"
	"github.com/ahrav/go-examen/internal/configuration"
	"github.com/ahrav/go-examen/internal/worker"
)

const shutdownTimeout = 10 * time.Second

var configPath = flag.String("config", os.Getenv("EXAMEN_CONFIG"), "Path to a YAML configuration file")

func main() {
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "examen-worker: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := configuration.Load(path)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
	backend, err := worker.OpenBackend(ctx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics assessment.Metrics = assessment.NopMetrics{}
	if cfg.Metrics.Enabled {
		pm, err := assessment.NewPrometheusMetrics(reg)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		metrics = pm
		if backend.Breaker != nil {
			reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "examen_store_circuit_state",
				Help: "Store circuit breaker state: 0 closed, 1 open, 2 half-open.",
			}, func() float64 { return float64(backend.Breaker.State()) }))
		}
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to temporal at %s: %w", cfg.Temporal.HostPort, err)
	}
	defer c.Close()

	sink, err := backend.EventSink(cfg.Events, logger)
	if err != nil {
		return err
	}

	w := sdkworker.New(c, cfg.Temporal.TaskQueue, sdkworker.Options{})
	worker.RegisterAll(w, cfg, worker.Deps{
		Store:   backend.Store,
		Sink:    sink,
		Metrics: metrics,
		Logger:  logger,
	})

	var srv *http.Server
	if cfg.Metrics.Enabled {
		srv = serveMetrics(cfg.Metrics.Addr, reg, logger)
	}

	logger.Info("worker starting",
		"task_queue", cfg.Temporal.TaskQueue,
		"namespace", cfg.Temporal.Namespace,
		"store", cfg.Store.Backend,
		"events", cfg.Events.Sink)
	runErr := w.Run(sdkworker.InterruptCh())

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("worker stopped: %w", runErr)
	}
	logger.Info("worker stopped")
	return nil
}

func newLogger(cfg configuration.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}
