package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tendant/simple-composite/pkg/composite"
	"github.com/tendant/simple-composite/pkg/composite/config"
	"github.com/tendant/simple-composite/pkg/composite/metrics"
)

func main() {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	var proc ProcessConfig
	if err := cleanenv.ReadEnv(&proc); err != nil {
		slog.Error("Failed to read process configuration", "err", err)
		os.Exit(1)
	}
	logger := proc.Logger(os.Stderr)
	slog.SetDefault(logger)

	if err := run(proc, logger); err != nil {
		logger.Error("Server failed", "err", err)
		os.Exit(1)
	}
}

func run(proc ProcessConfig, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	httpMetrics, err := metrics.NewHTTPMetrics(reg)
	if err != nil {
		return fmt.Errorf("failed to register http metrics: %w", err)
	}

	cfg, err := config.Load(
		config.WithEnv(proc.EnvPrefix),
		config.WithEventSinks(recorder),
	)
	if err != nil {
		return fmt.Errorf("failed to load server configuration: %w", err)
	}

	svc, err := cfg.BuildService(composite.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}

	server := NewHTTPServer(svc, cfg, proc, reg, httpMetrics, logger)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Composite metadata server starting",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"database", cfg.DatabaseType,
			"snapshots", cfg.Snapshots.Type,
			"instance_id", cfg.InstanceID,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case sig := <-quit:
		logger.Info("Shutting down server", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), proc.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exiting")
	return nil
}
