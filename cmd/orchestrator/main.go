// ABOUTME: Entry point for the orchestrator service
// ABOUTME: Routes gateway envelopes by intent to the configured agent endpoints

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/realtime-gateway/internal/config"
	"github.com/2389/realtime-gateway/internal/logging"
	"github.com/2389/realtime-gateway/internal/orchestrator"
	"github.com/2389/realtime-gateway/internal/telemetry"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default $REALTIME_GATEWAY_CONFIG or ./config.yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, config.ResolvePath(*configFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Logging, os.Stdout)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	exporter := telemetry.NewExporter(reg)

	router := orchestrator.NewRouter(orchestrator.RouterConfig{
		Intents:      cfg.Orchestrator.Intents,
		Targets:      cfg.Orchestrator.Agents,
		DefaultRoute: cfg.Orchestrator.DefaultRoute,
	})

	client := orchestrator.NewClient(orchestrator.Options{
		Timeout:      cfg.Orchestrator.Timeout,
		MaxRetries:   orchestrator.RetriesFromConfig(cfg.Orchestrator.MaxRetries),
		RetryBackoff: cfg.Orchestrator.RetryBackoff,
		Logger:       logger.With("component", "agent-client"),
		Observer:     exporter,
	})

	server := orchestrator.NewServer(router, client, logger.With("component", "orchestrator"))

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", server.Handler())

	httpServer := &http.Server{
		Addr:              cfg.Orchestrator.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	color.New(color.FgGreen).Print("▶ ")
	fmt.Printf("orchestrator listening on %s (default route %s)\n", cfg.Orchestrator.ListenAddr, cfg.Orchestrator.DefaultRoute)
	for route, urls := range cfg.Orchestrator.Agents {
		logger.Info("agent route", "route", route, "targets", len(urls))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down orchestrator")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", slog.Any("error", err))
		return err
	}
	return nil
}
