// ABOUTME: Gateway coordinator that wires components and runs the gRPC and HTTP servers
// ABOUTME: Owns task registry, media queue, replay ledger, store, and health endpoints lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/2389/realtime-gateway/internal/auth"
	"github.com/2389/realtime-gateway/internal/clock"
	"github.com/2389/realtime-gateway/internal/config"
	"github.com/2389/realtime-gateway/internal/events"
	"github.com/2389/realtime-gateway/internal/mediajob"
	"github.com/2389/realtime-gateway/internal/orchestrator"
	"github.com/2389/realtime-gateway/internal/replay"
	"github.com/2389/realtime-gateway/internal/store"
	"github.com/2389/realtime-gateway/internal/task"
	"github.com/2389/realtime-gateway/internal/telemetry"
)

// source is the envelope source for everything the gateway emits.
const source = "gateway"

// Gateway orchestrates the realtime-gateway server components.
type Gateway struct {
	config *config.Config
	logger *slog.Logger
	clock  clock.Clock

	tasks      *task.Registry
	media      *mediajob.Queue
	ledger     replay.Ledger
	client     *orchestrator.Client
	store      *store.SQLiteStore
	redis      *redis.Client
	events     *events.Broadcaster
	limiter    *sessionLimiter
	verifier   *auth.JWTVerifier
	inflight   singleflight.Group
	readyCheck *http.Client

	promRegistry *prometheus.Registry
	exporter     *telemetry.Exporter
	reporter     *telemetry.Reporter

	grpcServer   *grpc.Server
	healthServer *health.Server
	httpServer   *http.Server
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithClock sets the clock shared by the task registry and media queue.
func WithClock(c clock.Clock) Option {
	return func(g *Gateway) {
		g.clock = c
	}
}

// New creates a gateway from cfg. The returned gateway owns the store and
// ledger; call Shutdown (or Run) to release them.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gw := &Gateway{
		config:       cfg,
		logger:       logger,
		clock:        clock.Real(),
		events:       events.NewBroadcaster(logger),
		limiter:      newSessionLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		readyCheck:   &http.Client{Timeout: 2 * time.Second},
		promRegistry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(gw)
	}

	gw.promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	gw.exporter = telemetry.NewExporter(gw.promRegistry)

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	gw.store = sqlStore

	ledger, err := gw.newLedger()
	if err != nil {
		_ = sqlStore.Close()
		return nil, err
	}
	gw.ledger = ledger

	gw.tasks = task.NewRegistry(task.Config{
		CompletedRetention: cfg.Tasks.CompletedRetention,
		MaxEntries:         cfg.Tasks.MaxEntries,
	}, task.WithClock(gw.clock), task.WithOnChange(gw.publishTask))

	gw.media = mediajob.NewQueue(mediajob.Config{Retention: cfg.Media.Retention},
		mediajob.WithClock(gw.clock),
		mediajob.WithLogger(logger.With("component", "mediajob")),
	)

	gw.client = orchestrator.NewClient(orchestrator.Options{
		Timeout:      cfg.Orchestrator.Timeout,
		MaxRetries:   orchestrator.RetriesFromConfig(cfg.Orchestrator.MaxRetries),
		RetryBackoff: cfg.Orchestrator.RetryBackoff,
		Logger:       logger.With("component", "orchestrator-client"),
		Observer:     gw.exporter,
	})

	gw.reporter = telemetry.NewReporter(gw.exporter, cfg.Metrics.Interval,
		logger.With("component", "telemetry"), gw.telemetrySources()...)

	if cfg.Auth.JWTSecret != "" {
		gw.verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	}
	gw.grpcServer, gw.healthServer = createGRPCServer(gw.verifier, logger)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// newLedger builds the replay ledger selected by config.
func (g *Gateway) newLedger() (replay.Ledger, error) {
	rc := g.config.Replay
	switch rc.Backend {
	case config.ReplayBackendSQLite:
		return replay.NewPersistentLedger(g.store, rc.TTL, g.clock), nil
	case config.ReplayBackendRedis:
		g.redis = redis.NewClient(&redis.Options{
			Addr:     rc.RedisAddr,
			Password: rc.RedisPassword,
			DB:       rc.RedisDB,
		})
		return replay.NewPersistentLedger(replay.NewRedisStore(g.redis, rc.RedisPrefix), rc.TTL, g.clock), nil
	case config.ReplayBackendMemory, "":
		return replay.NewMemoryLedger(rc.TTL, rc.MaxEntries, replay.WithClock(g.clock)), nil
	default:
		return nil, fmt.Errorf("unknown replay backend %q", rc.Backend)
	}
}

// Handler returns the gateway's HTTP routes.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	if g.config.Metrics.Enabled {
		mux.Handle("GET "+g.config.Metrics.Path, promhttp.HandlerFor(g.promRegistry, promhttp.HandlerOpts{}))
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /api/requests", g.handleSubmit)
	api.HandleFunc("GET /api/tasks", g.handleListTasks)
	api.HandleFunc("GET /api/tasks/{id}", g.handleGetTask)
	api.HandleFunc("GET /api/tasks/{id}/dispatches", g.handleListDispatches)
	api.HandleFunc("POST /api/media/jobs", g.handleCreateMediaJob)
	api.HandleFunc("GET /api/media/jobs", g.handleGetMediaJobs)
	api.HandleFunc("GET /ws", g.handleWebSocket)

	var protected http.Handler = api
	if g.verifier != nil {
		protected = auth.HTTPAuthMiddleware(g.verifier, g.writeAuthError, g.logger)(api)
	}
	mux.Handle("/api/", protected)
	mux.Handle("/ws", protected)

	return mux
}

// setupTCPListeners creates standard TCP listeners for gRPC and HTTP.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
		"replay_backend", g.config.Replay.Backend,
	)

	grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

// startServers starts gRPC and HTTP servers in goroutines, returning error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := g.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the gateway servers and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	grpcListener, httpListener, err := g.setupTCPListeners()
	if err != nil {
		return err
	}

	if g.config.Metrics.Enabled {
		reporterCtx, stopReporter := context.WithCancel(ctx)
		defer stopReporter()
		go g.reporter.Run(reporterCtx)
	}

	errCh := g.startServers(grpcListener, httpListener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The original context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	g.healthServer.Shutdown()

	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops all gateway servers and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.shutdownGRPCServer(ctx)
	g.events.Close()

	errs = appendCloseError(errs, "ledger close", g.ledger.Close())
	if g.redis != nil {
		errs = appendCloseError(errs, "redis close", g.redis.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the store answers and the orchestrator's
// health endpoint responds with 2xx.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "store unavailable: %v", err)
		return
	}
	if err := g.pingOrchestrator(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "orchestrator unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// pingOrchestrator probes GET /health on the orchestrator's host.
func (g *Gateway) pingOrchestrator(ctx context.Context) error {
	u, err := url.Parse(g.config.Orchestrator.URL)
	if err != nil {
		return fmt.Errorf("parsing orchestrator url: %w", err)
	}
	u.Path = "/health"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := g.readyCheck.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
