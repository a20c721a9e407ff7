// Package main is the entry point for the featflip server.
//
// The bootstrap sequence is:
//  1. Load configuration from environment variables.
//  2. Pick the feature store backend (in-memory, or PostgreSQL with
//     migrations applied on startup).
//  3. Build the engine with Prometheus check and store instrumentation.
//  4. Wire up authentication and request logging middleware.
//  5. Start the HTTP server and wait for SIGINT/SIGTERM, then gracefully
//     shut down.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/featflip/featflip/internal/config"
	"github.com/featflip/featflip/internal/engine"
	"github.com/featflip/featflip/internal/logging"
	"github.com/featflip/featflip/internal/metrics"
	"github.com/featflip/featflip/internal/middleware"
	"github.com/featflip/featflip/internal/server"
	"github.com/featflip/featflip/internal/store"
	"github.com/featflip/featflip/internal/store/postgres"
	"github.com/featflip/featflip/internal/tracing"
)

const (
	httpReadHeaderTimeout = 5 * time.Second
	httpReadTimeout       = 30 * time.Second
	httpIdleTimeout       = 2 * time.Minute

	featureCountInterval = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.NewWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(log)

	shutdownTracer, err := tracing.Init(context.Background())
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown error", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	features, cleanup, err := openFeatureStore(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer cleanup()

	features = store.Instrument(features, m.ObserveStoreOp)

	engineOpts := []engine.Option{
		engine.WithLogger(log),
		engine.WithPropertyStore(store.NewInMemoryProperties()),
		engine.WithCheckHook(m.RecordCheck),
		engine.WithAutoCreateHook(m.RecordAutoCreate),
	}
	if cfg.AutoCreate {
		engineOpts = append(engineOpts, engine.WithAutoCreate())
	}
	eng := engine.New(features, engineOpts...)

	go trackFeatureCount(ctx, eng, m, log)

	apiHandler := server.NewHTTPHandler(eng,
		server.WithMaxBodySize(cfg.MaxJSONBodySize),
		server.WithMetricsHandler(m.Handler()),
	)

	httpHandler := newHTTPHandler(ctx, cfg, apiHandler, m, log)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(httpHandler, "featflip-http"),
		ReadHeaderTimeout: httpReadHeaderTimeout,
		ReadTimeout:       httpReadTimeout,
		IdleTimeout:       httpIdleTimeout,
	}

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen HTTP %s: %w", cfg.HTTPAddr, err)
	}
	defer httpListener.Close()

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- fmt.Errorf("serve HTTP: %w", err)
		}
	}()

	log.Info("server started",
		"http_addr", cfg.HTTPAddr,
		"store_backend", cfg.StoreBackend,
		"auto_create", cfg.AutoCreate,
	)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serveErrCh:
	}
	stop()

	log.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		if serveErr != nil {
			return serveErr
		}
		return fmt.Errorf("shutdown HTTP: %w", err)
	}

	return serveErr
}

// openFeatureStore builds the configured store backend and returns it with a
// cleanup function releasing its resources.
func openFeatureStore(ctx context.Context, cfg config.Config, m *metrics.Metrics) (store.FeatureStore, func(), error) {
	if cfg.StoreBackend == config.BackendMemory {
		return store.NewInMemory(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := runMigrations(pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	metrics.RegisterPoolMetrics(m.Registry, pool)

	return postgres.New(pool), pool.Close, nil
}

// newHTTPHandler layers auth and request logging over the API handler. The
// health and metrics endpoints stay unauthenticated.
func newHTTPHandler(ctx context.Context, cfg config.Config, apiHandler http.Handler, m *metrics.Metrics, log *slog.Logger) http.Handler {
	protected := apiHandler
	if len(cfg.APIKeyHashes) > 0 {
		validator := middleware.NewStaticKeyValidator(cfg.APIKeyHashes)
		rl := middleware.NewRateLimiter(ctx, cfg.AuthRateLimit)
		protected = middleware.BearerAuth(validator,
			middleware.WithOnAuthFailure(m.AuthFailuresTotal.Inc),
			middleware.WithRateLimiter(rl),
		)(apiHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/", protected)
	mux.Handle("GET /healthz", apiHandler)
	mux.Handle("GET /metrics", apiHandler)

	return middleware.RequestLogging(log)(mux)
}

func trackFeatureCount(ctx context.Context, eng *engine.Engine, m *metrics.Metrics, log *slog.Logger) {
	ticker := time.NewTicker(featureCountInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := eng.Features().Count(ctx)
			if err != nil {
				log.Debug("feature count refresh failed", "error", err)
				continue
			}
			m.SetFeatureCount(n)
		}
	}
}
