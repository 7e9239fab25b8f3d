package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/feedrank/internal/adapters/http/api"
	"github.com/okian/feedrank/internal/adapters/repository"
	app "github.com/okian/feedrank/internal/app"
	"github.com/okian/feedrank/internal/config"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	// The custom registry carries its own runtime gauges.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "feedrank exited with error", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.InitWithFormat(os.Stdout, cfg.LogFormat); err != nil {
		return err
	}
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	configureMetrics(cfg)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	svc := newService(cfg, store, log)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return err
	}
	defer svc.Stop()

	srv := newHTTPServer(cfg, svc)
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down server...")
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			return err
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// configureMetrics names the exported collectors. It runs before any
// component records a metric.
func configureMetrics(cfg *config.Config) {
	metrics.Configure(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
	)
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	return repository.Open(ctx, repository.Config{
		Driver:      cfg.StoreDriver,
		SQLitePath:  cfg.SQLitePath,
		PostgresURL: cfg.PostgresURL,
		RedisAddr:   cfg.RedisAddr,
		RedisDB:     cfg.RedisDB,
	},
		repository.WithLogger(logger.Named("store")),
		repository.WithMaxConns(cfg.PostgresMaxConns),
		repository.WithKeyPrefix(cfg.RedisKeyPrefix),
	)
}

func newService(cfg *config.Config, store repository.Store, log logger.Logger) *app.Service {
	return app.New(
		app.WithLogger(log.Named("feed-service")),
		app.WithStore(store),
		app.WithQueueCapacity(cfg.QueueCapacity),
		app.WithCircuitBreaker(cfg.BreakerFailureThreshold, cfg.BreakerTimeout()),
		app.WithShutdownTimeout(cfg.ShutdownTimeout()),
	)
}

func newHTTPServer(cfg *config.Config, svc *app.Service) *http.Server {
	mux := http.NewServeMux()
	api.NewServer(svc).Register(mux)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
