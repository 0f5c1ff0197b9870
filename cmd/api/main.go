// Package main is the entry point for the mailroom API server.
//
// It loads the configuration, opens the database pool, wires the dispatch
// pipeline (repositories, mail transport, metrics, orchestrator, queue
// publisher), builds the chi router, and serves HTTP with graceful shutdown
// on SIGINT/SIGTERM.
//
// In local mode (APP_ENV=local) or test mode the mail transport is a stub
// that logs instead of sending, so the full pipeline can run without AWS
// credentials.
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
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailroom/internal/api"
	"mailroom/internal/config"
	"mailroom/internal/db"
	"mailroom/internal/dispatch"
	"mailroom/internal/external"
	"mailroom/internal/queue"
	"mailroom/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

// dbProbe reports database health for /healthz.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p *dbProbe) Name() string                    { return "database" }
func (p *dbProbe) Check(ctx context.Context) error { return p.pool.Ping(ctx) }

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("mailroom API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:               cfg.Database.URL,
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	templates := db.NewTemplateRepository(pool)
	prefs := db.NewPreferenceRepository(pool)
	history := db.NewNotificationRepository(pool)

	var transport dispatch.MailTransport
	if cfg.Environment == "local" || cfg.IsTestMode {
		logger.Warn("using stub mail transport; no real email will be sent")
		transport = external.NewStubMailTransport(logger)
	} else {
		ses := external.NewSESClient(awsCfg, external.SESClientConfig{
			ConfigSetName: cfg.Email.ConfigSetName,
			Logger:        logger,
		})
		transport = external.NewBreakerTransport("ses", ses)
	}

	var metrics dispatch.Metrics = dispatch.NoopMetrics{}
	if cfg.Observability.EnableMetrics {
		metrics = dispatch.NewCloudWatchMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			typedLogger,
		)
	}

	orchestrator := dispatch.NewOrchestrator(dispatch.Config{
		Templates: templates,
		Prefs:     prefs,
		Transport: transport,
		History:   history,
		Metrics:   metrics,
		From: types.SenderIdentity{
			Email: cfg.Email.FromAddress,
			Name:  cfg.Email.FromName,
		},
		Logger: typedLogger,
	})

	publisher := queue.NewDispatchPublisher(
		sqs.NewFromConfig(awsCfg),
		cfg.AWS.DispatchQueue,
		typedLogger,
	)

	validate := validator.New()
	router := api.NewRouter(api.RouterConfig{
		Render:        api.NewRenderHandler(validate, logger),
		Notifications: api.NewNotificationHandler(orchestrator, history, publisher, validate, logger),
		Probes:        []api.HealthProbe{&dbProbe{pool: pool}},
		Logger:        logger,
	})

	return serveHTTP(router, cfg, logger)
}

// serveHTTP runs the HTTP server until a shutdown signal or server error.
func serveHTTP(handler http.Handler, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON structured logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
