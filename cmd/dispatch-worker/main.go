// Package main is the entrypoint for the dispatch worker Lambda function.
//
// The worker consumes dispatch requests from the SQS dispatch queue and runs
// each through the delivery pipeline: preference check, template selection,
// rendering, the SES send, and the history status update.
//
// Cold start:
//  1. Load and validate configuration.
//  2. Initialize the structured logger.
//  3. Load the AWS SDK configuration and create the SES and CloudWatch clients.
//  4. Open the database pool and build the repositories.
//  5. Build the mail transport (stub in local/test mode, SES behind a
//     circuit breaker otherwise) and the orchestrator.
//  6. Register the handler and call lambda.Start.
//
// Each invocation receives a batch of SQS messages. Records are processed
// concurrently, bounded by WORKER_CONCURRENCY, and failures are reported via
// partial batch responses so SQS retries only the failed records.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"golang.org/x/sync/errgroup"

	"mailroom/internal/config"
	"mailroom/internal/db"
	"mailroom/internal/dispatch"
	"mailroom/internal/external"
	"mailroom/internal/queue"
	"mailroom/internal/template"
	"mailroom/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error and Warn directly, but With returns
// *slog.Logger rather than types.Logger, so an adapter is necessary.
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

// Dispatcher is the slice of the orchestrator the handler needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, notificationType, recipient string, vars template.VariableBag, opts dispatch.Options) dispatch.Result
}

// Handler holds the dependencies for the dispatch worker Lambda handler.
type Handler struct {
	dispatcher  Dispatcher
	concurrency int
	logger      types.Logger
}

// Handle processes one SQS event. Records are dispatched concurrently up to
// the configured limit. A record error means "retry this record": it is
// reported in BatchItemFailures rather than failing the whole batch.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var (
		mu       sync.Mutex
		response events.SQSEventResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	limit := h.concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, record := range sqsEvent.Records {
		g.Go(func() error {
			if err := h.processRecord(gctx, record); err != nil {
				h.logger.Error("failed to process SQS record",
					"message_id", record.MessageId,
					"error", err.Error(),
				)
				mu.Lock()
				response.BatchItemFailures = append(response.BatchItemFailures,
					events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
				)
				mu.Unlock()
			}
			return nil
		})
	}

	// Workers never return errors; failures travel via BatchItemFailures.
	_ = g.Wait()

	return response, nil
}

// processRecord runs one dispatch request through the pipeline. A returned
// error marks the record for SQS redelivery; terminal failures (malformed
// bodies, missing templates) return nil so the record is acknowledged.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	req, err := queue.DecodeMessage(record.Body)
	if err != nil {
		// Permanent parse failure. Redelivery cannot fix the body.
		h.logger.Error("dropping malformed dispatch message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}

	logger := h.logger.With(
		"notification_id", req.NotificationID,
		"type", req.Type,
		"trace_id", req.TraceID,
	)
	logger.Info("processing dispatch request")

	result := h.dispatcher.Dispatch(ctx, req.Type, req.Recipient,
		template.BagFromJSON(req.Variables),
		dispatch.Options{
			UserID:            req.UserID,
			IgnorePreferences: req.IgnorePreferences,
			NotificationID:    req.NotificationID,
		},
	)

	switch {
	case result.Success:
		logger.Info("dispatch succeeded", "message_id", result.MessageID)
		return nil
	case result.Skipped:
		logger.Info("dispatch skipped", "reason", string(result.SkipReason))
		return nil
	case result.Error == dispatch.ErrNoActiveTemplate:
		// Terminal until someone creates the template; retrying churns the
		// queue without progress.
		logger.Error("dropping request with no active template")
		return nil
	default:
		return fmt.Errorf("dispatch failed: %s", result.Error)
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("dispatch worker initializing (cold start)",
		"environment", cfg.Environment,
		"queue", cfg.AWS.DispatchQueue,
		"concurrency", cfg.Worker.Concurrency,
	)

	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:               cfg.Database.URL,
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
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

	handler := &Handler{
		dispatcher:  orchestrator,
		concurrency: cfg.Worker.Concurrency,
		logger:      typedLogger,
	}

	logger.Info("dispatch worker initialized",
		"from_address", cfg.Email.FromAddress,
		"metric_namespace", cfg.Observability.MetricNamespace,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime. This enables local integration testing without the
	// AWS Lambda RIE.
	if cfg.Environment == "local" && !isLambdaEnvironment() {
		runLocal(handler, logger)
		return
	}

	lambda.Start(handler.Handle)
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, ok := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	return ok
}

// runLocal feeds one stdin-supplied SQS event through the handler.
func runLocal(handler *Handler, logger *slog.Logger) {
	logger.Info("APP_ENV=local: reading SQS event from stdin")

	payload, err := io.ReadAll(os.Stdin)
	if err != nil || len(payload) == 0 {
		logger.Error("failed to read SQS event from stdin", "error", err)
		os.Exit(1)
	}

	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		logger.Error("failed to parse stdin as SQS event", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	response, err := handler.Handle(ctx, sqsEvent)
	if err != nil {
		logger.Error("handler execution failed", "error", err)
		os.Exit(1)
	}

	if len(response.BatchItemFailures) > 0 {
		respJSON, _ := json.MarshalIndent(response, "", "  ")
		fmt.Fprintln(os.Stderr, string(respJSON))
	}
	logger.Info("handler execution completed",
		"records_processed", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
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
