// Package main is the entry point for the sweeper Lambda.
//
// EventBridge rules invoke it with a scheduler.Payload naming the task:
//
//	{"task":"expire_subscriptions"}                  hourly
//	{"task":"trial_reminders"}                       daily
//	{"task":"trial_reminders","reference_time":...}  manual backfill
//
// The runner holds a per-task Redis lock for the duration of the sweep, so
// an overlapping HTTP cron trigger is skipped rather than run twice.
// Notifications produced by the sweeps are published to SQS; a Lambda cannot
// keep an in-process worker pool alive between invocations.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"blackhub/internal/billing"
	"blackhub/internal/config"
	"blackhub/internal/db"
	"blackhub/internal/external"
	"blackhub/internal/notifications"
	"blackhub/internal/referral"
	"blackhub/internal/scheduler"
)

// TaskRunner is the subset of *scheduler.Runner the handler calls.
type TaskRunner interface {
	Run(ctx context.Context, p scheduler.Payload) (*scheduler.Result, error)
}

// Handler adapts the runner to the Lambda invocation contract.
type Handler struct {
	Runner TaskRunner
	Logger *slog.Logger
}

// Handle runs one sweep. Returning an error makes EventBridge retry the
// invocation; a run skipped because another worker holds the lock is not an
// error.
func (h *Handler) Handle(ctx context.Context, payload scheduler.Payload) (*scheduler.Result, error) {
	res, err := h.Runner.Run(ctx, payload)
	if err != nil {
		h.Logger.ErrorContext(ctx, "sweep failed", "task", payload.Task, "error", err)
		return nil, fmt.Errorf("task %s failed: %w", payload.Task, err)
	}
	return res, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("sweeper Lambda initializing (cold start)")

	handler, err := newHandler(context.Background(), logger)
	if err != nil {
		logger.Error("sweeper initialization failed", "error", err)
		os.Exit(1)
	}
	lambda.Start(handler.Handle)
}

func newHandler(ctx context.Context, logger *slog.Logger) (*Handler, error) {
	cfg, err := config.LoadConfig(config.DefaultSecretProvider())
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.AWS.NotificationQueueURL == "" {
		return nil, errors.New("NOTIFICATION_QUEUE_URL is required for the sweeper")
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	awsCfg, err := notifications.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}
	dispatcher := notifications.NewSQSDispatcher(notifications.NewSQSClient(awsCfg, cfg.AWS), cfg.AWS.NotificationQueueURL, logger)

	accounts := db.NewAccountRepository(pool)
	reconciler := billing.NewReconciler(billing.Config{
		Gateway: external.NewPaystackClient(&http.Client{Timeout: 15 * time.Second}, external.PaystackClientConfig{
			SecretKey: cfg.Paystack.SecretKey.Unmask(),
			BaseURL:   cfg.Paystack.BaseURL,
			Logger:    logger,
		}),
		Subscriptions: db.NewSubscriptionRepo(pool, logger),
		Checkouts:     db.NewCheckoutRepository(pool),
		Accounts:      accounts,
		Referrals:     referral.NewLedger(accounts, db.NewReferralRepository(pool), cfg.Server.AppURL, logger),
		Notifications: dispatcher,
		PlanCodes:     cfg.Paystack,
		AppURL:        cfg.Server.AppURL,
		Logger:        logger,
	})

	var locker scheduler.JobLocker
	if cfg.Redis.URL.IsSet() {
		client, err := scheduler.NewRedisClient(ctx, cfg.Redis.URL.Unmask())
		if err != nil {
			return nil, err
		}
		locker = scheduler.NewRedisLocker(client, "blackhub")
	} else {
		logger.Warn("REDIS_URL not set, sweep lock disabled")
	}

	runner := scheduler.NewRunner(scheduler.RunnerConfig{
		Sweeps:  reconciler,
		Locker:  locker,
		LockTTL: cfg.Redis.LockTTL,
		Logger:  logger,
	})
	return &Handler{Runner: runner, Logger: logger}, nil
}
