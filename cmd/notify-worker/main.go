// Package main is the entry point for the notify-worker Lambda.
//
// It consumes the notification queue fed by notifications.SQSDispatcher and
// delivers each message through the Notifier, which claims the
// (user, template) pair first so a redelivered message is never sent twice.
// Failed records are reported as batch item failures; SQS redelivers only
// those and moves them to the dead-letter queue after maxReceiveCount.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"blackhub/internal/config"
	"blackhub/internal/db"
	"blackhub/internal/notifications"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("notify-worker Lambda initializing (cold start)")

	consumer, err := newConsumer(context.Background(), logger)
	if err != nil {
		logger.Error("notify-worker initialization failed", "error", err)
		os.Exit(1)
	}
	lambda.Start(consumer.Handle)
}

func newConsumer(ctx context.Context, logger *slog.Logger) (*notifications.QueueConsumer, error) {
	cfg, err := config.LoadConfig(config.DefaultSecretProvider())
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	notifier, err := notifications.NewNotifierFromConfig(ctx, cfg, notifications.Stores{
		Claims:   db.NewNotificationLogRepository(pool),
		Accounts: db.NewAccountRepository(pool),
		Tokens:   db.NewPushTokenRepository(pool),
	}, logger)
	if err != nil {
		return nil, err
	}
	return notifications.NewQueueConsumer(notifier, logger), nil
}
