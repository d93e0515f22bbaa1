// Package main is the entry point for the BlackHub API server.
//
// It loads configuration, opens the Postgres pool (running migrations unless
// disabled), builds the repositories, the billing reconciler, the referral
// ledger and the seller access gate, wires them into the core chassis and
// serves HTTP until SIGINT or SIGTERM.
//
// Notifications are delivered by an in-process worker pool, or published to
// SQS for the notify-worker when NOTIFICATION_QUEUE_URL is set. Cron routes
// share the sweep runner with the sweeper Lambda; a Redis URL enables the
// sweep lock.
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

	"blackhub/internal/api/handlers"
	"blackhub/internal/auth"
	"blackhub/internal/billing"
	"blackhub/internal/config"
	"blackhub/internal/core"
	"blackhub/internal/db"
	"blackhub/internal/external"
	"blackhub/internal/notifications"
	"blackhub/internal/referral"
	"blackhub/internal/scheduler"
	"blackhub/internal/subscription"
)

// tokenLeeway tolerates clock skew with the identity provider.
const tokenLeeway = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(config.DefaultSecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("blackhub API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	if cfg.Database.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return fmt.Errorf("running migrations: %w", err)
		}
	}
	srv.HealthProbes = append(srv.HealthProbes, db.HealthProbe{DB: pool})

	accounts := db.NewAccountRepository(pool)
	subs := db.NewSubscriptionRepo(pool, logger)
	listings := db.NewListingRepository(pool)
	pushTokens := db.NewPushTokenRepository(pool)
	notificationLog := db.NewNotificationLogRepository(pool)
	referrals := db.NewReferralRepository(pool)
	checkouts := db.NewCheckoutRepository(pool)

	ledger := referral.NewLedger(accounts, referrals, cfg.Server.AppURL, logger)

	notifier, err := notifications.NewNotifierFromConfig(ctx, cfg, notifications.Stores{
		Claims:   notificationLog,
		Accounts: accounts,
		Tokens:   pushTokens,
	}, logger)
	if err != nil {
		pool.Close()
		return err
	}
	dispatcher, err := newDispatcher(ctx, cfg, notifier, logger)
	if err != nil {
		pool.Close()
		return err
	}
	if async, ok := dispatcher.(*notifications.AsyncDispatcher); ok {
		srv.OnShutdown(async.Shutdown)
	}

	gateway := external.NewPaystackClient(&http.Client{Timeout: 15 * time.Second}, external.PaystackClientConfig{
		SecretKey: cfg.Paystack.SecretKey.Unmask(),
		BaseURL:   cfg.Paystack.BaseURL,
		Logger:    logger,
	})
	reconciler := billing.NewReconciler(billing.Config{
		Gateway:       gateway,
		Subscriptions: subs,
		Checkouts:     checkouts,
		Accounts:      accounts,
		Referrals:     ledger,
		Notifications: dispatcher,
		PlanCodes:     cfg.Paystack,
		AppURL:        cfg.Server.AppURL,
		Logger:        logger,
	})

	var locker scheduler.JobLocker
	if cfg.Redis.URL.IsSet() {
		client, err := scheduler.NewRedisClient(ctx, cfg.Redis.URL.Unmask())
		if err != nil {
			pool.Close()
			return err
		}
		locker = scheduler.NewRedisLocker(client, "blackhub")
		srv.HealthProbes = append(srv.HealthProbes, scheduler.HealthProbe{Client: client})
		srv.OnShutdown(func(context.Context) error { return client.Close() })
	} else {
		logger.Warn("REDIS_URL not set, sweep lock disabled")
	}
	runner := scheduler.NewRunner(scheduler.RunnerConfig{
		Sweeps:  reconciler,
		Locker:  locker,
		LockTTL: cfg.Redis.LockTTL,
		Logger:  logger,
	})

	srv.Authenticator = auth.NewTokenVerifier(auth.TokenVerifierConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.JWTIssuer,
		Leeway: tokenLeeway,
	})
	srv.Scheduler = auth.NewCronVerifier(cfg.Auth.CronSecret)
	srv.Gate = subscription.NewGate(accounts, subs, logger)

	registerRoutes(srv, routeHandlers{
		Billing:  handlers.NewBillingHandler(reconciler, subs, accounts, srv.Validator, logger),
		Webhook:  handlers.NewPaystackWebhookHandler(external.PaystackVerifier{}, reconciler, cfg.Paystack.SecretKey, logger),
		Cron:     handlers.NewCronHandler(runner, reconciler, srv.Validator, logger),
		Account:  handlers.NewAccountHandler(accounts, subs, ledger, dispatcher, cfg.Auth.CEOEmail, srv.Validator, logger),
		Admin:    handlers.NewAdminHandler(accounts, srv.Validator, logger),
		Referral: handlers.NewReferralHandler(ledger),
		Push:     handlers.NewPushHandler(pushTokens, cfg.Push.VAPIDPublicKey, srv.Validator),
		Listings: handlers.NewListingHandler(listings, accounts, srv.Validator, logger),
	})

	// Registered last so in-flight notifications drain before the pool closes.
	srv.OnShutdown(func(context.Context) error {
		pool.Close()
		return nil
	})

	srv.MountRoutes()
	return runHTTPServer(srv, cfg, logger)
}

// newDispatcher publishes to SQS when a queue is configured and otherwise
// delivers on an in-process worker pool.
func newDispatcher(ctx context.Context, cfg *config.Config, notifier *notifications.Notifier, logger *slog.Logger) (notifications.Dispatcher, error) {
	if cfg.AWS.NotificationQueueURL != "" {
		awsCfg, err := notifications.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		logger.Info("notifications dispatched via SQS", "queue_url", cfg.AWS.NotificationQueueURL)
		return notifications.NewSQSDispatcher(notifications.NewSQSClient(awsCfg, cfg.AWS), cfg.AWS.NotificationQueueURL, logger), nil
	}
	return notifications.NewAsyncDispatcher(notifier, notifications.AsyncConfig{
		Workers:     cfg.Notify.Workers,
		QueueSize:   cfg.Notify.QueueSize,
		MaxAttempts: cfg.Notify.MaxAttempts,
		BaseBackoff: cfg.Notify.BaseBackoff,
	}, logger), nil
}

// runHTTPServer serves until a shutdown signal or a listener error, then
// drains in-flight requests and runs the server's shutdown hooks.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
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
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger at the given level.
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
