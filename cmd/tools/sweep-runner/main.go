// Command sweep-runner runs a subscription sweep from a workstation,
// bypassing the sweeper Lambda.
//
// Usage:
//
//	go run ./cmd/tools/sweep-runner --task=expire_subscriptions
//	go run ./cmd/tools/sweep-runner --task=trial_reminders --reference-time=2026-03-10T08:00:00Z
//	go run ./cmd/tools/sweep-runner --task=trial_reminders --no-notify
//	go run ./cmd/tools/sweep-runner --dry-run --task=trial_reminders
//	go run ./cmd/tools/sweep-runner --list
//
// Configuration comes from the environment or a .env file. Notifications go
// to SQS when NOTIFICATION_QUEUE_URL is set; otherwise they are delivered in
// process and drained before exit. --no-notify logs them instead.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"blackhub/internal/billing"
	"blackhub/internal/config"
	"blackhub/internal/db"
	"blackhub/internal/external"
	"blackhub/internal/notifications"
	"blackhub/internal/referral"
	"blackhub/internal/scheduler"
	"blackhub/internal/types"
)

var taskDescriptions = []struct {
	Task        scheduler.TaskType
	Description string
}{
	{scheduler.TaskExpireSubscriptions, "Mark lapsed active and trialing subscriptions expired"},
	{scheduler.TaskTrialReminders, "Send day-5 and day-6 trial reminders"},
}

// options are the parsed command-line flags.
type options struct {
	Payload  scheduler.Payload
	List     bool
	DryRun   bool
	NoNotify bool
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("sweep-runner", flag.ContinueOnError)
	fs.SetOutput(stderr)

	task := fs.String("task", "", "Task to run (see --list)")
	refTime := fs.String("reference-time", "", "Override the reference time (RFC3339)")
	list := fs.Bool("list", false, "List available tasks and exit")
	dryRun := fs.Bool("dry-run", false, "Print the sweeper payload without running it")
	noNotify := fs.Bool("no-notify", false, "Log notifications instead of delivering them")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{List: *list, DryRun: *dryRun, NoNotify: *noNotify}
	if opts.List {
		return opts, nil
	}
	if *task == "" {
		return opts, errors.New("--task is required")
	}

	opts.Payload.Task = scheduler.TaskType(*task)
	if !knownTask(opts.Payload.Task) {
		return opts, fmt.Errorf("unknown task %q", *task)
	}

	if *refTime != "" {
		t, err := time.Parse(time.RFC3339, *refTime)
		if err != nil {
			return opts, fmt.Errorf("invalid --reference-time %q: expected RFC3339, e.g. 2026-03-10T08:00:00Z", *refTime)
		}
		opts.Payload.ReferenceTime = &t
	}
	return opts, nil
}

func knownTask(task scheduler.TaskType) bool {
	for _, d := range taskDescriptions {
		if d.Task == task {
			return true
		}
	}
	return false
}

func printTasks(w io.Writer) {
	fmt.Fprintln(w, "Available tasks:")
	for _, d := range taskDescriptions {
		fmt.Fprintf(w, "  %-22s %s\n", d.Task, d.Description)
	}
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
			printTasks(os.Stderr)
		}
		os.Exit(2)
	}
	if opts.List {
		printTasks(os.Stdout)
		return
	}
	if opts.DryRun {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(opts.Payload)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file loaded", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := run(ctx, opts, logger)
	if err != nil {
		logger.Error("sweep failed", "task", opts.Payload.Task, "error", err)
		os.Exit(1)
	}

	out, _ := json.Marshal(res)
	logger.Info("sweep finished", "task", opts.Payload.Task, "result", json.RawMessage(out))
}

func run(ctx context.Context, opts options, logger *slog.Logger) (*scheduler.Result, error) {
	cfg, err := config.LoadConfig(config.DefaultSecretProvider())
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	accounts := db.NewAccountRepository(pool)

	dispatcher, drain, err := newDispatcher(ctx, cfg, opts.NoNotify, notifications.Stores{
		Claims:   db.NewNotificationLogRepository(pool),
		Accounts: accounts,
		Tokens:   db.NewPushTokenRepository(pool),
	}, logger)
	if err != nil {
		return nil, err
	}
	defer drain()

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
		defer client.Close()
		locker = scheduler.NewRedisLocker(client, "blackhub")
	}

	runner := scheduler.NewRunner(scheduler.RunnerConfig{
		Sweeps:   reconciler,
		Locker:   locker,
		LockTTL:  cfg.Redis.LockTTL,
		WorkerID: "sweep-runner-" + uuid.NewString(),
		Logger:   logger,
	})
	return runner.Run(ctx, opts.Payload)
}

// newDispatcher picks the notification path and returns a func that flushes
// it before exit.
func newDispatcher(ctx context.Context, cfg *config.Config, noNotify bool, stores notifications.Stores, logger *slog.Logger) (notifications.Dispatcher, func(), error) {
	if noNotify {
		return logDispatcher{logger: logger}, func() {}, nil
	}

	if cfg.AWS.NotificationQueueURL != "" {
		awsCfg, err := notifications.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, nil, err
		}
		client := notifications.NewSQSClient(awsCfg, cfg.AWS)
		return notifications.NewSQSDispatcher(client, cfg.AWS.NotificationQueueURL, logger), func() {}, nil
	}

	notifier, err := notifications.NewNotifierFromConfig(ctx, cfg, stores, logger)
	if err != nil {
		return nil, nil, err
	}
	async := notifications.NewAsyncDispatcher(notifier, notifications.AsyncConfig{
		Workers:     cfg.Notify.Workers,
		QueueSize:   cfg.Notify.QueueSize,
		MaxAttempts: cfg.Notify.MaxAttempts,
		BaseBackoff: cfg.Notify.BaseBackoff,
	}, logger)
	drain := func() {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		if err := async.Shutdown(drainCtx); err != nil {
			logger.Warn("notification queue not fully drained", "error", err)
		}
	}
	return async, drain, nil
}

// logDispatcher records what would have been sent.
type logDispatcher struct {
	logger *slog.Logger
}

func (d logDispatcher) Dispatch(ctx context.Context, n types.Notification) error {
	d.logger.InfoContext(ctx, "notification suppressed",
		"user_id", n.UserID,
		"template", n.Template,
		"days_left", n.DaysLeft,
	)
	return nil
}
