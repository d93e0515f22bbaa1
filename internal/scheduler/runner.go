package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"blackhub/internal/billing"
	"blackhub/internal/types"
)

// DefaultLockTTL bounds how long a crashed run can block the next one.
const DefaultLockTTL = 5 * time.Minute

// SweepService is the part of billing.Reconciler the runner drives.
type SweepService interface {
	ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error)
	SendTrialReminders(ctx context.Context, now time.Time) (billing.ReminderCounts, error)
}

// RunnerConfig wires a Runner. A nil Locker disables locking.
type RunnerConfig struct {
	Sweeps   SweepService
	Locker   JobLocker
	LockTTL  time.Duration
	WorkerID string
	Logger   *slog.Logger
	Now      func() time.Time
}

// Runner executes sweep tasks under a per-task lock.
type Runner struct {
	sweeps   SweepService
	locker   JobLocker
	lockTTL  time.Duration
	workerID string
	logger   *slog.Logger
	now      func() time.Time
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Locker == nil {
		cfg.Locker = noopLocker{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{
		sweeps:   cfg.Sweeps,
		locker:   cfg.Locker,
		lockTTL:  cfg.LockTTL,
		workerID: cfg.WorkerID,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// Run executes p.Task. When another worker holds the task's lock the run is
// skipped and reported as such without error.
func (r *Runner) Run(ctx context.Context, p Payload) (*Result, error) {
	now := r.now().UTC()
	if p.ReferenceTime != nil {
		now = p.ReferenceTime.UTC()
	}

	switch p.Task {
	case TaskExpireSubscriptions, TaskTrialReminders:
	case "":
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "task is required", nil)
	default:
		return nil, types.NewAppError(types.ErrCodeValidationInvalidInput, fmt.Sprintf("unknown task %q", p.Task), nil)
	}

	logger := r.logger.With("task", p.Task, "worker_id", r.workerID)
	lockID := string(p.Task)

	acquired, err := r.locker.Acquire(ctx, lockID, r.workerID, r.lockTTL)
	if err != nil {
		logger.ErrorContext(ctx, "failed to acquire sweep lock", "error", err)
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "sweep lock unavailable", err)
	}
	if !acquired {
		logger.InfoContext(ctx, "sweep lock held by another worker, skipping")
		return &Result{Task: p.Task, Skipped: true}, nil
	}
	defer func() {
		// The caller's context may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.locker.Release(releaseCtx, lockID, r.workerID); err != nil {
			logger.WarnContext(ctx, "failed to release sweep lock", "error", err)
		}
	}()

	logger.InfoContext(ctx, "sweep started", "reference_time", now.Format(time.RFC3339))

	res := &Result{Task: p.Task}
	switch p.Task {
	case TaskExpireSubscriptions:
		n, err := r.sweeps.ExpireSubscriptions(ctx, now)
		if err != nil {
			logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
			return nil, err
		}
		res.Expired = &n
	case TaskTrialReminders:
		counts, err := r.sweeps.SendTrialReminders(ctx, now)
		if err != nil {
			logger.ErrorContext(ctx, "trial reminder sweep failed", "error", err)
			return nil, err
		}
		res.ReminderCounts = &counts
	}
	return res, nil
}
