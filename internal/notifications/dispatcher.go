package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"blackhub/internal/types"
)

var (
	ErrQueueFull        = errors.New("notification queue full")
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

// Dispatcher hands a Notification off for delivery without waiting for it.
// Callers on the billing path log a Dispatch error and carry on.
type Dispatcher interface {
	Dispatch(ctx context.Context, n types.Notification) error
}

// BlockingDispatcher is a Dispatcher that can also wait for queue space.
// Scheduled sweeps use Enqueue so that a burst of targets is not dropped.
type BlockingDispatcher interface {
	Dispatcher
	Enqueue(ctx context.Context, n types.Notification) error
}

// Deliverer performs one delivery attempt. *Notifier implements it.
type Deliverer interface {
	NotifyOnce(ctx context.Context, n types.Notification) (Outcome, error)
}

// AsyncConfig sizes an AsyncDispatcher.
type AsyncConfig struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	BaseBackoff    time.Duration
	AttemptTimeout time.Duration
}

// AsyncDispatcher delivers notifications on a fixed pool of goroutines with
// bounded retry. The queue is bounded; a full queue rejects instead of
// blocking the request that produced the notification.
type AsyncDispatcher struct {
	deliverer Deliverer
	cfg       AsyncConfig
	logger    *slog.Logger
	sleep     func(context.Context, time.Duration)

	queue  chan types.Notification
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewAsyncDispatcher starts cfg.Workers goroutines.
func NewAsyncDispatcher(d Deliverer, cfg AsyncConfig, logger *slog.Logger) *AsyncDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &AsyncDispatcher{
		deliverer: d,
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepCtx,
		queue:     make(chan types.Notification, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	for range cfg.Workers {
		a.wg.Add(1)
		go a.worker()
	}
	return a
}

// Dispatch enqueues n. It never blocks.
func (a *AsyncDispatcher) Dispatch(ctx context.Context, n types.Notification) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrDispatcherClosed
	}
	select {
	case a.queue <- stamp(ctx, n):
		return nil
	default:
		return ErrQueueFull
	}
}

// Enqueue is Dispatch that waits for queue space until ctx is done.
func (a *AsyncDispatcher) Enqueue(ctx context.Context, n types.Notification) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrDispatcherClosed
	}
	select {
	case a.queue <- stamp(ctx, n):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func stamp(ctx context.Context, n types.Notification) types.Notification {
	if n.RequestID == "" {
		n.RequestID = types.GetRequestID(ctx)
	}
	if n.EnqueuedAt.IsZero() {
		n.EnqueuedAt = time.Now().UTC()
	}
	return n
}

// Shutdown stops accepting work and waits for queued notifications to drain.
// If ctx expires first, in-flight attempts are cancelled.
func (a *AsyncDispatcher) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.cancel()
		return nil
	case <-ctx.Done():
		a.cancel()
		<-done
		return ctx.Err()
	}
}

func (a *AsyncDispatcher) worker() {
	defer a.wg.Done()
	for n := range a.queue {
		a.deliver(n)
	}
}

func (a *AsyncDispatcher) deliver(n types.Notification) {
	logger := a.logger.With("user_id", n.UserID, "template", n.Template, "request_id", n.RequestID)

	var err error
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		if a.ctx.Err() != nil {
			err = a.ctx.Err()
			break
		}
		n.Attempt = attempt

		ctx, cancel := context.WithTimeout(a.ctx, a.cfg.AttemptTimeout)
		ctx = types.WithRequestID(ctx, n.RequestID)
		_, err = a.deliverer.NotifyOnce(ctx, n)
		cancel()
		if err == nil {
			return
		}

		logger.WarnContext(a.ctx, "notification attempt failed", "attempt", attempt, "error", err)
		if attempt < a.cfg.MaxAttempts {
			a.sleep(a.ctx, a.cfg.BaseBackoff<<(attempt-1))
		}
	}
	logger.ErrorContext(a.ctx, "notification dropped after retries", "attempts", n.Attempt, "error", err)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

var _ BlockingDispatcher = (*AsyncDispatcher)(nil)
