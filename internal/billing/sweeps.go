package billing

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"blackhub/internal/notifications"
	"blackhub/internal/types"
)

// ExpireSubscriptions moves lapsed active subscriptions to past_due.
// Running it again for the same now changes nothing.
func (r *Reconciler) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.subscriptions.ExpireOverdue(ctx, now.UTC())
	if err != nil {
		return 0, err
	}
	r.logger.InfoContext(ctx, "expiry sweep complete", "expired", n, "now", now.UTC())
	return n, nil
}

// ReminderCounts reports how many reminders were queued per template.
type ReminderCounts struct {
	Day5 int `json:"trial_reminder_day5"`
	Day6 int `json:"trial_reminder_day6"`
}

// reminderWindow pairs a template with the UTC day on which the trial must
// end for it to be sent.
type reminderWindow struct {
	template types.TemplateType
	daysLeft int
	start    time.Time
	end      time.Time
	targets  []types.TrialReminderTarget
}

// SendTrialReminders queues a reminder for every trial ending on the UTC day
// two days from now (day 5 of 7) and one day from now (day 6 of 7). It only
// reads subscriptions. Enqueueing waits for queue space; any reminder that
// still could not be queued fails the sweep so the scheduler runs it again.
// Per-user deduplication happens at delivery, so a repeated sweep queues
// work that the notifier drops.
func (r *Reconciler) SendTrialReminders(ctx context.Context, now time.Time) (ReminderCounts, error) {
	today := now.UTC().Truncate(24 * time.Hour)
	windows := []*reminderWindow{
		{template: types.TemplateTrialReminderDay5, daysLeft: 2},
		{template: types.TemplateTrialReminderDay6, daysLeft: 1},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range windows {
		w.start = today.AddDate(0, 0, w.daysLeft)
		w.end = w.start.AddDate(0, 0, 1)
		g.Go(func() error {
			targets, err := r.subscriptions.ListTrialsEndingBetween(gctx, w.start, w.end)
			w.targets = targets
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return ReminderCounts{}, err
	}

	var (
		counts  ReminderCounts
		missed  int
		lastErr error
	)
	for _, w := range windows {
		for _, t := range w.targets {
			err := r.enqueue(ctx, types.Notification{
				UserID:   t.UserID,
				Template: w.template,
				DaysLeft: w.daysLeft,
			})
			if err != nil {
				r.logger.ErrorContext(ctx, "failed to queue trial reminder",
					"user_id", t.UserID,
					"template", w.template,
					"error", err,
				)
				missed++
				lastErr = err
				continue
			}
			switch w.template {
			case types.TemplateTrialReminderDay5:
				counts.Day5++
			case types.TemplateTrialReminderDay6:
				counts.Day6++
			}
		}
	}

	r.logger.InfoContext(ctx, "trial reminder sweep complete",
		"trial_reminder_day5", counts.Day5,
		"trial_reminder_day6", counts.Day6,
		"missed", missed,
	)
	if missed > 0 {
		return counts, types.NewAppErrorWithDetails(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("%d trial reminders were not queued", missed), lastErr,
			map[string]any{"missed": missed})
	}
	return counts, nil
}

// enqueue waits for queue space when the dispatcher supports it.
func (r *Reconciler) enqueue(ctx context.Context, n types.Notification) error {
	if r.notifier == nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "notifications are not configured", nil)
	}
	if b, ok := r.notifier.(notifications.BlockingDispatcher); ok {
		return b.Enqueue(ctx, n)
	}
	return r.notifier.Dispatch(ctx, n)
}

// Notify queues a single lifecycle notification on behalf of the scheduler.
// It is how renewal reminders and manual resends reach the notifier.
func (r *Reconciler) Notify(ctx context.Context, n types.Notification) error {
	if n.UserID == "" || n.Template == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "user_id and template are required", nil)
	}
	switch n.Template {
	case types.TemplateWelcome, types.TemplateTrialReminderDay5, types.TemplateTrialReminderDay6,
		types.TemplateSubscriptionConfirmation, types.TemplateSubscriptionRenewalReminder:
	default:
		return types.NewAppError(types.ErrCodeValidationInvalidInput, "unknown template "+string(n.Template), nil)
	}
	if r.notifier == nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "notifications are not configured", nil)
	}
	return r.notifier.Dispatch(ctx, n)
}
