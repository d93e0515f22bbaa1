package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"blackhub/internal/types"
)

// SubscriptionRepo manages the single subscription row of each seller.
//
// Every write sets absolute values, so duplicate billing events converge on
// the same row. The only time-based transition, active -> past_due, filters
// on the current status and is therefore safe to re-run.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

const subscriptionColumns = `user_id, plan, status, trial_ends_at, current_period_ends_at,
	amount_cents, currency, payment_provider, payment_reference, created_at, updated_at`

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var s types.Subscription
	err := row.Scan(
		&s.UserID,
		&s.Plan,
		&s.Status,
		&s.TrialEndsAt,
		&s.CurrentPeriodEndsAt,
		&s.AmountCents,
		&s.Currency,
		&s.PaymentProvider,
		&s.PaymentReference,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByUserID returns ErrCodeNotFoundSubscription when the user has no row.
func (r *SubscriptionRepo) GetByUserID(ctx context.Context, userID string) (*types.Subscription, error) {
	s, err := scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription", err)
	}
	return s, nil
}

// CreateTrial inserts a trial row unless the user already has a
// subscription. It reports whether a row was created.
func (r *SubscriptionRepo) CreateTrial(ctx context.Context, sub types.Subscription) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (user_id, plan, status, trial_ends_at, payment_provider)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO NOTHING`,
		sub.UserID, sub.Plan, sub.Status, sub.TrialEndsAt, sub.PaymentProvider,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to create trial subscription", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Activate writes an active subscription for a paid period, creating the
// row if the user never had one.
func (r *SubscriptionRepo) Activate(ctx context.Context, a types.SubscriptionActivation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (user_id, plan, status, current_period_ends_at,
		     amount_cents, currency, payment_provider, payment_reference)
		 VALUES ($1, $2, 'active', $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO UPDATE
		 SET plan = EXCLUDED.plan,
		     status = 'active',
		     current_period_ends_at = EXCLUDED.current_period_ends_at,
		     amount_cents = EXCLUDED.amount_cents,
		     currency = EXCLUDED.currency,
		     payment_provider = EXCLUDED.payment_provider,
		     payment_reference = EXCLUDED.payment_reference,
		     updated_at = NOW()`,
		a.UserID, a.Plan, a.PeriodEndsAt, a.AmountCents, a.Currency, types.PaymentProviderPaystack, a.PaymentReference,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to activate subscription", err)
	}
	return nil
}

// ExpireOverdue moves every active subscription whose period ended before
// now to past_due and returns how many rows changed.
func (r *SubscriptionRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = 'past_due', updated_at = NOW()
		 WHERE status = 'active' AND current_period_ends_at < $1`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to expire subscriptions", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		r.logger.InfoContext(ctx, "subscriptions moved to past_due", slog.Int64("count", n), slog.Time("cutoff", now))
	}
	return tag.RowsAffected(), nil
}

// ListTrialsEndingBetween returns trialing sellers whose trial ends in
// [start, end).
func (r *SubscriptionRepo) ListTrialsEndingBetween(ctx context.Context, start, end time.Time) ([]types.TrialReminderTarget, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.user_id, a.email, s.trial_ends_at
		 FROM subscriptions s
		 JOIN accounts a ON a.id = s.user_id
		 WHERE s.status = 'trialing'
		   AND s.trial_ends_at >= $1
		   AND s.trial_ends_at < $2
		 ORDER BY s.trial_ends_at`,
		start, end,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list ending trials", err)
	}
	defer rows.Close()

	var out []types.TrialReminderTarget
	for rows.Next() {
		var t types.TrialReminderTarget
		if err := rows.Scan(&t.UserID, &t.Email, &t.TrialEndsAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan trial row", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate trial rows", err)
	}
	return out, nil
}
