package subscription

import (
	"context"
	"log/slog"
	"time"

	"blackhub/internal/types"
)

const (
	msgSuspended            = "Account suspended."
	msgSubscriptionRequired = "Subscription required. Start a trial or subscribe to list products."
)

// AccountReader loads accounts by ID.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*types.Account, error)
}

// SubscriptionReader loads the subscription row of a user. A missing row is
// reported as an AppError with ErrCodeNotFoundSubscription.
type SubscriptionReader interface {
	GetByUserID(ctx context.Context, userID string) (*types.Subscription, error)
}

// Gate guards seller write operations.
type Gate struct {
	accounts      AccountReader
	subscriptions SubscriptionReader
	logger        *slog.Logger
}

func NewGate(accounts AccountReader, subscriptions SubscriptionReader, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{accounts: accounts, subscriptions: subscriptions, logger: logger}
}

// Check decides whether userID may perform a seller write at now.
// Suspension is checked before the subscription and wins regardless of it.
// On success the subscription row is returned so callers can apply plan
// limits.
func (g *Gate) Check(ctx context.Context, userID string, now time.Time) (*types.Subscription, error) {
	account, err := g.accounts.GetByID(ctx, userID)
	if err != nil {
		if types.IsCode(err, types.ErrCodeNotFoundAccount) {
			return nil, types.NewAppError(types.ErrCodePermissionSubscription, msgSubscriptionRequired, nil)
		}
		return nil, err
	}
	if account.Suspended {
		g.logger.WarnContext(ctx, "seller write rejected: account suspended", "user_id", userID)
		return nil, types.NewAppError(types.ErrCodePermissionSuspended, msgSuspended, nil)
	}

	sub, err := g.subscriptions.GetByUserID(ctx, userID)
	if err != nil {
		if !types.IsCode(err, types.ErrCodeNotFoundSubscription) {
			return nil, err
		}
		sub = nil
	}

	if !GrantsAccess(sub, now) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodePermissionSubscription, msgSubscriptionRequired, nil,
			map[string]any{"reason": denialReason(sub)})
	}
	return sub, nil
}

// denialReason lets clients tell a lapsed trial from a missing or unpaid plan.
func denialReason(sub *types.Subscription) string {
	switch {
	case sub == nil:
		return "no_subscription"
	case sub.Status == types.SubscriptionTrialing:
		return "trial_expired"
	case sub.Status == types.SubscriptionActive:
		return "period_ended"
	default:
		return string(sub.Status)
	}
}
