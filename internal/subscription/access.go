// Package subscription decides whether a seller may write marketplace data.
//
// IsAccessGranted is the pure decision over a subscription row; Gate combines
// it with the account's suspension flag for request-time checks.
package subscription

import (
	"time"

	"blackhub/internal/types"
)

// TrialLength is the trial granted to every new seller.
const TrialLength = 7 * 24 * time.Hour

// IsAccessGranted reports whether a subscription currently grants seller
// write access. Rules are evaluated in order and the first match wins:
//
//   - trialing with a trial end at or after now: granted
//   - trialing with no trial end: granted
//   - active with no period end, or a period end at or after now: granted
//   - everything else, including past_due and canceled: denied
//
// Only the timestamp that matches the status is consulted.
//
// A trialing row without trial_ends_at grants access indefinitely. This
// mirrors existing data and is a known risk; do not rely on it for new rows.
func IsAccessGranted(status types.SubscriptionStatus, trialEndsAt, periodEndsAt *time.Time, now time.Time) bool {
	switch status {
	case types.SubscriptionTrialing:
		return trialEndsAt == nil || !now.After(*trialEndsAt)
	case types.SubscriptionActive:
		return periodEndsAt == nil || !now.After(*periodEndsAt)
	default:
		return false
	}
}

// GrantsAccess applies IsAccessGranted to a subscription row. A missing row
// never grants access.
func GrantsAccess(sub *types.Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}
	return IsAccessGranted(sub.Status, sub.TrialEndsAt, sub.CurrentPeriodEndsAt, now)
}

// NewTrial builds the subscription row created at seller onboarding.
func NewTrial(userID string, now time.Time) types.Subscription {
	trialEnd := now.Add(TrialLength)
	return types.Subscription{
		UserID:          userID,
		Plan:            types.PlanStarter,
		Status:          types.SubscriptionTrialing,
		TrialEndsAt:     &trialEnd,
		PaymentProvider: types.PaymentProviderPaystack,
	}
}
