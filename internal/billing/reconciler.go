// Package billing reconciles gateway payments with seller subscriptions.
//
// Three entry points mutate subscription state: checkout verification (the
// client redirect pull), the Paystack charge.success webhook, and the expiry
// sweep. Verification and webhook may arrive in either order and any number
// of times; both write the same absolute activation for a given reference.
// Referral commission is credited only on the webhook path and is keyed by
// the payment reference.
package billing

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"blackhub/internal/external"
	"blackhub/internal/notifications"
	"blackhub/internal/subscription"
	"blackhub/internal/types"
)

// ---------------------------------------------------------------------------
// Dependencies
// ---------------------------------------------------------------------------

// SubscriptionStore is the subset of db.SubscriptionRepo the reconciler writes.
type SubscriptionStore interface {
	Activate(ctx context.Context, a types.SubscriptionActivation) error
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	ListTrialsEndingBetween(ctx context.Context, start, end time.Time) ([]types.TrialReminderTarget, error)
}

// CheckoutStore records gateway transaction initiations.
type CheckoutStore interface {
	Create(ctx context.Context, s *types.CheckoutSession) error
	MarkCompleted(ctx context.Context, sessionID string) (bool, error)
}

// AccountLookup resolves the paying user for referral crediting.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*types.Account, error)
}

// ReferralCrediter is the payment side of referral.Ledger.
type ReferralCrediter interface {
	CreditPayment(ctx context.Context, referrerID, referredID string, amountCents int64, paymentRef string) (bool, error)
}

// PlanCoder maps a plan and currency to a monthly recurring gateway plan
// code. config.PaystackConfig implements it.
type PlanCoder interface {
	PlanCode(plan types.PlanTier, currency types.Currency) string
}

// Config wires a Reconciler. Referrals, Notifications and PlanCodes are
// optional.
type Config struct {
	Gateway       external.PaymentGateway
	Subscriptions SubscriptionStore
	Checkouts     CheckoutStore
	Accounts      AccountLookup
	Referrals     ReferralCrediter
	Notifications notifications.Dispatcher
	PlanCodes     PlanCoder
	// AppURL is the public web origin; the gateway redirects to
	// AppURL + "/checkout/verify" after payment.
	AppURL string
	Logger *slog.Logger
	Now    func() time.Time
}

// Reconciler implements checkout, verification, webhook activation and the
// scheduled sweeps.
type Reconciler struct {
	gateway       external.PaymentGateway
	subscriptions SubscriptionStore
	checkouts     CheckoutStore
	accounts      AccountLookup
	referrals     ReferralCrediter
	notifier      notifications.Dispatcher
	planCodes     PlanCoder
	callbackURL   string
	logger        *slog.Logger
	now           func() time.Time
}

func NewReconciler(cfg Config) *Reconciler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{
		gateway:       cfg.Gateway,
		subscriptions: cfg.Subscriptions,
		checkouts:     cfg.Checkouts,
		accounts:      cfg.Accounts,
		referrals:     cfg.Referrals,
		notifier:      cfg.Notifications,
		planCodes:     cfg.PlanCodes,
		callbackURL:   strings.TrimRight(cfg.AppURL, "/") + "/checkout/verify",
		logger:        cfg.Logger,
		now:           cfg.Now,
	}
}

// ---------------------------------------------------------------------------
// Checkout
// ---------------------------------------------------------------------------

// CheckoutInput is a seller's request to pay for a plan. Currency defaults
// to NGN and Interval to monthly when empty.
type CheckoutInput struct {
	UserID   string
	Email    string
	Plan     types.PlanTier
	Currency types.Currency
	Interval types.BillingInterval
}

// CheckoutResult carries the hosted checkout URL.
type CheckoutResult struct {
	AuthorizationURL string         `json:"authorization_url"`
	Reference        string         `json:"reference"`
	AmountCents      int64          `json:"amount_cents"`
	Currency         types.Currency `json:"currency"`
}

// StartCheckout prices the plan, opens a gateway transaction and records a
// pending session. Nothing is persisted when the gateway call fails.
func (r *Reconciler) StartCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.UserID == "" || in.Email == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "user id and email are required", nil)
	}
	if in.Currency == "" {
		in.Currency = types.CurrencyNGN
	}
	if in.Interval == "" {
		in.Interval = types.IntervalMonthly
	}

	amount, err := subscription.ChargeAmount(in.Plan, in.Currency, in.Interval)
	if err != nil {
		return nil, err
	}

	// Paystack bills the plan's own price when a plan code is present, so
	// yearly checkouts go out as one-off charges of the discounted amount.
	var planCode string
	if r.planCodes != nil && in.Interval == types.IntervalMonthly {
		planCode = r.planCodes.PlanCode(in.Plan, in.Currency)
	}

	init, err := r.gateway.InitializeTransaction(ctx, external.InitializeInput{
		Email:       in.Email,
		Amount:      amount,
		Currency:    in.Currency,
		CallbackURL: r.callbackURL,
		PlanCode:    planCode,
		Metadata: PaymentMetadata{
			Type:     MetadataTypeSubscription,
			UserID:   in.UserID,
			Plan:     in.Plan,
			Currency: in.Currency,
			Interval: in.Interval,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := r.checkouts.Create(ctx, &types.CheckoutSession{
		UserID:    in.UserID,
		SessionID: init.Reference,
		Plan:      in.Plan,
		Interval:  in.Interval,
		Status:    types.CheckoutPending,
	}); err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "checkout started",
		"user_id", in.UserID,
		"plan", in.Plan,
		"interval", in.Interval,
		"currency", in.Currency,
		"amount", amount,
		"reference", init.Reference,
	)

	return &CheckoutResult{
		AuthorizationURL: init.AuthorizationURL,
		Reference:        init.Reference,
		AmountCents:      amount,
		Currency:         in.Currency,
	}, nil
}

// ---------------------------------------------------------------------------
// Verification (client redirect)
// ---------------------------------------------------------------------------

// VerifyResult reports the gateway's view of a transaction. Amount is in
// minor units.
type VerifyResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Amount    int64          `json:"amount"`
	Currency  string         `json:"currency,omitempty"`
	Reference string         `json:"reference"`
	Customer  string         `json:"customer,omitempty"`
	Plan      types.PlanTier `json:"plan,omitempty"`
	Activated bool           `json:"activated"`
}

// VerifyPayment pulls the transaction from the gateway. A successful
// subscription payment completes the checkout session and activates the
// subscription. Referral commission is left to the webhook.
func (r *Reconciler) VerifyPayment(ctx context.Context, reference string) (*VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "reference is required", nil)
	}

	tx, err := r.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{
		Status:    tx.Status,
		Message:   tx.GatewayResponse,
		Amount:    tx.Amount,
		Currency:  tx.Currency,
		Reference: tx.Reference,
		Customer:  tx.Customer.Email,
	}
	if res.Reference == "" {
		res.Reference = reference
	}
	if !tx.Succeeded() {
		r.logger.InfoContext(ctx, "payment not successful", "reference", reference, "status", tx.Status)
		return res, nil
	}

	if _, err := r.checkouts.MarkCompleted(ctx, res.Reference); err != nil {
		return nil, err
	}

	meta, err := ParsePaymentMetadata(tx.Metadata)
	if err != nil {
		r.logger.WarnContext(ctx, "verified payment carries no subscription metadata",
			"reference", res.Reference,
			"error", err,
		)
		return res, nil
	}

	if _, err := r.activate(ctx, meta, tx); err != nil {
		return nil, err
	}
	res.Plan = meta.Plan
	res.Activated = true
	return res, nil
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

// ChargeEvent is the data object of an authenticated charge.success event.
type ChargeEvent struct {
	external.Transaction
}

// HandleChargeSuccess applies a webhook-delivered payment. After activation
// it queues the confirmation notification and credits the referrer. Neither
// side effect can fail the activation. Invalid metadata is returned as a
// validation error so the caller can log and acknowledge it.
func (r *Reconciler) HandleChargeSuccess(ctx context.Context, ev ChargeEvent) error {
	if ev.Reference == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "charge event has no reference", nil)
	}
	meta, err := ParsePaymentMetadata(ev.Metadata)
	if err != nil {
		return err
	}

	if _, err := r.checkouts.MarkCompleted(ctx, ev.Reference); err != nil {
		// The activation below is what grants access; a stale session row
		// only affects reporting.
		r.logger.WarnContext(ctx, "failed to complete checkout session from webhook",
			"reference", ev.Reference,
			"error", err,
		)
	}

	act, err := r.activate(ctx, meta, &ev.Transaction)
	if err != nil {
		return err
	}

	r.dispatch(ctx, types.Notification{
		UserID:   meta.UserID,
		Template: types.TemplateSubscriptionConfirmation,
		Plan:     meta.Plan,
	})
	r.creditReferrer(ctx, act)
	return nil
}

func (r *Reconciler) creditReferrer(ctx context.Context, act types.SubscriptionActivation) {
	if r.referrals == nil || r.accounts == nil || act.AmountCents <= 0 {
		return
	}
	acct, err := r.accounts.GetByID(ctx, act.UserID)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to load payer for referral credit",
			"user_id", act.UserID,
			"error", err,
		)
		return
	}
	if acct.ReferredBy == nil || *acct.ReferredBy == "" {
		return
	}
	if _, err := r.referrals.CreditPayment(ctx, *acct.ReferredBy, act.UserID, act.AmountCents, act.PaymentReference); err != nil {
		r.logger.ErrorContext(ctx, "failed to credit referral commission",
			"referrer_id", *acct.ReferredBy,
			"referred_id", act.UserID,
			"reference", act.PaymentReference,
			"error", err,
		)
	}
}

// activate derives the absolute subscription values for a settled payment.
// The period is anchored on the gateway's paid_at so that verification and
// webhook produce the same row.
func (r *Reconciler) activate(ctx context.Context, meta PaymentMetadata, tx *external.Transaction) (types.SubscriptionActivation, error) {
	anchor := r.now().UTC()
	if tx.PaidAt != nil && !tx.PaidAt.IsZero() {
		anchor = tx.PaidAt.UTC()
	}

	currency := types.Currency(strings.ToUpper(tx.Currency))
	if currency == "" {
		currency = meta.Currency
	}
	if currency == "" {
		currency = types.CurrencyNGN
	}

	act := types.SubscriptionActivation{
		UserID:           meta.UserID,
		Plan:             meta.Plan,
		PeriodEndsAt:     subscription.PeriodEnd(anchor, meta.Interval),
		AmountCents:      tx.Amount,
		Currency:         currency,
		PaymentReference: tx.Reference,
	}
	if err := r.subscriptions.Activate(ctx, act); err != nil {
		return act, err
	}

	r.logger.InfoContext(ctx, "subscription activated",
		"user_id", act.UserID,
		"plan", act.Plan,
		"period_ends_at", act.PeriodEndsAt,
		"reference", act.PaymentReference,
	)
	return act, nil
}

func (r *Reconciler) dispatch(ctx context.Context, n types.Notification) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Dispatch(ctx, n); err != nil {
		r.logger.ErrorContext(ctx, "failed to dispatch notification",
			"user_id", n.UserID,
			"template", n.Template,
			"error", err,
		)
	}
}
