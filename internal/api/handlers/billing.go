// Package handlers contains the HTTP handlers for the BlackHub API.
//
// Handlers depend on small interfaces declared next to them and receive their
// implementations through constructors. Authentication, the seller access gate
// and the scheduler secret are applied as middleware by the caller.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"blackhub/internal/billing"
	"blackhub/internal/core"
	"blackhub/internal/subscription"
	"blackhub/internal/types"
)

// --- Service Interfaces ---

// CheckoutService opens and verifies gateway payments. billing.Reconciler
// implements it.
type CheckoutService interface {
	StartCheckout(ctx context.Context, in billing.CheckoutInput) (*billing.CheckoutResult, error)
	VerifyPayment(ctx context.Context, reference string) (*billing.VerifyResult, error)
}

// SubscriptionReader loads a user's subscription row.
type SubscriptionReader interface {
	GetByUserID(ctx context.Context, userID string) (*types.Subscription, error)
}

// AccountReader loads an account by ID.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*types.Account, error)
}

// --- Request/Response Models ---

// CheckoutRequest is the body of POST /v1/checkout. Currency defaults to the
// seller's country currency and billing to monthly.
type CheckoutRequest struct {
	Plan     types.PlanTier        `json:"plan" validate:"required,plan"`
	Currency types.Currency        `json:"currency,omitempty" validate:"omitempty,currency"`
	Interval types.BillingInterval `json:"billing,omitempty" validate:"omitempty,interval"`
}

// VerifyRequest is the body of POST /v1/checkout/verify.
type VerifyRequest struct {
	Reference string `json:"reference"`
}

// SubscriptionResponse is returned by GET /v1/subscription.
type SubscriptionResponse struct {
	Subscription *types.Subscription `json:"subscription"`
	HasAccess    bool                `json:"has_access"`
	PlanName     string              `json:"plan_name,omitempty"`
	MaxListings  *int                `json:"max_listings"`
}

// --- Billing Handler ---

// BillingHandler serves checkout, payment verification and subscription
// status.
type BillingHandler struct {
	checkout      CheckoutService
	subscriptions SubscriptionReader
	accounts      AccountReader
	validator     *core.Validator
	logger        *slog.Logger
	now           func() time.Time
}

func NewBillingHandler(
	svc CheckoutService,
	subs SubscriptionReader,
	accounts AccountReader,
	v *core.Validator,
	l *slog.Logger,
) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingHandler{
		checkout:      svc,
		subscriptions: subs,
		accounts:      accounts,
		validator:     v,
		logger:        l,
		now:           time.Now,
	}
}

// RegisterRoutes mounts the billing endpoints. Verification is reached by the
// gateway redirect without a token, so it is throttled per IP by publicLimit
// instead of requireUser.
func (h *BillingHandler) RegisterRoutes(r chi.Router, requireUser, publicLimit func(http.Handler) http.Handler) {
	r.With(requireUser).Post("/checkout", h.StartCheckout)
	r.With(requireUser).Get("/subscription", h.GetSubscription)

	r.With(publicLimit).Get("/checkout/verify", h.Verify)
	r.With(publicLimit).Post("/checkout/verify", h.Verify)
}

// StartCheckout handles POST /v1/checkout.
func (h *BillingHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	var req CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	acct, err := h.accounts.GetByID(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !acct.IsSeller() {
		core.Error(w, r, types.NewAppError(types.ErrCodePermissionRole, "Only sellers can subscribe to a plan.", nil))
		return
	}
	email := actor.Email
	if email == "" {
		email = acct.Email
	}
	if req.Currency == "" {
		req.Currency = subscription.DefaultCurrency(acct.Country)
	}

	res, err := h.checkout.StartCheckout(r.Context(), billing.CheckoutInput{
		UserID:   actor.ID,
		Email:    email,
		Plan:     req.Plan,
		Currency: req.Currency,
		Interval: req.Interval,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to start checkout",
			"user_id", actor.ID,
			"plan", req.Plan,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, res)
}

// Verify handles GET /v1/checkout/verify?reference= and its POST form. The
// response always reflects the gateway; a failed payment is a 200 with
// activated=false.
func (h *BillingHandler) Verify(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" && r.Method == http.MethodPost {
		var req VerifyRequest
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
		reference = req.Reference
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "Payment reference is required.", nil))
		return
	}

	res, err := h.checkout.VerifyPayment(r.Context(), reference)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "payment verification failed",
			"reference", reference,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, res)
}

// GetSubscription handles GET /v1/subscription. A user without a row gets
// subscription=null and has_access=false.
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	sub, err := h.subscriptions.GetByUserID(r.Context(), actor.ID)
	if err != nil {
		if !types.IsCode(err, types.ErrCodeNotFoundSubscription) {
			core.Error(w, r, err)
			return
		}
		sub = nil
	}

	resp := SubscriptionResponse{
		Subscription: sub,
		HasAccess:    subscription.GrantsAccess(sub, h.now()),
	}
	if sub != nil {
		if plan, ok := subscription.LookupPlan(sub.Plan); ok {
			resp.PlanName = plan.Name
			if plan.MaxListings > 0 {
				limit := plan.MaxListings
				resp.MaxListings = &limit
			}
		}
	}
	core.JSON(w, r, http.StatusOK, resp)
}
