package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"blackhub/internal/auth"
	"blackhub/internal/core"
	"blackhub/internal/db"
	"blackhub/internal/subscription"
	"blackhub/internal/types"
)

// AccountStore is the account persistence used by onboarding and profile.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*types.Account, error)
	Upsert(ctx context.Context, a *types.Account) (*types.Account, bool, error)
	SetReferredBy(ctx context.Context, id, referrerID string) (bool, error)
	UpdateProfile(ctx context.Context, id string, u db.ProfileUpdate) (*types.Account, error)
}

// TrialStore creates the onboarding trial and reads the subscription back.
type TrialStore interface {
	GetByUserID(ctx context.Context, userID string) (*types.Subscription, error)
	CreateTrial(ctx context.Context, sub types.Subscription) (bool, error)
}

// ReferralResolver is the onboarding side of referral.Ledger.
type ReferralResolver interface {
	ResolveCode(ctx context.Context, code, referredID string) (string, bool, error)
	CreditSignup(ctx context.Context, referrerID, referredID string) (bool, error)
}

// Dispatcher queues notifications. notifications.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, n types.Notification) error
}

// OnboardingRequest is the body of POST /v1/onboarding.
type OnboardingRequest struct {
	Role         types.Role    `json:"role,omitempty" validate:"omitempty,role"`
	Country      types.Country `json:"country,omitempty" validate:"omitempty,country"`
	ReferralCode string        `json:"referral_code,omitempty" validate:"omitempty,max=32"`
}

// OnboardingResponse returns the account and, for sellers, the trial.
type OnboardingResponse struct {
	Account      *types.Account      `json:"account"`
	Subscription *types.Subscription `json:"subscription,omitempty"`
}

// ProfileRequest is the body of PATCH /v1/profile. Omitted fields are kept.
type ProfileRequest struct {
	DisplayName  *string `json:"display_name,omitempty" validate:"omitempty,max=80"`
	BusinessName *string `json:"business_name,omitempty" validate:"omitempty,max=120"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// MeResponse is returned by GET /v1/auth/me.
type MeResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	IsCEO bool   `json:"is_ceo"`
}

// AccountHandler serves onboarding, profile and identity endpoints. None of
// them pass the seller gate: a suspended or lapsed seller can still see and
// edit their profile.
type AccountHandler struct {
	accounts   AccountStore
	trials     TrialStore
	referrals  ReferralResolver
	notifier   Dispatcher
	validator  *core.Validator
	adminEmail string
	logger     *slog.Logger
	now        func() time.Time
}

func NewAccountHandler(
	accounts AccountStore,
	trials TrialStore,
	referrals ReferralResolver,
	notifier Dispatcher,
	adminEmail string,
	v *core.Validator,
	l *slog.Logger,
) *AccountHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AccountHandler{
		accounts:   accounts,
		trials:     trials,
		referrals:  referrals,
		notifier:   notifier,
		validator:  v,
		adminEmail: adminEmail,
		logger:     l,
		now:        time.Now,
	}
}

// RegisterRoutes mounts the endpoints on a router that already requires a
// user.
func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Post("/onboarding", h.Onboard)
	r.Get("/profile", h.GetProfile)
	r.Patch("/profile", h.UpdateProfile)
	r.Get("/auth/me", h.Me)
}

// Onboard handles POST /v1/onboarding:
//
//  1. Upsert the account (role defaults to buyer, country to NG). The role is
//     fixed at first onboarding; asking for a different one is a conflict.
//  2. Sellers get a seven-day trial unless they already have a subscription.
//  3. A referral code is honoured only on the call that creates the account;
//     a referred seller earns the referrer the signup commission once.
//  4. The welcome notification is queued; the notifier sends it once.
//
// Steps 3 and 4 are best effort and never fail the request.
func (h *AccountHandler) Onboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := types.GetActor(ctx)

	var req OnboardingRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if actor.Email == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "Token has no email address.", nil))
		return
	}
	if req.Role == "" {
		req.Role = types.RoleBuyer
	}
	if req.Country == "" {
		req.Country = types.CountryNG
	}

	acct, created, err := h.accounts.Upsert(ctx, &types.Account{
		ID:      actor.ID,
		Email:   actor.Email,
		Role:    req.Role,
		Country: req.Country,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if acct.Role != req.Role {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeConflictRole,
			"Account is already onboarded with a different role.", nil,
			map[string]any{"role": acct.Role}))
		return
	}

	resp := OnboardingResponse{Account: acct}
	if acct.IsSeller() {
		started, err := h.trials.CreateTrial(ctx, subscription.NewTrial(acct.ID, h.now().UTC()))
		if err != nil {
			core.Error(w, r, err)
			return
		}
		if started {
			h.logger.InfoContext(ctx, "seller trial started", "user_id", acct.ID)
		}
		if resp.Subscription, err = h.trials.GetByUserID(ctx, acct.ID); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	switch {
	case req.ReferralCode == "":
	case !created:
		h.logger.InfoContext(ctx, "referral code ignored for existing account", "user_id", acct.ID)
	case acct.ReferredBy == nil:
		if referrerID, ok := h.applyReferral(ctx, acct, req.ReferralCode); ok {
			acct.ReferredBy = &referrerID
		}
	}

	if h.notifier != nil {
		if err := h.notifier.Dispatch(ctx, types.Notification{
			UserID:    acct.ID,
			Template:  types.TemplateWelcome,
			RequestID: types.GetRequestID(ctx),
		}); err != nil {
			h.logger.ErrorContext(ctx, "failed to queue welcome notification", "user_id", acct.ID, "error", err)
		}
	}

	core.JSON(w, r, http.StatusOK, resp)
}

// applyReferral records the referrer and credits the signup commission for
// sellers. It reports whether a referrer was recorded.
func (h *AccountHandler) applyReferral(ctx context.Context, acct *types.Account, code string) (string, bool) {
	logger := h.logger.With("user_id", acct.ID, "referral_code", code)

	referrerID, ok, err := h.referrals.ResolveCode(ctx, code, acct.ID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to resolve referral code", "error", err)
		return "", false
	}
	if !ok {
		logger.InfoContext(ctx, "referral code ignored")
		return "", false
	}

	set, err := h.accounts.SetReferredBy(ctx, acct.ID, referrerID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to record referrer", "error", err)
		return "", false
	}
	if !set {
		return "", false
	}

	if acct.IsSeller() {
		if _, err := h.referrals.CreditSignup(ctx, referrerID, acct.ID); err != nil {
			logger.ErrorContext(ctx, "failed to credit signup commission", "referrer_id", referrerID, "error", err)
		}
	}
	return referrerID, true
}

// GetProfile handles GET /v1/profile.
func (h *AccountHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())
	acct, err := h.accounts.GetByID(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, acct)
}

// UpdateProfile handles PATCH /v1/profile.
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	var req ProfileRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	acct, err := h.accounts.UpdateProfile(r.Context(), actor.ID, db.ProfileUpdate{
		DisplayName:  req.DisplayName,
		BusinessName: req.BusinessName,
		Phone:        req.Phone,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, acct)
}

// Me handles GET /v1/auth/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())
	core.JSON(w, r, http.StatusOK, MeResponse{
		ID:    actor.ID,
		Email: actor.Email,
		IsCEO: auth.IsAdmin(actor, h.adminEmail),
	})
}
