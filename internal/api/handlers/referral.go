package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"blackhub/internal/core"
	"blackhub/internal/referral"
	"blackhub/internal/types"
)

// ReferralService hands out links and dashboards. referral.Ledger
// implements it.
type ReferralService interface {
	LinkFor(ctx context.Context, userID string) (*referral.Link, error)
	Summary(ctx context.Context, userID string) (*referral.Summary, error)
}

// ReferralHandler serves the referral dashboard.
type ReferralHandler struct {
	ledger ReferralService
}

func NewReferralHandler(ledger ReferralService) *ReferralHandler {
	return &ReferralHandler{ledger: ledger}
}

func (h *ReferralHandler) RegisterRoutes(r chi.Router) {
	r.Get("/referrals/link", h.Link)
	r.Get("/referrals/summary", h.Summary)
}

// Link handles GET /v1/referrals/link, minting a code on first use.
func (h *ReferralHandler) Link(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())
	link, err := h.ledger.LinkFor(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, link)
}

// Summary handles GET /v1/referrals/summary.
func (h *ReferralHandler) Summary(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())
	sum, err := h.ledger.Summary(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if sum.Earnings == nil {
		sum.Earnings = []types.ReferralEarning{}
	}
	core.JSON(w, r, http.StatusOK, sum)
}
