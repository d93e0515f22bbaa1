package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"blackhub/internal/core"
	"blackhub/internal/subscription"
	"blackhub/internal/types"
)

// ListingStore persists listings. Every call is scoped to the seller.
type ListingStore interface {
	ListBySeller(ctx context.Context, sellerID string) ([]types.Listing, error)
	CountBySeller(ctx context.Context, sellerID string) (int, error)
	Create(ctx context.Context, l *types.Listing) (*types.Listing, error)
	Update(ctx context.Context, sellerID, id string, p types.ListingPatch) (*types.Listing, error)
	Delete(ctx context.Context, sellerID, id string) error
}

// CreateListingRequest is the body of POST /v1/listings.
type CreateListingRequest struct {
	Name        string         `json:"name" validate:"required,max=200"`
	Description string         `json:"description,omitempty" validate:"max=5000"`
	PriceCents  *int64         `json:"price_cents" validate:"required,gte=0"`
	Currency    types.Currency `json:"currency,omitempty" validate:"omitempty,currency"`
	Category    string         `json:"category,omitempty" validate:"max=100"`
	ImageURL    string         `json:"image_url,omitempty" validate:"omitempty,url,max=2048"`
}

// UpdateListingRequest is the body of PATCH /v1/listings/{id}.
type UpdateListingRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	PriceCents  *int64  `json:"price_cents,omitempty" validate:"omitempty,gte=0"`
	Category    *string `json:"category,omitempty" validate:"omitempty,max=100"`
	ImageURL    *string `json:"image_url,omitempty" validate:"omitempty,url,max=2048"`
}

// ListingHandler serves a seller's own listings.
type ListingHandler struct {
	listings  ListingStore
	accounts  AccountReader
	validator *core.Validator
	logger    *slog.Logger
}

func NewListingHandler(listings ListingStore, accounts AccountReader, v *core.Validator, l *slog.Logger) *ListingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ListingHandler{listings: listings, accounts: accounts, validator: v, logger: l}
}

// RegisterRoutes mounts reads behind requireUser and every mutation behind
// requireSeller, the access gate.
func (h *ListingHandler) RegisterRoutes(r chi.Router, requireUser, requireSeller func(http.Handler) http.Handler) {
	r.With(requireUser).Get("/listings/mine", h.ListMine)

	r.Group(func(r chi.Router) {
		r.Use(requireSeller)
		r.Post("/listings", h.Create)
		r.Patch("/listings/{id}", h.Update)
		r.Delete("/listings/{id}", h.Delete)
	})
}

// ListMine handles GET /v1/listings/mine.
func (h *ListingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())
	listings, err := h.listings.ListBySeller(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if listings == nil {
		listings = []types.Listing{}
	}
	core.JSON(w, r, http.StatusOK, map[string]any{"listings": listings})
}

// Create handles POST /v1/listings. The plan's listing cap is checked against
// the subscription the gate admitted the request with.
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := types.GetActor(ctx)

	var req CreateListingRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	tier := types.PlanStarter
	if sub, ok := core.SubscriptionFromContext(ctx); ok {
		tier = sub.Plan
	}
	count, err := h.listings.CountBySeller(ctx, actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !subscription.WithinListingLimit(tier, count) {
		plan, _ := subscription.LookupPlan(tier)
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodePermissionListingLimit,
			"Listing limit reached for your plan. Upgrade to add more products.", nil,
			map[string]any{"plan": tier, "max_listings": plan.MaxListings}))
		return
	}

	if req.Currency == "" {
		acct, err := h.accounts.GetByID(ctx, actor.ID)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		req.Currency = subscription.DefaultCurrency(acct.Country)
	}

	listing, err := h.listings.Create(ctx, &types.Listing{
		SellerID:    actor.ID,
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  *req.PriceCents,
		Currency:    req.Currency,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(ctx, "listing created", "seller_id", actor.ID, "listing_id", listing.ID)
	core.JSON(w, r, http.StatusCreated, listing)
}

// Update handles PATCH /v1/listings/{id}.
func (h *ListingHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	var req UpdateListingRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	listing, err := h.listings.Update(r.Context(), actor.ID, chi.URLParam(r, "id"), types.ListingPatch{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, listing)
}

// Delete handles DELETE /v1/listings/{id}.
func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())
	if err := h.listings.Delete(r.Context(), actor.ID, chi.URLParam(r, "id")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
