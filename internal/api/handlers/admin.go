package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"blackhub/internal/core"
	"blackhub/internal/types"
)

// AccountFlagger toggles the administrative account flags.
type AccountFlagger interface {
	SetSuspended(ctx context.Context, id string, suspended bool) error
	SetVerifiedSeller(ctx context.Context, id string, verified bool) error
}

type suspendRequest struct {
	Suspended *bool `json:"suspended" validate:"required"`
}

type verifyRequest struct {
	Verified *bool `json:"verified" validate:"required"`
}

// AdminHandler lets the administrator suspend and verify sellers. Mount it
// behind core.Server.RequireAdmin.
type AdminHandler struct {
	accounts  AccountFlagger
	validator *core.Validator
	logger    *slog.Logger
}

func NewAdminHandler(accounts AccountFlagger, v *core.Validator, l *slog.Logger) *AdminHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AdminHandler{accounts: accounts, validator: v, logger: l}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/users/{id}/suspend", h.Suspend)
	r.Post("/users/{id}/verify", h.Verify)
}

// Suspend handles POST /v1/admin/users/{id}/suspend. A suspended seller fails
// the access gate regardless of subscription.
func (h *AdminHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	var req suspendRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.accounts.SetSuspended(r.Context(), id, *req.Suspended); err != nil {
		core.Error(w, r, err)
		return
	}
	h.audit(r, "account suspension changed", id, "suspended", *req.Suspended)
	core.JSON(w, r, http.StatusOK, map[string]any{"id": id, "suspended": *req.Suspended})
}

// Verify handles POST /v1/admin/users/{id}/verify.
func (h *AdminHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.accounts.SetVerifiedSeller(r.Context(), id, *req.Verified); err != nil {
		core.Error(w, r, err)
		return
	}
	h.audit(r, "seller verification changed", id, "verified", *req.Verified)
	core.JSON(w, r, http.StatusOK, map[string]any{"id": id, "verified": *req.Verified})
}

func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := core.DecodeJSON(w, r, dst); err != nil {
		core.Error(w, r, err)
		return false
	}
	if err := h.validator.ValidateStruct(dst); err != nil {
		core.Error(w, r, err)
		return false
	}
	return true
}

func (h *AdminHandler) audit(r *http.Request, msg, targetID, flag string, value bool) {
	actor, _ := types.GetActor(r.Context())
	h.logger.InfoContext(r.Context(), msg,
		"admin_id", actor.ID,
		"target_id", targetID,
		flag, value,
	)
}
