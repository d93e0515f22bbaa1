package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"blackhub/internal/core"
	"blackhub/internal/security"
	"blackhub/internal/types"
)

// PushTokenStore registers device tokens.
type PushTokenStore interface {
	Upsert(ctx context.Context, t types.PushToken) error
}

// PushRegisterRequest is the body of POST /v1/push/register. For web push the
// token is the JSON-encoded browser PushSubscription.
type PushRegisterRequest struct {
	Token    string             `json:"token" validate:"required,max=4096"`
	Platform types.PushPlatform `json:"platform" validate:"required,push_platform"`
}

// PushHandler registers push tokens and publishes the VAPID public key.
type PushHandler struct {
	tokens         PushTokenStore
	vapidPublicKey string
	validator      *core.Validator
}

func NewPushHandler(tokens PushTokenStore, vapidPublicKey string, v *core.Validator) *PushHandler {
	return &PushHandler{tokens: tokens, vapidPublicKey: vapidPublicKey, validator: v}
}

// RegisterRoutes mounts the public key route as is and the registration route
// behind requireUser.
func (h *PushHandler) RegisterRoutes(r chi.Router, requireUser func(http.Handler) http.Handler) {
	r.Get("/push/vapid-public-key", h.VAPIDPublicKey)
	r.With(requireUser).Post("/push/register", h.Register)
}

// Register handles POST /v1/push/register. Re-registering a token refreshes
// its platform.
func (h *PushHandler) Register(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	var req PushRegisterRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Platform == types.PushPlatformWeb {
		if err := security.ValidateWebPushSubscription(req.Token); err != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidInput, "token must be a valid web push subscription", err))
			return
		}
	}

	if err := h.tokens.Upsert(r.Context(), types.PushToken{
		UserID:   actor.ID,
		Token:    req.Token,
		Platform: req.Platform,
	}); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"registered": true})
}

// VAPIDPublicKey handles GET /v1/push/vapid-public-key. It is 404 when web
// push is not configured.
func (h *PushHandler) VAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	if h.vapidPublicKey == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundPushConfig, "Web push is not configured.", nil))
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]string{"public_key": h.vapidPublicKey})
}
