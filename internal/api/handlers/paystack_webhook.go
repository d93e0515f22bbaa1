package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"blackhub/internal/billing"
	"blackhub/internal/core"
	"blackhub/internal/external"
	"blackhub/internal/types"
)

// maxWebhookBodySize bounds a Paystack webhook payload.
const maxWebhookBodySize = 64 * 1024

// ChargeHandler applies an authenticated charge.success event.
// billing.Reconciler implements it.
type ChargeHandler interface {
	HandleChargeSuccess(ctx context.Context, ev billing.ChargeEvent) error
}

type paystackEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// PaystackWebhookHandler receives Paystack events. It carries no bearer
// authentication; the x-paystack-signature header is verified against the
// secret key instead.
type PaystackWebhookHandler struct {
	verifier external.WebhookVerifier
	charges  ChargeHandler
	secret   types.SecretString
	logger   *slog.Logger
}

func NewPaystackWebhookHandler(
	verifier external.WebhookVerifier,
	charges ChargeHandler,
	secret types.SecretString,
	logger *slog.Logger,
) *PaystackWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaystackWebhookHandler{
		verifier: verifier,
		charges:  charges,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes mounts POST /webhooks/paystack behind publicLimit.
func (h *PaystackWebhookHandler) RegisterRoutes(r chi.Router, publicLimit func(http.Handler) http.Handler) {
	r.With(publicLimit).Post("/webhooks/paystack", h.Handle)
}

// Handle processes a webhook delivery:
//
//  1. Missing signature or unconfigured secret: 400, nothing read further.
//  2. Signature mismatch: 401.
//  3. A payload that can never be applied (bad JSON, non-subscription
//     metadata) is logged and acknowledged with 200 {"received":true}.
//  4. Any other processing failure answers 500 so Paystack redelivers.
//     Activation, referral credit and the confirmation are all idempotent
//     per reference.
func (h *PaystackWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("X-Paystack-Signature")
	if signature == "" || !h.secret.IsSet() {
		h.logger.WarnContext(r.Context(), "paystack webhook rejected: missing signature or secret",
			"has_signature", signature != "",
		)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "Missing signature.", nil))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON, "failed to read request body", err))
		return
	}

	if err := h.verifier.Verify(payload, signature, h.secret.Unmask()); err != nil {
		h.logger.WarnContext(r.Context(), "paystack webhook signature verification failed",
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSignature, "Invalid signature.", err))
		return
	}

	if err := h.route(r.Context(), payload); err != nil {
		if !isPermanent(err) {
			h.logger.ErrorContext(r.Context(), "paystack webhook processing failed, requesting redelivery", "error", err)
			core.Error(w, r, err)
			return
		}
		h.logger.WarnContext(r.Context(), "paystack webhook payload rejected", "error", err)
	}

	core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
}

// isPermanent reports whether redelivering the same payload would fail the
// same way.
func isPermanent(err error) bool {
	var ae *types.AppError
	return errors.As(err, &ae) && ae.HTTPStatus() == http.StatusBadRequest
}

func (h *PaystackWebhookHandler) route(ctx context.Context, payload []byte) error {
	var event paystackEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid webhook event JSON", err)
	}

	switch event.Event {
	case external.EventPaystackChargeSuccess:
		var ev billing.ChargeEvent
		if err := json.Unmarshal(event.Data, &ev.Transaction); err != nil {
			return types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid charge.success data", err)
		}
		h.logger.InfoContext(ctx, "processing paystack charge.success",
			"reference", ev.Reference,
			"amount", ev.Amount,
			"currency", ev.Currency,
		)
		if err := h.charges.HandleChargeSuccess(ctx, ev); err != nil {
			if types.IsCode(err, types.ErrCodeValidationInvalidMetadata) {
				h.logger.WarnContext(ctx, "charge.success ignored: not a subscription payment",
					"reference", ev.Reference,
					"error", err,
				)
				return nil
			}
			return err
		}
		return nil
	default:
		h.logger.DebugContext(ctx, "ignoring paystack event", "event", event.Event)
		return nil
	}
}
