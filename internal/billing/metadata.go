package billing

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"blackhub/internal/types"
)

// MetadataTypeSubscription marks a transaction as a seller plan purchase.
const MetadataTypeSubscription = "subscription"

// PaymentMetadata is attached to every gateway transaction started by
// StartCheckout and read back on verification and webhook delivery. The JSON
// field names match what the web client has always sent.
type PaymentMetadata struct {
	Type     string                `json:"type"`
	UserID   string                `json:"userId" validate:"required"`
	Plan     types.PlanTier        `json:"plan" validate:"required,oneof=starter pro"`
	Currency types.Currency        `json:"currency,omitempty" validate:"omitempty,oneof=NGN USD"`
	Interval types.BillingInterval `json:"billing,omitempty" validate:"omitempty,oneof=monthly yearly"`
}

var metadataValidator = validator.New()

// ParsePaymentMetadata decodes and validates gateway metadata. Paystack
// echoes metadata as an object, or as a JSON string when it was initialized
// with one; both are accepted. Anything that is not a complete subscription
// payload fails with ErrCodeValidationInvalidMetadata.
func ParsePaymentMetadata(raw json.RawMessage) (PaymentMetadata, error) {
	var meta PaymentMetadata

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return meta, invalidMetadata("metadata is empty", nil)
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return meta, invalidMetadata("metadata is not valid JSON", err)
		}
		raw = []byte(inner)
	}

	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, invalidMetadata("metadata is not valid JSON", err)
	}
	if meta.Type != MetadataTypeSubscription {
		return meta, invalidMetadata(fmt.Sprintf("unsupported metadata type %q", meta.Type), nil)
	}
	if err := metadataValidator.Struct(meta); err != nil {
		return meta, invalidMetadata("incomplete subscription metadata", err)
	}
	if meta.Interval == "" {
		meta.Interval = types.IntervalMonthly
	}
	return meta, nil
}

func invalidMetadata(msg string, err error) error {
	return types.NewAppError(types.ErrCodeValidationInvalidMetadata, msg, err)
}
