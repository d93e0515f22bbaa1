package external

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"blackhub/internal/types"
)

// ---------------------------------------------------------------------------
// Payments (Paystack)
// ---------------------------------------------------------------------------

// PaymentGateway abstracts the hosted-checkout payment provider.
type PaymentGateway interface {
	// InitializeTransaction opens a hosted checkout and returns the URL the
	// user is redirected to together with the gateway reference.
	InitializeTransaction(ctx context.Context, input InitializeInput) (*InitializeResult, error)

	// VerifyTransaction fetches the authoritative state of a transaction.
	VerifyTransaction(ctx context.Context, reference string) (*Transaction, error)
}

// InitializeInput describes a checkout. Amount is in minor units (kobo/cents).
type InitializeInput struct {
	Email       string
	Amount      int64
	Currency    types.Currency
	CallbackURL string
	PlanCode    string
	Metadata    any
}

// InitializeResult is returned by InitializeTransaction.
type InitializeResult struct {
	AuthorizationURL string
	Reference        string
}

// TransactionStatusSuccess is the only status that confirms a payment.
const TransactionStatusSuccess = "success"

// Transaction is the gateway's view of a payment. Metadata is kept raw so the
// billing layer can parse it with its own tolerance rules.
type Transaction struct {
	Status          string          `json:"status"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Reference       string          `json:"reference"`
	Metadata        json.RawMessage `json:"metadata"`
	PaidAt          *time.Time      `json:"paid_at"`
	GatewayResponse string          `json:"gateway_response"`
	Customer        struct {
		Email string `json:"email"`
	} `json:"customer"`
}

// Succeeded reports whether the gateway considers the payment complete.
func (t *Transaction) Succeeded() bool {
	return t != nil && t.Status == TransactionStatusSuccess
}

// WebhookVerifier checks the signature a provider attaches to webhook bodies.
type WebhookVerifier interface {
	// Verify returns nil when signature matches payload under secret.
	Verify(payload []byte, signature string, secret string) error
}

// Paystack webhook event names.
const (
	EventPaystackChargeSuccess = "charge.success"
)

// ---------------------------------------------------------------------------
// Email (Resend)
// ---------------------------------------------------------------------------

// EmailMessage is a pre-rendered email.
type EmailMessage struct {
	To       string
	Subject  string
	BodyHTML string
	BodyText string
}

// EmailProvider delivers a rendered email and returns the provider's message ID.
type EmailProvider interface {
	Send(ctx context.Context, msg EmailMessage) (string, error)
}

// ---------------------------------------------------------------------------
// Push (Web Push / VAPID)
// ---------------------------------------------------------------------------

// PushMessage is the JSON payload the service worker receives.
type PushMessage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Type  string `json:"type,omitempty"`
}

// PushSender delivers a message to one registered device token.
type PushSender interface {
	Send(ctx context.Context, token types.PushToken, msg PushMessage) error
}

// ErrPushTokenGone is returned when the push service reports that the
// subscription no longer exists. Callers should delete the token.
var ErrPushTokenGone = errors.New("push subscription expired or unsubscribed")

// ErrPushPlatformUnsupported is returned for platforms with no sender yet.
var ErrPushPlatformUnsupported = errors.New("push platform not supported")
