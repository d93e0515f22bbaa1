package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"blackhub/internal/types"
)

const paystackAPIBase = "https://api.paystack.co"

// PaystackClientConfig holds the configuration for a PaystackClient.
type PaystackClientConfig struct {
	SecretKey string
	BaseURL   string // defaults to paystackAPIBase
	Logger    *slog.Logger
}

// PaystackClient implements PaymentGateway against the Paystack REST API.
type PaystackClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewPaystackClient creates a PaystackClient with its own circuit breaker.
func NewPaystackClient(httpClient *http.Client, cfg PaystackClientConfig) *PaystackClient {
	base := NewBaseClient(
		httpClient,
		"paystack",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
	)
	return NewPaystackClientWithBase(base, cfg)
}

// NewPaystackClientWithBase is used by tests to control retry behaviour.
func NewPaystackClientWithBase(base *BaseClient, cfg PaystackClientConfig) *PaystackClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = paystackAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PaystackClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// paystackEnvelope is the wrapper every Paystack response uses.
type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	CallbackURL string `json:"callback_url,omitempty"`
	Plan        string `json:"plan,omitempty"`
	Metadata    any    `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// InitializeTransaction calls POST /transaction/initialize.
func (p *PaystackClient) InitializeTransaction(ctx context.Context, input InitializeInput) (*InitializeResult, error) {
	const op = "initialize transaction"

	body, err := json.Marshal(initializeRequest{
		Email:       input.Email,
		Amount:      input.Amount,
		Currency:    string(input.Currency),
		CallbackURL: input.CallbackURL,
		Plan:        input.PlanCode,
		Metadata:    input.Metadata,
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode paystack request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build paystack request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var data initializeData
	if err := p.do(req, op, &data); err != nil {
		return nil, err
	}
	if data.AuthorizationURL == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamPayment, op+": paystack returned no authorization_url", nil)
	}

	p.logger.InfoContext(ctx, "paystack checkout initialized",
		"reference", data.Reference,
		"currency", input.Currency,
		"amount", input.Amount,
	)
	return &InitializeResult{AuthorizationURL: data.AuthorizationURL, Reference: data.Reference}, nil
}

// VerifyTransaction calls GET /transaction/verify/{reference}.
func (p *PaystackClient) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	const op = "verify transaction"

	reqURL := p.baseURL + "/transaction/verify/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build paystack request", err)
	}

	var tx Transaction
	if err := p.do(req, op, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// do sends an authenticated request and decodes the envelope's data into out.
func (p *PaystackClient) do(req *http.Request, op string, out any) error {
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.base.Do(req)
	if err != nil {
		return wrapPaystackError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPayment, op+": failed to read paystack response", err)
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPayment,
			fmt.Sprintf("%s: paystack returned status %d with non-JSON body", op, resp.StatusCode), err)
	}

	if resp.StatusCode >= 300 || !env.Status {
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamPayment,
			fmt.Sprintf("%s: %s", op, paystackMessage(env.Message)),
			nil,
			map[string]any{"http_status": resp.StatusCode},
		)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return types.NewAppError(types.ErrCodeUpstreamPayment, op+": unexpected paystack data shape", err)
		}
	}
	return nil
}

func paystackMessage(msg string) string {
	if msg == "" {
		return "paystack request failed"
	}
	return msg
}

// wrapPaystackError keeps AppErrors from BaseClient intact.
func wrapPaystackError(op string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(types.ErrCodeUpstreamPayment, fmt.Sprintf("%s: paystack request failed", op), err)
}
