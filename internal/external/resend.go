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
	"strings"
	"time"

	"blackhub/internal/types"
)

const resendAPIBase = "https://api.resend.com"

// ResendClientConfig holds the configuration for a ResendClient.
type ResendClientConfig struct {
	APIKey  string
	From    string
	BaseURL string
	Logger  *slog.Logger
}

// ResendClient implements EmailProvider using the Resend REST API.
type ResendClient struct {
	base    *BaseClient
	apiKey  string
	from    string
	baseURL string
	logger  *slog.Logger
}

// NewResendClient creates a ResendClient with its own breaker.
func NewResendClient(httpClient *http.Client, cfg ResendClientConfig) *ResendClient {
	base := NewBaseClient(
		httpClient,
		"resend",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
	)
	return NewResendClientWithBase(base, cfg)
}

// NewResendClientWithBase creates a ResendClient around a pre-built BaseClient.
func NewResendClientWithBase(base *BaseClient, cfg ResendClientConfig) *ResendClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = resendAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ResendClient{
		base:    base,
		apiKey:  cfg.APIKey,
		from:    cfg.From,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

type resendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type resendEmailResponse struct {
	ID string `json:"id"`
}

type resendErrorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Send posts the message to /emails and returns the Resend message ID.
//
// Error mapping:
//   - 429 and 5xx are retried by BaseClient
//   - other non-2xx -> types.ErrCodeUpstreamEmailProvider
func (r *ResendClient) Send(ctx context.Context, msg EmailMessage) (string, error) {
	body, err := json.Marshal(resendEmailRequest{
		From:    r.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.BodyHTML,
		Text:    msg.BodyText,
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode email", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build email request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.base.Do(req)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return "", err
		}
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider, "resend request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := strings.TrimSpace(string(raw))
		var errBody resendErrorResponse
		if json.Unmarshal(raw, &errBody) == nil && errBody.Message != "" {
			message = errBody.Message
		}
		return "", types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("resend error (%d): %s", resp.StatusCode, message),
			nil,
		)
	}

	var out resendEmailResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		// Delivered, but the ID is only used for log correlation.
		r.logger.WarnContext(ctx, "resend response had no message id", "error", err)
	}
	return out.ID, nil
}

var _ EmailProvider = (*ResendClient)(nil)
