package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"blackhub/internal/types"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// WebPushConfig holds VAPID credentials.
type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	TTL        int
}

// WebPushSender implements PushSender for browser subscriptions. Web tokens
// are stored as the JSON-serialized PushSubscription the browser returned.
type WebPushSender struct {
	cfg  WebPushConfig
	base *BaseClient
}

// NewWebPushSender routes push-service requests through a BaseClient so the
// breaker and retry rules match the other vendors.
func NewWebPushSender(httpClient *http.Client, cfg WebPushConfig) *WebPushSender {
	if cfg.TTL <= 0 {
		cfg.TTL = 86400
	}
	return &WebPushSender{
		cfg: cfg,
		base: NewBaseClient(httpClient, "webpush", RetryPolicy{
			MaxRetries: 1,
			MinWait:    250 * time.Millisecond,
			MaxWait:    2 * time.Second,
		}),
	}
}

// NewWebPushSenderWithBase is used by tests.
func NewWebPushSenderWithBase(base *BaseClient, cfg WebPushConfig) *WebPushSender {
	if cfg.TTL <= 0 {
		cfg.TTL = 86400
	}
	return &WebPushSender{cfg: cfg, base: base}
}

// Enabled reports whether VAPID credentials are present.
func (s *WebPushSender) Enabled() bool {
	return s.cfg.PublicKey != "" && s.cfg.PrivateKey != ""
}

// Send encrypts msg for the subscription and posts it to the push service.
// A 404 or 410 from the push service yields ErrPushTokenGone.
func (s *WebPushSender) Send(ctx context.Context, token types.PushToken, msg PushMessage) error {
	if token.Platform != types.PushPlatformWeb {
		return ErrPushPlatformUnsupported
	}
	if !s.Enabled() {
		return types.NewAppError(types.ErrCodeUpstreamPush, "web push is not configured", nil)
	}

	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(token.Token), &sub); err != nil || sub.Endpoint == "" {
		return ErrPushTokenGone
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode push payload", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub, &webpush.Options{
		HTTPClient:      s.base,
		Subscriber:      s.cfg.Subject,
		VAPIDPublicKey:  s.cfg.PublicKey,
		VAPIDPrivateKey: s.cfg.PrivateKey,
		TTL:             s.cfg.TTL,
	})
	if err != nil {
		if _, ok := err.(*types.AppError); ok {
			return err
		}
		return types.NewAppError(types.ErrCodeUpstreamPush, "web push send failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrPushTokenGone
	case resp.StatusCode >= 300:
		return types.NewAppError(types.ErrCodeUpstreamPush,
			fmt.Sprintf("push service returned %d", resp.StatusCode), nil)
	}
	return nil
}

var _ PushSender = (*WebPushSender)(nil)
