package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"blackhub/internal/config"
	"blackhub/internal/external"
	"blackhub/internal/security"
)

// Stores groups the persistence a Notifier needs.
type Stores struct {
	Claims   ClaimStore
	Accounts AccountLookup
	Tokens   TokenStore
}

// LoadAWSConfig loads the SDK configuration for cfg.AWS.Region.
func LoadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config (region=%s): %w", cfg.Region, err)
	}
	return awsCfg, nil
}

// NewSQSClient honours AWS_ENDPOINT_URL for LocalStack.
func NewSQSClient(awsCfg aws.Config, cfg config.AWSConfig) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})
}

// NewNotifierFromConfig builds a Notifier with whichever channels cfg
// enables. Email needs RESEND_API_KEY; web push needs the VAPID key pair.
// CloudWatch metrics are emitted only when ENABLE_METRICS is set.
func NewNotifierFromConfig(ctx context.Context, cfg *config.Config, stores Stores, logger *slog.Logger) (*Notifier, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("loading notification templates: %w", err)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	var email external.EmailProvider
	if cfg.Email.ResendAPIKey.IsSet() {
		email = external.NewResendClient(httpClient, external.ResendClientConfig{
			APIKey:  cfg.Email.ResendAPIKey.Unmask(),
			From:    cfg.Email.FromAddress,
			BaseURL: cfg.Email.BaseURL,
			Logger:  logger,
		})
	} else {
		logger.WarnContext(ctx, "RESEND_API_KEY not set, email delivery disabled")
	}

	var push external.PushSender
	if cfg.Push.VAPIDPrivateKey.IsSet() && cfg.Push.VAPIDPublicKey != "" {
		// Push endpoints are browser-supplied, so the sender dials through the
		// SSRF guard.
		push = external.NewWebPushSender(security.NewSafeHTTPClient(10*time.Second, 3), external.WebPushConfig{
			PublicKey:  cfg.Push.VAPIDPublicKey,
			PrivateKey: cfg.Push.VAPIDPrivateKey.Unmask(),
			Subject:    cfg.Push.Subject,
			TTL:        cfg.Push.TTL,
		})
	} else {
		logger.WarnContext(ctx, "VAPID keys not set, web push disabled")
	}

	var metrics Metrics = NoopMetrics{}
	if cfg.Observability.EnableMetrics {
		awsCfg, err := LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		metrics = NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
	}

	return NewNotifier(NotifierConfig{
		Claims:   stores.Claims,
		Accounts: stores.Accounts,
		Tokens:   stores.Tokens,
		Email:    email,
		Push:     push,
		Renderer: renderer,
		Metrics:  metrics,
		AppURL:   cfg.Server.AppURL,
		Logger:   logger,
	}), nil
}
