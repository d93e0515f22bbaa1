// Package config defines the process configuration for the BlackHub API,
// sweeper and notification worker. Configuration is loaded once at startup
// and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"blackhub/internal/types"
)

// SecretString is the redacted secret type used for credentials.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subset they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	AWS           AWSConfig
	Auth          AuthConfig
	Paystack      PaystackConfig
	Email         EmailConfig
	Push          PushConfig
	Notify        NotifyConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// AppURL is the public web origin used for payment callbacks, referral
	// links and notification targets (no trailing slash).
	AppURL             string        `envconfig:"APP_URL" validate:"required,url"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	// Per-IP token bucket for unauthenticated endpoints (webhook, verify).
	PublicRateLimit float64 `envconfig:"WEBHOOK_RATE_LIMIT" default:"5"`
	PublicRateBurst int     `envconfig:"WEBHOOK_RATE_BURST" default:"20"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	RunMigrations     bool          `envconfig:"DB_RUN_MIGRATIONS" default:"true"`
}

// RedisConfig configures the sweep lock. An empty URL disables locking.
type RedisConfig struct {
	URL     SecretString  `envconfig:"REDIS_URL"`
	LockTTL time.Duration `envconfig:"SWEEP_LOCK_TTL" default:"5m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// NotificationQueueURL switches notification dispatch from the in-process
	// worker pool to SQS when set.
	NotificationQueueURL string `envconfig:"NOTIFICATION_QUEUE_URL" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// AuthConfig holds token verification and privileged-caller settings.
type AuthConfig struct {
	JWTSecret  SecretString `envconfig:"JWT_SECRET" validate:"required,min=32"`
	JWTIssuer  string       `envconfig:"JWT_ISSUER"`
	CronSecret SecretString `envconfig:"CRON_SECRET" validate:"required,min=16"`
	CEOEmail   string       `envconfig:"CEO_EMAIL" validate:"omitempty,email"`
}

// PaystackConfig holds payment gateway credentials and optional monthly
// recurring plan codes keyed by plan and currency.
type PaystackConfig struct {
	SecretKey      SecretString `envconfig:"PAYSTACK_SECRET_KEY" validate:"required"`
	BaseURL        string       `envconfig:"PAYSTACK_BASE_URL" default:"https://api.paystack.co" validate:"url"`
	PlanStarterNGN string       `envconfig:"PAYSTACK_PLAN_STARTER_NGN"`
	PlanStarterUSD string       `envconfig:"PAYSTACK_PLAN_STARTER_USD"`
	PlanProNGN     string       `envconfig:"PAYSTACK_PLAN_PRO_NGN"`
	PlanProUSD     string       `envconfig:"PAYSTACK_PLAN_PRO_USD"`
}

// PlanCode returns the monthly gateway plan code for a plan and currency, or
// "" when the charge should be a one-off transaction. Yearly checkouts never
// carry a plan code.
func (c PaystackConfig) PlanCode(plan types.PlanTier, currency types.Currency) string {
	switch {
	case plan == types.PlanStarter && currency == types.CurrencyNGN:
		return c.PlanStarterNGN
	case plan == types.PlanStarter && currency == types.CurrencyUSD:
		return c.PlanStarterUSD
	case plan == types.PlanPro && currency == types.CurrencyNGN:
		return c.PlanProNGN
	case plan == types.PlanPro && currency == types.CurrencyUSD:
		return c.PlanProUSD
	}
	return ""
}

// EmailConfig holds transactional email provider settings. Email delivery
// is disabled when no API key is configured.
type EmailConfig struct {
	ResendAPIKey SecretString `envconfig:"RESEND_API_KEY"`
	BaseURL      string       `envconfig:"RESEND_BASE_URL" default:"https://api.resend.com" validate:"url"`
	FromAddress  string       `envconfig:"EMAIL_FROM" default:"BlackHub <noreply@blackhub.app>"`
}

// PushConfig holds VAPID credentials for web push. Push delivery is disabled
// when the private key is empty.
type PushConfig struct {
	VAPIDPublicKey  string       `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey SecretString `envconfig:"VAPID_PRIVATE_KEY"`
	Subject         string       `envconfig:"VAPID_SUBJECT" default:"mailto:support@blackhub.app"`
	TTL             int          `envconfig:"PUSH_TTL_SECONDS" default:"86400"`
}

// NotifyConfig sizes the in-process notification dispatcher.
type NotifyConfig struct {
	Workers     int           `envconfig:"NOTIFY_WORKERS" default:"4" validate:"min=1"`
	QueueSize   int           `envconfig:"NOTIFY_QUEUE_SIZE" default:"256" validate:"min=1"`
	MaxAttempts int           `envconfig:"NOTIFY_MAX_ATTEMPTS" default:"3" validate:"min=1"`
	BaseBackoff time.Duration `envconfig:"NOTIFY_BASE_BACKOFF" default:"500ms"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"BlackHub"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
