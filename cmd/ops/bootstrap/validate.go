package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"

	"blackhub/internal/scheduler"
)

// ValidationResult is the pass/fail outcome shown to the operator.
type ValidationResult struct {
	Valid   bool
	Message string
}

func valid(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: true, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Message: fmt.Sprintf(format, args...)}
}

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Connector opens and immediately closes a connection to dsn.
type Connector interface {
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector verifies a Postgres DSN with a single pgx connection.
type PgxConnector struct{}

func (PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// RedisConnector verifies a redis:// URL the same way the sweeper connects.
type RedisConnector struct{}

func (RedisConnector) Connect(ctx context.Context, dsn string) error {
	client, err := scheduler.NewRedisClient(ctx, dsn)
	if err != nil {
		return err
	}
	return client.Close()
}

// Validator runs active checks against the vendors and data stores a value
// is meant for.
type Validator struct {
	httpClient HTTPClient
	db         Connector
	redis      Connector
	fields     *validator.Validate

	paystackBaseURL string
	resendBaseURL   string
}

func NewValidator() *Validator {
	return NewValidatorWithDeps(&http.Client{Timeout: 10 * time.Second}, PgxConnector{}, RedisConnector{})
}

func NewValidatorWithDeps(httpClient HTTPClient, db, redis Connector) *Validator {
	return &Validator{
		httpClient:      httpClient,
		db:              db,
		redis:           redis,
		fields:          validator.New(),
		paystackBaseURL: "https://api.paystack.co",
		resendBaseURL:   "https://api.resend.com",
	}
}

// validateTimeout is the outer bound on an active probe, covering DNS and
// TLS as well as the request itself.
const validateTimeout = 15 * time.Second

// ValidateDatabaseURL checks the scheme and then connects with pgx.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return invalid("database URL must not be empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return invalid("invalid URL format: %v", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return invalid("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return invalid("database URL has no host")
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	if err := v.db.Connect(connCtx, rawURL); err != nil {
		return invalid("connection failed: %v", err)
	}
	return valid("database connection verified (host=%s)", parsed.Hostname())
}

// ValidateRedisURL parses and pings the URL used for the sweep lock.
func (v *Validator) ValidateRedisURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.HasPrefix(rawURL, "redis://") && !strings.HasPrefix(rawURL, "rediss://") {
		return invalid("expected redis:// or rediss:// URL")
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	if err := v.redis.Connect(connCtx, rawURL); err != nil {
		return invalid("redis connection failed: %v", err)
	}
	return valid("redis connection verified")
}

var paystackKeyRegex = regexp.MustCompile(`^sk_(test|live)_[0-9a-zA-Z]{20,}$`)

// ValidatePaystackKey checks the key format and calls GET /balance, which
// has no side effects and needs only a secret key.
func (v *Validator) ValidatePaystackKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if !paystackKeyRegex.MatchString(key) {
		return invalid("Paystack secret key must match sk_(test|live)_[alphanumeric 20+ chars]")
	}

	status, body, err := v.probe(ctx, v.paystackBaseURL+"/balance", key)
	if err != nil {
		return invalid("Paystack API probe failed: %v", err)
	}
	if status == http.StatusUnauthorized {
		return invalid("Paystack API returned 401 Unauthorized: key is invalid or revoked")
	}
	if status != http.StatusOK {
		return invalid("Paystack API returned HTTP %d: %s", status, truncateBody(body, 200))
	}

	var envelope struct {
		Status bool `json:"status"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || !envelope.Status {
		return invalid("Paystack API response did not report success")
	}

	mode := "test"
	if strings.HasPrefix(key, "sk_live_") {
		mode = "live"
	}
	return valid("Paystack key verified [%s mode]", mode)
}

// ValidateResendKey calls GET /domains. Sending-only keys are rejected there
// with restricted_api_key, which still proves the key exists.
func (v *Validator) ValidateResendKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, "re_") {
		return invalid("Resend API key should start with 're_'")
	}

	status, body, err := v.probe(ctx, v.resendBaseURL+"/domains", key)
	if err != nil {
		return invalid("Resend API probe failed: %v", err)
	}
	switch {
	case status == http.StatusOK:
		return valid("Resend API key verified (full access)")
	case status == http.StatusUnauthorized && strings.Contains(string(body), "restricted_api_key"):
		return valid("Resend API key verified (sending access)")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return invalid("Resend API returned HTTP %d: key is invalid", status)
	default:
		return invalid("Resend API returned HTTP %d: %s", status, truncateBody(body, 200))
	}
}

// ValidateJWTSecret enforces the length the API's config loader requires.
func (v *Validator) ValidateJWTSecret(_ context.Context, secret string) ValidationResult {
	secret = strings.TrimSpace(secret)
	if len(secret) < 32 {
		return invalid("JWT secret must be at least 32 characters (got %d)", len(secret))
	}
	return valid("JWT secret accepted (length: %d chars)", len(secret))
}

// ValidateEmail applies the same rule as the CEO_EMAIL config tag.
func (v *Validator) ValidateEmail(_ context.Context, email string) ValidationResult {
	email = strings.TrimSpace(email)
	if err := v.fields.Var(email, "required,email"); err != nil {
		return invalid("%q is not a valid email address", email)
	}
	return valid("email format validated")
}

// ValidateRegex matches input against pattern. Used where no active probe
// exists, such as plan codes.
func (v *Validator) ValidateRegex(_ context.Context, input, pattern, fieldName string) ValidationResult {
	input = strings.TrimSpace(input)
	if input == "" {
		return invalid("%s must not be empty", fieldName)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return invalid("invalid regex pattern %q: %v", pattern, err)
	}
	if !re.MatchString(input) {
		return invalid("%s does not match expected format (pattern: %s)", fieldName, pattern)
	}
	return valid("%s format validated", fieldName)
}

// probe issues an authenticated GET and returns the status and up to 4KB of
// the body.
func (v *Validator) probe(ctx context.Context, target, bearer string) (int, []byte, error) {
	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("User-Agent", "BlackHub-Bootstrap/1.0")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, body, nil
}

func truncateBody(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
