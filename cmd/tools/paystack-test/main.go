// Command paystack-test opens a Paystack checkout against a test key and
// optionally polls the transaction until it settles.
//
// Usage:
//
//	go run ./cmd/tools/paystack-test --email=me@example.com --plan=starter --wait
//	go run ./cmd/tools/paystack-test --reference=T123456789
//	go run ./cmd/tools/paystack-test --email=me@example.com --plan=pro --sign-webhook
//
// Environment variables (used as defaults when flags are not set):
//
//	PAYSTACK_SECRET_KEY - Paystack secret key (sk_test_...)
//	PAYSTACK_BASE_URL   - API base, defaults to https://api.paystack.co
//
// The metadata attached to the transaction is the same shape the API sends,
// so a completed test payment exercises the real webhook path. Nothing is
// written to the database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"blackhub/internal/billing"
	"blackhub/internal/external"
	"blackhub/internal/subscription"
	"blackhub/internal/types"
)

type options struct {
	SecretKey    string
	BaseURL      string
	Email        string
	UserID       string
	Plan         types.PlanTier
	Currency     types.Currency
	Interval     types.BillingInterval
	Reference    string
	Wait         bool
	PollInterval time.Duration
	Timeout      time.Duration
	SignWebhook  bool
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("paystack-test", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	var plan, currency, interval string
	fs.StringVar(&o.SecretKey, "secret-key", os.Getenv("PAYSTACK_SECRET_KEY"), "Paystack secret key (or PAYSTACK_SECRET_KEY env)")
	fs.StringVar(&o.BaseURL, "base-url", os.Getenv("PAYSTACK_BASE_URL"), "Paystack API base URL (or PAYSTACK_BASE_URL env)")
	fs.StringVar(&o.Email, "email", "", "Customer email for a new checkout")
	fs.StringVar(&o.UserID, "user-id", "", "User id to put in the metadata (default: random)")
	fs.StringVar(&plan, "plan", string(types.PlanStarter), "Plan: starter or pro")
	fs.StringVar(&currency, "currency", string(types.CurrencyNGN), "Currency: NGN or USD")
	fs.StringVar(&interval, "interval", string(types.IntervalMonthly), "Billing interval: monthly or yearly")
	fs.StringVar(&o.Reference, "reference", "", "Verify an existing transaction instead of opening one")
	fs.BoolVar(&o.Wait, "wait", false, "Poll until the transaction reaches a terminal state")
	fs.DurationVar(&o.PollInterval, "poll-interval", 5*time.Second, "Polling interval when --wait is set")
	fs.DurationVar(&o.Timeout, "timeout", 15*time.Minute, "Give up polling after this long")
	fs.BoolVar(&o.SignWebhook, "sign-webhook", false, "Print a signed charge.success body for a local webhook test")

	if err := fs.Parse(args); err != nil {
		return o, err
	}

	o.Plan = types.PlanTier(strings.ToLower(plan))
	o.Currency = types.Currency(strings.ToUpper(currency))
	o.Interval = types.BillingInterval(strings.ToLower(interval))

	if o.SecretKey == "" {
		return o, errors.New("--secret-key or PAYSTACK_SECRET_KEY is required")
	}
	if o.Reference == "" && o.Email == "" {
		return o, errors.New("--email is required when --reference is not set")
	}
	if o.UserID == "" {
		o.UserID = uuid.NewString()
	}
	if o.Reference == "" {
		// Rejects unknown plans, currencies and intervals with the API's rules.
		if _, err := subscription.ChargeAmount(o.Plan, o.Currency, o.Interval); err != nil {
			return o, err
		}
	}
	return o, nil
}

func (o options) metadata() billing.PaymentMetadata {
	return billing.PaymentMetadata{
		Type:     billing.MetadataTypeSubscription,
		UserID:   o.UserID,
		Plan:     o.Plan,
		Currency: o.Currency,
		Interval: o.Interval,
	}
}

// signedChargeEvent builds a charge.success body for reference and the
// x-paystack-signature header the webhook expects for it.
func signedChargeEvent(o options, reference string) (body []byte, signature string, err error) {
	amount, err := subscription.ChargeAmount(o.Plan, o.Currency, o.Interval)
	if err != nil {
		return nil, "", err
	}
	event := map[string]any{
		"event": "charge.success",
		"data": map[string]any{
			"reference": reference,
			"status":    external.TransactionStatusSuccess,
			"amount":    amount,
			"currency":  o.Currency,
			"paid_at":   time.Now().UTC().Format(time.RFC3339),
			"metadata":  o.metadata(),
			"customer":  map[string]string{"email": o.Email},
		},
	}
	body, err = json.Marshal(event)
	if err != nil {
		return nil, "", err
	}
	return body, external.SignPaystackPayload(body, o.SecretKey), nil
}

func main() {
	// A missing .env is fine; the flags and environment may be enough.
	_ = godotenv.Load()

	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := external.NewPaystackClient(&http.Client{Timeout: 30 * time.Second}, external.PaystackClientConfig{
		SecretKey: opts.SecretKey,
		BaseURL:   opts.BaseURL,
		Logger:    logger,
	})

	reference := opts.Reference
	if reference == "" {
		amount, _ := subscription.ChargeAmount(opts.Plan, opts.Currency, opts.Interval)
		res, err := client.InitializeTransaction(ctx, external.InitializeInput{
			Email:    opts.Email,
			Amount:   amount,
			Currency: opts.Currency,
			Metadata: opts.metadata(),
		})
		if err != nil {
			logger.Error("failed to initialize transaction", "error", err)
			os.Exit(1)
		}
		reference = res.Reference

		fmt.Printf("Reference:         %s\n", res.Reference)
		fmt.Printf("Amount:            %d %s (minor units)\n", amount, opts.Currency)
		fmt.Printf("Authorization URL: %s\n", res.AuthorizationURL)
	}

	if opts.SignWebhook {
		body, sig, err := signedChargeEvent(opts, reference)
		if err != nil {
			logger.Error("failed to build webhook body", "error", err)
			os.Exit(1)
		}
		fmt.Printf("\nLocal webhook test:\n")
		fmt.Printf("  curl -s -X POST http://localhost:8080/v1/webhooks/paystack \\\n")
		fmt.Printf("    -H 'Content-Type: application/json' -H 'x-paystack-signature: %s' \\\n", sig)
		fmt.Printf("    -d '%s'\n", body)
	}

	if !opts.Wait && opts.Reference == "" {
		fmt.Println("\nComplete the payment in a browser, then rerun with --reference or use --wait.")
		return
	}

	tx, err := pollTransaction(ctx, client, reference, opts, os.Stdout)
	if err != nil {
		logger.Error("verification failed", "error", err)
		os.Exit(1)
	}
	reportTransaction(os.Stdout, tx)
	if !tx.Succeeded() {
		os.Exit(1)
	}
}

// TransactionVerifier is the subset of *external.PaystackClient polled here.
type TransactionVerifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*external.Transaction, error)
}

// pollTransaction verifies reference once, or until it leaves the pending
// states when opts.Wait is set.
func pollTransaction(ctx context.Context, v TransactionVerifier, reference string, opts options, out io.Writer) (*external.Transaction, error) {
	deadline := time.Now().Add(opts.Timeout)
	for {
		tx, err := v.VerifyTransaction(ctx, reference)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(out, "  Status: %s\n", tx.Status)
		if !opts.Wait || !pendingStatus(tx.Status) {
			return tx, nil
		}
		if time.Now().After(deadline) {
			return tx, fmt.Errorf("transaction %s still %s after %s", reference, tx.Status, opts.Timeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.PollInterval):
		}
	}
}

func pendingStatus(status string) bool {
	switch status {
	case "ongoing", "pending", "processing", "queued":
		return true
	}
	return false
}

// reportTransaction prints the outcome and what the webhook would do with
// the transaction's metadata.
func reportTransaction(out io.Writer, tx *external.Transaction) {
	fmt.Fprintf(out, "\nTransaction %s: %s", tx.Reference, tx.Status)
	if tx.GatewayResponse != "" {
		fmt.Fprintf(out, " (%s)", tx.GatewayResponse)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Amount: %d %s\n", tx.Amount, tx.Currency)

	meta, err := billing.ParsePaymentMetadata(tx.Metadata)
	if err != nil {
		fmt.Fprintf(out, "Metadata: not a subscription payment (%v)\n", err)
		return
	}
	fmt.Fprintf(out, "Metadata: user=%s plan=%s interval=%s\n", meta.UserID, meta.Plan, meta.Interval)
	if tx.Succeeded() {
		fmt.Fprintln(out, "The webhook will activate this subscription.")
	}
}
