package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ParameterType selects the SSM storage type.
type ParameterType int

const (
	ParamSecureString ParameterType = iota
	ParamString
)

// InputSource describes where a step's value comes from.
type InputSource int

const (
	SourcePrompt InputSource = iota
	SourceGenerated
)

// BootstrapStep is one parameter in the inventory.
type BootstrapStep struct {
	HumanLabel string

	// SSMCategoryKey becomes /{env}/blackhub/{SSMCategoryKey}.
	SSMCategoryKey string
	// EnvVar is the variable the services read the value from.
	EnvVar string

	ParamType ParameterType
	Source    InputSource

	Prompt     string
	ValidateFn func(ctx context.Context, input string) ValidationResult
	IsSecret   bool

	// Generate produces the value for SourceGenerated steps. A non-empty
	// Companion is written as a String under CompanionKey.
	Generate        func() (generatedValue, error)
	CompanionKey    string
	CompanionEnvVar string

	Optional bool
	Phase    string
}

const maxRetries = 5

var errSkipped = errors.New("parameter skipped by operator")

const planCodePattern = `^PLN_[0-9a-zA-Z]+$`

// BuildInventory returns the ordered parameter list.
func BuildInventory(v *Validator) []BootstrapStep {
	planStep := func(label, key, envVar string) BootstrapStep {
		return BootstrapStep{
			HumanLabel:     label,
			SSMCategoryKey: key,
			EnvVar:         envVar,
			ParamType:      ParamString,
			Source:         SourcePrompt,
			Prompt:         fmt.Sprintf("Paste the Paystack plan code for %s (PLN_..., or press Enter to skip):", label),
			ValidateFn: func(ctx context.Context, input string) ValidationResult {
				return v.ValidateRegex(ctx, input, planCodePattern, label)
			},
			Optional: true,
			Phase:    "Paystack Plans",
		}
	}

	return []BootstrapStep{
		{
			HumanLabel:     "Database URL",
			SSMCategoryKey: "database/url",
			EnvVar:         "DATABASE_URL",
			ParamType:      ParamSecureString,
			Source:         SourcePrompt,
			Prompt: `1. Open the Postgres provider's connection settings.
   2. Copy the pooled connection string and fill in the password.
   3. Paste the full postgres://... string here:`,
			ValidateFn: v.ValidateDatabaseURL,
			IsSecret:   true,
			Phase:      "External Accounts",
		},
		{
			HumanLabel:     "JWT Secret",
			SSMCategoryKey: "auth/jwt_secret",
			EnvVar:         "JWT_SECRET",
			ParamType:      ParamSecureString,
			Source:         SourcePrompt,
			Prompt: `1. Open the identity provider's API settings.
   2. Copy the JWT signing secret used for access tokens.
   3. Paste it here:`,
			ValidateFn: v.ValidateJWTSecret,
			IsSecret:   true,
			Phase:      "External Accounts",
		},
		{
			HumanLabel:     "Paystack Secret Key",
			SSMCategoryKey: "billing/paystack_secret_key",
			EnvVar:         "PAYSTACK_SECRET_KEY",
			ParamType:      ParamSecureString,
			Source:         SourcePrompt,
			Prompt: `1. Go to Paystack Dashboard > Settings > API Keys & Webhooks.
   2. Set the webhook URL to {APP_URL}/v1/webhooks/paystack.
   3. Copy the Secret Key (sk_...) and paste it here:`,
			ValidateFn: v.ValidatePaystackKey,
			IsSecret:   true,
			Phase:      "External Accounts",
		},
		{
			HumanLabel:     "Resend API Key",
			SSMCategoryKey: "email/resend_api_key",
			EnvVar:         "RESEND_API_KEY",
			ParamType:      ParamSecureString,
			Source:         SourcePrompt,
			Prompt: `1. Go to Resend > API Keys and create a key with sending access.
   2. Paste it here (re_...):`,
			ValidateFn: v.ValidateResendKey,
			IsSecret:   true,
			Phase:      "External Accounts",
		},
		{
			HumanLabel:     "Administrator Email",
			SSMCategoryKey: "auth/ceo_email",
			EnvVar:         "CEO_EMAIL",
			ParamType:      ParamString,
			Source:         SourcePrompt,
			Prompt:         `Enter the email address allowed to use the admin routes (or press Enter to skip):`,
			ValidateFn:     v.ValidateEmail,
			Optional:       true,
			Phase:          "External Accounts",
		},

		planStep("Starter (NGN)", "billing/plan_starter_ngn", "PAYSTACK_PLAN_STARTER_NGN"),
		planStep("Starter (USD)", "billing/plan_starter_usd", "PAYSTACK_PLAN_STARTER_USD"),
		planStep("Pro (NGN)", "billing/plan_pro_ngn", "PAYSTACK_PLAN_PRO_NGN"),
		planStep("Pro (USD)", "billing/plan_pro_usd", "PAYSTACK_PLAN_PRO_USD"),

		{
			HumanLabel:     "Redis URL (optional)",
			SSMCategoryKey: "scheduler/redis_url",
			EnvVar:         "REDIS_URL",
			ParamType:      ParamSecureString,
			Source:         SourcePrompt,
			Prompt: `Required only when more than one scheduler can trigger the sweeps.
   Paste the redis:// or rediss:// URL (or press Enter to skip):`,
			ValidateFn: v.ValidateRedisURL,
			IsSecret:   true,
			Optional:   true,
			Phase:      "Infrastructure",
		},

		{
			HumanLabel:     "Cron Secret",
			SSMCategoryKey: "auth/cron_secret",
			EnvVar:         "CRON_SECRET",
			ParamType:      ParamSecureString,
			Source:         SourceGenerated,
			Generate:       generateToken,
			Phase:          "Internal Secrets",
		},
		{
			HumanLabel:      "VAPID Key Pair",
			SSMCategoryKey:  "push/vapid_private_key",
			EnvVar:          "VAPID_PRIVATE_KEY",
			ParamType:       ParamSecureString,
			Source:          SourceGenerated,
			Generate:        generateVAPIDKeys,
			CompanionKey:    "push/vapid_public_key",
			CompanionEnvVar: "VAPID_PUBLIC_KEY",
			Phase:           "Internal Secrets",
		},
	}
}

// BootstrapRunner drives the inventory against SSM.
type BootstrapRunner struct {
	SSM       *SSMManager
	Validator *Validator
	Stdin     io.Reader
	Stderr    io.Writer

	// SkipOptional skips every Optional step without prompting.
	SkipOptional bool

	// A single scanner so buffered reads are not lost between prompts.
	scanner *bufio.Scanner

	inventoryOverride []BootstrapStep
}

func NewBootstrapRunner(bctx *BootstrapContext) *BootstrapRunner {
	return &BootstrapRunner{
		SSM:       NewSSMManager(bctx),
		Validator: NewValidator(),
		Stdin:     os.Stdin,
		Stderr:    os.Stderr,
	}
}

func (r *BootstrapRunner) inventory() []BootstrapStep {
	if r.inventoryOverride != nil {
		return r.inventoryOverride
	}
	return BuildInventory(r.Validator)
}

// Run processes every step in order and prints a summary. Existing
// parameters are only replaced when the operator chooses to overwrite.
func (r *BootstrapRunner) Run(ctx context.Context) error {
	inventory := r.inventory()

	var currentPhase string
	results := make([]stepResult, 0, len(inventory))
	for i, step := range inventory {
		if step.Phase != currentPhase {
			currentPhase = step.Phase
			r.printPhaseHeader(currentPhase)
		}
		fmt.Fprintf(r.Stderr, "\n[%d/%d] %s\n", i+1, len(inventory), step.HumanLabel)

		result, err := r.processStep(ctx, step)
		if err != nil {
			return fmt.Errorf("step %q failed: %w", step.HumanLabel, err)
		}
		results = append(results, result)
	}

	r.printSummary(results)
	return nil
}

type stepAction string

const (
	actionWritten     stepAction = "written"
	actionGenerated   stepAction = "generated"
	actionOverwritten stepAction = "overwritten"
	actionSkipped     stepAction = "skipped"
)

type stepResult struct {
	Label  string
	Action stepAction
	Path   string
}

func (r *BootstrapRunner) processStep(ctx context.Context, step BootstrapStep) (stepResult, error) {
	path := r.SSM.SSMPath(step.SSMCategoryKey)
	result := stepResult{Label: step.HumanLabel, Path: path}

	if step.Optional && r.SkipOptional {
		fmt.Fprintf(r.Stderr, "  Skipped (--skip-optional)\n")
		result.Action = actionSkipped
		return result, nil
	}

	exists, err := r.SSM.ParameterExists(ctx, path)
	if err != nil {
		return result, fmt.Errorf("checking existence of %s: %w", path, err)
	}
	if exists {
		fmt.Fprintf(r.Stderr, "  Parameter already exists: %s\n", path)
		overwrite, err := r.promptChoice("  [S]kip or [O]verwrite? ", "s", "o")
		if err != nil {
			return result, fmt.Errorf("reading skip/overwrite choice: %w", err)
		}
		if overwrite == "s" {
			fmt.Fprintf(r.Stderr, "  Skipped.\n")
			result.Action = actionSkipped
			return result, nil
		}
	}

	var value generatedValue
	switch step.Source {
	case SourcePrompt:
		input, err := r.promptAndValidate(ctx, step)
		if errors.Is(err, errSkipped) {
			fmt.Fprintf(r.Stderr, "  Skipped.\n")
			result.Action = actionSkipped
			return result, nil
		}
		if err != nil {
			return result, err
		}
		value.Value = input
	case SourceGenerated:
		value, err = step.Generate()
		if err != nil {
			return result, fmt.Errorf("generating %s: %w", step.HumanLabel, err)
		}
		fmt.Fprintf(r.Stderr, "  Auto-generated (%d chars)\n", len(value.Value))
	}

	if step.ParamType == ParamSecureString {
		err = r.SSM.PutSecret(ctx, path, value.Value, exists)
	} else {
		err = r.SSM.PutString(ctx, path, value.Value)
	}
	if err != nil {
		return result, fmt.Errorf("writing SSM parameter %s: %w", path, err)
	}
	fmt.Fprintf(r.Stderr, "  Stored: %s\n", path)

	// The companion is rewritten with its pair so the two never diverge.
	if step.CompanionKey != "" && value.Companion != "" {
		companionPath := r.SSM.SSMPath(step.CompanionKey)
		if err := r.SSM.PutString(ctx, companionPath, value.Companion); err != nil {
			return result, fmt.Errorf("writing SSM parameter %s: %w", companionPath, err)
		}
		fmt.Fprintf(r.Stderr, "  Stored: %s\n", companionPath)
	}

	switch {
	case exists:
		result.Action = actionOverwritten
	case step.Source == SourceGenerated:
		result.Action = actionGenerated
	default:
		result.Action = actionWritten
	}
	return result, nil
}

// promptAndValidate reads a value, retrying up to maxRetries failed
// validations. Secret input is never echoed back.
func (r *BootstrapRunner) promptAndValidate(ctx context.Context, step BootstrapStep) (string, error) {
	fmt.Fprintf(r.Stderr, "\n  %s\n\n", step.Prompt)

	for attempt := 1; attempt <= maxRetries; {
		var input string
		var err error
		if step.IsSecret {
			input, err = r.readSecretInput("  > ")
		} else {
			input, err = r.readInput("  > ")
		}
		if err != nil {
			return "", fmt.Errorf("reading input for %s: %w", step.HumanLabel, err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			if step.Optional {
				return "", errSkipped
			}
			choice, err := r.promptChoice("  No input received. [S]kip this parameter or [R]etry? ", "s", "r")
			if err != nil {
				return "", fmt.Errorf("reading skip/retry choice for %s: %w", step.HumanLabel, err)
			}
			if choice == "s" {
				return "", errSkipped
			}
			continue
		}

		if step.IsSecret {
			fmt.Fprintf(r.Stderr, "  Received %d chars.\n", len(input))
		}

		if step.ValidateFn != nil {
			vr := step.ValidateFn(ctx, input)
			if !vr.Valid {
				fmt.Fprintf(r.Stderr, "  Validation failed: %s\n", vr.Message)
				if attempt < maxRetries {
					fmt.Fprintf(r.Stderr, "  Try again (%d/%d).\n", attempt, maxRetries)
				}
				attempt++
				continue
			}
			fmt.Fprintf(r.Stderr, "  Validated: %s\n", vr.Message)
		}
		return input, nil
	}

	return "", fmt.Errorf("maximum retries (%d) exceeded for %s", maxRetries, step.HumanLabel)
}

func (r *BootstrapRunner) scanLine() (string, error) {
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.Stdin)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *BootstrapRunner) readInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)
	return r.scanLine()
}

// readSecretInput disables echo when stdin is a terminal and falls back to
// line reads for piped input.
func (r *BootstrapRunner) readSecretInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)

	if f, ok := r.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret input: %w", err)
		}
		return string(password), nil
	}
	return r.scanLine()
}

// promptChoice repeats prompt until the answer starts with one of options
// and returns that option.
func (r *BootstrapRunner) promptChoice(prompt string, options ...string) (string, error) {
	for {
		fmt.Fprint(r.Stderr, prompt)
		line, err := r.scanLine()
		if err != nil {
			return "", err
		}
		answer := strings.TrimSpace(strings.ToLower(line))
		for _, opt := range options {
			if answer != "" && strings.HasPrefix(answer, opt) {
				return opt, nil
			}
		}
		fmt.Fprintf(r.Stderr, "  Please answer with one of: %s\n", strings.ToUpper(strings.Join(options, "/")))
	}
}

func (r *BootstrapRunner) printPhaseHeader(phase string) {
	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Phase: %s\n", phase)
	fmt.Fprintf(r.Stderr, "============================================================\n")
}

func (r *BootstrapRunner) printSummary(results []stepResult) {
	counts := make(map[stepAction]int)

	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Bootstrap Summary\n")
	fmt.Fprintf(r.Stderr, "============================================================\n")
	for _, res := range results {
		counts[res.Action]++
		fmt.Fprintf(r.Stderr, "  %-14s %s\n", "["+strings.ToUpper(string(res.Action))+"]", res.Label)
	}
	fmt.Fprintf(r.Stderr, "------------------------------------------------------------\n")
	fmt.Fprintf(r.Stderr, "  Total: %d parameters\n", len(results))
	fmt.Fprintf(r.Stderr, "  Written: %d | Generated: %d | Overwritten: %d | Skipped: %d\n",
		counts[actionWritten], counts[actionGenerated], counts[actionOverwritten], counts[actionSkipped])
	fmt.Fprintf(r.Stderr, "============================================================\n\n")
	fmt.Fprintf(r.Stderr, "  Point each service at the parameters with *_SSM_PARAM variables,\n")
	fmt.Fprintf(r.Stderr, "  e.g. DATABASE_URL_SSM_PARAM=%s\n\n", r.SSM.SSMPath("database/url"))
}
