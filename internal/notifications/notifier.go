// Package notifications delivers lifecycle messages (welcome, trial
// reminders, subscription confirmation) by email and push. Each
// (user, template) pair is delivered at most once; delivery runs off the
// request path through a Dispatcher.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"blackhub/internal/external"
	"blackhub/internal/subscription"
	"blackhub/internal/types"
)

// ErrUndelivered means every attempted channel failed. The claim has been
// released so a retry may send again.
var ErrUndelivered = errors.New("notification not delivered on any channel")

// ClaimStore reserves a (user, template) pair before sending.
type ClaimStore interface {
	Claim(ctx context.Context, userID string, template types.TemplateType) (bool, error)
	Release(ctx context.Context, userID string, template types.TemplateType) error
}

// AccountLookup resolves the recipient.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*types.Account, error)
}

// TokenStore lists and prunes push registrations.
type TokenStore interface {
	ListByUser(ctx context.Context, userID string) ([]types.PushToken, error)
	Delete(ctx context.Context, userID, token string) error
}

// NotifierConfig holds the dependencies for a Notifier. Email and Push may be
// nil when the channel is not configured.
type NotifierConfig struct {
	Claims   ClaimStore
	Accounts AccountLookup
	Tokens   TokenStore
	Email    external.EmailProvider
	Push     external.PushSender
	Renderer *Renderer
	Metrics  Metrics
	AppURL   string
	Logger   *slog.Logger
	Now      func() time.Time
}

// Notifier performs the actual once-only delivery of a Notification.
type Notifier struct {
	claims   ClaimStore
	accounts AccountLookup
	tokens   TokenStore
	email    external.EmailProvider
	push     external.PushSender
	renderer *Renderer
	metrics  Metrics
	appURL   string
	logger   *slog.Logger
	now      func() time.Time
}

func NewNotifier(cfg NotifierConfig) *Notifier {
	n := &Notifier{
		claims:   cfg.Claims,
		accounts: cfg.Accounts,
		tokens:   cfg.Tokens,
		email:    cfg.Email,
		push:     cfg.Push,
		renderer: cfg.Renderer,
		metrics:  cfg.Metrics,
		appURL:   strings.TrimSuffix(cfg.AppURL, "/"),
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if n.metrics == nil {
		n.metrics = NoopMetrics{}
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	if n.now == nil {
		n.now = time.Now
	}
	return n
}

// Outcome summarizes one NotifyOnce call.
type Outcome struct {
	Duplicate  bool
	EmailSent  bool
	PushSent   int
	PushFailed int
}

// Delivered reports whether at least one channel reached the user.
func (o Outcome) Delivered() bool {
	return o.EmailSent || o.PushSent > 0
}

// NotifyOnce claims (user, template), then sends email and push.
//
// A duplicate claim returns Outcome{Duplicate: true} and sends nothing. If
// nothing was delivered the claim is released; the call returns
// ErrUndelivered when a channel failed, so the dispatcher can retry.
func (n *Notifier) NotifyOnce(ctx context.Context, note types.Notification) (Outcome, error) {
	var out Outcome
	logger := n.logger.With("user_id", note.UserID, "template", note.Template)

	claimed, err := n.claims.Claim(ctx, note.UserID, note.Template)
	if err != nil {
		return out, err
	}
	if !claimed {
		out.Duplicate = true
		n.metrics.RecordDelivery(ctx, ChannelEmail, string(note.Template), ResultSkipped)
		logger.DebugContext(ctx, "notification already sent")
		return out, nil
	}

	acct, err := n.accounts.GetByID(ctx, note.UserID)
	if err != nil {
		if types.IsCode(err, types.ErrCodeNotFoundAccount) {
			// The account is gone; keep the claim so nothing retries.
			logger.WarnContext(ctx, "notification recipient not found")
			return out, nil
		}
		n.release(ctx, logger, note)
		return out, err
	}

	failed := false

	if n.email != nil && acct.Email != "" {
		if err := n.sendEmail(ctx, acct, note); err != nil {
			failed = true
			n.metrics.RecordDelivery(ctx, ChannelEmail, string(note.Template), ResultFailed)
			logger.ErrorContext(ctx, "notification email failed", "error", err)
		} else {
			out.EmailSent = true
			n.metrics.RecordDelivery(ctx, ChannelEmail, string(note.Template), ResultSent)
		}
	}

	if msg, ok := PushMessageFor(note); ok && n.push != nil && n.tokens != nil {
		out.PushSent, out.PushFailed = n.sendPush(ctx, logger, note, msg)
		if out.PushFailed > 0 && out.PushSent == 0 {
			failed = true
		}
	}

	if !out.Delivered() {
		n.release(ctx, logger, note)
		if failed {
			return out, ErrUndelivered
		}
		logger.InfoContext(ctx, "notification had no deliverable channel")
		return out, nil
	}

	logger.InfoContext(ctx, "notification delivered",
		"email_sent", out.EmailSent,
		"push_sent", out.PushSent,
		"push_failed", out.PushFailed,
	)
	return out, nil
}

func (n *Notifier) sendEmail(ctx context.Context, acct *types.Account, note types.Notification) error {
	if n.renderer == nil {
		return fmt.Errorf("no email renderer configured")
	}
	rendered, err := n.renderer.Render(note.Template, TemplateData{
		Name:     recipientName(acct),
		Plan:     planName(note.Plan),
		DaysLeft: note.DaysLeft,
		AppURL:   n.appURL,
		Year:     n.now().UTC().Year(),
	})
	if err != nil {
		return err
	}
	_, err = n.email.Send(ctx, external.EmailMessage{
		To:       acct.Email,
		Subject:  rendered.Subject,
		BodyHTML: rendered.BodyHTML,
		BodyText: rendered.BodyText,
	})
	return err
}

func (n *Notifier) sendPush(ctx context.Context, logger *slog.Logger, note types.Notification, msg external.PushMessage) (sent, failed int) {
	tokens, err := n.tokens.ListByUser(ctx, note.UserID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load push tokens", "error", err)
		return 0, 1
	}

	for _, tok := range tokens {
		err := n.push.Send(ctx, tok, msg)
		switch {
		case err == nil:
			sent++
			n.metrics.RecordDelivery(ctx, ChannelPush, string(note.Template), ResultSent)
			continue
		case errors.Is(err, external.ErrPushTokenGone):
			if delErr := n.tokens.Delete(ctx, tok.UserID, tok.Token); delErr != nil {
				logger.WarnContext(ctx, "failed to prune push token", "error", delErr)
			}
		case errors.Is(err, external.ErrPushPlatformUnsupported):
			logger.DebugContext(ctx, "push platform not supported", "platform", tok.Platform)
		default:
			logger.ErrorContext(ctx, "push delivery failed", "platform", tok.Platform, "error", err)
		}
		failed++
		n.metrics.RecordDelivery(ctx, ChannelPush, string(note.Template), ResultFailed)
	}
	return sent, failed
}

func (n *Notifier) release(ctx context.Context, logger *slog.Logger, note types.Notification) {
	if err := n.claims.Release(ctx, note.UserID, note.Template); err != nil {
		logger.ErrorContext(ctx, "failed to release notification claim", "error", err)
	}
}

// PushMessageFor returns the push payload for templates that have one.
func PushMessageFor(note types.Notification) (external.PushMessage, bool) {
	switch note.Template {
	case types.TemplateTrialReminderDay5, types.TemplateTrialReminderDay6:
		days := note.DaysLeft
		if days <= 0 {
			days = 2
			if note.Template == types.TemplateTrialReminderDay6 {
				days = 1
			}
		}
		unit := "days"
		if days == 1 {
			unit = "day"
		}
		return external.PushMessage{
			Title: "Trial ending soon",
			Body:  fmt.Sprintf("Your BlackHub trial ends in %d %s. Subscribe to keep listing.", days, unit),
			URL:   "/pricing",
			Type:  "trial_expiring",
		}, true
	case types.TemplateSubscriptionConfirmation:
		return external.PushMessage{
			Title: "Subscription active",
			Body:  fmt.Sprintf("Your %s plan is now active.", planName(note.Plan)),
			URL:   "/dashboard",
			Type:  "subscription_success",
		}, true
	}
	return external.PushMessage{}, false
}

func recipientName(a *types.Account) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.BusinessName
}

func planName(tier types.PlanTier) string {
	if p, ok := subscription.LookupPlan(tier); ok {
		return p.Name
	}
	if tier == "" {
		return "subscription"
	}
	return string(tier)
}
