// Package referral manages referral codes and the commission ledger that
// credits referrers when the sellers they invited sign up and pay.
package referral

import (
	"context"
	"crypto/rand"
	"log/slog"
	"math/big"
	"strings"

	"blackhub/internal/types"
)

const (
	// SignupCommission is credited once when a referred seller signs up.
	SignupCommission int64 = 500

	// minPaymentCommission is the floor applied to payment commissions.
	minPaymentCommission int64 = 500

	codePrefix     = "BH"
	codeLength     = 8
	codeAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempt = 5

	// RecentEarningsLimit bounds the earnings list in Summary.
	RecentEarningsLimit = 20
)

// Commission returns 10% of a payment in minor units, rounded half up, with a
// floor of 500.
func Commission(amountCents int64) int64 {
	if amountCents < 0 {
		amountCents = 0
	}
	return max(minPaymentCommission, (amountCents+5)/10)
}

// GenerateCode returns "BH" followed by 8 uniformly random characters from
// [A-Z0-9].
func GenerateCode() (string, error) {
	var b strings.Builder
	b.Grow(len(codePrefix) + codeLength)
	b.WriteString(codePrefix)

	limit := big.NewInt(int64(len(codeAlphabet)))
	for range codeLength {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate referral code", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// AccountStore is the subset of account persistence the ledger needs.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*types.Account, error)
	GetByReferralCode(ctx context.Context, code string) (*types.Account, error)
	SetReferralCode(ctx context.Context, id, code string) (string, error)
}

// EarningsStore appends commissions and reads them back.
type EarningsStore interface {
	Credit(ctx context.Context, e types.ReferralEarning, dedupeKey string) (bool, error)
	ListRecent(ctx context.Context, referrerID string, limit int) ([]types.ReferralEarning, error)
}

// Link is a user's shareable referral code and signup URL.
type Link struct {
	Code string `json:"code"`
	Link string `json:"link"`
}

// Summary is the referral dashboard for one user.
type Summary struct {
	Link
	BalanceCents int64                   `json:"balance_cents"`
	Earnings     []types.ReferralEarning `json:"earnings"`
}

// Ledger credits commissions and hands out referral links.
type Ledger struct {
	accounts AccountStore
	earnings EarningsStore
	appURL   string
	newCode  func() (string, error)
	logger   *slog.Logger
}

// NewLedger creates a Ledger. appURL is the public site origin used to build
// signup links.
func NewLedger(accounts AccountStore, earnings EarningsStore, appURL string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		accounts: accounts,
		earnings: earnings,
		appURL:   strings.TrimSuffix(appURL, "/"),
		newCode:  GenerateCode,
		logger:   logger,
	}
}

// LinkFor returns the user's referral link, minting and storing a code the
// first time. Collisions with another account's code are retried.
func (l *Ledger) LinkFor(ctx context.Context, userID string) (*Link, error) {
	acct, err := l.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acct.ReferralCode != nil && *acct.ReferralCode != "" {
		return l.link(*acct.ReferralCode), nil
	}

	var lastErr error
	for range maxCodeAttempt {
		code, err := l.newCode()
		if err != nil {
			return nil, err
		}
		stored, err := l.accounts.SetReferralCode(ctx, userID, code)
		if err == nil {
			return l.link(stored), nil
		}
		if !types.IsCode(err, types.ErrCodeConflictReferralCode) {
			return nil, err
		}
		lastErr = err
	}
	return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "could not allocate a unique referral code", lastErr)
}

func (l *Ledger) link(code string) *Link {
	return &Link{Code: code, Link: l.appURL + "/signup?ref=" + code}
}

// Summary returns the link, balance and most recent earnings.
func (l *Ledger) Summary(ctx context.Context, userID string) (*Summary, error) {
	link, err := l.LinkFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Re-read so the balance reflects credits applied since the first lookup.
	acct, err := l.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	earnings, err := l.earnings.ListRecent(ctx, userID, RecentEarningsLimit)
	if err != nil {
		return nil, err
	}
	return &Summary{Link: *link, BalanceCents: acct.ReferralEarningsCents, Earnings: earnings}, nil
}

// ResolveCode maps a referral code to the referrer's account ID. Unknown
// codes and self-referrals resolve to ok=false without error.
func (l *Ledger) ResolveCode(ctx context.Context, code, referredID string) (string, bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", false, nil
	}
	acct, err := l.accounts.GetByReferralCode(ctx, code)
	if err != nil {
		if types.IsCode(err, types.ErrCodeNotFoundAccount) {
			return "", false, nil
		}
		return "", false, err
	}
	if acct.ID == referredID {
		return "", false, nil
	}
	return acct.ID, true, nil
}

// CreditSignup credits SignupCommission for a referred seller. The referred
// user ID is the dedupe key, so each seller pays out once.
func (l *Ledger) CreditSignup(ctx context.Context, referrerID, referredID string) (bool, error) {
	return l.credit(ctx, types.ReferralEarning{
		ReferrerID:  referrerID,
		ReferredID:  referredID,
		AmountCents: SignupCommission,
		Source:      types.ReferralSourceSignup,
	}, referredID)
}

// CreditPayment credits Commission(amountCents) for a referred user's payment.
// The payment reference is the dedupe key, so redelivered webhooks do not
// double-credit.
func (l *Ledger) CreditPayment(ctx context.Context, referrerID, referredID string, amountCents int64, paymentRef string) (bool, error) {
	if paymentRef == "" {
		return false, types.NewAppError(types.ErrCodeValidationMissingField, "payment reference is required for referral credit", nil)
	}
	return l.credit(ctx, types.ReferralEarning{
		ReferrerID:  referrerID,
		ReferredID:  referredID,
		AmountCents: Commission(amountCents),
		Source:      types.ReferralSourceSubscription,
	}, paymentRef)
}

func (l *Ledger) credit(ctx context.Context, e types.ReferralEarning, dedupeKey string) (bool, error) {
	if e.ReferrerID == "" || e.ReferrerID == e.ReferredID {
		return false, nil
	}
	applied, err := l.earnings.Credit(ctx, e, dedupeKey)
	if err != nil {
		return false, err
	}
	if applied {
		l.logger.InfoContext(ctx, "referral commission credited",
			"referrer_id", e.ReferrerID,
			"referred_id", e.ReferredID,
			"source", e.Source,
			"amount_cents", e.AmountCents,
		)
	} else {
		l.logger.DebugContext(ctx, "referral commission already credited",
			"referrer_id", e.ReferrerID,
			"source", e.Source,
			"dedupe_key", dedupeKey,
		)
	}
	return applied, nil
}
