package types

import "time"

// Account is the profile row for an authenticated identity.
type Account struct {
	ID                    string    `json:"id"`
	Email                 string    `json:"email"`
	Role                  Role      `json:"role"`
	Country               Country   `json:"country"`
	DisplayName           string    `json:"display_name,omitempty"`
	BusinessName          string    `json:"business_name,omitempty"`
	Phone                 string    `json:"phone,omitempty"`
	Suspended             bool      `json:"suspended"`
	VerifiedSeller        bool      `json:"verified_seller"`
	ReferralCode          *string   `json:"referral_code,omitempty"`
	ReferredBy            *string   `json:"referred_by,omitempty"`
	ReferralEarningsCents int64     `json:"referral_earnings_cents"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// IsSeller reports whether the account is subject to subscription gating.
func (a *Account) IsSeller() bool {
	return a.Role == RoleSeller
}

// Subscription is the single subscription row of a seller.
// TrialEndsAt is meaningful only while trialing and CurrentPeriodEndsAt only
// while active.
type Subscription struct {
	UserID              string             `json:"user_id"`
	Plan                PlanTier           `json:"plan"`
	Status              SubscriptionStatus `json:"status"`
	TrialEndsAt         *time.Time         `json:"trial_ends_at,omitempty"`
	CurrentPeriodEndsAt *time.Time         `json:"current_period_ends_at,omitempty"`
	AmountCents         *int64             `json:"amount_cents,omitempty"`
	Currency            *Currency          `json:"currency,omitempty"`
	PaymentProvider     string             `json:"payment_provider,omitempty"`
	PaymentReference    *string            `json:"payment_reference,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// SubscriptionActivation carries the absolute values written when a payment
// succeeds. Applying the same activation twice yields the same row.
type SubscriptionActivation struct {
	UserID           string
	Plan             PlanTier
	PeriodEndsAt     time.Time
	AmountCents      int64
	Currency         Currency
	PaymentReference string
}

// ReferralEarning is an append-only ledger entry.
type ReferralEarning struct {
	ID          string         `json:"id"`
	ReferrerID  string         `json:"referrer_id"`
	ReferredID  string         `json:"referred_id"`
	AmountCents int64          `json:"amount_cents"`
	Source      ReferralSource `json:"source"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CheckoutSession records one gateway transaction initiation.
type CheckoutSession struct {
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id"`
	Plan      PlanTier        `json:"plan"`
	Interval  BillingInterval `json:"interval"`
	Status    CheckoutStatus  `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Listing is a product offered by a seller.
type Listing struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"seller_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Currency    Currency  `json:"currency"`
	Category    string    `json:"category,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListingPatch holds optional listing updates. Nil fields are unchanged.
type ListingPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
	Category    *string `json:"category,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
}

// PushToken is a device or browser registration for push delivery.
// For web push the token is the JSON-encoded PushSubscription.
type PushToken struct {
	UserID    string       `json:"user_id"`
	Token     string       `json:"token"`
	Platform  PushPlatform `json:"platform"`
	CreatedAt time.Time    `json:"created_at"`
}

// TrialReminderTarget is a trialing seller due for a reminder.
type TrialReminderTarget struct {
	UserID      string
	Email       string
	TrialEndsAt time.Time
}

// Notification is a request to deliver one lifecycle template to a user over
// every configured channel. It is serialized onto the notification queue.
type Notification struct {
	UserID     string       `json:"user_id"`
	Template   TemplateType `json:"template"`
	Plan       PlanTier     `json:"plan,omitempty"`
	DaysLeft   int          `json:"days_left,omitempty"`
	RequestID  string       `json:"request_id,omitempty"`
	Attempt    int          `json:"attempt,omitempty"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}
