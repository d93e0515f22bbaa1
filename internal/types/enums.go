package types

// Role is fixed at onboarding.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Country determines an account's default billing currency.
type Country string

const (
	CountryNG  Country = "NG"
	CountryINT Country = "INT"
)

// PlanTier identifies a seller subscription plan.
type PlanTier string

const (
	PlanStarter PlanTier = "starter"
	PlanPro     PlanTier = "pro"
)

// SubscriptionStatus is the lifecycle state of a seller subscription.
type SubscriptionStatus string

const (
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	// SubscriptionCanceled has no writer. It is accepted when read from the
	// store and never grants access.
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Currency is an ISO 4217 code supported by the payment gateway.
type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyUSD Currency = "USD"
)

// BillingInterval selects monthly or discounted yearly billing.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// CheckoutStatus tracks a gateway transaction initiated by a checkout.
type CheckoutStatus string

const (
	CheckoutPending   CheckoutStatus = "pending"
	CheckoutCompleted CheckoutStatus = "completed"
)

// ReferralSource names the lifecycle event that earned a commission.
type ReferralSource string

const (
	ReferralSourceSignup       ReferralSource = "seller_signup"
	ReferralSourceSubscription ReferralSource = "subscription"
)

// TemplateType identifies a lifecycle notification. Each template is sent
// at most once per user.
type TemplateType string

const (
	TemplateWelcome                     TemplateType = "welcome"
	TemplateTrialReminderDay5           TemplateType = "trial_reminder_day5"
	TemplateTrialReminderDay6           TemplateType = "trial_reminder_day6"
	TemplateSubscriptionConfirmation    TemplateType = "subscription_confirmation"
	TemplateSubscriptionRenewalReminder TemplateType = "subscription_renewal_reminder"
)

// PushPlatform identifies where a push token was issued.
type PushPlatform string

const (
	PushPlatformWeb         PushPlatform = "web"
	PushPlatformExpoIOS     PushPlatform = "expo_ios"
	PushPlatformExpoAndroid PushPlatform = "expo_android"
)

// PaymentProvider names the gateway recorded on a subscription.
const PaymentProviderPaystack = "paystack"
