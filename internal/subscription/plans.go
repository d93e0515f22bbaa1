package subscription

import (
	"fmt"
	"time"

	"blackhub/internal/types"
)

// Plan describes a seller plan. MaxListings of 0 means unlimited.
type Plan struct {
	Tier        types.PlanTier
	Name        string
	MaxListings int
	// MonthlyPrice holds minor units (kobo, cents) per currency.
	MonthlyPrice map[types.Currency]int64
}

// yearlyDiscountPercent is applied to twelve monthly charges.
const yearlyDiscountPercent = 20

var catalog = map[types.PlanTier]Plan{
	types.PlanStarter: {
		Tier:        types.PlanStarter,
		Name:        "Starter",
		MaxListings: 5,
		MonthlyPrice: map[types.Currency]int64{
			types.CurrencyNGN: 500000,
			types.CurrencyUSD: 900,
		},
	},
	types.PlanPro: {
		Tier:        types.PlanPro,
		Name:        "Pro",
		MaxListings: 0,
		MonthlyPrice: map[types.Currency]int64{
			types.CurrencyNGN: 1000000,
			types.CurrencyUSD: 1900,
		},
	},
}

// LookupPlan returns the catalog entry for tier.
func LookupPlan(tier types.PlanTier) (Plan, bool) {
	p, ok := catalog[tier]
	return p, ok
}

// ChargeAmount returns the amount in minor units for one billing period.
// Yearly charges are twelve months less the yearly discount, rounded to the
// nearest minor unit.
func ChargeAmount(tier types.PlanTier, currency types.Currency, interval types.BillingInterval) (int64, error) {
	plan, ok := catalog[tier]
	if !ok {
		return 0, types.NewAppError(types.ErrCodeValidationInvalidPlan, fmt.Sprintf("unknown plan %q", tier), nil)
	}
	monthly, ok := plan.MonthlyPrice[currency]
	if !ok {
		return 0, types.NewAppError(types.ErrCodeValidationInvalidCurrency, fmt.Sprintf("unsupported currency %q", currency), nil)
	}

	switch interval {
	case types.IntervalMonthly, "":
		return monthly, nil
	case types.IntervalYearly:
		return yearlyPrice(monthly), nil
	default:
		return 0, types.NewAppError(types.ErrCodeValidationInvalidInput, fmt.Sprintf("unsupported billing interval %q", interval), nil)
	}
}

// yearlyPrice rounds half away from zero in integer arithmetic.
func yearlyPrice(monthly int64) int64 {
	scaled := monthly * 12 * (100 - yearlyDiscountPercent)
	return (scaled + 50) / 100
}

// PeriodEnd returns the end of a billing period starting at from.
func PeriodEnd(from time.Time, interval types.BillingInterval) time.Time {
	if interval == types.IntervalYearly {
		return from.AddDate(0, 12, 0)
	}
	return from.AddDate(0, 1, 0)
}

// DefaultCurrency returns the billing currency for a country.
func DefaultCurrency(country types.Country) types.Currency {
	if country == types.CountryNG {
		return types.CurrencyNGN
	}
	return types.CurrencyUSD
}

// WithinListingLimit reports whether a seller on tier may hold one more
// listing than current.
func WithinListingLimit(tier types.PlanTier, current int) bool {
	plan, ok := catalog[tier]
	if !ok {
		plan = catalog[types.PlanStarter]
	}
	return plan.MaxListings == 0 || current < plan.MaxListings
}
