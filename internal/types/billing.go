package types

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	ierr "github.com/subcycle/subcycle/internal/errors"
)

// BillingCycle is the cadence at which a subscription is billed.
// It is immutable per subscription instance; changing cadence means a new
// subscription or an explicit migration.
type BillingCycle string

const (
	BillingCycleWeekly     BillingCycle = "weekly"
	BillingCycleMonthly    BillingCycle = "monthly"
	BillingCycleQuarterly  BillingCycle = "quarterly"
	BillingCycleSemiannual BillingCycle = "semiannual"
	BillingCycleAnnual     BillingCycle = "annual"
)

func (c BillingCycle) String() string {
	return string(c)
}

func (c BillingCycle) Validate() error {
	allowed := []BillingCycle{
		BillingCycleWeekly,
		BillingCycleMonthly,
		BillingCycleQuarterly,
		BillingCycleSemiannual,
		BillingCycleAnnual,
	}
	if !lo.Contains(allowed, c) {
		return ierr.NewError("invalid billing cycle").
			WithHint("Invalid billing cycle").
			WithReportableDetails(map[string]any{
				"billing_cycle":  c,
				"allowed_cycles": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Days returns the nominal day count of the cycle used for proration.
// This is intentionally a simplified basis, not a calendar-exact one:
// changing it would change proration amounts.
func (c BillingCycle) Days() int64 {
	switch c {
	case BillingCycleWeekly:
		return 7
	case BillingCycleQuarterly:
		return 90
	case BillingCycleSemiannual:
		return 180
	case BillingCycleAnnual:
		return 365
	default:
		return 30
	}
}

// MRRFromPrice normalizes a cycle price to its monthly recurring revenue
// equivalent. Weekly is normalized on the 52-weeks-a-year basis.
func (c BillingCycle) MRRFromPrice(price decimal.Decimal) decimal.Decimal {
	switch c {
	case BillingCycleWeekly:
		// 52 weeks / 12 months
		return price.Mul(decimal.NewFromInt(52)).Div(decimal.NewFromInt(12)).Round(2)
	case BillingCycleQuarterly:
		return price.Div(decimal.NewFromInt(3)).Round(2)
	case BillingCycleSemiannual:
		return price.Div(decimal.NewFromInt(6)).Round(2)
	case BillingCycleAnnual:
		return price.Div(decimal.NewFromInt(12)).Round(2)
	default:
		return price.Round(2)
	}
}

// NextBillingDate advances start by one billing cycle. Month-based cycles use
// calendar arithmetic with day-of-month clamping so that Jan 31 + monthly
// lands on the last day of February rather than spilling into March.
func NextBillingDate(start time.Time, cycle BillingCycle) (time.Time, error) {
	switch cycle {
	case BillingCycleWeekly:
		return AddClampedDate(start, 0, 0, 7), nil
	case BillingCycleMonthly:
		return AddClampedDate(start, 0, 1, 0), nil
	case BillingCycleQuarterly:
		return AddClampedDate(start, 0, 3, 0), nil
	case BillingCycleSemiannual:
		return AddClampedDate(start, 0, 6, 0), nil
	case BillingCycleAnnual:
		return AddClampedDate(start, 1, 0, 0), nil
	default:
		return start, ierr.NewError("invalid billing cycle").
			WithHintf("cannot compute next billing date for cycle %q", cycle).
			Mark(ierr.ErrValidation)
	}
}

// AddClampedDate adds the given years/months/days to t, clamping the day of
// month to the last valid day instead of time.AddDate's overflow behavior.
func AddClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	newY := y + years
	newM := time.Month(int(m) + months)

	// If we move beyond December, it adjusts correctly,
	// for example adding 2 months to November will land on January next year.
	for newM > 12 {
		newM -= 12
		newY++
	}
	for newM < 1 {
		newM += 12
		newY--
	}

	// Find the last valid day of the new month
	firstOfNextMonth := time.Date(newY, newM+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNextMonth.Add(-24 * time.Hour).Day()

	newD := d
	if newD > lastDay {
		newD = lastDay
	}

	result := time.Date(newY, newM, newD, h, min, sec, t.Nanosecond(), t.Location())
	if days != 0 {
		result = result.AddDate(0, 0, days)
	}
	return result
}
