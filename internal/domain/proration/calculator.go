package proration

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	ierr "github.com/subcycle/subcycle/internal/errors"
)

// Calculator computes partial-period credits and charges for mid-cycle plan
// switches.
type Calculator interface {
	Calculate(ctx context.Context, params Params) (*Result, error)
}

// NewCalculator returns the day-based calculator. The day basis is the
// cycle's nominal day count, not the calendar length of the current period;
// changing that basis would change proration amounts.
func NewCalculator() Calculator {
	return &dayBasedCalculator{}
}

type dayBasedCalculator struct{}

func (c *dayBasedCalculator) Calculate(ctx context.Context, params Params) (*Result, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	cycleDays := params.Cycle.Days()

	// Remaining days until the next billing date, clamped to the nominal
	// cycle length. A started day counts as remaining; a switch after the
	// period end prorates to zero.
	remainingDays := int64(math.Ceil(params.NextBillingDate.Sub(params.ProrationDate).Hours() / 24))
	if remainingDays < 0 {
		remainingDays = 0
	}
	if remainingDays > cycleDays {
		remainingDays = cycleDays
	}

	coefficient := decimal.NewFromInt(remainingDays).Div(decimal.NewFromInt(cycleDays))

	credit := params.OldPrice.Mul(coefficient).Round(2)
	charge := params.NewPrice.Mul(coefficient).Round(2)

	result := &Result{
		Credit:          credit,
		Charge:          charge,
		ImmediateCharge: decimal.Max(decimal.Zero, charge.Sub(credit)),
		NetCredit:       decimal.Max(decimal.Zero, credit.Sub(charge)),
		RemainingDays:   remainingDays,
		CycleDays:       cycleDays,
		Coefficient:     coefficient,
	}

	return result, nil
}

func validateParams(params Params) error {
	if err := params.Cycle.Validate(); err != nil {
		return err
	}
	if params.Action != ActionUpgrade && params.Action != ActionDowngrade {
		return ierr.NewError("invalid proration action").
			WithReportableDetails(map[string]any{"action": params.Action}).
			Mark(ierr.ErrValidation)
	}
	if params.OldPrice.IsNegative() || params.NewPrice.IsNegative() {
		return ierr.NewError("proration prices cannot be negative").
			WithReportableDetails(map[string]any{
				"old_price": params.OldPrice,
				"new_price": params.NewPrice,
			}).
			Mark(ierr.ErrValidation)
	}
	if params.ProrationDate.IsZero() || params.NextBillingDate.IsZero() {
		return ierr.NewError("proration requires both a proration date and a next billing date").
			Mark(ierr.ErrValidation)
	}
	return nil
}
