package proration

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subcycle/subcycle/internal/types"
)

func TestCalculateUpgradeMidCycle(t *testing.T) {
	calc := NewCalculator()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := calc.Calculate(context.Background(), Params{
		Action:          ActionUpgrade,
		OldPrice:        decimal.NewFromInt(10),
		NewPrice:        decimal.NewFromInt(20),
		Cycle:           types.BillingCycleMonthly,
		ProrationDate:   base,
		NextBillingDate: base.AddDate(0, 0, 15),
	})
	require.NoError(t, err)

	assert.EqualValues(t, 15, result.RemainingDays)
	assert.EqualValues(t, 30, result.CycleDays)
	assert.True(t, result.Credit.Equal(decimal.NewFromInt(5)), "credit %s", result.Credit)
	assert.True(t, result.Charge.Equal(decimal.NewFromInt(10)), "charge %s", result.Charge)
	assert.True(t, result.ImmediateCharge.Equal(decimal.NewFromInt(5)), "immediate %s", result.ImmediateCharge)
	assert.True(t, result.NetCredit.IsZero())
}

func TestCalculateDowngradeMidCycle(t *testing.T) {
	calc := NewCalculator()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := calc.Calculate(context.Background(), Params{
		Action:          ActionDowngrade,
		OldPrice:        decimal.NewFromInt(20),
		NewPrice:        decimal.NewFromInt(10),
		Cycle:           types.BillingCycleMonthly,
		ProrationDate:   base,
		NextBillingDate: base.AddDate(0, 0, 15),
	})
	require.NoError(t, err)

	assert.True(t, result.Credit.Equal(decimal.NewFromInt(10)))
	assert.True(t, result.Charge.Equal(decimal.NewFromInt(5)))
	assert.True(t, result.NetCredit.Equal(decimal.NewFromInt(5)))
	assert.True(t, result.ImmediateCharge.IsZero(), "a downgrade never charges")
}

func TestCalculateClampsRemainingDays(t *testing.T) {
	calc := NewCalculator()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// switch after the period end prorates to zero
	result, err := calc.Calculate(context.Background(), Params{
		Action:          ActionUpgrade,
		OldPrice:        decimal.NewFromInt(10),
		NewPrice:        decimal.NewFromInt(20),
		Cycle:           types.BillingCycleMonthly,
		ProrationDate:   base,
		NextBillingDate: base.AddDate(0, 0, -1),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 0, result.RemainingDays)
	assert.True(t, result.ImmediateCharge.IsZero())

	// a gap longer than the nominal cycle clamps to the full cycle
	result, err = calc.Calculate(context.Background(), Params{
		Action:          ActionUpgrade,
		OldPrice:        decimal.NewFromInt(10),
		NewPrice:        decimal.NewFromInt(20),
		Cycle:           types.BillingCycleMonthly,
		ProrationDate:   base,
		NextBillingDate: base.AddDate(0, 0, 45),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 30, result.RemainingDays)
	assert.True(t, result.Coefficient.Equal(decimal.NewFromInt(1)))
}

func TestCalculatePartialDayCountsAsRemaining(t *testing.T) {
	calc := NewCalculator()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	result, err := calc.Calculate(context.Background(), Params{
		Action:          ActionUpgrade,
		OldPrice:        decimal.NewFromInt(10),
		NewPrice:        decimal.NewFromInt(20),
		Cycle:           types.BillingCycleMonthly,
		ProrationDate:   base,
		NextBillingDate: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 15, result.RemainingDays)
}

func TestCalculateAnnualBasis(t *testing.T) {
	calc := NewCalculator()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := calc.Calculate(context.Background(), Params{
		Action:          ActionUpgrade,
		OldPrice:        decimal.NewFromInt(100),
		NewPrice:        decimal.NewFromInt(200),
		Cycle:           types.BillingCycleAnnual,
		ProrationDate:   base,
		NextBillingDate: base.AddDate(0, 0, 73),
	})
	require.NoError(t, err)

	// 73/365 = 0.2
	assert.True(t, result.Credit.Equal(decimal.NewFromInt(20)), "credit %s", result.Credit)
	assert.True(t, result.Charge.Equal(decimal.NewFromInt(40)), "charge %s", result.Charge)
	assert.True(t, result.ImmediateCharge.Equal(decimal.NewFromInt(20)))
}

func TestCalculateValidation(t *testing.T) {
	calc := NewCalculator()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := calc.Calculate(context.Background(), Params{
		Action:          Action("sideways"),
		OldPrice:        decimal.NewFromInt(10),
		NewPrice:        decimal.NewFromInt(20),
		Cycle:           types.BillingCycleMonthly,
		ProrationDate:   base,
		NextBillingDate: base.AddDate(0, 0, 15),
	})
	assert.Error(t, err)

	_, err = calc.Calculate(context.Background(), Params{
		Action:          ActionUpgrade,
		OldPrice:        decimal.NewFromInt(-1),
		NewPrice:        decimal.NewFromInt(20),
		Cycle:           types.BillingCycleMonthly,
		ProrationDate:   base,
		NextBillingDate: base.AddDate(0, 0, 15),
	})
	assert.Error(t, err)

	_, err = calc.Calculate(context.Background(), Params{
		Action:          ActionUpgrade,
		OldPrice:        decimal.NewFromInt(10),
		NewPrice:        decimal.NewFromInt(20),
		Cycle:           types.BillingCycle("fortnightly"),
		ProrationDate:   base,
		NextBillingDate: base.AddDate(0, 0, 15),
	})
	assert.Error(t, err)
}
