package proration

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/subcycle/subcycle/internal/types"
)

// Action is the plan change direction being prorated.
type Action string

const (
	ActionUpgrade   Action = "upgrade"
	ActionDowngrade Action = "downgrade"
)

// Params describes a mid-cycle plan switch to prorate.
type Params struct {
	Action Action

	// OldPrice and NewPrice are the full-cycle prices being switched between.
	OldPrice decimal.Decimal
	NewPrice decimal.Decimal

	// Cycle supplies the nominal day-count basis (7/30/90/180/365).
	Cycle types.BillingCycle

	// ProrationDate is the instant of the switch; NextBillingDate bounds the
	// remaining period.
	ProrationDate   time.Time
	NextBillingDate time.Time
}

// Result is the outcome of a proration calculation.
//
// Credit and Charge are the symmetric partial-period amounts. The asymmetry
// between the two directions lives in the derived fields: an upgrade charges
// ImmediateCharge = max(0, charge - credit) now, while a downgrade books
// NetCredit = max(0, credit - charge) and never charges.
type Result struct {
	Credit decimal.Decimal
	Charge decimal.Decimal

	ImmediateCharge decimal.Decimal
	NetCredit       decimal.Decimal

	RemainingDays int64
	CycleDays     int64
	Coefficient   decimal.Decimal
}
