package plan

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"

	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/types"
)

// PriceTable maps a billing cycle to its price. Stored as a JSONB column.
type PriceTable map[types.BillingCycle]decimal.Decimal

// Value implements driver.Valuer for JSONB storage
func (p PriceTable) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for JSONB storage
func (p *PriceTable) Scan(src any) error {
	if src == nil {
		*p = PriceTable{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return ierr.NewError("unsupported price table column type").
			Mark(ierr.ErrDatabase)
	}
	return json.Unmarshal(b, p)
}

// Plan is a catalog entry. Prices are read at plan-change time and
// snapshotted onto the subscription; the catalog is never consulted for a
// subscription's current price.
type Plan struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	LookupKey   string `db:"lookup_key" json:"lookup_key"`
	Description string `db:"description" json:"description"`

	// TrialPeriodDays > 0 means new subscriptions start in trial
	TrialPeriodDays int `db:"trial_period_days" json:"trial_period_days"`

	Prices PriceTable `db:"prices" json:"prices"`

	// Lifecycle rules, resolved by the lifecycle engine when the caller
	// does not force a timing
	CancellationPolicy types.CancellationPolicy `db:"cancellation_policy" json:"cancellation_policy"`
	UpgradePolicy      types.ChangeTimingPolicy `db:"upgrade_policy" json:"upgrade_policy"`
	DowngradePolicy    types.ChangeTimingPolicy `db:"downgrade_policy" json:"downgrade_policy"`

	types.BaseModel
}

// GetPriceForCycle returns the plan's price for the given billing cycle.
func (p *Plan) GetPriceForCycle(cycle types.BillingCycle) (decimal.Decimal, error) {
	price, ok := p.Prices[cycle]
	if !ok {
		return decimal.Zero, ierr.NewError("plan has no price for billing cycle").
			WithHintf("Plan %s does not offer the %s cycle", p.Name, cycle).
			WithReportableDetails(map[string]any{
				"plan_id":       p.ID,
				"billing_cycle": cycle,
			}).
			Mark(ierr.ErrValidation)
	}
	if price.IsNegative() {
		return decimal.Zero, ierr.NewError("plan price cannot be negative").
			WithReportableDetails(map[string]any{
				"plan_id":       p.ID,
				"billing_cycle": cycle,
				"price":         price,
			}).
			Mark(ierr.ErrValidation)
	}
	return price, nil
}

// HasTrial reports whether new subscriptions to this plan begin in trial.
func (p *Plan) HasTrial() bool {
	return p.TrialPeriodDays > 0
}

// ResolvedCancellationPolicy falls back to end_of_period, the catalog default.
func (p *Plan) ResolvedCancellationPolicy() types.CancellationPolicy {
	if p.CancellationPolicy == "" {
		return types.CancellationPolicyEndOfPeriod
	}
	return p.CancellationPolicy
}

// ResolvedUpgradePolicy falls back to immediate: upgrades charge now by default.
func (p *Plan) ResolvedUpgradePolicy() types.ChangeTimingPolicy {
	if p.UpgradePolicy == "" {
		return types.ChangeTimingPolicyImmediate
	}
	return p.UpgradePolicy
}

// ResolvedDowngradePolicy falls back to end_of_period: downgrades defer by default.
func (p *Plan) ResolvedDowngradePolicy() types.ChangeTimingPolicy {
	if p.DowngradePolicy == "" {
		return types.ChangeTimingPolicyEndOfPeriod
	}
	return p.DowngradePolicy
}
