package subscription

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/types"
)

// Subscription is the ledger row: the durable record of a subscriber's plan,
// status, billing cycle and dates. It is the source of truth for every
// lifecycle transition and is mutated only inside the lifecycle service's
// transactional operations.
type Subscription struct {
	// ID is the unique identifier for the subscription
	ID string `db:"id" json:"id"`

	// CustomerID is the owning customer; immutable after creation
	CustomerID string `db:"customer_id" json:"customer_id"`

	// PlanID is the current plan reference; mutable only through
	// upgrade/downgrade
	PlanID string `db:"plan_id" json:"plan_id"`

	// PlanName is a display snapshot taken at the last plan change
	PlanName string `db:"plan_name" json:"plan_name"`

	// SubscriptionStatus is the lifecycle status of the subscription
	SubscriptionStatus types.SubscriptionStatus `db:"subscription_status" json:"subscription_status"`

	// BillingCycle is immutable per subscription instance
	BillingCycle types.BillingCycle `db:"billing_cycle" json:"billing_cycle"`

	// CurrentPrice is a snapshot of the plan price at the last plan change,
	// not a live plan lookup. Never negative.
	CurrentPrice decimal.Decimal `db:"current_price" json:"current_price"`

	// Currency is the lowercase 3 letter ISO code
	Currency string `db:"currency" json:"currency"`

	StartDate       time.Time  `db:"start_date" json:"start_date"`
	EndDate         *time.Time `db:"end_date" json:"end_date"`
	TrialStart      *time.Time `db:"trial_start" json:"trial_start"`
	TrialEnd        *time.Time `db:"trial_end" json:"trial_end"`
	NextBillingDate *time.Time `db:"next_billing_date" json:"next_billing_date"`
	LastBillingDate *time.Time `db:"last_billing_date" json:"last_billing_date"`
	CanceledAt      *time.Time `db:"canceled_at" json:"canceled_at"`
	PausedAt        *time.Time `db:"paused_at" json:"paused_at"`
	ResumedAt       *time.Time `db:"resumed_at" json:"resumed_at"`

	// AutoRenew is false whenever the subscription is canceled or a
	// cancellation is scheduled
	AutoRenew bool `db:"auto_renew" json:"auto_renew"`

	// ProratedCredits is the running ledger of credits owed from plan
	// switches. Monotonically adjusted, never implicitly reset.
	ProratedCredits decimal.Decimal `db:"prorated_credits" json:"prorated_credits"`

	CancellationReason string     `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancellationNote   string     `db:"cancellation_note" json:"cancellation_note,omitempty"`
	PauseReason        string     `db:"pause_reason" json:"pause_reason,omitempty"`
	PausedUntil        *time.Time `db:"paused_until" json:"paused_until,omitempty"`

	// BillingAttempts counts consecutive failed renewal attempts.
	// Reset to 0 on successful renewal.
	BillingAttempts int `db:"billing_attempts" json:"billing_attempts"`

	// Churn risk block, derived and recomputed on demand
	ChurnRiskScore          int                   `db:"churn_risk_score" json:"churn_risk_score"`
	ChurnRiskLevel          types.ChurnRiskLevel  `db:"churn_risk_level" json:"churn_risk_level"`
	ChurnRiskFactors        pq.StringArray        `db:"churn_risk_factors" json:"churn_risk_factors"`
	ChurnRiskLastCalculated *time.Time            `db:"churn_risk_last_calculated" json:"churn_risk_last_calculated"`

	SeatsAllocated int `db:"seats_allocated" json:"seats_allocated"`
	SeatsUsed      int `db:"seats_used" json:"seats_used"`

	types.BaseModel
}

// IsActive reports whether the subscription is serving its plan. Trial
// subscriptions are active for this purpose.
func (s *Subscription) IsActive() bool {
	return s.SubscriptionStatus == types.SubscriptionStatusActive ||
		s.SubscriptionStatus == types.SubscriptionStatusTrial
}

// IsInTrial reports whether now falls inside the trial window.
func (s *Subscription) IsInTrial(now time.Time) bool {
	if s.SubscriptionStatus != types.SubscriptionStatusTrial || s.TrialEnd == nil {
		return false
	}
	return now.Before(*s.TrialEnd)
}

// TrialDaysRemaining returns the whole days left in the trial, 0 when not in
// trial or already past the trial end.
func (s *Subscription) TrialDaysRemaining(now time.Time) int {
	if !s.IsInTrial(now) {
		return 0
	}
	days := int(s.TrialEnd.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// CanRenew reports whether a renewal is allowed from the current status.
func (s *Subscription) CanRenew() bool {
	switch s.SubscriptionStatus {
	case types.SubscriptionStatusActive,
		types.SubscriptionStatusPastDue,
		types.SubscriptionStatusTrial:
		return true
	default:
		return false
	}
}

// MRR is the subscription price normalized to a monthly equivalent.
func (s *Subscription) MRR() decimal.Decimal {
	if !s.IsActive() {
		return decimal.Zero
	}
	return s.BillingCycle.MRRFromPrice(s.CurrentPrice)
}

// AgeDays returns whole days since the subscription started.
func (s *Subscription) AgeDays(now time.Time) int {
	days := int(now.Sub(s.StartDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Validate checks the ledger invariants that hold outside any transition.
func (s *Subscription) Validate() error {
	if err := s.SubscriptionStatus.Validate(); err != nil {
		return err
	}
	if err := s.BillingCycle.Validate(); err != nil {
		return err
	}
	if s.CurrentPrice.IsNegative() {
		return ierr.NewError("current price cannot be negative").
			WithHint("Subscription price must be zero or positive").
			WithReportableDetails(map[string]any{
				"subscription_id": s.ID,
				"current_price":   s.CurrentPrice,
			}).
			Mark(ierr.ErrValidation)
	}
	if s.SeatsAllocated < 1 {
		return ierr.NewError("seats allocated must be at least 1").
			WithHint("A subscription needs at least one allocated seat").
			Mark(ierr.ErrValidation)
	}
	if s.SeatsUsed < 0 || s.SeatsUsed > s.SeatsAllocated {
		return ierr.NewError("seats used out of range").
			WithHint("Used seats must be between 0 and the allocated seats").
			WithReportableDetails(map[string]any{
				"seats_allocated": s.SeatsAllocated,
				"seats_used":      s.SeatsUsed,
			}).
			Mark(ierr.ErrValidation)
	}
	if s.SubscriptionStatus == types.SubscriptionStatusCanceled && s.AutoRenew {
		return ierr.NewError("canceled subscription cannot auto renew").
			Mark(ierr.ErrValidation)
	}
	return nil
}
