package dto

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/subcycle/subcycle/internal/domain/payment"
	"github.com/subcycle/subcycle/internal/domain/subscription"
	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/types"
	"github.com/subcycle/subcycle/internal/validator"
)

type CreateSubscriptionRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
	// ExternalCustomerID may be supplied instead of CustomerID
	ExternalCustomerID string `json:"external_customer_id,omitempty" validate:"-"`

	PlanID       string             `json:"plan_id" validate:"required"`
	BillingCycle types.BillingCycle `json:"billing_cycle" validate:"required"`
	Currency     string             `json:"currency,omitempty"`
	StartDate    time.Time          `json:"start_date,omitempty"`
	Seats        int                `json:"seats,omitempty" validate:"omitempty,gte=1"`

	// PaymentData, when present with a positive amount, records the initial
	// charge alongside the created subscription
	PaymentData *payment.PaymentData `json:"payment_data,omitempty"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	if r.CustomerID == "" && r.ExternalCustomerID != "" {
		// resolved by the service; bypass the required tag
		r.CustomerID = r.ExternalCustomerID
	}
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.BillingCycle.Validate()
}

// ToSubscription builds the initial ledger row. The service fills in
// trial/billing dates and the price snapshot from the plan.
func (r *CreateSubscriptionRequest) ToSubscription(ctx context.Context) *subscription.Subscription {
	now := time.Now().UTC()
	if r.StartDate.IsZero() {
		r.StartDate = now
	}
	seats := r.Seats
	if seats == 0 {
		seats = 1
	}

	return &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		CustomerID:         r.CustomerID,
		PlanID:             r.PlanID,
		SubscriptionStatus: types.SubscriptionStatusActive,
		BillingCycle:       r.BillingCycle,
		Currency:           strings.ToLower(r.Currency),
		StartDate:          r.StartDate.UTC(),
		AutoRenew:          true,
		ProratedCredits:    decimal.Zero,
		SeatsAllocated:     seats,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}
}

type RenewSubscriptionRequest struct {
	PaymentData *payment.PaymentData `json:"payment_data,omitempty"`
}

type CancelSubscriptionRequest struct {
	Reason        string     `json:"reason,omitempty"`
	Note          string     `json:"note,omitempty"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	// Immediate overrides the plan's cancellation policy
	Immediate bool `json:"immediate,omitempty"`
}

type UpgradeSubscriptionRequest struct {
	NewPlanID string `json:"new_plan_id" validate:"required"`
	// Immediate forces an immediate charge regardless of the plan's
	// upgrade policy
	Immediate   bool                 `json:"immediate,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	PaymentData *payment.PaymentData `json:"payment_data,omitempty"`
}

func (r *UpgradeSubscriptionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type DowngradeSubscriptionRequest struct {
	NewPlanID string `json:"new_plan_id" validate:"required"`
	Immediate bool   `json:"immediate,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (r *DowngradeSubscriptionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type PauseSubscriptionRequest struct {
	Reason      string     `json:"reason,omitempty"`
	PausedUntil *time.Time `json:"paused_until,omitempty"`
}

func (r *PauseSubscriptionRequest) Validate() error {
	if r.PausedUntil != nil && !r.PausedUntil.After(time.Now().UTC()) {
		return ierr.NewError("paused_until must be in the future").
			WithHint("The pause end date must be in the future").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// SubscriptionResponse is the read projection of a ledger row with the
// derived fields callers dashboard on.
type SubscriptionResponse struct {
	*subscription.Subscription

	IsActive           bool            `json:"is_active"`
	IsInTrial          bool            `json:"is_in_trial"`
	TrialDaysRemaining int             `json:"trial_days_remaining"`
	MRR                decimal.Decimal `json:"mrr"`

	ScheduledChanges []*subscription.ScheduledChange `json:"scheduled_changes,omitempty"`
}

// NewSubscriptionResponse computes the projection at the given instant.
func NewSubscriptionResponse(sub *subscription.Subscription, changes []*subscription.ScheduledChange, now time.Time) *SubscriptionResponse {
	return &SubscriptionResponse{
		Subscription:       sub,
		IsActive:           sub.IsActive(),
		IsInTrial:          sub.IsInTrial(now),
		TrialDaysRemaining: sub.TrialDaysRemaining(now),
		MRR:                sub.MRR(),
		ScheduledChanges:   changes,
	}
}

type ListSubscriptionsResponse struct {
	Subscriptions []*SubscriptionResponse `json:"subscriptions"`
	Total         int                     `json:"total"`
	Offset        int                     `json:"offset"`
	Limit         int                     `json:"limit"`
}

// UserActivity is the usage signal consumed by the churn estimator.
type UserActivity struct {
	LastLoginDays  int `json:"last_login_days"`
	SupportTickets int `json:"support_tickets"`
}

type ChurnRiskResponse struct {
	SubscriptionID string                  `json:"subscription_id"`
	Score          int                     `json:"score"`
	Level          types.ChurnRiskLevel    `json:"level"`
	Factors        []types.ChurnRiskFactor `json:"factors"`
	LastCalculated time.Time               `json:"last_calculated"`
}

// RenewalRunResponse summarizes one pass of the renewal/dunning scan.
type RenewalRunResponse struct {
	Processed int `json:"processed"`
	Renewed   int `json:"renewed"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
	Skipped   int `json:"skipped"`
}

// ScheduledChangeRunResponse summarizes one pass over due scheduled changes.
type ScheduledChangeRunResponse struct {
	Processed int `json:"processed"`
	Applied   int `json:"applied"`
	Failed    int `json:"failed"`
}
