package dto

import (
	"context"

	"github.com/subcycle/subcycle/internal/domain/plan"
	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/types"
	"github.com/subcycle/subcycle/internal/validator"
)

type CreatePlanRequest struct {
	Name        string `json:"name" validate:"required"`
	LookupKey   string `json:"lookup_key" validate:"required"`
	Description string `json:"description,omitempty"`

	TrialPeriodDays int `json:"trial_period_days,omitempty" validate:"gte=0"`

	Prices plan.PriceTable `json:"prices" validate:"required"`

	CancellationPolicy types.CancellationPolicy `json:"cancellation_policy,omitempty"`
	UpgradePolicy      types.ChangeTimingPolicy `json:"upgrade_policy,omitempty"`
	DowngradePolicy    types.ChangeTimingPolicy `json:"downgrade_policy,omitempty"`
}

func (r *CreatePlanRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	for cycle, price := range r.Prices {
		if err := cycle.Validate(); err != nil {
			return err
		}
		if price.IsNegative() {
			return ierr.NewError("plan price cannot be negative").
				WithHintf("Price for the %s cycle is negative", cycle).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

func (r *CreatePlanRequest) ToPlan(ctx context.Context) *plan.Plan {
	return &plan.Plan{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN),
		Name:               r.Name,
		LookupKey:          r.LookupKey,
		Description:        r.Description,
		TrialPeriodDays:    r.TrialPeriodDays,
		Prices:             r.Prices,
		CancellationPolicy: r.CancellationPolicy,
		UpgradePolicy:      r.UpgradePolicy,
		DowngradePolicy:    r.DowngradePolicy,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}
}

type PlanResponse struct {
	*plan.Plan
}
