package types

import "time"

const (
	FilterDefaultLimit = 50
	FilterMaxLimit     = 1000
)

// SubscriptionFilter narrows subscription list queries.
// A zero filter matches every row in the caller's tenant.
type SubscriptionFilter struct {
	CustomerID string               `json:"customer_id,omitempty" form:"customer_id"`
	PlanID     string               `json:"plan_id,omitempty" form:"plan_id"`
	Statuses   []SubscriptionStatus `json:"statuses,omitempty" form:"statuses"`
	AutoRenew  *bool                `json:"auto_renew,omitempty" form:"auto_renew"`

	// NextBillingBefore selects rows whose next billing date is at or before
	// the given instant; used by the renewal scanner.
	NextBillingBefore *time.Time `json:"next_billing_before,omitempty"`

	Limit  int `json:"limit,omitempty" form:"limit"`
	Offset int `json:"offset,omitempty" form:"offset"`
}

func (f *SubscriptionFilter) GetLimit() int {
	if f == nil || f.Limit <= 0 {
		return FilterDefaultLimit
	}
	if f.Limit > FilterMaxLimit {
		return FilterMaxLimit
	}
	return f.Limit
}

func (f *SubscriptionFilter) GetOffset() int {
	if f == nil || f.Offset < 0 {
		return 0
	}
	return f.Offset
}

// IsUnlimited reports whether pagination should be skipped entirely.
// The renewal scanner walks the full due set.
func (f *SubscriptionFilter) IsUnlimited() bool {
	return f != nil && f.NextBillingBefore != nil
}
