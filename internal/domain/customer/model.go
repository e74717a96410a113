package customer

import (
	"time"

	"github.com/subcycle/subcycle/internal/types"
)

// Customer is the owning account for subscriptions. The subscription fields
// are a denormalized projection of the ledger, written in the same
// transaction as the ledger itself.
type Customer struct {
	ID string `db:"id" json:"id"`

	// ExternalID is the key used to look up the customer from outside systems
	ExternalID string `db:"external_id" json:"external_id"`

	Email    string `db:"email" json:"email"`
	Name     string `db:"name" json:"name"`
	Timezone string `db:"timezone" json:"timezone"`

	// Denormalized billing projection
	SubscriptionStatus   types.SubscriptionStatus `db:"subscription_status" json:"subscription_status"`
	SubscriptionPlanID   string                   `db:"subscription_plan_id" json:"subscription_plan_id"`
	SubscriptionPlanName string                   `db:"subscription_plan_name" json:"subscription_plan_name"`
	NextBillingDate      *time.Time               `db:"next_billing_date" json:"next_billing_date"`
	LastBillingDate      *time.Time               `db:"last_billing_date" json:"last_billing_date"`

	types.BaseModel
}

// ApplyBillingProjection copies the ledger state onto the denormalized fields.
func (c *Customer) ApplyBillingProjection(status types.SubscriptionStatus, planID, planName string, nextBilling, lastBilling *time.Time) {
	c.SubscriptionStatus = status
	c.SubscriptionPlanID = planID
	c.SubscriptionPlanName = planName
	c.NextBillingDate = nextBilling
	c.LastBillingDate = lastBilling
}
