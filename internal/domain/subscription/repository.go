package subscription

import (
	"context"
	"time"

	"github.com/subcycle/subcycle/internal/types"
)

// Repository is the persistence contract for the subscription ledger and its
// embedded scheduled changes. Implementations must honor a transaction
// carried in the context so that a lifecycle operation's writes commit or
// roll back together.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	List(ctx context.Context, filter *types.SubscriptionFilter) ([]*Subscription, error)
	Count(ctx context.Context, filter *types.SubscriptionFilter) (int, error)

	// ListDueForRenewal selects active, auto-renewing subscriptions whose
	// next billing date is at or before the given instant, most urgent
	// first. Pure read.
	ListDueForRenewal(ctx context.Context, before time.Time) ([]*Subscription, error)

	// Scheduled changes are part of the ledger aggregate.
	CreateScheduledChange(ctx context.Context, change *ScheduledChange) error
	UpdateScheduledChange(ctx context.Context, change *ScheduledChange) error
	ListScheduledChanges(ctx context.Context, subscriptionID string, statuses []types.ScheduledChangeStatus) ([]*ScheduledChange, error)

	// ListDueScheduledChanges selects scheduled (unconsumed) entries whose
	// scheduled date is at or before the given instant, oldest first.
	ListDueScheduledChanges(ctx context.Context, before time.Time) ([]*ScheduledChange, error)
}
