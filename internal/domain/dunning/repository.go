package dunning

import "context"

// Repository is the persistence contract for failed-payment records.
type Repository interface {
	Create(ctx context.Context, fp *FailedPayment) error
	Get(ctx context.Context, id string) (*FailedPayment, error)
	Update(ctx context.Context, fp *FailedPayment) error

	// GetOpenBySubscription returns the pending or retrying record for the
	// subscription, or a not-found error when dunning is not in progress.
	GetOpenBySubscription(ctx context.Context, subscriptionID string) (*FailedPayment, error)
}
