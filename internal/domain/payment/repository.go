package payment

import "context"

// Repository is the persistence contract for payment transactions.
type Repository interface {
	Create(ctx context.Context, txn *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*Transaction, error)
}
