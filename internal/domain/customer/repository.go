package customer

import "context"

// Repository is the persistence contract for customers. Update must support
// being called inside the same transaction as a ledger write.
type Repository interface {
	Create(ctx context.Context, customer *Customer) error
	Get(ctx context.Context, id string) (*Customer, error)
	GetByExternalID(ctx context.Context, externalID string) (*Customer, error)
	Update(ctx context.Context, customer *Customer) error
}
