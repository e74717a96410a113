package testutil

import (
	"context"

	"github.com/subcycle/subcycle/internal/domain/customer"
	ierr "github.com/subcycle/subcycle/internal/errors"
)

// InMemoryCustomerStore implements customer.Repository
type InMemoryCustomerStore struct {
	*InMemoryStore[*customer.Customer]
}

func NewInMemoryCustomerStore() *InMemoryCustomerStore {
	return &InMemoryCustomerStore{
		InMemoryStore: NewInMemoryStore[*customer.Customer](),
	}
}

func (s *InMemoryCustomerStore) Create(ctx context.Context, cust *customer.Customer) error {
	if err := s.InMemoryStore.Create(ctx, cust.ID, cust); err != nil {
		return ierr.WithError(err).
			WithHint("A customer with this ID already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryCustomerStore) Get(ctx context.Context, id string) (*customer.Customer, error) {
	cust, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Customer with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	copied := *cust
	return &copied, nil
}

func (s *InMemoryCustomerStore) GetByExternalID(ctx context.Context, externalID string) (*customer.Customer, error) {
	matches, err := s.InMemoryStore.List(ctx, nil, func(ctx context.Context, c *customer.Customer, _ interface{}) bool {
		return c.ExternalID == externalID
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ierr.NewError("customer not found").
			WithHintf("Customer with external ID %s was not found", externalID).
			Mark(ierr.ErrNotFound)
	}
	copied := *matches[0]
	return &copied, nil
}

func (s *InMemoryCustomerStore) Update(ctx context.Context, cust *customer.Customer) error {
	copied := *cust
	if err := s.InMemoryStore.Update(ctx, cust.ID, &copied); err != nil {
		return ierr.WithError(err).
			WithHintf("Customer with ID %s was not found", cust.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
