package testutil

import (
	"context"

	"github.com/subcycle/subcycle/internal/domain/payment"
	ierr "github.com/subcycle/subcycle/internal/errors"
)

// InMemoryPaymentStore implements payment.Repository
type InMemoryPaymentStore struct {
	*InMemoryStore[*payment.Transaction]
}

func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		InMemoryStore: NewInMemoryStore[*payment.Transaction](),
	}
}

func (s *InMemoryPaymentStore) Create(ctx context.Context, txn *payment.Transaction) error {
	if err := s.InMemoryStore.Create(ctx, txn.ID, txn); err != nil {
		return ierr.WithError(err).
			WithHint("A transaction with this ID already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryPaymentStore) Get(ctx context.Context, id string) (*payment.Transaction, error) {
	txn, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Transaction with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	copied := *txn
	return &copied, nil
}

func (s *InMemoryPaymentStore) ListBySubscription(ctx context.Context, subscriptionID string) ([]*payment.Transaction, error) {
	return s.InMemoryStore.List(ctx, nil, func(ctx context.Context, txn *payment.Transaction, _ interface{}) bool {
		return txn.SubscriptionID == subscriptionID
	}, func(i, j *payment.Transaction) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})
}
