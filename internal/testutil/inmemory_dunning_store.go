package testutil

import (
	"context"

	"github.com/samber/lo"

	"github.com/subcycle/subcycle/internal/domain/dunning"
	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/types"
)

// InMemoryDunningStore implements dunning.Repository
type InMemoryDunningStore struct {
	*InMemoryStore[*dunning.FailedPayment]
}

func NewInMemoryDunningStore() *InMemoryDunningStore {
	return &InMemoryDunningStore{
		InMemoryStore: NewInMemoryStore[*dunning.FailedPayment](),
	}
}

func (s *InMemoryDunningStore) Create(ctx context.Context, fp *dunning.FailedPayment) error {
	if err := s.InMemoryStore.Create(ctx, fp.ID, fp); err != nil {
		return ierr.WithError(err).
			WithHint("A failed payment record with this ID already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryDunningStore) Get(ctx context.Context, id string) (*dunning.FailedPayment, error) {
	fp, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Failed payment record with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	copied := *fp
	return &copied, nil
}

func (s *InMemoryDunningStore) Update(ctx context.Context, fp *dunning.FailedPayment) error {
	copied := *fp
	if err := s.InMemoryStore.Update(ctx, fp.ID, &copied); err != nil {
		return ierr.WithError(err).
			WithHintf("Failed payment record with ID %s was not found", fp.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (s *InMemoryDunningStore) GetOpenBySubscription(ctx context.Context, subscriptionID string) (*dunning.FailedPayment, error) {
	open := []types.FailedPaymentStatus{types.FailedPaymentStatusPending, types.FailedPaymentStatusRetrying}
	matches, err := s.InMemoryStore.List(ctx, nil, func(ctx context.Context, fp *dunning.FailedPayment, _ interface{}) bool {
		return fp.SubscriptionID == subscriptionID && lo.Contains(open, fp.State)
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ierr.NewError("no open failed payment").
			WithHintf("No dunning is in progress for subscription %s", subscriptionID).
			Mark(ierr.ErrNotFound)
	}
	copied := *matches[0]
	return &copied, nil
}
