package testutil

import (
	"context"

	"github.com/subcycle/subcycle/internal/domain/plan"
	ierr "github.com/subcycle/subcycle/internal/errors"
)

// InMemoryPlanStore implements plan.Repository
type InMemoryPlanStore struct {
	*InMemoryStore[*plan.Plan]
}

func NewInMemoryPlanStore() *InMemoryPlanStore {
	return &InMemoryPlanStore{
		InMemoryStore: NewInMemoryStore[*plan.Plan](),
	}
}

func (s *InMemoryPlanStore) Create(ctx context.Context, p *plan.Plan) error {
	if err := s.InMemoryStore.Create(ctx, p.ID, p); err != nil {
		return ierr.WithError(err).
			WithHint("A plan with this ID already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryPlanStore) Get(ctx context.Context, id string) (*plan.Plan, error) {
	p, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Plan with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	copied := *p
	return &copied, nil
}

func (s *InMemoryPlanStore) GetByLookupKey(ctx context.Context, lookupKey string) (*plan.Plan, error) {
	matches, err := s.InMemoryStore.List(ctx, nil, func(ctx context.Context, p *plan.Plan, _ interface{}) bool {
		return p.LookupKey == lookupKey
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ierr.NewError("plan not found").
			WithHintf("Plan with lookup key %s was not found", lookupKey).
			Mark(ierr.ErrNotFound)
	}
	copied := *matches[0]
	return &copied, nil
}

func (s *InMemoryPlanStore) List(ctx context.Context) ([]*plan.Plan, error) {
	return s.InMemoryStore.List(ctx, nil, nil, func(i, j *plan.Plan) bool {
		return i.CreatedAt.After(j.CreatedAt)
	})
}
