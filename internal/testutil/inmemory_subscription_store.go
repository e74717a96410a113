package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/subcycle/subcycle/internal/domain/subscription"
	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/types"
)

// InMemorySubscriptionStore implements subscription.Repository
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]

	mu      sync.RWMutex
	changes map[string]*subscription.ScheduledChange // map[changeID]change
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
		changes:       make(map[string]*subscription.ScheduledChange),
	}
}

func subscriptionFilterFn(ctx context.Context, sub *subscription.Subscription, filter interface{}) bool {
	if sub == nil {
		return false
	}

	f, ok := filter.(*types.SubscriptionFilter)
	if !ok {
		return true
	}

	if tenantID, ok := ctx.Value(types.CtxTenantID).(string); ok {
		if sub.TenantID != tenantID {
			return false
		}
	}

	if f.CustomerID != "" && sub.CustomerID != f.CustomerID {
		return false
	}
	if f.PlanID != "" && sub.PlanID != f.PlanID {
		return false
	}
	if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, sub.SubscriptionStatus) {
		return false
	}
	if f.AutoRenew != nil && sub.AutoRenew != *f.AutoRenew {
		return false
	}
	if f.NextBillingBefore != nil {
		if sub.NextBillingDate == nil || sub.NextBillingDate.After(*f.NextBillingBefore) {
			return false
		}
	}

	return true
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if err := s.InMemoryStore.Create(ctx, sub.ID, sub); err != nil {
		return ierr.WithError(err).
			WithHint("A subscription with this ID already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Subscription with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	// copy so callers can mutate without touching stored state
	copied := *sub
	return &copied, nil
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	copied := *sub
	if err := s.InMemoryStore.Update(ctx, sub.ID, &copied); err != nil {
		return ierr.WithError(err).
			WithHintf("Subscription with ID %s was not found", sub.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (s *InMemorySubscriptionStore) List(ctx context.Context, filter *types.SubscriptionFilter) ([]*subscription.Subscription, error) {
	sortFn := func(i, j *subscription.Subscription) bool {
		return i.CreatedAt.After(j.CreatedAt)
	}
	if filter != nil && filter.NextBillingBefore != nil {
		// scanner ordering: most overdue first
		sortFn = func(i, j *subscription.Subscription) bool {
			if i.NextBillingDate == nil || j.NextBillingDate == nil {
				return false
			}
			return i.NextBillingDate.Before(*j.NextBillingDate)
		}
	}
	return s.InMemoryStore.List(ctx, filter, subscriptionFilterFn, sortFn)
}

func (s *InMemorySubscriptionStore) Count(ctx context.Context, filter *types.SubscriptionFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, subscriptionFilterFn)
}

func (s *InMemorySubscriptionStore) ListDueForRenewal(ctx context.Context, before time.Time) ([]*subscription.Subscription, error) {
	return s.List(ctx, &types.SubscriptionFilter{
		Statuses:          []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusTrial, types.SubscriptionStatusPastDue},
		AutoRenew:         lo.ToPtr(true),
		NextBillingBefore: lo.ToPtr(before),
	})
}

func (s *InMemorySubscriptionStore) CreateScheduledChange(ctx context.Context, change *subscription.ScheduledChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.changes[change.ID]; exists {
		return ierr.NewError("scheduled change already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	copied := *change
	s.changes[change.ID] = &copied
	return nil
}

func (s *InMemorySubscriptionStore) UpdateScheduledChange(ctx context.Context, change *subscription.ScheduledChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.changes[change.ID]; !exists {
		return ierr.NewError("scheduled change not found").
			Mark(ierr.ErrNotFound)
	}
	copied := *change
	s.changes[change.ID] = &copied
	return nil
}

func (s *InMemorySubscriptionStore) ListScheduledChanges(ctx context.Context, subscriptionID string, statuses []types.ScheduledChangeStatus) ([]*subscription.ScheduledChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*subscription.ScheduledChange
	for _, change := range s.changes {
		if change.SubscriptionID != subscriptionID {
			continue
		}
		if len(statuses) > 0 && !lo.Contains(statuses, change.ChangeStatus) {
			continue
		}
		copied := *change
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledAt.Before(result[j].ScheduledAt)
	})
	return result, nil
}

func (s *InMemorySubscriptionStore) ListDueScheduledChanges(ctx context.Context, before time.Time) ([]*subscription.ScheduledChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*subscription.ScheduledChange
	for _, change := range s.changes {
		if change.ChangeStatus != types.ScheduledChangeStatusScheduled {
			continue
		}
		if change.ScheduledAt.After(before) {
			continue
		}
		copied := *change
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledAt.Before(result[j].ScheduledAt)
	})
	return result, nil
}

// GetScheduledChange is a test helper for asserting on consumption state.
func (s *InMemorySubscriptionStore) GetScheduledChange(id string) (*subscription.ScheduledChange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	change, ok := s.changes[id]
	if !ok {
		return nil, false
	}
	copied := *change
	return &copied, true
}

func (s *InMemorySubscriptionStore) Clear() {
	s.InMemoryStore.Clear()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = make(map[string]*subscription.ScheduledChange)
}
