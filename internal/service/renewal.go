package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/subcycle/subcycle/internal/api/dto"
	"github.com/subcycle/subcycle/internal/domain/dunning"
	"github.com/subcycle/subcycle/internal/domain/subscription"
	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/types"
)

// RenewalService is the scanner: it sweeps subscriptions whose billing date
// has arrived, charges them, drives dunning for the ones that fail, and
// consumes due scheduled changes. Every per-subscription outcome is isolated
// so one bad row never aborts the sweep.
type RenewalService interface {
	GetDueForRenewal(ctx context.Context) ([]*subscription.Subscription, error)
	ProcessDueRenewals(ctx context.Context) (*dto.RenewalRunResponse, error)
	ProcessScheduledChanges(ctx context.Context) (*dto.ScheduledChangeRunResponse, error)
}

type renewalService struct {
	ServiceParams
	sub *subscriptionService
}

func NewRenewalService(params ServiceParams) RenewalService {
	return &renewalService{
		ServiceParams: params,
		sub:           &subscriptionService{ServiceParams: params},
	}
}

// GetDueForRenewal is a pure read: the rows the next sweep would act on,
// most overdue first.
func (s *renewalService) GetDueForRenewal(ctx context.Context) ([]*subscription.Subscription, error) {
	before := time.Now().UTC().AddDate(0, 0, s.Config.Billing.LookAheadDays)
	return s.SubRepo.ListDueForRenewal(ctx, before)
}

func (s *renewalService) ProcessDueRenewals(ctx context.Context) (*dto.RenewalRunResponse, error) {
	due, err := s.GetDueForRenewal(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	run := &dto.RenewalRunResponse{}
	for _, candidate := range due {
		run.Processed++

		fp, err := s.DunningRepo.GetOpenBySubscription(ctx, candidate.ID)
		if err != nil && !ierr.IsNotFound(err) {
			return nil, err
		}
		if fp != nil && !fp.IsRetryDue(now) {
			run.Skipped++
			continue
		}

		renewErr := s.DB.WithTx(ctx, func(ctx context.Context) error {
			sub, err := s.SubRepo.Get(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if !sub.CanRenew() || !sub.AutoRenew {
				return ierr.NewError("subscription no longer due").
					Mark(ierr.ErrInvalidOperation)
			}
			return s.sub.applyRenewal(ctx, sub, nil)
		})

		switch {
		case renewErr == nil:
			run.Renewed++
		case ierr.IsPaymentFailed(renewErr):
			// recorded, never raised: the sweep owns payment failures
			canceled, err := s.recordFailedRenewal(ctx, candidate.ID, fp, now)
			if err != nil {
				return nil, err
			}
			if canceled {
				run.Canceled++
			} else {
				run.Failed++
			}
		case ierr.IsInvalidOperation(renewErr):
			// the row changed under the sweep; nothing to do
			run.Skipped++
		default:
			s.Logger.Errorw("renewal sweep failed for subscription",
				"subscription_id", candidate.ID,
				"error", renewErr,
			)
			run.Failed++
		}
	}

	s.Logger.Infow("renewal sweep finished",
		"processed", run.Processed,
		"renewed", run.Renewed,
		"failed", run.Failed,
		"canceled", run.Canceled,
		"skipped", run.Skipped,
	)
	return run, nil
}

// recordFailedRenewal advances dunning after a failed charge: the attempt
// counter moves, the subscription goes past due, and the next retry is
// scheduled on an exponential backoff. Once the attempt budget is spent the
// subscription is canceled with the payment_failed reason. Returns whether
// the subscription was canceled.
func (s *renewalService) recordFailedRenewal(ctx context.Context, subscriptionID string, fp *dunning.FailedPayment, now time.Time) (bool, error) {
	canceled := false
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		sub, err := s.SubRepo.Get(ctx, subscriptionID)
		if err != nil {
			return err
		}

		sub.BillingAttempts++
		if sub.BillingAttempts >= s.Config.Billing.MaxBillingAttempts {
			canceled = true
			if fp != nil {
				fp.MarkExhausted()
				fp.Touch(ctx)
				if err := s.DunningRepo.Update(ctx, fp); err != nil {
					return err
				}
			}
			return s.sub.cancelNow(ctx, sub, types.CancellationReasonPaymentFailed, "", now)
		}

		sub.SubscriptionStatus = types.SubscriptionStatusPastDue
		sub.Touch(ctx)
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}

		nextRetry := now.Add(s.retryDelay(sub.BillingAttempts))
		if fp == nil {
			fp = &dunning.FailedPayment{
				ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_FAILED_PAYMENT),
				CustomerID:     sub.CustomerID,
				SubscriptionID: sub.ID,
				Amount:         decimal.Max(decimal.Zero, sub.CurrentPrice.Sub(sub.ProratedCredits)),
				Currency:       sub.Currency,
				Reason:         "renewal charge declined",
				State:          types.FailedPaymentStatusPending,
				BaseModel:      types.GetDefaultBaseModel(ctx),
			}
			fp.RecordAttempt(now, nextRetry)
			if err := s.DunningRepo.Create(ctx, fp); err != nil {
				return err
			}
		} else {
			fp.RecordAttempt(now, nextRetry)
			fp.Touch(ctx)
			if err := s.DunningRepo.Update(ctx, fp); err != nil {
				return err
			}
		}

		return s.sub.syncCustomerProjectionByID(ctx, sub)
	})
	if err != nil {
		return false, err
	}

	s.Logger.Warnw("renewal charge failed",
		"subscription_id", subscriptionID,
		"canceled", canceled,
	)
	return canceled, nil
}

// retryDelay is the wait before the given attempt number may be retried.
func (s *renewalService) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.Config.Billing.RetryInitialInterval
	b.Multiplier = s.Config.Billing.RetryMultiplier
	b.MaxInterval = s.Config.Billing.RetryMaxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// ProcessScheduledChanges consumes due scheduled changes, each exactly once.
// An entry that is no longer in the scheduled state is left alone, which
// makes overlapping sweeps safe.
func (s *renewalService) ProcessScheduledChanges(ctx context.Context) (*dto.ScheduledChangeRunResponse, error) {
	now := time.Now().UTC()
	due, err := s.SubRepo.ListDueScheduledChanges(ctx, now)
	if err != nil {
		return nil, err
	}

	run := &dto.ScheduledChangeRunResponse{}
	for _, candidate := range due {
		run.Processed++

		applyErr := s.DB.WithTx(ctx, func(ctx context.Context) error {
			return s.applyScheduledChange(ctx, candidate, now)
		})
		if applyErr != nil {
			s.Logger.Errorw("scheduled change failed",
				"change_id", candidate.ID,
				"subscription_id", candidate.SubscriptionID,
				"change_type", candidate.ChangeType,
				"error", applyErr,
			)
			run.Failed++
			continue
		}
		run.Applied++
	}

	s.Logger.Infow("scheduled change sweep finished",
		"processed", run.Processed,
		"applied", run.Applied,
		"failed", run.Failed,
	)
	return run, nil
}

func (s *renewalService) applyScheduledChange(ctx context.Context, change *subscription.ScheduledChange, now time.Time) error {
	if change.ChangeStatus != types.ScheduledChangeStatusScheduled || !change.IsDue(now) {
		return nil
	}

	sub, err := s.SubRepo.Get(ctx, change.SubscriptionID)
	if err != nil {
		return err
	}

	if sub.SubscriptionStatus.IsTerminal() {
		// nothing left to mutate; consume the entry so it never fires again
		change.MarkCancelled()
		change.Touch(ctx)
		return s.SubRepo.UpdateScheduledChange(ctx, change)
	}

	switch change.ChangeType {
	case types.ScheduledChangeTypePlanChange:
		payload, err := change.PlanChange()
		if err != nil {
			return err
		}
		sub.PlanID = payload.NewPlanID
		sub.PlanName = payload.NewPlanName
		sub.CurrentPrice = payload.NewPrice
		sub.Touch(ctx)
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		if err := s.sub.syncCustomerProjectionByID(ctx, sub); err != nil {
			return err
		}

	case types.ScheduledChangeTypeCancellation:
		payload, err := change.Cancellation()
		if err != nil {
			return err
		}
		// cancelNow withdraws pending changes, this one included; the
		// processed mark below wins over the withdrawn one
		if err := s.sub.cancelNow(ctx, sub, payload.Reason, payload.Note, now); err != nil {
			return err
		}

	case types.ScheduledChangeTypePause:
		payload, err := change.Pause()
		if err != nil {
			return err
		}
		sub.SubscriptionStatus = types.SubscriptionStatusPaused
		sub.PausedAt = lo.ToPtr(now)
		sub.PauseReason = payload.Reason
		sub.PausedUntil = payload.Until
		sub.Touch(ctx)
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		if err := s.sub.syncCustomerProjectionByID(ctx, sub); err != nil {
			return err
		}

	case types.ScheduledChangeTypeResume:
		if sub.SubscriptionStatus == types.SubscriptionStatusPaused {
			if sub.NextBillingDate == nil || !sub.NextBillingDate.After(now) {
				next, err := types.NextBillingDate(now, sub.BillingCycle)
				if err != nil {
					return err
				}
				sub.NextBillingDate = lo.ToPtr(next)
			}
			sub.SubscriptionStatus = types.SubscriptionStatusActive
			sub.ResumedAt = lo.ToPtr(now)
			sub.PausedUntil = nil
			sub.Touch(ctx)
			if err := s.SubRepo.Update(ctx, sub); err != nil {
				return err
			}
			if err := s.sub.syncCustomerProjectionByID(ctx, sub); err != nil {
				return err
			}
		}

	default:
		return ierr.NewError("unknown scheduled change type").
			WithReportableDetails(map[string]any{"change_id": change.ID, "change_type": change.ChangeType}).
			Mark(ierr.ErrSystem)
	}

	change.MarkProcessed(now)
	change.Touch(ctx)
	return s.SubRepo.UpdateScheduledChange(ctx, change)
}
