package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/subcycle/subcycle/internal/api/dto"
	"github.com/subcycle/subcycle/internal/domain/customer"
	"github.com/subcycle/subcycle/internal/domain/payment"
	"github.com/subcycle/subcycle/internal/domain/plan"
	"github.com/subcycle/subcycle/internal/domain/proration"
	"github.com/subcycle/subcycle/internal/domain/subscription"
	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/gateway"
	"github.com/subcycle/subcycle/internal/types"
)

// SubscriptionService is the lifecycle engine: every ledger transition goes
// through one of its operations, each of which runs inside a single
// transaction so the ledger, the payment records and the customer projection
// move together.
type SubscriptionService interface {
	CreateSubscription(ctx context.Context, req *dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error)
	GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	ListSubscriptions(ctx context.Context, filter *types.SubscriptionFilter) (*dto.ListSubscriptionsResponse, error)

	RenewSubscription(ctx context.Context, id string, req *dto.RenewSubscriptionRequest) (*dto.SubscriptionResponse, error)
	CancelSubscription(ctx context.Context, id string, req *dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error)
	UpgradeSubscription(ctx context.Context, id string, req *dto.UpgradeSubscriptionRequest) (*dto.SubscriptionResponse, error)
	DowngradeSubscription(ctx context.Context, id string, req *dto.DowngradeSubscriptionRequest) (*dto.SubscriptionResponse, error)
	PauseSubscription(ctx context.Context, id string, req *dto.PauseSubscriptionRequest) (*dto.SubscriptionResponse, error)
	ResumeSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
}

type subscriptionService struct {
	ServiceParams
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{ServiceParams: params}
}

func (s *subscriptionService) CreateSubscription(ctx context.Context, req *dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cust, err := s.resolveCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	req.CustomerID = cust.ID

	p, err := s.PlanRepo.Get(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	price, err := p.GetPriceForCycle(req.BillingCycle)
	if err != nil {
		return nil, err
	}

	// one live subscription per customer and plan
	existing, err := s.SubRepo.List(ctx, &types.SubscriptionFilter{
		CustomerID: cust.ID,
		PlanID:     p.ID,
		Statuses: []types.SubscriptionStatus{
			types.SubscriptionStatusActive,
			types.SubscriptionStatusTrial,
		},
	})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ierr.NewError("customer already subscribed to this plan").
			WithHint("The customer already has a live subscription on this plan").
			WithReportableDetails(map[string]any{
				"customer_id":     cust.ID,
				"plan_id":         p.ID,
				"subscription_id": existing[0].ID,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	sub := req.ToSubscription(ctx)
	sub.PlanName = p.Name
	sub.CurrentPrice = price
	if sub.Currency == "" {
		sub.Currency = "usd"
	}

	if p.HasTrial() {
		trialEnd := sub.StartDate.AddDate(0, 0, p.TrialPeriodDays)
		sub.SubscriptionStatus = types.SubscriptionStatusTrial
		sub.TrialStart = lo.ToPtr(sub.StartDate)
		sub.TrialEnd = lo.ToPtr(trialEnd)
		// first charge lands when the trial converts
		sub.NextBillingDate = lo.ToPtr(trialEnd)
	} else {
		next, err := types.NextBillingDate(sub.StartDate, sub.BillingCycle)
		if err != nil {
			return nil, err
		}
		sub.NextBillingDate = lo.ToPtr(next)
	}

	if err := sub.Validate(); err != nil {
		return nil, err
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SubRepo.Create(ctx, sub); err != nil {
			return err
		}

		if req.PaymentData != nil && req.PaymentData.Amount.IsPositive() && !p.HasTrial() {
			if err := s.chargeAndRecord(ctx, sub, req.PaymentData.Amount, req.PaymentData, types.TransactionKindInitial); err != nil {
				return err
			}
			sub.LastBillingDate = lo.ToPtr(now)
			sub.Touch(ctx)
			if err := s.SubRepo.Update(ctx, sub); err != nil {
				return err
			}
		}

		return s.syncCustomerProjection(ctx, cust, sub)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("created subscription",
		"subscription_id", sub.ID,
		"customer_id", sub.CustomerID,
		"plan_id", sub.PlanID,
		"status", sub.SubscriptionStatus,
	)
	return dto.NewSubscriptionResponse(sub, nil, now), nil
}

func (s *subscriptionService) GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	changes, err := s.SubRepo.ListScheduledChanges(ctx, id, []types.ScheduledChangeStatus{types.ScheduledChangeStatusScheduled})
	if err != nil {
		return nil, err
	}
	return dto.NewSubscriptionResponse(sub, changes, time.Now().UTC()), nil
}

func (s *subscriptionService) ListSubscriptions(ctx context.Context, filter *types.SubscriptionFilter) (*dto.ListSubscriptionsResponse, error) {
	if filter == nil {
		filter = &types.SubscriptionFilter{}
	}
	subs, err := s.SubRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.SubRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &dto.ListSubscriptionsResponse{
		Subscriptions: lo.Map(subs, func(sub *subscription.Subscription, _ int) *dto.SubscriptionResponse {
			return dto.NewSubscriptionResponse(sub, nil, now)
		}),
		Total:  total,
		Offset: filter.GetOffset(),
		Limit:  filter.GetLimit(),
	}, nil
}

// RenewSubscription is the caller-triggered renewal. Unlike the scanner,
// a failed charge here surfaces to the caller and rolls the ledger back.
func (s *subscriptionService) RenewSubscription(ctx context.Context, id string, req *dto.RenewSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if req == nil {
		req = &dto.RenewSubscriptionRequest{}
	}

	var sub *subscription.Subscription
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.Get(ctx, id)
		if err != nil {
			return err
		}
		if !sub.CanRenew() {
			return ierr.NewError("subscription cannot be renewed").
				WithHintf("Subscriptions in status %s cannot be renewed", sub.SubscriptionStatus).
				WithReportableDetails(map[string]any{"subscription_id": sub.ID, "status": sub.SubscriptionStatus}).
				Mark(ierr.ErrInvalidOperation)
		}
		return s.applyRenewal(ctx, sub, req.PaymentData)
	})
	if err != nil {
		return nil, err
	}
	return dto.NewSubscriptionResponse(sub, nil, time.Now().UTC()), nil
}

// applyRenewal charges one cycle (net of any prorated credits), advances the
// billing dates and resets the dunning counter. Must run inside a transaction.
func (s *subscriptionService) applyRenewal(ctx context.Context, sub *subscription.Subscription, pd *payment.PaymentData) error {
	now := time.Now().UTC()

	creditsApplied := decimal.Min(sub.ProratedCredits, sub.CurrentPrice)
	amount := sub.CurrentPrice.Sub(creditsApplied)

	if amount.IsPositive() {
		if err := s.chargeAndRecord(ctx, sub, amount, pd, types.TransactionKindRenewal); err != nil {
			return err
		}
	}

	// date arithmetic anchors on the scheduled boundary, not on when the
	// scan actually ran, so late scans do not drift the cycle
	anchor := now
	if sub.NextBillingDate != nil && sub.NextBillingDate.Before(now) {
		anchor = *sub.NextBillingDate
	}
	next, err := types.NextBillingDate(anchor, sub.BillingCycle)
	if err != nil {
		return err
	}

	sub.SubscriptionStatus = types.SubscriptionStatusActive
	sub.BillingAttempts = 0
	sub.ProratedCredits = sub.ProratedCredits.Sub(creditsApplied)
	sub.LastBillingDate = lo.ToPtr(now)
	sub.NextBillingDate = lo.ToPtr(next)
	if sub.TrialEnd != nil && !sub.TrialEnd.After(now) {
		sub.TrialStart = nil
		sub.TrialEnd = nil
	}
	sub.Touch(ctx)

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}
	if err := s.closeOpenDunning(ctx, sub.ID); err != nil {
		return err
	}
	return s.syncCustomerProjectionByID(ctx, sub)
}

func (s *subscriptionService) CancelSubscription(ctx context.Context, id string, req *dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if req == nil {
		req = &dto.CancelSubscriptionRequest{}
	}

	var sub *subscription.Subscription
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.Get(ctx, id)
		if err != nil {
			return err
		}
		if sub.SubscriptionStatus.IsTerminal() {
			return ierr.NewError("subscription is already canceled").
				WithHint("The subscription has already reached a terminal status").
				WithReportableDetails(map[string]any{"subscription_id": sub.ID, "status": sub.SubscriptionStatus}).
				Mark(ierr.ErrInvalidOperation)
		}

		p, err := s.PlanRepo.Get(ctx, sub.PlanID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		immediate := req.Immediate ||
			(req.EffectiveDate == nil && p.ResolvedCancellationPolicy() == types.CancellationPolicyImmediate)

		if immediate {
			return s.cancelNow(ctx, sub, req.Reason, req.Note, now)
		}

		effective := now
		switch {
		case req.EffectiveDate != nil:
			effective = req.EffectiveDate.UTC()
		case sub.NextBillingDate != nil:
			effective = *sub.NextBillingDate
		case sub.EndDate != nil:
			effective = *sub.EndDate
		}
		if !effective.After(now) {
			return s.cancelNow(ctx, sub, req.Reason, req.Note, now)
		}

		if err := s.ensureNoScheduledChange(ctx, sub.ID, types.ScheduledChangeTypeCancellation); err != nil {
			return err
		}
		change, err := subscription.NewCancellation(ctx, sub.ID, effective, subscription.CancellationPayload{
			Reason: req.Reason,
			Note:   req.Note,
		})
		if err != nil {
			return err
		}
		if err := s.SubRepo.CreateScheduledChange(ctx, change); err != nil {
			return err
		}

		// the subscription keeps serving until the effective date, but it
		// will not renew past it
		sub.AutoRenew = false
		sub.EndDate = lo.ToPtr(effective)
		sub.CancellationReason = req.Reason
		sub.CancellationNote = req.Note
		sub.Touch(ctx)
		return s.SubRepo.Update(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	return s.GetSubscription(ctx, sub.ID)
}

// cancelNow applies a terminal cancellation and withdraws any pending
// scheduled changes. Must run inside a transaction.
func (s *subscriptionService) cancelNow(ctx context.Context, sub *subscription.Subscription, reason, note string, now time.Time) error {
	sub.SubscriptionStatus = types.SubscriptionStatusCanceled
	sub.AutoRenew = false
	sub.CanceledAt = lo.ToPtr(now)
	sub.EndDate = lo.ToPtr(now)
	if reason != "" {
		sub.CancellationReason = reason
	}
	if note != "" {
		sub.CancellationNote = note
	}
	sub.Touch(ctx)

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}

	pending, err := s.SubRepo.ListScheduledChanges(ctx, sub.ID, []types.ScheduledChangeStatus{types.ScheduledChangeStatusScheduled})
	if err != nil {
		return err
	}
	for _, change := range pending {
		change.MarkCancelled()
		change.Touch(ctx)
		if err := s.SubRepo.UpdateScheduledChange(ctx, change); err != nil {
			return err
		}
	}

	s.Logger.Infow("canceled subscription",
		"subscription_id", sub.ID,
		"reason", sub.CancellationReason,
	)
	return s.syncCustomerProjectionByID(ctx, sub)
}

// UpgradeSubscription swaps the plan and price immediately. Proration runs
// when the plan's upgrade policy or the caller asks for an immediate charge:
// the unused remainder of the old price lands on the credit ledger and the
// net difference is charged, provided payment data was supplied. A failed
// charge rolls the whole operation back.
func (s *subscriptionService) UpgradeSubscription(ctx context.Context, id string, req *dto.UpgradeSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var sub *subscription.Subscription
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.Get(ctx, id)
		if err != nil {
			return err
		}
		newPlan, newPrice, err := s.resolvePlanChange(ctx, sub, req.NewPlanID)
		if err != nil {
			return err
		}
		if !newPrice.GreaterThan(sub.CurrentPrice) {
			return ierr.NewError("new plan price must be higher for an upgrade").
				WithHint("Use the downgrade operation to move to a cheaper plan").
				WithReportableDetails(map[string]any{
					"current_price": sub.CurrentPrice,
					"new_price":     newPrice,
				}).
				Mark(ierr.ErrInvalidOperation)
		}

		now := time.Now().UTC()
		immediate := req.Immediate || newPlan.ResolvedUpgradePolicy() == types.ChangeTimingPolicyImmediate

		charged := decimal.Zero
		if immediate {
			result, err := s.prorate(ctx, sub, newPrice, proration.ActionUpgrade, now)
			if err != nil {
				return err
			}
			sub.ProratedCredits = sub.ProratedCredits.Add(result.Credit)
			if result.ImmediateCharge.IsPositive() && req.PaymentData != nil {
				if err := s.chargeAndRecord(ctx, sub, result.ImmediateCharge, req.PaymentData, types.TransactionKindUpgrade); err != nil {
					return err
				}
				sub.LastBillingDate = lo.ToPtr(now)
				charged = result.ImmediateCharge
			}
		}

		sub.PlanID = newPlan.ID
		sub.PlanName = newPlan.Name
		sub.CurrentPrice = newPrice
		sub.Touch(ctx)
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}

		s.Logger.Infow("upgraded subscription",
			"subscription_id", sub.ID,
			"new_plan_id", newPlan.ID,
			"immediate_charge", charged,
		)
		return s.syncCustomerProjectionByID(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	return dto.NewSubscriptionResponse(sub, nil, time.Now().UTC()), nil
}

// DowngradeSubscription never charges. An immediate downgrade books the net
// unused value as prorated credit; the default path defers the whole swap to
// the end of the current period via a scheduled change.
func (s *subscriptionService) DowngradeSubscription(ctx context.Context, id string, req *dto.DowngradeSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var sub *subscription.Subscription
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.Get(ctx, id)
		if err != nil {
			return err
		}
		newPlan, newPrice, err := s.resolvePlanChange(ctx, sub, req.NewPlanID)
		if err != nil {
			return err
		}
		if !newPrice.LessThan(sub.CurrentPrice) {
			return ierr.NewError("new plan price must be lower for a downgrade").
				WithHint("Use the upgrade operation to move to a more expensive plan").
				WithReportableDetails(map[string]any{
					"current_price": sub.CurrentPrice,
					"new_price":     newPrice,
				}).
				Mark(ierr.ErrInvalidOperation)
		}

		now := time.Now().UTC()
		immediate := req.Immediate || newPlan.ResolvedDowngradePolicy() == types.ChangeTimingPolicyImmediate ||
			sub.NextBillingDate == nil || !sub.NextBillingDate.After(now)

		if immediate {
			result, err := s.prorate(ctx, sub, newPrice, proration.ActionDowngrade, now)
			if err != nil {
				return err
			}
			sub.PlanID = newPlan.ID
			sub.PlanName = newPlan.Name
			sub.CurrentPrice = newPrice
			sub.ProratedCredits = sub.ProratedCredits.Add(result.NetCredit)
			sub.Touch(ctx)
			if err := s.SubRepo.Update(ctx, sub); err != nil {
				return err
			}

			s.Logger.Infow("downgraded subscription",
				"subscription_id", sub.ID,
				"new_plan_id", newPlan.ID,
				"net_credit", result.NetCredit,
			)
			return s.syncCustomerProjectionByID(ctx, sub)
		}

		if err := s.ensureNoScheduledChange(ctx, sub.ID, types.ScheduledChangeTypePlanChange); err != nil {
			return err
		}
		change, err := subscription.NewPlanChange(ctx, sub.ID, *sub.NextBillingDate, subscription.PlanChangePayload{
			NewPlanID:   newPlan.ID,
			NewPlanName: newPlan.Name,
			NewPrice:    newPrice,
			Reason:      req.Reason,
		})
		if err != nil {
			return err
		}
		if err := s.SubRepo.CreateScheduledChange(ctx, change); err != nil {
			return err
		}

		s.Logger.Infow("scheduled downgrade",
			"subscription_id", sub.ID,
			"new_plan_id", newPlan.ID,
			"effective_at", change.ScheduledAt,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetSubscription(ctx, sub.ID)
}

func (s *subscriptionService) PauseSubscription(ctx context.Context, id string, req *dto.PauseSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if req == nil {
		req = &dto.PauseSubscriptionRequest{}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var sub *subscription.Subscription
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.Get(ctx, id)
		if err != nil {
			return err
		}
		if !sub.IsActive() {
			return ierr.NewError("only active subscriptions can be paused").
				WithHintf("Subscriptions in status %s cannot be paused", sub.SubscriptionStatus).
				WithReportableDetails(map[string]any{"subscription_id": sub.ID, "status": sub.SubscriptionStatus}).
				Mark(ierr.ErrInvalidOperation)
		}

		now := time.Now().UTC()
		sub.SubscriptionStatus = types.SubscriptionStatusPaused
		sub.PausedAt = lo.ToPtr(now)
		sub.ResumedAt = nil
		sub.PauseReason = req.Reason
		sub.PausedUntil = req.PausedUntil
		sub.Touch(ctx)
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}

		if req.PausedUntil != nil {
			if err := s.ensureNoScheduledChange(ctx, sub.ID, types.ScheduledChangeTypeResume); err != nil {
				return err
			}
			change, err := subscription.NewResume(ctx, sub.ID, req.PausedUntil.UTC())
			if err != nil {
				return err
			}
			if err := s.SubRepo.CreateScheduledChange(ctx, change); err != nil {
				return err
			}
		}
		return s.syncCustomerProjectionByID(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	return s.GetSubscription(ctx, sub.ID)
}

// ResumeSubscription reactivates a paused subscription. A next billing date
// that passed while paused is recomputed from now; a future one is kept.
func (s *subscriptionService) ResumeSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	var sub *subscription.Subscription
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.Get(ctx, id)
		if err != nil {
			return err
		}
		if sub.SubscriptionStatus != types.SubscriptionStatusPaused {
			return ierr.NewError("subscription is not paused").
				WithHintf("Subscriptions in status %s cannot be resumed", sub.SubscriptionStatus).
				WithReportableDetails(map[string]any{"subscription_id": sub.ID, "status": sub.SubscriptionStatus}).
				Mark(ierr.ErrInvalidOperation)
		}

		now := time.Now().UTC()
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

		// withdraw a scheduled resume so the scanner does not replay it
		pending, err := s.SubRepo.ListScheduledChanges(ctx, sub.ID, []types.ScheduledChangeStatus{types.ScheduledChangeStatusScheduled})
		if err != nil {
			return err
		}
		for _, change := range pending {
			if change.ChangeType != types.ScheduledChangeTypeResume {
				continue
			}
			change.MarkCancelled()
			change.Touch(ctx)
			if err := s.SubRepo.UpdateScheduledChange(ctx, change); err != nil {
				return err
			}
		}
		return s.syncCustomerProjectionByID(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	return dto.NewSubscriptionResponse(sub, nil, time.Now().UTC()), nil
}

// resolveCustomer accepts either an internal or an external customer id.
func (s *subscriptionService) resolveCustomer(ctx context.Context, id string) (*customer.Customer, error) {
	cust, err := s.CustomerRepo.Get(ctx, id)
	if err == nil {
		return cust, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}
	return s.CustomerRepo.GetByExternalID(ctx, id)
}

// resolvePlanChange loads the target plan and validates that a plan change
// is possible for the subscription's current state.
func (s *subscriptionService) resolvePlanChange(ctx context.Context, sub *subscription.Subscription, newPlanID string) (*plan.Plan, decimal.Decimal, error) {
	if !sub.IsActive() {
		return nil, decimal.Zero, ierr.NewError("only active subscriptions can change plans").
			WithHintf("Subscriptions in status %s cannot change plans", sub.SubscriptionStatus).
			WithReportableDetails(map[string]any{"subscription_id": sub.ID, "status": sub.SubscriptionStatus}).
			Mark(ierr.ErrInvalidOperation)
	}
	if newPlanID == sub.PlanID {
		return nil, decimal.Zero, ierr.NewError("subscription is already on this plan").
			WithHint("Pick a different plan to change to").
			Mark(ierr.ErrInvalidOperation)
	}
	newPlan, err := s.PlanRepo.Get(ctx, newPlanID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	newPrice, err := newPlan.GetPriceForCycle(sub.BillingCycle)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return newPlan, newPrice, nil
}

func (s *subscriptionService) prorate(ctx context.Context, sub *subscription.Subscription, newPrice decimal.Decimal, action proration.Action, now time.Time) (*proration.Result, error) {
	nextBilling := now
	if sub.NextBillingDate != nil {
		nextBilling = *sub.NextBillingDate
	}
	return s.ProrationCalc.Calculate(ctx, proration.Params{
		Action:          action,
		OldPrice:        sub.CurrentPrice,
		NewPrice:        newPrice,
		Cycle:           sub.BillingCycle,
		ProrationDate:   now,
		NextBillingDate: nextBilling,
	})
}

// chargeAndRecord submits a charge to the processor and records the
// resulting transaction. Must run inside a transaction so a failed record
// write does not leave an uncounted charge.
func (s *subscriptionService) chargeAndRecord(ctx context.Context, sub *subscription.Subscription, amount decimal.Decimal, pd *payment.PaymentData, kind types.TransactionKind) error {
	txn := &payment.Transaction{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRANSACTION),
		Reference:      types.GenerateShortIDWithPrefix("pay-"),
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Kind:           kind,
		Amount:         amount,
		Currency:       sub.Currency,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	if pd != nil {
		txn.PaymentMethod = pd.PaymentMethod
		txn.GatewayRef = pd.GatewayRef
	}

	if txn.GatewayRef == "" {
		result, err := s.Gateway.Charge(ctx, gateway.ChargeRequest{
			CustomerID:     sub.CustomerID,
			SubscriptionID: sub.ID,
			Amount:         amount,
			Currency:       sub.Currency,
			PaymentMethod:  txn.PaymentMethod,
			IdempotencyKey: txn.Reference,
		})
		if err != nil {
			return err
		}
		txn.GatewayRef = result.GatewayRef
	}

	return s.PaymentRepo.Create(ctx, txn)
}

// closeOpenDunning marks any in-flight failed payment record recovered.
func (s *subscriptionService) closeOpenDunning(ctx context.Context, subscriptionID string) error {
	fp, err := s.DunningRepo.GetOpenBySubscription(ctx, subscriptionID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}
	fp.MarkRecovered()
	fp.Touch(ctx)
	return s.DunningRepo.Update(ctx, fp)
}

func (s *subscriptionService) syncCustomerProjectionByID(ctx context.Context, sub *subscription.Subscription) error {
	cust, err := s.CustomerRepo.Get(ctx, sub.CustomerID)
	if err != nil {
		return err
	}
	return s.syncCustomerProjection(ctx, cust, sub)
}

func (s *subscriptionService) syncCustomerProjection(ctx context.Context, cust *customer.Customer, sub *subscription.Subscription) error {
	cust.ApplyBillingProjection(sub.SubscriptionStatus, sub.PlanID, sub.PlanName, sub.NextBillingDate, sub.LastBillingDate)
	cust.Touch(ctx)
	return s.CustomerRepo.Update(ctx, cust)
}

// ensureNoScheduledChange enforces at most one pending change of a kind.
func (s *subscriptionService) ensureNoScheduledChange(ctx context.Context, subscriptionID string, changeType types.ScheduledChangeType) error {
	pending, err := s.SubRepo.ListScheduledChanges(ctx, subscriptionID, []types.ScheduledChangeStatus{types.ScheduledChangeStatusScheduled})
	if err != nil {
		return err
	}
	if lo.ContainsBy(pending, func(c *subscription.ScheduledChange) bool { return c.ChangeType == changeType }) {
		return ierr.NewError("a change of this kind is already scheduled").
			WithHintf("A %s is already pending for this subscription", changeType).
			WithReportableDetails(map[string]any{"subscription_id": subscriptionID, "change_type": changeType}).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}
