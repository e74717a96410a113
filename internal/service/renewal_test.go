package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/subcycle/subcycle/internal/domain/customer"
	"github.com/subcycle/subcycle/internal/domain/plan"
	"github.com/subcycle/subcycle/internal/domain/proration"
	"github.com/subcycle/subcycle/internal/domain/subscription"
	"github.com/subcycle/subcycle/internal/testutil"
	"github.com/subcycle/subcycle/internal/types"
)

type RenewalServiceSuite struct {
	testutil.BaseServiceTestSuite
	service RenewalService

	plan *plan.Plan
	cust *customer.Customer
}

func TestRenewalService(t *testing.T) {
	suite.Run(t, new(RenewalServiceSuite))
}

func (s *RenewalServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	stores := s.GetStores()
	params := ServiceParams{
		Logger:        s.GetLogger(),
		Config:        s.GetConfig(),
		DB:            s.GetDB(),
		SubRepo:       stores.SubscriptionRepo,
		CustomerRepo:  stores.CustomerRepo,
		PlanRepo:      stores.PlanRepo,
		PaymentRepo:   stores.PaymentRepo,
		DunningRepo:   stores.DunningRepo,
		ProrationCalc: proration.NewCalculator(),
		Gateway:       s.GetGateway(),
	}
	s.service = NewRenewalService(params)

	ctx := s.GetContext()
	s.cust = &customer.Customer{
		ID:         "cust_1",
		ExternalID: "ext_cust_1",
		BaseModel:  types.GetDefaultBaseModel(ctx),
	}
	s.NoError(stores.CustomerRepo.Create(ctx, s.cust))

	s.plan = &plan.Plan{
		ID:        "plan_basic",
		Name:      "Basic",
		LookupKey: "basic",
		Prices: plan.PriceTable{
			types.BillingCycleMonthly: decimal.NewFromInt(10),
		},
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	s.NoError(stores.PlanRepo.Create(ctx, s.plan))
}

func (s *RenewalServiceSuite) seedSubscription(id string, nextBillingIn time.Duration) *subscription.Subscription {
	ctx := s.GetContext()
	now := s.GetNow()

	sub := &subscription.Subscription{
		ID:                 id,
		CustomerID:         s.cust.ID,
		PlanID:             s.plan.ID,
		PlanName:           s.plan.Name,
		SubscriptionStatus: types.SubscriptionStatusActive,
		BillingCycle:       types.BillingCycleMonthly,
		CurrentPrice:       decimal.NewFromInt(10),
		Currency:           "usd",
		StartDate:          now.AddDate(0, -2, 0),
		NextBillingDate:    lo.ToPtr(now.Add(nextBillingIn)),
		AutoRenew:          true,
		ProratedCredits:    decimal.Zero,
		SeatsAllocated:     1,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}
	s.NoError(s.GetStores().SubscriptionRepo.Create(ctx, sub))
	return sub
}

func (s *RenewalServiceSuite) getSubscription(id string) *subscription.Subscription {
	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), id)
	s.NoError(err)
	return sub
}

func (s *RenewalServiceSuite) TestDueSelectionAndOrdering() {
	s.seedSubscription("subs_overdue_2d", -48*time.Hour)
	s.seedSubscription("subs_overdue_1d", -24*time.Hour)
	s.seedSubscription("subs_future", 5*24*time.Hour)

	due, err := s.service.GetDueForRenewal(s.GetContext())
	s.NoError(err)
	s.Len(due, 2)
	// most overdue first
	s.Equal("subs_overdue_2d", due[0].ID)
	s.Equal("subs_overdue_1d", due[1].ID)
}

func (s *RenewalServiceSuite) TestDueSelectionExcludesNonRenewing() {
	sub := s.seedSubscription("subs_no_autorenew", -24*time.Hour)
	stored := s.getSubscription(sub.ID)
	stored.AutoRenew = false
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), stored))

	paused := s.seedSubscription("subs_paused", -24*time.Hour)
	storedPaused := s.getSubscription(paused.ID)
	storedPaused.SubscriptionStatus = types.SubscriptionStatusPaused
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), storedPaused))

	due, err := s.service.GetDueForRenewal(s.GetContext())
	s.NoError(err)
	s.Empty(due)
}

func (s *RenewalServiceSuite) TestProcessDueRenewalsSuccess() {
	sub := s.seedSubscription("subs_due", -time.Hour)
	oldNext := *s.getSubscription(sub.ID).NextBillingDate

	run, err := s.service.ProcessDueRenewals(s.GetContext())
	s.NoError(err)
	s.Equal(1, run.Processed)
	s.Equal(1, run.Renewed)
	s.Equal(0, run.Failed)

	stored := s.getSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusActive, stored.SubscriptionStatus)
	s.Equal(0, stored.BillingAttempts)
	// anchored on the missed boundary, not on when the sweep ran
	expectedNext, err := types.NextBillingDate(oldNext, types.BillingCycleMonthly)
	s.NoError(err)
	s.True(stored.NextBillingDate.Equal(expectedNext))

	// second sweep finds nothing
	run, err = s.service.ProcessDueRenewals(s.GetContext())
	s.NoError(err)
	s.Equal(0, run.Processed)
}

func (s *RenewalServiceSuite) TestTrialConversionOnSweep() {
	sub := s.seedSubscription("subs_trial", -time.Hour)
	stored := s.getSubscription(sub.ID)
	stored.SubscriptionStatus = types.SubscriptionStatusTrial
	stored.TrialStart = lo.ToPtr(s.GetNow().AddDate(0, 0, -14))
	stored.TrialEnd = lo.ToPtr(s.GetNow().Add(-time.Hour))
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), stored))

	run, err := s.service.ProcessDueRenewals(s.GetContext())
	s.NoError(err)
	s.Equal(1, run.Renewed)

	converted := s.getSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusActive, converted.SubscriptionStatus)
	s.Nil(converted.TrialEnd)
	s.Equal(1, s.GetGateway().ChargeCount())
}

func (s *RenewalServiceSuite) TestFailedChargeStartsDunning() {
	sub := s.seedSubscription("subs_dunning", -time.Hour)
	s.GetGateway().FailAll()

	run, err := s.service.ProcessDueRenewals(s.GetContext())
	s.NoError(err)
	s.Equal(1, run.Processed)
	s.Equal(1, run.Failed)
	s.Equal(0, run.Canceled)

	stored := s.getSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusPastDue, stored.SubscriptionStatus)
	s.Equal(1, stored.BillingAttempts)

	fp, err := s.GetStores().DunningRepo.GetOpenBySubscription(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(1, fp.Attempts)
	s.Equal(types.FailedPaymentStatusRetrying, fp.State)
	s.NotNil(fp.NextRetry)
	// first retry waits the initial interval
	expected := s.GetConfig().Billing.RetryInitialInterval
	s.WithinDuration(s.GetNow().Add(expected), *fp.NextRetry, time.Minute)
}

func (s *RenewalServiceSuite) TestDunningSkipsUntilRetryDue() {
	sub := s.seedSubscription("subs_backoff", -time.Hour)
	s.GetGateway().FailAll()

	_, err := s.service.ProcessDueRenewals(s.GetContext())
	s.NoError(err)

	// the retry is scheduled in the future, so the next sweep skips the row
	run, err := s.service.ProcessDueRenewals(s.GetContext())
	s.NoError(err)
	s.Equal(1, run.Processed)
	s.Equal(1, run.Skipped)

	stored := s.getSubscription(sub.ID)
	s.Equal(1, stored.BillingAttempts)

	// once the retry window opens the attempt counter moves again, with a
	// doubled wait
	fp, err := s.GetStores().DunningRepo.GetOpenBySubscription(s.GetContext(), sub.ID)
	s.NoError(err)
	fp.NextRetry = lo.ToPtr(s.GetNow().Add(-time.Minute))
	s.NoError(s.GetStores().DunningRepo.Update(s.GetContext(), fp))

	run, err = s.service.ProcessDueRenewals(s.GetContext())
	s.NoError(err)
	s.Equal(1, run.Failed)

	stored = s.getSubscription(sub.ID)
	s.Equal(2, stored.BillingAttempts)

	fp, err = s.GetStores().DunningRepo.GetOpenBySubscription(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(2, fp.Attempts)
	expected := 2 * s.GetConfig().Billing.RetryInitialInterval
	s.WithinDuration(s.GetNow().Add(expected), *fp.NextRetry, time.Minute)
}

func (s *RenewalServiceSuite) TestDunningAmountNeverNegative() {
	// accumulated credits above the price must not produce a negative
	// outstanding amount on the dunning record
	sub := s.seedSubscription("subs_credit_rich", -time.Hour)
	stored := s.getSubscription(sub.ID)
	stored.ProratedCredits = decimal.NewFromInt(15)
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), stored))

	_, err := s.service.(*renewalService).recordFailedRenewal(s.GetContext(), sub.ID, nil, s.GetNow())
	s.NoError(err)

	fp, err := s.GetStores().DunningRepo.GetOpenBySubscription(s.GetContext(), sub.ID)
	s.NoError(err)
	s.True(fp.Amount.IsZero())
}

func (s *RenewalServiceSuite) TestMaxAttemptsCancelsWithPaymentFailedReason() {
	sub := s.seedSubscription("subs_exhausted", -time.Hour)
	stored := s.getSubscription(sub.ID)
	stored.BillingAttempts = s.GetConfig().Billing.MaxBillingAttempts - 1
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), stored))
	s.GetGateway().FailAll()

	run, err := s.service.ProcessDueRenewals(s.GetContext())
	s.NoError(err)
	s.Equal(1, run.Canceled)
	s.Equal(0, run.Failed)

	canceled := s.getSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusCanceled, canceled.SubscriptionStatus)
	s.False(canceled.AutoRenew)
	s.Equal(types.CancellationReasonPaymentFailed, canceled.CancellationReason)
	s.NotNil(canceled.CanceledAt)
}

func (s *RenewalServiceSuite) TestRecoveryClosesDunning() {
	sub := s.seedSubscription("subs_recovery", -time.Hour)
	s.GetGateway().FailNext(1)

	_, err := s.service.ProcessDueRenewals(s.GetContext())
	s.NoError(err)

	fp, err := s.GetStores().DunningRepo.GetOpenBySubscription(s.GetContext(), sub.ID)
	s.NoError(err)
	fp.NextRetry = lo.ToPtr(s.GetNow().Add(-time.Minute))
	s.NoError(s.GetStores().DunningRepo.Update(s.GetContext(), fp))

	run, err := s.service.ProcessDueRenewals(s.GetContext())
	s.NoError(err)
	s.Equal(1, run.Renewed)

	stored := s.getSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusActive, stored.SubscriptionStatus)
	s.Equal(0, stored.BillingAttempts)

	// the open record is closed, not left dangling
	_, err = s.GetStores().DunningRepo.GetOpenBySubscription(s.GetContext(), sub.ID)
	s.Error(err)
}

func (s *RenewalServiceSuite) TestScheduledPlanChangeAppliedOnce() {
	sub := s.seedSubscription("subs_sched", 10*24*time.Hour)

	change, err := subscription.NewPlanChange(s.GetContext(), sub.ID, s.GetNow().Add(-time.Hour), subscription.PlanChangePayload{
		NewPlanID:   "plan_lite",
		NewPlanName: "Lite",
		NewPrice:    decimal.NewFromInt(5),
	})
	s.NoError(err)
	s.NoError(s.GetStores().SubscriptionRepo.CreateScheduledChange(s.GetContext(), change))

	run, err := s.service.ProcessScheduledChanges(s.GetContext())
	s.NoError(err)
	s.Equal(1, run.Processed)
	s.Equal(1, run.Applied)

	stored := s.getSubscription(sub.ID)
	s.Equal("plan_lite", stored.PlanID)
	s.True(stored.CurrentPrice.Equal(decimal.NewFromInt(5)))

	consumed, ok := s.GetStores().SubscriptionRepo.(*testutil.InMemorySubscriptionStore).GetScheduledChange(change.ID)
	s.True(ok)
	s.Equal(types.ScheduledChangeStatusProcessed, consumed.ChangeStatus)
	s.NotNil(consumed.ProcessedAt)

	// a processed entry never fires again
	run, err = s.service.ProcessScheduledChanges(s.GetContext())
	s.NoError(err)
	s.Equal(0, run.Processed)
}

func (s *RenewalServiceSuite) TestScheduledCancellationAppliedOnSweep() {
	sub := s.seedSubscription("subs_sched_cancel", 10*24*time.Hour)

	change, err := subscription.NewCancellation(s.GetContext(), sub.ID, s.GetNow().Add(-time.Hour), subscription.CancellationPayload{
		Reason: "requested by customer",
	})
	s.NoError(err)
	s.NoError(s.GetStores().SubscriptionRepo.CreateScheduledChange(s.GetContext(), change))

	run, err := s.service.ProcessScheduledChanges(s.GetContext())
	s.NoError(err)
	s.Equal(1, run.Applied)

	stored := s.getSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusCanceled, stored.SubscriptionStatus)
	s.Equal("requested by customer", stored.CancellationReason)
}

func (s *RenewalServiceSuite) TestScheduledChangeOnCanceledSubscriptionWithdrawn() {
	sub := s.seedSubscription("subs_sched_dead", 10*24*time.Hour)
	stored := s.getSubscription(sub.ID)
	stored.SubscriptionStatus = types.SubscriptionStatusCanceled
	stored.AutoRenew = false
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), stored))

	change, err := subscription.NewPlanChange(s.GetContext(), sub.ID, s.GetNow().Add(-time.Hour), subscription.PlanChangePayload{
		NewPlanID: "plan_lite",
		NewPrice:  decimal.NewFromInt(5),
	})
	s.NoError(err)
	s.NoError(s.GetStores().SubscriptionRepo.CreateScheduledChange(s.GetContext(), change))

	_, err = s.service.ProcessScheduledChanges(s.GetContext())
	s.NoError(err)

	consumed, ok := s.GetStores().SubscriptionRepo.(*testutil.InMemorySubscriptionStore).GetScheduledChange(change.ID)
	s.True(ok)
	s.Equal(types.ScheduledChangeStatusCancelled, consumed.ChangeStatus)

	// ledger untouched
	after := s.getSubscription(sub.ID)
	s.Equal(s.plan.ID, after.PlanID)
}

func (s *RenewalServiceSuite) TestScheduledResumeKeepsFreshBillingDate() {
	sub := s.seedSubscription("subs_sched_resume", 10*24*time.Hour)
	stored := s.getSubscription(sub.ID)
	stored.SubscriptionStatus = types.SubscriptionStatusPaused
	stored.PausedAt = lo.ToPtr(s.GetNow().Add(-5 * 24 * time.Hour))
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), stored))

	change, err := subscription.NewResume(s.GetContext(), sub.ID, s.GetNow().Add(-time.Hour))
	s.NoError(err)
	s.NoError(s.GetStores().SubscriptionRepo.CreateScheduledChange(s.GetContext(), change))

	run, err := s.service.ProcessScheduledChanges(s.GetContext())
	s.NoError(err)
	s.Equal(1, run.Applied)

	after := s.getSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusActive, after.SubscriptionStatus)
	// the boundary is still ahead, so the pause gap does not move it
	s.True(after.NextBillingDate.Equal(*stored.NextBillingDate))
}

func (s *RenewalServiceSuite) TestFutureScheduledChangeNotConsumed() {
	sub := s.seedSubscription("subs_sched_future", 10*24*time.Hour)

	change, err := subscription.NewCancellation(s.GetContext(), sub.ID, s.GetNow().Add(48*time.Hour), subscription.CancellationPayload{})
	s.NoError(err)
	s.NoError(s.GetStores().SubscriptionRepo.CreateScheduledChange(s.GetContext(), change))

	run, err := s.service.ProcessScheduledChanges(s.GetContext())
	s.NoError(err)
	s.Equal(0, run.Processed)

	stored := s.getSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusActive, stored.SubscriptionStatus)
}
