package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/subcycle/subcycle/internal/api/dto"
	"github.com/subcycle/subcycle/internal/domain/customer"
	"github.com/subcycle/subcycle/internal/domain/payment"
	"github.com/subcycle/subcycle/internal/domain/plan"
	"github.com/subcycle/subcycle/internal/domain/proration"
	"github.com/subcycle/subcycle/internal/domain/subscription"
	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/testutil"
	"github.com/subcycle/subcycle/internal/types"
)

type SubscriptionServiceSuite struct {
	testutil.BaseServiceTestSuite
	service SubscriptionService

	testData struct {
		customer *customer.Customer
		plans    struct {
			basic       *plan.Plan
			pro         *plan.Plan
			proDeferred *plan.Plan
			trial       *plan.Plan
		}
	}
}

func TestSubscriptionService(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewSubscriptionService(s.params())
	s.setupTestData()
}

func (s *SubscriptionServiceSuite) params() ServiceParams {
	stores := s.GetStores()
	return ServiceParams{
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
}

func (s *SubscriptionServiceSuite) setupTestData() {
	ctx := s.GetContext()

	s.testData.customer = &customer.Customer{
		ID:         "cust_1",
		ExternalID: "ext_cust_1",
		Email:      "test@example.com",
		Name:       "Test Customer",
		BaseModel:  types.GetDefaultBaseModel(ctx),
	}
	s.NoError(s.GetStores().CustomerRepo.Create(ctx, s.testData.customer))

	s.testData.plans.basic = &plan.Plan{
		ID:        "plan_basic",
		Name:      "Basic",
		LookupKey: "basic",
		Prices: plan.PriceTable{
			types.BillingCycleMonthly: decimal.NewFromInt(10),
			types.BillingCycleAnnual:  decimal.NewFromInt(100),
		},
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	s.testData.plans.pro = &plan.Plan{
		ID:        "plan_pro",
		Name:      "Pro",
		LookupKey: "pro",
		Prices: plan.PriceTable{
			types.BillingCycleMonthly: decimal.NewFromInt(20),
			types.BillingCycleAnnual:  decimal.NewFromInt(200),
		},
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	s.testData.plans.proDeferred = &plan.Plan{
		ID:            "plan_pro_deferred",
		Name:          "Pro Deferred",
		LookupKey:     "pro-deferred",
		UpgradePolicy: types.ChangeTimingPolicyEndOfPeriod,
		Prices: plan.PriceTable{
			types.BillingCycleMonthly: decimal.NewFromInt(20),
		},
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	s.testData.plans.trial = &plan.Plan{
		ID:              "plan_trial",
		Name:            "Trial Tier",
		LookupKey:       "trial-tier",
		TrialPeriodDays: 14,
		Prices: plan.PriceTable{
			types.BillingCycleMonthly: decimal.NewFromInt(10),
		},
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	for _, p := range []*plan.Plan{s.testData.plans.basic, s.testData.plans.pro, s.testData.plans.proDeferred, s.testData.plans.trial} {
		s.NoError(s.GetStores().PlanRepo.Create(ctx, p))
	}
}

// seedSubscription writes an active monthly subscription on the basic plan
// with the next billing date at the given offset from now.
func (s *SubscriptionServiceSuite) seedSubscription(id string, nextBillingIn time.Duration) *subscription.Subscription {
	ctx := s.GetContext()
	now := s.GetNow()

	sub := &subscription.Subscription{
		ID:                 id,
		CustomerID:         s.testData.customer.ID,
		PlanID:             s.testData.plans.basic.ID,
		PlanName:           s.testData.plans.basic.Name,
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

func (s *SubscriptionServiceSuite) getSubscription(id string) *subscription.Subscription {
	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), id)
	s.NoError(err)
	return sub
}

func (s *SubscriptionServiceSuite) TestCreateSubscription() {
	resp, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		CustomerID:   s.testData.customer.ID,
		PlanID:       s.testData.plans.basic.ID,
		BillingCycle: types.BillingCycleMonthly,
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.True(resp.IsActive)
	s.False(resp.IsInTrial)
	s.True(resp.CurrentPrice.Equal(decimal.NewFromInt(10)))
	s.NotNil(resp.NextBillingDate)
	s.True(resp.AutoRenew)

	// customer projection written in the same operation
	cust, err := s.GetStores().CustomerRepo.Get(s.GetContext(), s.testData.customer.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, cust.SubscriptionStatus)
	s.Equal(s.testData.plans.basic.ID, cust.SubscriptionPlanID)
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionWithTrial() {
	resp, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		CustomerID:   s.testData.customer.ID,
		PlanID:       s.testData.plans.trial.ID,
		BillingCycle: types.BillingCycleMonthly,
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusTrial, resp.SubscriptionStatus)
	s.True(resp.IsInTrial)
	s.NotNil(resp.TrialEnd)
	s.NotNil(resp.NextBillingDate)
	// the first charge lands when the trial converts
	s.True(resp.NextBillingDate.Equal(*resp.TrialEnd))
	s.Equal(0, s.GetGateway().ChargeCount())
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionByExternalCustomerID() {
	resp, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		CustomerID:   s.testData.customer.ExternalID,
		PlanID:       s.testData.plans.basic.ID,
		BillingCycle: types.BillingCycleMonthly,
	})
	s.NoError(err)
	s.Equal(s.testData.customer.ID, resp.CustomerID)
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionDuplicatePlanRejected() {
	req := &dto.CreateSubscriptionRequest{
		CustomerID:   s.testData.customer.ID,
		PlanID:       s.testData.plans.basic.ID,
		BillingCycle: types.BillingCycleMonthly,
	}
	_, err := s.service.CreateSubscription(s.GetContext(), req)
	s.NoError(err)

	_, err = s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		CustomerID:   s.testData.customer.ID,
		PlanID:       s.testData.plans.basic.ID,
		BillingCycle: types.BillingCycleMonthly,
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))

	// a different plan is fine
	_, err = s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		CustomerID:   s.testData.customer.ID,
		PlanID:       s.testData.plans.pro.ID,
		BillingCycle: types.BillingCycleMonthly,
	})
	s.NoError(err)
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionUnknownPlan() {
	_, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		CustomerID:   s.testData.customer.ID,
		PlanID:       "plan_missing",
		BillingCycle: types.BillingCycleMonthly,
	})
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionCycleNotPriced() {
	_, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		CustomerID:   s.testData.customer.ID,
		PlanID:       s.testData.plans.trial.ID,
		BillingCycle: types.BillingCycleAnnual,
	})
	s.Error(err)
}

func (s *SubscriptionServiceSuite) TestRenewSubscriptionResetsAttempts() {
	sub := s.seedSubscription("subs_renew", -time.Hour)
	sub.BillingAttempts = 2
	sub.SubscriptionStatus = types.SubscriptionStatusPastDue
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))

	resp, err := s.service.RenewSubscription(s.GetContext(), sub.ID, nil)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.Equal(0, resp.BillingAttempts)
	s.NotNil(resp.LastBillingDate)
	s.True(resp.NextBillingDate.After(s.GetNow()))

	s.Equal(1, s.GetGateway().ChargeCount())
	s.True(s.GetGateway().Charges[0].Amount.Equal(decimal.NewFromInt(10)))

	txns, err := s.GetStores().PaymentRepo.ListBySubscription(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Len(txns, 1)
	s.Equal(types.TransactionKindRenewal, txns[0].Kind)
}

func (s *SubscriptionServiceSuite) TestRenewSubscriptionAppliesCredits() {
	sub := s.seedSubscription("subs_credits", -time.Hour)
	sub.ProratedCredits = decimal.NewFromInt(4)
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))

	resp, err := s.service.RenewSubscription(s.GetContext(), sub.ID, nil)
	s.NoError(err)
	s.True(resp.ProratedCredits.IsZero())
	s.True(s.GetGateway().Charges[0].Amount.Equal(decimal.NewFromInt(6)))
}

func (s *SubscriptionServiceSuite) TestRenewCanceledSubscription() {
	sub := s.seedSubscription("subs_dead", -time.Hour)
	sub.SubscriptionStatus = types.SubscriptionStatusCanceled
	sub.AutoRenew = false
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), sub))

	_, err := s.service.RenewSubscription(s.GetContext(), sub.ID, nil)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *SubscriptionServiceSuite) TestCancelSubscriptionImmediate() {
	sub := s.seedSubscription("subs_cancel", 10*24*time.Hour)

	resp, err := s.service.CancelSubscription(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{
		Immediate: true,
		Reason:    "too expensive",
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusCanceled, resp.SubscriptionStatus)
	s.False(resp.AutoRenew)
	s.NotNil(resp.CanceledAt)
	s.Equal("too expensive", resp.CancellationReason)

	// terminal is terminal
	_, err = s.service.CancelSubscription(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{Immediate: true})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *SubscriptionServiceSuite) TestCancelSubscriptionEndOfPeriod() {
	sub := s.seedSubscription("subs_cancel_eop", 10*24*time.Hour)

	resp, err := s.service.CancelSubscription(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{
		Reason: "switching providers",
	})
	s.NoError(err)
	// keeps serving until the boundary but will not renew
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.False(resp.AutoRenew)
	s.Len(resp.ScheduledChanges, 1)
	s.Equal(types.ScheduledChangeTypeCancellation, resp.ScheduledChanges[0].ChangeType)
	s.True(resp.ScheduledChanges[0].ScheduledAt.Equal(*sub.NextBillingDate))
	s.NotNil(resp.EndDate)
	s.True(resp.EndDate.Equal(*sub.NextBillingDate))

	// a second deferred cancellation is rejected
	_, err = s.service.CancelSubscription(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *SubscriptionServiceSuite) TestCancelEndOfPeriodFallsBackToEndDate() {
	// no billing boundary left to wait for, but a fixed end date remains
	sub := s.seedSubscription("subs_cancel_enddate", 24*time.Hour)
	stored := s.getSubscription(sub.ID)
	stored.NextBillingDate = nil
	stored.EndDate = lo.ToPtr(s.GetNow().Add(20 * 24 * time.Hour))
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), stored))

	resp, err := s.service.CancelSubscription(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.Len(resp.ScheduledChanges, 1)
	s.True(resp.ScheduledChanges[0].ScheduledAt.Equal(*stored.EndDate))
}

func (s *SubscriptionServiceSuite) TestUpgradeMidCycleChargesDifference() {
	// halfway through a 30 day cycle: credit 5 on the old plan, charge 10
	// on the new one, so the prorated charge is 5
	sub := s.seedSubscription("subs_upgrade", 15*24*time.Hour)

	resp, err := s.service.UpgradeSubscription(s.GetContext(), sub.ID, &dto.UpgradeSubscriptionRequest{
		NewPlanID:   s.testData.plans.pro.ID,
		PaymentData: &payment.PaymentData{PaymentMethod: "card"},
	})
	s.NoError(err)
	s.Equal(s.testData.plans.pro.ID, resp.PlanID)
	s.True(resp.CurrentPrice.Equal(decimal.NewFromInt(20)))
	// the unused half of the old price stays on the credit ledger
	s.True(resp.ProratedCredits.Equal(decimal.NewFromInt(5)))

	s.Equal(1, s.GetGateway().ChargeCount())
	s.True(s.GetGateway().Charges[0].Amount.Equal(decimal.NewFromInt(5)))

	txns, err := s.GetStores().PaymentRepo.ListBySubscription(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Len(txns, 1)
	s.Equal(types.TransactionKindUpgrade, txns[0].Kind)
	s.True(txns[0].Amount.Equal(decimal.NewFromInt(5)))
}

func (s *SubscriptionServiceSuite) TestUpgradeWithoutPaymentDataNeverCharges() {
	sub := s.seedSubscription("subs_upgrade_nopay", 15*24*time.Hour)

	resp, err := s.service.UpgradeSubscription(s.GetContext(), sub.ID, &dto.UpgradeSubscriptionRequest{
		NewPlanID: s.testData.plans.pro.ID,
	})
	s.NoError(err)
	// the swap and the credit still land, the charge waits for payment data
	s.Equal(s.testData.plans.pro.ID, resp.PlanID)
	s.True(resp.ProratedCredits.Equal(decimal.NewFromInt(5)))
	s.Equal(0, s.GetGateway().ChargeCount())

	txns, err := s.GetStores().PaymentRepo.ListBySubscription(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Empty(txns)
}

func (s *SubscriptionServiceSuite) TestUpgradeEndOfPeriodPolicySkipsProration() {
	sub := s.seedSubscription("subs_upgrade_eop", 15*24*time.Hour)

	resp, err := s.service.UpgradeSubscription(s.GetContext(), sub.ID, &dto.UpgradeSubscriptionRequest{
		NewPlanID:   s.testData.plans.proDeferred.ID,
		PaymentData: &payment.PaymentData{PaymentMethod: "card"},
	})
	s.NoError(err)
	// the plan and price swap now either way; the charge waits for renewal
	s.Equal(s.testData.plans.proDeferred.ID, resp.PlanID)
	s.True(resp.CurrentPrice.Equal(decimal.NewFromInt(20)))
	s.True(resp.ProratedCredits.IsZero())
	s.Equal(0, s.GetGateway().ChargeCount())
}

func (s *SubscriptionServiceSuite) TestUpgradeCallerOverridesEndOfPeriodPolicy() {
	sub := s.seedSubscription("subs_upgrade_force", 15*24*time.Hour)

	resp, err := s.service.UpgradeSubscription(s.GetContext(), sub.ID, &dto.UpgradeSubscriptionRequest{
		NewPlanID:   s.testData.plans.proDeferred.ID,
		Immediate:   true,
		PaymentData: &payment.PaymentData{PaymentMethod: "card"},
	})
	s.NoError(err)
	s.True(resp.ProratedCredits.Equal(decimal.NewFromInt(5)))
	s.Equal(1, s.GetGateway().ChargeCount())
	s.True(s.GetGateway().Charges[0].Amount.Equal(decimal.NewFromInt(5)))
}

func (s *SubscriptionServiceSuite) TestUpgradePaymentFailureSurfaces() {
	sub := s.seedSubscription("subs_upgrade_fail", 15*24*time.Hour)
	s.GetGateway().FailAll()

	_, err := s.service.UpgradeSubscription(s.GetContext(), sub.ID, &dto.UpgradeSubscriptionRequest{
		NewPlanID:   s.testData.plans.pro.ID,
		PaymentData: &payment.PaymentData{PaymentMethod: "card"},
	})
	s.Error(err)
	s.True(ierr.IsPaymentFailed(err))

	// neither the plan swap nor the credit survived the rollback
	stored := s.getSubscription(sub.ID)
	s.Equal(s.testData.plans.basic.ID, stored.PlanID)
	s.True(stored.CurrentPrice.Equal(decimal.NewFromInt(10)))
	s.True(stored.ProratedCredits.IsZero())
}

func (s *SubscriptionServiceSuite) TestUpgradeToCheaperPlanRejected() {
	sub := s.seedSubscription("subs_upgrade_cheap", 15*24*time.Hour)
	stored := s.getSubscription(sub.ID)
	stored.PlanID = s.testData.plans.pro.ID
	stored.CurrentPrice = decimal.NewFromInt(20)
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), stored))

	_, err := s.service.UpgradeSubscription(s.GetContext(), sub.ID, &dto.UpgradeSubscriptionRequest{
		NewPlanID: s.testData.plans.basic.ID,
	})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *SubscriptionServiceSuite) TestDowngradeDefersToEndOfPeriod() {
	sub := s.seedSubscription("subs_downgrade", 15*24*time.Hour)
	stored := s.getSubscription(sub.ID)
	stored.PlanID = s.testData.plans.pro.ID
	stored.CurrentPrice = decimal.NewFromInt(20)
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), stored))

	resp, err := s.service.DowngradeSubscription(s.GetContext(), sub.ID, &dto.DowngradeSubscriptionRequest{
		NewPlanID: s.testData.plans.basic.ID,
	})
	s.NoError(err)

	// nothing charged, nothing swapped yet
	s.Equal(0, s.GetGateway().ChargeCount())
	s.Equal(s.testData.plans.pro.ID, resp.PlanID)
	s.Len(resp.ScheduledChanges, 1)
	s.Equal(types.ScheduledChangeTypePlanChange, resp.ScheduledChanges[0].ChangeType)

	payload, err := resp.ScheduledChanges[0].PlanChange()
	s.NoError(err)
	s.Equal(s.testData.plans.basic.ID, payload.NewPlanID)
	s.True(payload.NewPrice.Equal(decimal.NewFromInt(10)))

	// only one pending plan change at a time
	_, err = s.service.DowngradeSubscription(s.GetContext(), sub.ID, &dto.DowngradeSubscriptionRequest{
		NewPlanID: s.testData.plans.basic.ID,
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *SubscriptionServiceSuite) TestDowngradeImmediateBooksCreditNeverCharges() {
	// halfway through the cycle on the pro plan: unused value 10, new
	// partial period 5, so 5 lands in the credit ledger
	sub := s.seedSubscription("subs_downgrade_now", 15*24*time.Hour)
	stored := s.getSubscription(sub.ID)
	stored.PlanID = s.testData.plans.pro.ID
	stored.CurrentPrice = decimal.NewFromInt(20)
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), stored))

	resp, err := s.service.DowngradeSubscription(s.GetContext(), sub.ID, &dto.DowngradeSubscriptionRequest{
		NewPlanID: s.testData.plans.basic.ID,
		Immediate: true,
	})
	s.NoError(err)
	s.Equal(s.testData.plans.basic.ID, resp.PlanID)
	s.True(resp.CurrentPrice.Equal(decimal.NewFromInt(10)))
	s.True(resp.ProratedCredits.Equal(decimal.NewFromInt(5)))
	s.Equal(0, s.GetGateway().ChargeCount())
}

func (s *SubscriptionServiceSuite) TestPauseAndResume() {
	sub := s.seedSubscription("subs_pause", 15*24*time.Hour)
	beforePause := *s.getSubscription(sub.ID).NextBillingDate

	resp, err := s.service.PauseSubscription(s.GetContext(), sub.ID, &dto.PauseSubscriptionRequest{
		Reason: "vacation",
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusPaused, resp.SubscriptionStatus)
	s.NotNil(resp.PausedAt)

	// pausing a paused subscription is invalid
	_, err = s.service.PauseSubscription(s.GetContext(), sub.ID, &dto.PauseSubscriptionRequest{})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))

	resumed, err := s.service.ResumeSubscription(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, resumed.SubscriptionStatus)
	s.NotNil(resumed.ResumedAt)
	// a billing date that is still ahead is not moved
	s.True(resumed.NextBillingDate.Equal(beforePause))

	// resuming an active subscription is invalid
	_, err = s.service.ResumeSubscription(s.GetContext(), sub.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *SubscriptionServiceSuite) TestResumeRecomputesStaleBillingDate() {
	// the billing boundary passed while the subscription sat paused
	sub := s.seedSubscription("subs_resume_stale", -72*time.Hour)
	_, err := s.service.PauseSubscription(s.GetContext(), sub.ID, &dto.PauseSubscriptionRequest{})
	s.NoError(err)

	resumed, err := s.service.ResumeSubscription(s.GetContext(), sub.ID)
	s.NoError(err)
	s.NotNil(resumed.NextBillingDate)
	s.True(resumed.NextBillingDate.After(s.GetNow()))

	expected, err := types.NextBillingDate(s.GetNow(), types.BillingCycleMonthly)
	s.NoError(err)
	s.WithinDuration(expected, *resumed.NextBillingDate, time.Minute)
}

func (s *SubscriptionServiceSuite) TestPauseWithUntilSchedulesResume() {
	sub := s.seedSubscription("subs_pause_until", 15*24*time.Hour)
	until := s.GetNow().Add(7 * 24 * time.Hour)

	resp, err := s.service.PauseSubscription(s.GetContext(), sub.ID, &dto.PauseSubscriptionRequest{
		PausedUntil: &until,
	})
	s.NoError(err)
	s.Len(resp.ScheduledChanges, 1)
	s.Equal(types.ScheduledChangeTypeResume, resp.ScheduledChanges[0].ChangeType)

	// manual resume withdraws the scheduled one
	_, err = s.service.ResumeSubscription(s.GetContext(), sub.ID)
	s.NoError(err)
	changes, err := s.GetStores().SubscriptionRepo.ListScheduledChanges(
		s.GetContext(), sub.ID, []types.ScheduledChangeStatus{types.ScheduledChangeStatusScheduled})
	s.NoError(err)
	s.Empty(changes)
}

func (s *SubscriptionServiceSuite) TestListSubscriptionsFiltering() {
	s.seedSubscription("subs_list_1", 24*time.Hour)
	sub2 := s.seedSubscription("subs_list_2", 24*time.Hour)
	stored := s.getSubscription(sub2.ID)
	stored.SubscriptionStatus = types.SubscriptionStatusPaused
	s.NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), stored))

	resp, err := s.service.ListSubscriptions(s.GetContext(), &types.SubscriptionFilter{
		Statuses: []types.SubscriptionStatus{types.SubscriptionStatusActive},
	})
	s.NoError(err)
	s.Equal(1, resp.Total)
	s.Len(resp.Subscriptions, 1)
	s.Equal("subs_list_1", resp.Subscriptions[0].ID)
}
