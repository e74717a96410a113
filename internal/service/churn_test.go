package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/subcycle/subcycle/internal/api/dto"
	"github.com/subcycle/subcycle/internal/domain/proration"
	"github.com/subcycle/subcycle/internal/domain/subscription"
	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/testutil"
	"github.com/subcycle/subcycle/internal/types"
)

type ChurnServiceSuite struct {
	testutil.BaseServiceTestSuite
	service ChurnService
}

func TestChurnService(t *testing.T) {
	suite.Run(t, new(ChurnServiceSuite))
}

func (s *ChurnServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	stores := s.GetStores()
	s.service = NewChurnService(ServiceParams{
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
	})
}

func (s *ChurnServiceSuite) seedSubscription(id string, ageDays, billingAttempts int) *subscription.Subscription {
	ctx := s.GetContext()
	now := s.GetNow()

	sub := &subscription.Subscription{
		ID:                 id,
		CustomerID:         "cust_1",
		PlanID:             "plan_basic",
		SubscriptionStatus: types.SubscriptionStatusActive,
		BillingCycle:       types.BillingCycleMonthly,
		CurrentPrice:       decimal.NewFromInt(10),
		Currency:           "usd",
		StartDate:          now.AddDate(0, 0, -ageDays),
		BillingAttempts:    billingAttempts,
		ProratedCredits:    decimal.Zero,
		SeatsAllocated:     1,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}
	s.NoError(s.GetStores().SubscriptionRepo.Create(ctx, sub))
	return sub
}

func (s *ChurnServiceSuite) TestAllFactorsStack() {
	// payment issues (30) + low usage (25) + new subscriber (15) = 70
	sub := s.seedSubscription("subs_risky", 10, 3)

	resp, err := s.service.CalculateChurnRisk(s.GetContext(), sub.ID, dto.UserActivity{
		LastLoginDays:  40,
		SupportTickets: 2,
	})
	s.NoError(err)
	s.Equal(70, resp.Score)
	s.Equal(types.ChurnRiskLevelHigh, resp.Level)
	s.ElementsMatch([]types.ChurnRiskFactor{
		types.ChurnRiskFactorPaymentIssues,
		types.ChurnRiskFactorLowUsage,
		types.ChurnRiskFactorNewSubscriber,
	}, resp.Factors)
}

func (s *ChurnServiceSuite) TestHealthySubscriberScoresZero() {
	sub := s.seedSubscription("subs_healthy", 120, 0)

	resp, err := s.service.CalculateChurnRisk(s.GetContext(), sub.ID, dto.UserActivity{
		LastLoginDays:  2,
		SupportTickets: 0,
	})
	s.NoError(err)
	s.Equal(0, resp.Score)
	s.Equal(types.ChurnRiskLevelLow, resp.Level)
	s.Empty(resp.Factors)
}

func (s *ChurnServiceSuite) TestMediumBand() {
	// support issues (20) + new subscriber (15) = 35
	sub := s.seedSubscription("subs_medium", 10, 0)

	resp, err := s.service.CalculateChurnRisk(s.GetContext(), sub.ID, dto.UserActivity{
		LastLoginDays:  5,
		SupportTickets: 4,
	})
	s.NoError(err)
	s.Equal(35, resp.Score)
	s.Equal(types.ChurnRiskLevelMedium, resp.Level)
}

func (s *ChurnServiceSuite) TestThresholdValuesDoNotTrigger() {
	// exactly at each floor: nothing fires except subscriber age
	sub := s.seedSubscription("subs_edges", 120, 2)

	resp, err := s.service.CalculateChurnRisk(s.GetContext(), sub.ID, dto.UserActivity{
		LastLoginDays:  30,
		SupportTickets: 3,
	})
	s.NoError(err)
	s.Equal(0, resp.Score)
	s.Equal(types.ChurnRiskLevelLow, resp.Level)
}

func (s *ChurnServiceSuite) TestResultPersistedOnLedger() {
	sub := s.seedSubscription("subs_persist", 10, 3)

	_, err := s.service.CalculateChurnRisk(s.GetContext(), sub.ID, dto.UserActivity{
		LastLoginDays: 40,
	})
	s.NoError(err)

	stored, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(70, stored.ChurnRiskScore)
	s.Equal(types.ChurnRiskLevelHigh, stored.ChurnRiskLevel)
	s.NotNil(stored.ChurnRiskLastCalculated)
	s.Len(stored.ChurnRiskFactors, 3)
}

func (s *ChurnServiceSuite) TestUnknownSubscription() {
	_, err := s.service.CalculateChurnRisk(s.GetContext(), "subs_missing", dto.UserActivity{})
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func TestScoreChurnRiskPure(t *testing.T) {
	now := time.Now().UTC()
	sub := &subscription.Subscription{
		StartDate:       now.AddDate(0, 0, -45),
		BillingAttempts: 0,
	}

	score, factors := ScoreChurnRisk(sub, dto.UserActivity{LastLoginDays: 31}, now)
	if score != 25 {
		t.Fatalf("expected score 25, got %d", score)
	}
	if len(factors) != 1 || factors[0] != types.ChurnRiskFactorLowUsage {
		t.Fatalf("unexpected factors: %v", factors)
	}

	if got := ChurnLevelForScore(60); got != types.ChurnRiskLevelHigh {
		t.Fatalf("expected high at 60, got %s", got)
	}
	if got := ChurnLevelForScore(30); got != types.ChurnRiskLevelMedium {
		t.Fatalf("expected medium at 30, got %s", got)
	}
	if got := ChurnLevelForScore(29); got != types.ChurnRiskLevelLow {
		t.Fatalf("expected low at 29, got %s", got)
	}
}
