package service

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/subcycle/subcycle/internal/api/dto"
	"github.com/subcycle/subcycle/internal/domain/subscription"
	"github.com/subcycle/subcycle/internal/types"
)

// Churn scoring weights and thresholds. Factors are independent and additive.
const (
	churnWeightPaymentIssues = 30
	churnWeightLowUsage      = 25
	churnWeightSupportIssues = 20
	churnWeightNewSubscriber = 15

	churnThresholdHigh   = 60
	churnThresholdMedium = 30

	churnBillingAttemptsFloor = 2
	churnLastLoginDaysFloor   = 30
	churnSupportTicketsFloor  = 3
	churnNewSubscriberAgeDays = 30
)

// ChurnService estimates churn risk from ledger state plus caller-supplied
// usage signals, and persists the result onto the subscription.
type ChurnService interface {
	CalculateChurnRisk(ctx context.Context, subscriptionID string, activity dto.UserActivity) (*dto.ChurnRiskResponse, error)
}

type churnService struct {
	ServiceParams
}

func NewChurnService(params ServiceParams) ChurnService {
	return &churnService{ServiceParams: params}
}

// ScoreChurnRisk is the pure scoring rule. Deterministic for a given
// subscription state, activity and instant.
func ScoreChurnRisk(sub *subscription.Subscription, activity dto.UserActivity, now time.Time) (int, []types.ChurnRiskFactor) {
	score := 0
	factors := make([]types.ChurnRiskFactor, 0, 4)

	if sub.BillingAttempts > churnBillingAttemptsFloor {
		score += churnWeightPaymentIssues
		factors = append(factors, types.ChurnRiskFactorPaymentIssues)
	}
	if activity.LastLoginDays > churnLastLoginDaysFloor {
		score += churnWeightLowUsage
		factors = append(factors, types.ChurnRiskFactorLowUsage)
	}
	if activity.SupportTickets > churnSupportTicketsFloor {
		score += churnWeightSupportIssues
		factors = append(factors, types.ChurnRiskFactorSupportIssues)
	}
	if sub.AgeDays(now) < churnNewSubscriberAgeDays {
		score += churnWeightNewSubscriber
		factors = append(factors, types.ChurnRiskFactorNewSubscriber)
	}

	return score, factors
}

// ChurnLevelForScore buckets a score into a risk level.
func ChurnLevelForScore(score int) types.ChurnRiskLevel {
	switch {
	case score >= churnThresholdHigh:
		return types.ChurnRiskLevelHigh
	case score >= churnThresholdMedium:
		return types.ChurnRiskLevelMedium
	default:
		return types.ChurnRiskLevelLow
	}
}

func (s *churnService) CalculateChurnRisk(ctx context.Context, subscriptionID string, activity dto.UserActivity) (*dto.ChurnRiskResponse, error) {
	var resp *dto.ChurnRiskResponse
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		sub, err := s.SubRepo.Get(ctx, subscriptionID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		score, factors := ScoreChurnRisk(sub, activity, now)
		level := ChurnLevelForScore(score)

		sub.ChurnRiskScore = score
		sub.ChurnRiskLevel = level
		sub.ChurnRiskFactors = lo.Map(factors, func(f types.ChurnRiskFactor, _ int) string { return string(f) })
		sub.ChurnRiskLastCalculated = lo.ToPtr(now)
		sub.Touch(ctx)
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}

		resp = &dto.ChurnRiskResponse{
			SubscriptionID: sub.ID,
			Score:          score,
			Level:          level,
			Factors:        factors,
			LastCalculated: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Debugw("calculated churn risk",
		"subscription_id", resp.SubscriptionID,
		"score", resp.Score,
		"level", resp.Level,
	)
	return resp, nil
}
