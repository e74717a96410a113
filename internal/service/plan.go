package service

import (
	"context"

	"github.com/subcycle/subcycle/internal/api/dto"
	ierr "github.com/subcycle/subcycle/internal/errors"
)

// PlanService manages the pricing catalog.
type PlanService interface {
	CreatePlan(ctx context.Context, req *dto.CreatePlanRequest) (*dto.PlanResponse, error)
	GetPlan(ctx context.Context, id string) (*dto.PlanResponse, error)
	ListPlans(ctx context.Context) ([]*dto.PlanResponse, error)
}

type planService struct {
	ServiceParams
}

func NewPlanService(params ServiceParams) PlanService {
	return &planService{ServiceParams: params}
}

func (s *planService) CreatePlan(ctx context.Context, req *dto.CreatePlanRequest) (*dto.PlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if existing, err := s.PlanRepo.GetByLookupKey(ctx, req.LookupKey); err == nil {
		return nil, ierr.NewError("plan already exists").
			WithHintf("A plan with lookup key %s already exists", req.LookupKey).
			WithReportableDetails(map[string]any{"plan_id": existing.ID}).
			Mark(ierr.ErrAlreadyExists)
	} else if !ierr.IsNotFound(err) {
		return nil, err
	}

	p := req.ToPlan(ctx)
	if err := s.PlanRepo.Create(ctx, p); err != nil {
		return nil, err
	}
	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) GetPlan(ctx context.Context, id string) (*dto.PlanResponse, error) {
	p, err := s.PlanRepo.Get(ctx, id)
	if err != nil {
		if !ierr.IsNotFound(err) {
			return nil, err
		}
		p, err = s.PlanRepo.GetByLookupKey(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) ListPlans(ctx context.Context) ([]*dto.PlanResponse, error) {
	plans, err := s.PlanRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.PlanResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, &dto.PlanResponse{Plan: p})
	}
	return out, nil
}
