package service

import (
	"context"

	"github.com/subcycle/subcycle/internal/api/dto"
	ierr "github.com/subcycle/subcycle/internal/errors"
)

// CustomerService manages the accounts subscriptions hang off.
type CustomerService interface {
	CreateCustomer(ctx context.Context, req *dto.CreateCustomerRequest) (*dto.CustomerResponse, error)
	GetCustomer(ctx context.Context, id string) (*dto.CustomerResponse, error)
}

type customerService struct {
	ServiceParams
}

func NewCustomerService(params ServiceParams) CustomerService {
	return &customerService{ServiceParams: params}
}

func (s *customerService) CreateCustomer(ctx context.Context, req *dto.CreateCustomerRequest) (*dto.CustomerResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if existing, err := s.CustomerRepo.GetByExternalID(ctx, req.ExternalID); err == nil {
		return nil, ierr.NewError("customer already exists").
			WithHintf("A customer with external id %s already exists", req.ExternalID).
			WithReportableDetails(map[string]any{"customer_id": existing.ID}).
			Mark(ierr.ErrAlreadyExists)
	} else if !ierr.IsNotFound(err) {
		return nil, err
	}

	cust := req.ToCustomer(ctx)
	if err := s.CustomerRepo.Create(ctx, cust); err != nil {
		return nil, err
	}
	return &dto.CustomerResponse{Customer: cust}, nil
}

func (s *customerService) GetCustomer(ctx context.Context, id string) (*dto.CustomerResponse, error) {
	cust, err := s.CustomerRepo.Get(ctx, id)
	if err != nil {
		if !ierr.IsNotFound(err) {
			return nil, err
		}
		cust, err = s.CustomerRepo.GetByExternalID(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return &dto.CustomerResponse{Customer: cust}, nil
}
