package dto

import (
	"context"

	"github.com/subcycle/subcycle/internal/domain/customer"
	"github.com/subcycle/subcycle/internal/types"
	"github.com/subcycle/subcycle/internal/validator"
)

type CreateCustomerRequest struct {
	ExternalID string `json:"external_id" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	Name       string `json:"name,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
}

func (r *CreateCustomerRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *CreateCustomerRequest) ToCustomer(ctx context.Context) *customer.Customer {
	return &customer.Customer{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CUSTOMER),
		ExternalID: r.ExternalID,
		Email:      r.Email,
		Name:       r.Name,
		Timezone:   r.Timezone,
		BaseModel:  types.GetDefaultBaseModel(ctx),
	}
}

type CustomerResponse struct {
	*customer.Customer
}
