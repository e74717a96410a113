package service

import (
	"github.com/subcycle/subcycle/internal/config"
	"github.com/subcycle/subcycle/internal/domain/customer"
	"github.com/subcycle/subcycle/internal/domain/dunning"
	"github.com/subcycle/subcycle/internal/domain/payment"
	"github.com/subcycle/subcycle/internal/domain/plan"
	"github.com/subcycle/subcycle/internal/domain/proration"
	"github.com/subcycle/subcycle/internal/domain/subscription"
	"github.com/subcycle/subcycle/internal/gateway"
	"github.com/subcycle/subcycle/internal/logger"
	"github.com/subcycle/subcycle/internal/postgres"
)

// ServiceParams holds common dependencies for services.
// Services embed this struct so each one sees the same repository set and
// transaction client without repeating constructor plumbing.
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration

	// DB provides transaction management for multi-row operations
	DB postgres.IClient

	// Repositories
	SubRepo      subscription.Repository
	CustomerRepo customer.Repository
	PlanRepo     plan.Repository
	PaymentRepo  payment.Repository
	DunningRepo  dunning.Repository

	// Domain collaborators
	ProrationCalc proration.Calculator
	Gateway       gateway.Client
}
