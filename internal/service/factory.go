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

// NewServiceParams assembles the common service dependencies for DI
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	subRepo subscription.Repository,
	customerRepo customer.Repository,
	planRepo plan.Repository,
	paymentRepo payment.Repository,
	dunningRepo dunning.Repository,
	prorationCalc proration.Calculator,
	gatewayClient gateway.Client,
) ServiceParams {
	return ServiceParams{
		Logger:        logger,
		Config:        config,
		DB:            db,
		SubRepo:       subRepo,
		CustomerRepo:  customerRepo,
		PlanRepo:      planRepo,
		PaymentRepo:   paymentRepo,
		DunningRepo:   dunningRepo,
		ProrationCalc: prorationCalc,
		Gateway:       gatewayClient,
	}
}
