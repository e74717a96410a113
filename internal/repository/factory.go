package repository

import (
	"github.com/subcycle/subcycle/internal/cache"
	"github.com/subcycle/subcycle/internal/domain/customer"
	"github.com/subcycle/subcycle/internal/domain/dunning"
	"github.com/subcycle/subcycle/internal/domain/payment"
	"github.com/subcycle/subcycle/internal/domain/plan"
	"github.com/subcycle/subcycle/internal/domain/subscription"
	"github.com/subcycle/subcycle/internal/logger"
	pg "github.com/subcycle/subcycle/internal/postgres"
	repo "github.com/subcycle/subcycle/internal/repository/postgres"
)

func NewSubscriptionRepository(db *pg.DB, logger *logger.Logger) subscription.Repository {
	return repo.NewSubscriptionRepository(db, logger)
}

func NewCustomerRepository(db *pg.DB, logger *logger.Logger) customer.Repository {
	return repo.NewCustomerRepository(db, logger)
}

func NewPlanRepository(db *pg.DB, logger *logger.Logger, c cache.Cache) plan.Repository {
	return repo.NewPlanRepository(db, logger, c)
}

func NewPaymentRepository(db *pg.DB, logger *logger.Logger) payment.Repository {
	return repo.NewPaymentRepository(db, logger)
}

func NewDunningRepository(db *pg.DB, logger *logger.Logger) dunning.Repository {
	return repo.NewDunningRepository(db, logger)
}
