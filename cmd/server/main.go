package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/subcycle/subcycle/internal/api"
	"github.com/subcycle/subcycle/internal/api/cron"
	v1 "github.com/subcycle/subcycle/internal/api/v1"
	"github.com/subcycle/subcycle/internal/cache"
	"github.com/subcycle/subcycle/internal/config"
	"github.com/subcycle/subcycle/internal/domain/proration"
	"github.com/subcycle/subcycle/internal/gateway"
	"github.com/subcycle/subcycle/internal/logger"
	"github.com/subcycle/subcycle/internal/postgres"
	"github.com/subcycle/subcycle/internal/repository"
	"github.com/subcycle/subcycle/internal/sentry"
	"github.com/subcycle/subcycle/internal/service"
	"github.com/subcycle/subcycle/internal/validator"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			validator.NewValidator,
			config.NewConfig,
			logger.NewLogger,
			sentry.NewSentryService,
			cache.NewInMemoryCache,

			postgres.NewDB,
			provideDBClient,

			gateway.NewClient,
			proration.NewCalculator,

			repository.NewSubscriptionRepository,
			repository.NewCustomerRepository,
			repository.NewPlanRepository,
			repository.NewPaymentRepository,
			repository.NewDunningRepository,
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,
			service.NewCustomerService,
			service.NewPlanService,
			service.NewSubscriptionService,
			service.NewRenewalService,
			service.NewChurnService,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			sentry.RegisterHooks,
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideDBClient(db *postgres.DB) postgres.IClient {
	return db
}

func provideHandlers(
	logger *logger.Logger,
	customerService service.CustomerService,
	planService service.PlanService,
	subscriptionService service.SubscriptionService,
	renewalService service.RenewalService,
	churnService service.ChurnService,
) api.Handlers {
	return api.Handlers{
		Health:       v1.NewHealthHandler(logger),
		Customer:     v1.NewCustomerHandler(customerService, logger),
		Plan:         v1.NewPlanHandler(planService, logger),
		Subscription: v1.NewSubscriptionHandler(subscriptionService, churnService, logger),
		CronRenewal:  cron.NewRenewalCronHandler(renewalService, logger),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	return api.NewRouter(handlers, cfg, logger)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting API server...")
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return nil
		},
	})
}
