package api

import (
	"github.com/gin-gonic/gin"

	"github.com/subcycle/subcycle/internal/api/cron"
	v1 "github.com/subcycle/subcycle/internal/api/v1"
	"github.com/subcycle/subcycle/internal/config"
	"github.com/subcycle/subcycle/internal/logger"
	"github.com/subcycle/subcycle/internal/rest/middleware"
)

type Handlers struct {
	Health       *v1.HealthHandler
	Customer     *v1.CustomerHandler
	Plan         *v1.PlanHandler
	Subscription *v1.SubscriptionHandler
	CronRenewal  *cron.RenewalCronHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(
		gin.Recovery(),
		middleware.CORSMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.RequestIDMiddleware,
		middleware.TenantMiddleware,
		middleware.ErrorHandler(),
	)

	router.GET("/health", handlers.Health.Health)

	v1Group := router.Group("/v1")
	registerV1Routes(v1Group, handlers)

	cronGroup := router.Group("/cron")
	registerCronRoutes(cronGroup, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	customers := router.Group("/customers")
	{
		customers.POST("", handlers.Customer.CreateCustomer)
		customers.GET("/:id", handlers.Customer.GetCustomer)
	}

	plans := router.Group("/plans")
	{
		plans.POST("", handlers.Plan.CreatePlan)
		plans.GET("", handlers.Plan.ListPlans)
		plans.GET("/:id", handlers.Plan.GetPlan)
	}

	subscriptions := router.Group("/subscriptions")
	{
		subscriptions.POST("", handlers.Subscription.CreateSubscription)
		subscriptions.GET("", handlers.Subscription.ListSubscriptions)
		subscriptions.GET("/:id", handlers.Subscription.GetSubscription)
		subscriptions.POST("/:id/renew", handlers.Subscription.RenewSubscription)
		subscriptions.POST("/:id/cancel", handlers.Subscription.CancelSubscription)
		subscriptions.POST("/:id/upgrade", handlers.Subscription.UpgradeSubscription)
		subscriptions.POST("/:id/downgrade", handlers.Subscription.DowngradeSubscription)
		subscriptions.POST("/:id/pause", handlers.Subscription.PauseSubscription)
		subscriptions.POST("/:id/resume", handlers.Subscription.ResumeSubscription)
		subscriptions.POST("/:id/churn-risk", handlers.Subscription.CalculateChurnRisk)
	}
}

func registerCronRoutes(router *gin.RouterGroup, handlers Handlers) {
	renewals := router.Group("/renewals")
	{
		renewals.GET("/due", handlers.CronRenewal.GetDueForRenewal)
		renewals.POST("/process", handlers.CronRenewal.ProcessDueRenewals)
		renewals.POST("/scheduled-changes", handlers.CronRenewal.ProcessScheduledChanges)
	}
}
