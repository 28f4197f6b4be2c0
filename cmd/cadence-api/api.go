// Package main provides the cadence API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/vantagecrm/cadence/pkg/eventbus"
	"github.com/vantagecrm/cadence/pkg/persistence"
	"github.com/vantagecrm/cadence/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: store,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.persistence, a.eventBus, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Cadence API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)

	campaigns := app.Group("/campaigns")
	campaigns.Get("/", handlers.GetCampaigns)
	campaigns.Post("/", handlers.CreateCampaign)
	campaigns.Get("/:id", handlers.GetCampaign)
	campaigns.Post("/:id/launch", handlers.LaunchCampaign)
	campaigns.Post("/:id/pause", handlers.PauseCampaign)
	campaigns.Get("/:id/stats", handlers.GetCampaignStats)
	campaigns.Get("/:id/runs", handlers.GetCampaignRuns)

	contacts := app.Group("/contacts")
	contacts.Post("/", handlers.CreateContact)
	contacts.Get("/:id", handlers.GetContact)

	app.Post("/inbound", handlers.RecordInbound)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
