package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/community-services/internal/api/http/handlers"
	"github.com/spec-kit/community-services/internal/auth"
	"github.com/spec-kit/community-services/internal/domain"
	"github.com/spec-kit/community-services/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Workflows      *handlers.WorkflowsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	app.Post("/auth/login", cfg.Auth.Login)

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())

	tickets := api.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.SubmitTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/transitions", cfg.Tickets.Transition)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)

	workflows := api.Group("/workflows")
	workflows.Get("/", cfg.Workflows.ListWorkflows)
	workflows.Get("/:id", cfg.Workflows.GetWorkflow)

	adminOnly := auth.RequireRole(domain.RoleAdmin)
	workflows.Post("/", adminOnly, cfg.Workflows.CreateWorkflow)
	workflows.Put("/:id", adminOnly, cfg.Workflows.UpdateWorkflow)
	workflows.Post("/:id/activate", adminOnly, cfg.Workflows.ActivateWorkflow)
	workflows.Post("/:id/clone", adminOnly, cfg.Workflows.CloneWorkflow)
}

// NewApp builds the fiber application with middleware and routes attached.
func NewApp(name string, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration, routes RouteConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      name,
		ErrorHandler: ErrorHandler,
	})
	RegisterMiddlewares(app, logger, metrics, timeout)
	RegisterRoutes(app, routes)
	return app
}
