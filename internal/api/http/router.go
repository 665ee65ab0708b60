package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hotelportal/account-recovery/internal/api/http/handlers"
	"github.com/hotelportal/account-recovery/internal/auth"
	"github.com/hotelportal/account-recovery/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Login          *handlers.LoginHandler
	Accounts       *handlers.AccountsHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	Throttle       *IPThrottle
	Metrics        fiber.Handler
}

// RegisterRoutes wires HTTP routes. Admin middleware is attached per route so
// the unauthenticated POST /tickets shares its prefix safely.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics)
	}

	throttle := cfg.Throttle.Handler()
	authenticated := cfg.AuthMiddleware.Handle
	adminOnly := auth.RequireRole(domain.AccountRoleAdmin)

	app.Post("/auth/login", throttle, cfg.Login.AttemptByEmail)

	accounts := app.Group("/accounts")
	accounts.Post("/:id/login-attempt", throttle, cfg.Login.AttemptByID)
	accounts.Get("/:id", authenticated, auth.RequireSelfOrAdmin("id"), cfg.Accounts.Get)
	accounts.Post("/:id/unlock", authenticated, adminOnly, cfg.Accounts.Unlock)

	tickets := app.Group("/tickets")
	tickets.Post("", throttle, cfg.Tickets.CreateTicket)
	tickets.Get("", authenticated, adminOnly, cfg.Tickets.ListTickets)
	tickets.Get("/:id", authenticated, adminOnly, cfg.Tickets.GetTicket)
	tickets.Patch("/:id", authenticated, adminOnly, cfg.Tickets.ResolveTicket)
}
