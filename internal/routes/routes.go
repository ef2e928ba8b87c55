package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/yourorg/synapse/internal/catalog"
	"github.com/yourorg/synapse/internal/debug"
	"github.com/yourorg/synapse/internal/fingerprint"
	"github.com/yourorg/synapse/internal/gate"
	"github.com/yourorg/synapse/internal/handlers"
	"github.com/yourorg/synapse/internal/metrics"
	"github.com/yourorg/synapse/internal/middleware"
	"github.com/yourorg/synapse/internal/session"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Gate          *gate.Service
	Sessions      *session.Manager
	Devices       fingerprint.Resolver
	Catalog       *catalog.Catalog
	Metrics       *metrics.Metrics
	Hub           *debug.Hub
	AdminKeyHash  string
	StrictSession bool
	CookieSecure  bool
	Version       string
	// UnlockLimit is the number of unlock attempts per IP and minute.
	UnlockLimit int
}

func Register(app *fiber.App, d Deps) {
	gateHandler := handlers.NewGateHandler(d.Gate, d.Sessions, d.Devices, d.Metrics, d.CookieSecure)
	questionsHandler := handlers.NewQuestionsHandler(d.Catalog)
	adminHandler := handlers.NewAdminHandler(d.Gate)
	healthHandler := handlers.NewHealthHandler(d.Gate, d.Catalog, d.Hub, d.Version)
	metricsHandler := handlers.NewMetricsHandler(d.Metrics)
	debugHandler := handlers.NewDebugHandler(d.Hub)

	app.Get("/metrics", metricsHandler.Prometheus)

	api := app.Group("/api")
	api.Get("/health", healthHandler.Health)

	// ============================================================================
	// ACCESS GATE
	// ============================================================================
	gateGroup := api.Group("/gate")
	gateGroup.Post("/unlock", middleware.UnlockRateLimiter(d.UnlockLimit, time.Minute), gateHandler.Unlock)
	gateGroup.Post("/logout", gateHandler.Logout)
	gateGroup.Get("/session", gateHandler.Session)

	// ============================================================================
	// QUESTION BANK (session required)
	// ============================================================================
	questions := api.Group("/questions", middleware.APIRateLimiter(), middleware.RequireSession(middleware.SessionGuard{
		Sessions: d.Sessions,
		Devices:  d.Devices,
		Gate:     d.Gate,
		Metrics:  d.Metrics,
		Strict:   d.StrictSession,
	}))
	questions.Get("/", questionsHandler.List)
	questions.Get("/facets", questionsHandler.Facets)

	// ============================================================================
	// ADMIN (X-Admin-Key)
	// ============================================================================
	admin := api.Group("/admin", middleware.AdminRateLimiter(), middleware.RequireAdmin(d.AdminKeyHash))
	admin.Get("/tokens", adminHandler.ListTokens)
	admin.Post("/tokens", adminHandler.IssueTokens)
	admin.Post("/tokens/:token/reset", adminHandler.ResetToken)
	admin.Delete("/tokens/:token", adminHandler.RevokeToken)
	admin.Post("/questions/refresh", questionsHandler.Refresh)
	admin.Get("/metrics", metricsHandler.JSON)

	// ============================================================================
	// DEBUG DASHBOARD
	// ============================================================================
	if d.Hub.Enabled() {
		api.Post("/debug/log", middleware.APIRateLimiter(), debugHandler.ReceiveClientLog)
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/debug", websocket.New(d.Hub.Handle))
	}
}
