package routes

import (
	"github.com/gofiber/fiber/v2"

	"restaurant-analytics/handlers"
	"restaurant-analytics/metrics"
	"restaurant-analytics/middleware"
	"restaurant-analytics/models"
)

// SetupRoutes defines all the routes for the application.
func SetupRoutes(app *fiber.App, h *handlers.Handler, m *metrics.Metrics, jwtSecret []byte) {
	app.Get("/api/health", h.HandleHealth)
	app.Get("/metrics", m.Handler())

	api := app.Group("/api/v1")

	// --- Authentication Routes ---
	api.Post("/auth/login", h.HandleLogin)

	jwt := middleware.JWTMiddleware(jwtSecret)
	analyst := middleware.RoleRequired(models.RoleAdmin, models.RoleOwner, models.RoleManager)

	api.Get("/auth/me", jwt, h.HandleMe)

	api.Get("/meta/fields", jwt, analyst, h.HandleListFields)
	api.Post("/query", jwt, analyst, h.HandleQuery)

	// --- Exploration Routes ---
	explore := api.Group("/explore", jwt, analyst)
	explore.Get("/profile/sales", h.HandleSalesProfile)
	explore.Get("/correlations", h.HandleCorrelations)
	explore.Get("/cohort/retention", h.HandleCohortRetention)
	explore.Get("/anomalies", h.HandleAnomalies)
	explore.Get("/affinity/products", h.HandleProductAffinity)
	explore.Get("/trends/forecast", h.HandleTrendForecast)
}
