package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"restaurant-analytics/ai"
	"restaurant-analytics/analytics"
	"restaurant-analytics/models"
)

// Pinger reports datastore reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP handlers call into.
type Deps struct {
	Engine    *analytics.Engine
	Narrator  ai.Narrator // optional
	DB        Pinger
	Users     []models.AuthUser
	JWTSecret []byte
	TokenTTL  time.Duration
}

// Handler serves the analytics API.
type Handler struct {
	engine   *analytics.Engine
	narrator ai.Narrator
	db       Pinger
	users    map[string]models.AuthUser
	secret   []byte
	tokenTTL time.Duration
}

func New(d Deps) *Handler {
	users := make(map[string]models.AuthUser, len(d.Users))
	for _, u := range d.Users {
		users[u.Email] = u
	}
	ttl := d.TokenTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Handler{
		engine:   d.Engine,
		narrator: d.Narrator,
		db:       d.DB,
		users:    users,
		secret:   d.JWTSecret,
		tokenTTL: ttl,
	}
}

// HandleSalesProfile profiles every sale in the window, cancelled ones included.
// GET /api/v1/explore/profile/sales?startDate=&endDate=
func (h *Handler) HandleSalesProfile(c *fiber.Ctx) error {
	res, err := h.engine.ProfileSales(c.UserContext(), models.TimeRange{
		Start: c.Query("startDate"),
		End:   c.Query("endDate"),
	})
	if err != nil {
		return writeError(c, "PROFILE", err)
	}
	log.Printf("✅ [PROFILE] %s..%s, %d records", res.Period.Start, res.Period.End, res.Summary.TotalRecords)
	return ok(c, res)
}

// HandleCorrelations compares discount bands, weekdays, hours, production times and channels.
// GET /api/v1/explore/correlations?startDate=&endDate=
func (h *Handler) HandleCorrelations(c *fiber.Ctx) error {
	res, err := h.engine.CorrelationAnalysis(c.UserContext(), models.TimeRange{
		Start: c.Query("startDate"),
		End:   c.Query("endDate"),
	})
	if err != nil {
		return writeError(c, "CORRELATIONS", err)
	}
	log.Printf("✅ [CORRELATIONS] %s..%s, %d insights", res.Period.Start, res.Period.End, len(res.Insights))
	return ok(c, res)
}

// HandleCohortRetention reports monthly retention per first-purchase cohort.
// GET /api/v1/explore/cohort/retention?cohortMonths=
func (h *Handler) HandleCohortRetention(c *fiber.Ctx) error {
	months, err := intParam(c, "cohortMonths", 6, 1, 12)
	if err != nil {
		return writeError(c, "COHORT", err)
	}
	res, err := h.engine.CohortRetention(c.UserContext(), months)
	if err != nil {
		return writeError(c, "COHORT", err)
	}
	return ok(c, res)
}

// HandleAnomalies flags unusual days.
// GET /api/v1/explore/anomalies?daysBack=&sensitivity=
func (h *Handler) HandleAnomalies(c *fiber.Ctx) error {
	daysBack, err := intParam(c, "daysBack", 30, 7, 90)
	if err != nil {
		return writeError(c, "ANOMALIES", err)
	}
	sensitivity, err := floatParam(c, "sensitivity", h.engine.Settings().Thresholds.AnomalySensitivity, 1, 3)
	if err != nil {
		return writeError(c, "ANOMALIES", err)
	}
	res, err := h.engine.Anomalies(c.UserContext(), daysBack, sensitivity)
	if err != nil {
		return writeError(c, "ANOMALIES", err)
	}
	return ok(c, res)
}

// HandleProductAffinity runs the market-basket analysis.
// GET /api/v1/explore/affinity/products?minSupport=&limit=
func (h *Handler) HandleProductAffinity(c *fiber.Ctx) error {
	minSupport, err := floatParam(c, "minSupport", 0.01, 0.001, 0.1)
	if err != nil {
		return writeError(c, "AFFINITY", err)
	}
	limit, err := intParam(c, "limit", 20, 5, 100)
	if err != nil {
		return writeError(c, "AFFINITY", err)
	}
	res, err := h.engine.ProductAffinity(c.UserContext(), minSupport, limit)
	if err != nil {
		return writeError(c, "AFFINITY", err)
	}
	return ok(c, res)
}

// HandleTrendForecast fits a linear trend and projects it. With narrate=true and an AI
// narrator configured, the response also carries a written reading of the trend.
// GET /api/v1/explore/trends/forecast?metric=&daysBack=&forecastDays=&narrate=
func (h *Handler) HandleTrendForecast(c *fiber.Ctx) error {
	metric := c.Query("metric", analytics.MetricRevenue)
	daysBack, err := intParam(c, "daysBack", 30, 14, 90)
	if err != nil {
		return writeError(c, "FORECAST", err)
	}
	forecastDays, err := intParam(c, "forecastDays", 7, 1, 30)
	if err != nil {
		return writeError(c, "FORECAST", err)
	}
	narrate, err := boolParam(c, "narrate")
	if err != nil {
		return writeError(c, "FORECAST", err)
	}

	res, err := h.engine.TrendForecast(c.UserContext(), metric, daysBack, forecastDays)
	if err != nil {
		return writeError(c, "FORECAST", err)
	}

	if narrate && h.narrator != nil {
		narrative, err := h.narrator.Narrate(c.UserContext(), res)
		if err != nil {
			log.Printf("⚠️ [FORECAST] narrative unavailable: %v", err)
		} else {
			res.Narrative = narrative
		}
	}
	return ok(c, res)
}
