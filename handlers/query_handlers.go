package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"restaurant-analytics/analytics"
	"restaurant-analytics/models"
)

// HandleQuery runs a structured aggregate query.
// POST /api/v1/query
func (h *Handler) HandleQuery(c *fiber.Ctx) error {
	var req models.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidBody, "", "Cannot parse JSON")
	}

	res, err := h.engine.ExecuteQuery(c.UserContext(), req)
	if err != nil {
		return writeError(c, "QUERY", err)
	}
	log.Printf("✅ [QUERY] Returning %d rows", res.RowCount)
	return ok(c, res)
}

// HandleListFields lists the fields, aggregations and operators a query may use.
// GET /api/v1/meta/fields
func (h *Handler) HandleListFields(c *fiber.Ctx) error {
	return ok(c, fiber.Map{"fields": analytics.FieldCatalog()})
}
