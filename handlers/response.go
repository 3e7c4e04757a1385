package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"restaurant-analytics/analytics"
	"restaurant-analytics/query"
)

// Error codes for failures that are not validation errors.
const (
	CodeInvalidBody      = "INVALID_BODY"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeTimeout          = "QUERY_TIMEOUT"
	CodeComputation      = "COMPUTATION_ERROR"
	CodeCancelled        = "REQUEST_CANCELLED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func fail(c *fiber.Ctx, status int, code, field, message string) error {
	body := fiber.Map{"code": code, "message": message}
	if field != "" {
		body["field"] = field
	}
	return c.Status(status).JSON(fiber.Map{"success": false, "error": body})
}

// writeError maps engine errors to HTTP statuses. Internal details stay in the log.
func writeError(c *fiber.Ctx, op string, err error) error {
	var ve *query.ValidationError
	var ide *analytics.InsufficientDataError
	var ce *analytics.ComputationError

	switch {
	case errors.As(err, &ve):
		return fail(c, fiber.StatusBadRequest, ve.Code, ve.Field, ve.Message)
	case errors.As(err, &ide):
		return fail(c, fiber.StatusUnprocessableEntity, CodeInsufficientData, "",
			"Not enough data: need at least "+strconv.Itoa(ide.Required)+" data points, got "+strconv.Itoa(ide.Got))
	case errors.As(err, &ce) && ce.Timeout:
		log.Printf("⏱️ [%s] %v", op, err)
		return fail(c, fiber.StatusGatewayTimeout, CodeTimeout, "", "The analysis took too long to complete")
	case errors.As(err, &ce):
		log.Printf("❌ [%s] %v", op, err)
		return fail(c, fiber.StatusInternalServerError, CodeComputation, "", "Failed to compute "+op)
	case errors.Is(err, context.Canceled):
		return fail(c, fiber.StatusServiceUnavailable, CodeCancelled, "", "Request cancelled")
	}
	log.Printf("❌ [%s] unexpected error: %v", op, err)
	return fail(c, fiber.StatusInternalServerError, CodeInternal, "", "Internal server error")
}
