package handlers

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"restaurant-analytics/query"
)

// intParam reads an optional integer query parameter bounded to [lo, hi].
func intParam(c *fiber.Ctx, key string, def, lo, hi int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, query.InvalidParameter(key, "%s must be an integer", key)
	}
	if n < lo || n > hi {
		return 0, query.InvalidParameter(key, "%s must be between %d and %d", key, lo, hi)
	}
	return n, nil
}

// floatParam reads an optional number query parameter bounded to [lo, hi].
func floatParam(c *fiber.Ctx, key string, def, lo, hi float64) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, query.InvalidParameter(key, "%s must be a number", key)
	}
	if f < lo || f > hi {
		return 0, query.InvalidParameter(key, "%s must be between %g and %g", key, lo, hi)
	}
	return f, nil
}

func boolParam(c *fiber.Ctx, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, query.InvalidParameter(key, "%s must be true or false", key)
	}
	return b, nil
}
