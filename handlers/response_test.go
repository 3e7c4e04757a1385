package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-analytics/analytics"
	"restaurant-analytics/query"
)

func TestWriteError_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{query.InvalidParameter("daysBack", "too small"), 400, query.CodeInvalidParameter},
		{fmt.Errorf("wrapped: %w", &query.ValidationError{Code: query.CodeMixedGrain, Message: "x"}), 400, query.CodeMixedGrain},
		{&analytics.InsufficientDataError{Op: "trend_forecast", Required: 2, Got: 1}, 422, CodeInsufficientData},
		{&analytics.ComputationError{Op: "anomalies", Timeout: true, Err: context.DeadlineExceeded}, 504, CodeTimeout},
		{&analytics.ComputationError{Op: "anomalies", Err: errors.New("conn reset")}, 500, CodeComputation},
		{fmt.Errorf("query: %w", context.Canceled), 503, CodeCancelled},
		{errors.New("boom"), 500, CodeInternal},
	}

	for _, tc := range cases {
		app := fiber.New()
		app.Get("/test", func(c *fiber.Ctx) error { return writeError(c, "TEST", tc.err) })

		resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, tc.err.Error())

		var body struct {
			Success bool `json:"success"`
			Error   struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.False(t, body.Success)
		assert.Equal(t, tc.code, body.Error.Code)
		assert.NotContains(t, body.Error.Message, "conn reset")
	}
}
