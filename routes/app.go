package routes

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"restaurant-analytics/handlers"
	"restaurant-analytics/metrics"
)

// AppOptions configures the HTTP server.
type AppOptions struct {
	CORSOrigins string
	JWTSecret   []byte
	// Quiet disables the request logger.
	Quiet bool
}

// NewApp builds the Fiber application with middleware and routes registered.
func NewApp(h *handlers.Handler, m *metrics.Metrics, opts AppOptions) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "restaurant-analytics",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	if !opts.Quiet {
		app.Use(logger.New())
	}
	origins := opts.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{AllowOrigins: origins}))
	app.Use(m.Middleware())

	SetupRoutes(app, h, m, opts.JWTSecret)
	return app
}

// errorHandler keeps framework errors (404, 405, body limits) in the API envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   fiber.Map{"code": errorCode(code), "message": message},
	})
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	}
	if status >= 500 {
		return handlers.CodeInternal
	}
	return "BAD_REQUEST"
}
