package handlers

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"restaurant-analytics/middleware"
	"restaurant-analytics/models"
)

// HandleLogin checks a configured user's password and returns a JWT token.
// POST /api/v1/auth/login
func (h *Handler) HandleLogin(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidBody, "", "Cannot parse JSON")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, found := h.users[email]
	if !found || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		log.Printf("[AUTH] Failed login for %q", email)
		return fail(c, fiber.StatusUnauthorized, CodeUnauthorized, "", "Invalid credentials")
	}

	token, err := h.createJWT(user.Email, user.Role)
	if err != nil {
		log.Printf("Error creating JWT for user %s: %v", user.Email, err)
		return fail(c, fiber.StatusInternalServerError, CodeInternal, "", "Could not sign token")
	}
	return ok(c, models.LoginResponse{
		Token:     token,
		Role:      user.Role,
		ExpiresIn: int64(h.tokenTTL.Seconds()),
	})
}

// HandleMe returns the identity carried by the caller's token.
// GET /api/v1/auth/me
func (h *Handler) HandleMe(c *fiber.Ctx) error {
	claims, err := middleware.ExtractClaims(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, CodeUnauthorized, "", "Unauthorized")
	}
	return ok(c, models.MeResponse{UserID: claims.UserID, Role: claims.Role})
}

// HandleHealth reports whether the datastore answers a ping.
// GET /api/health
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	if h.db == nil {
		return fail(c, fiber.StatusServiceUnavailable, CodeUnavailable, "", "Database not configured")
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		log.Printf("❌ [HEALTH] Database ping failed: %v", err)
		return fail(c, fiber.StatusServiceUnavailable, CodeUnavailable, "", "Database unreachable")
	}
	return ok(c, fiber.Map{"status": "healthy", "database": "connected"})
}

func (h *Handler) createJWT(userID, role string) (string, error) {
	now := time.Now()
	claims := models.JwtClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.secret)
}
