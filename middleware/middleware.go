package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"

	"restaurant-analytics/models"
)

const claimsKey = "claims"

func deny(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   fiber.Map{"code": code, "message": message},
	})
}

// JWTMiddleware validates the HS256 bearer token in the Authorization header and stores its
// claims on the request.
func JWTMiddleware(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return deny(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Missing or malformed JWT")
		}

		claims := &models.JwtClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.ErrUnauthorized
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			return deny(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired JWT")
		}

		c.Locals(claimsKey, claims)
		c.Locals("userID", claims.UserID)
		c.Locals("userRole", claims.Role)
		return c.Next()
	}
}

// RoleRequired lets the request through only when the token's role is one of roles.
func RoleRequired(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals("userRole").(string)
		if !ok {
			return deny(c, fiber.StatusForbidden, "FORBIDDEN", "Role not found in token")
		}
		for _, r := range roles {
			if role == r {
				return c.Next()
			}
		}
		return deny(c, fiber.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
	}
}

// ExtractClaims returns the claims stored by JWTMiddleware.
func ExtractClaims(c *fiber.Ctx) (*models.JwtClaims, error) {
	claims, ok := c.Locals(claimsKey).(*models.JwtClaims)
	if !ok || claims == nil {
		return nil, errors.New("no claims on request")
	}
	return claims, nil
}
