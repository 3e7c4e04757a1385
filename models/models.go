package models

import (
	"github.com/golang-jwt/jwt/v4"
)

// --- JWT & Auth ---

type JwtClaims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	Role      string `json:"role"`
	ExpiresIn int64  `json:"expiresIn"`
}

type MeResponse struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// AuthUser is an operator allowed to call the analytics API. Users are configured, not stored.
type AuthUser struct {
	Email        string
	PasswordHash string
	Role         string
}

// Roles recognised by the API.
const (
	RoleAdmin   = "admin"
	RoleOwner   = "owner"
	RoleManager = "manager"
)
