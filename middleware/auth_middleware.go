package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bloodbank/backend/config"   // To get JWT secret
	"bloodbank/backend/services" // Token parsing
)

// UserIDKey is the fiber.Ctx locals key holding the authenticated uuid.UUID.
const UserIDKey = "userID"

// ActiveChecker reports whether a principal may still use the API.
type ActiveChecker interface {
	IsActive(ctx context.Context, userID uuid.UUID) (bool, error)
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"status":  "error",
		"message": message,
	})
}

// Protected is a middleware function to protect routes that require authentication.
// It verifies the JWT access token from the Authorization header and rejects inactive users.
func Protected(cfg *config.Config, users ActiveChecker, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Debug("Auth Middleware: Missing Authorization header", zap.String("path", c.Path()))
			return unauthorized(c, "Unauthorized: Missing authorization token")
		}

		// Check if the header format is "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Debug("Auth Middleware: Invalid Authorization header format")
			return unauthorized(c, "Unauthorized: Invalid token format")
		}

		claims, err := services.ParseToken(cfg.JWTSecret, parts[1])
		if err != nil {
			log.Info("Auth Middleware: Error parsing or validating token", zap.Error(err))
			if errors.Is(err, jwt.ErrTokenExpired) {
				return unauthorized(c, "Unauthorized: Token has expired")
			}
			return unauthorized(c, "Unauthorized: Invalid token")
		}
		// Verification links are not access tokens.
		if claims.Purpose != "" {
			log.Info("Auth Middleware: Rejected single-purpose token", zap.String("purpose", claims.Purpose))
			return unauthorized(c, "Unauthorized: Invalid token")
		}

		active, err := users.IsActive(c.UserContext(), claims.UserID)
		if err != nil {
			log.Error("Auth Middleware: Failed to look up user", zap.String("user_id", claims.UserID.String()), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "error",
				"message": "Internal server error",
			})
		}
		if !active {
			return unauthorized(c, "Unauthorized: User is inactive or deleted")
		}

		// Store user ID in locals for subsequent handlers
		c.Locals(UserIDKey, claims.UserID)
		return c.Next()
	}
}
