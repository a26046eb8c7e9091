package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bloodbank/backend/models"
)

// AuthManager is the account flow used by AuthHandler.
type AuthManager interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.UserResponse, error)
	VerifyEmail(ctx context.Context, uid, token string) error
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	GetCurrentUser(ctx context.Context, userID uuid.UUID) (*models.UserResponse, error)
	RefreshToken(ctx context.Context, req models.RefreshRequest) (*models.TokenPairResponse, error)
	Logout(ctx context.Context, userID uuid.UUID, req models.RefreshRequest) error
}

// AuthHandler handles HTTP requests related to authentication and the current user.
type AuthHandler struct {
	authService AuthManager
	log         *zap.Logger
}

// NewAuthHandler creates a new AuthHandler instance.
func NewAuthHandler(authService AuthManager, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log,
	}
}

// Register handles the POST /api/v1/auth/register request.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		h.log.Debug("Error parsing register request body", zap.Error(err))
		return badBody(c, err)
	}

	user, err := h.authService.Register(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return success(c, fiber.StatusCreated, "User registered successfully. Please check your email to verify your account.", user)
}

// VerifyEmail handles GET /api/v1/auth/verify/:uid/:token
func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	if err := h.authService.VerifyEmail(c.UserContext(), c.Params("uid"), c.Params("token")); err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Email verified successfully", nil)
}

// Login handles the POST /api/v1/auth/login request.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		h.log.Debug("Error parsing login request body", zap.Error(err))
		return badBody(c, err)
	}

	loginResponse, err := h.authService.Login(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Login successful", loginResponse)
}

// RefreshToken handles POST /api/v1/auth/token/refresh
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	var req models.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	pair, err := h.authService.RefreshToken(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Token refreshed", pair)
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}
	var req models.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	if err := h.authService.Logout(c.UserContext(), userID, req); err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Logged out successfully", nil)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}
	user, err := h.authService.GetCurrentUser(c.UserContext(), userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Current user retrieved successfully", user)
}

// SetupAuthRoutes registers the authentication routes. /auth/me and /auth/logout require an
// access token.
func SetupAuthRoutes(api fiber.Router, authService AuthManager, authMiddleware fiber.Handler, log *zap.Logger) {
	handler := NewAuthHandler(authService, log)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", handler.Register)
	authGroup.Get("/verify/:uid/:token", handler.VerifyEmail)
	authGroup.Post("/login", handler.Login)
	authGroup.Post("/token/refresh", handler.RefreshToken)
	authGroup.Post("/logout", authMiddleware, handler.Logout)
	authGroup.Get("/me", authMiddleware, handler.Me)
	log.Debug("Authentication routes setup complete")
}
