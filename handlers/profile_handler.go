package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bloodbank/backend/models"
)

// ProfileManager reads and writes the caller's profile.
type ProfileManager interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.ProfileResponse, error)
	CreateProfile(ctx context.Context, userID uuid.UUID, req models.CreateProfileRequest) (*models.ProfileResponse, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, req models.UpdateProfileRequest) (*models.ProfileResponse, error)
}

type ProfileHandler struct {
	profileService ProfileManager
	log            *zap.Logger
}

func NewProfileHandler(profileService ProfileManager, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profileService: profileService, log: log}
}

// GetProfile handles GET /api/v1/profile
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}
	profile, err := h.profileService.GetProfile(c.UserContext(), userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Profile retrieved successfully", profile)
}

// CreateProfile handles POST /api/v1/profile
func (h *ProfileHandler) CreateProfile(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}
	var req models.CreateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	profile, err := h.profileService.CreateProfile(c.UserContext(), userID, req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusCreated, "Profile created successfully", profile)
}

// UpdateProfile handles PUT /api/v1/profile. Fields left out of the body are unchanged.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}
	var req models.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	profile, err := h.profileService.UpdateProfile(c.UserContext(), userID, req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Profile updated successfully", profile)
}

// SetupProfileRoutes registers the caller's profile routes. All require authentication.
func SetupProfileRoutes(api fiber.Router, profileService ProfileManager, authMiddleware fiber.Handler, log *zap.Logger) {
	handler := NewProfileHandler(profileService, log)
	profileGroup := api.Group("/profile", authMiddleware)
	profileGroup.Get("/", handler.GetProfile)
	profileGroup.Post("/", handler.CreateProfile)
	profileGroup.Put("/", handler.UpdateProfile)
}
