package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bloodbank/backend/models"
)

// RoleManager is the role store used for administration.
type RoleManager interface {
	GetRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error)
	HasRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error)
	ReplaceRoles(ctx context.Context, userID uuid.UUID, roles []string) ([]models.Role, error)
}

// RoleHandler lets administrators read and replace other users' roles.
type RoleHandler struct {
	roleService RoleManager
	log         *zap.Logger
}

func NewRoleHandler(roleService RoleManager, log *zap.Logger) *RoleHandler {
	return &RoleHandler{roleService: roleService, log: log}
}

// RequireAdmin only lets callers holding the admin role through.
func (h *RoleHandler) RequireAdmin(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}
	isAdmin, err := h.roleService.HasRole(c.UserContext(), userID, models.RoleAdmin)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if !isAdmin {
		h.log.Info("Role administration denied", zap.String("user_id", userID.String()))
		return fail(c, fiber.StatusForbidden, "You do not have permission to manage roles")
	}
	return c.Next()
}

// GetRoles handles GET /api/v1/users/:id/roles
func (h *RoleHandler) GetRoles(c *fiber.Ctx) error {
	userID, ok := idParam(c, "id")
	if !ok {
		return fail(c, fiber.StatusNotFound, "User not found")
	}
	roles, err := h.roleService.GetRoles(c.UserContext(), userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Roles retrieved successfully", models.UserRolesResponse{UserID: userID, Roles: roles})
}

// ReplaceRoles handles PUT /api/v1/users/:id/roles
func (h *RoleHandler) ReplaceRoles(c *fiber.Ctx) error {
	userID, ok := idParam(c, "id")
	if !ok {
		return fail(c, fiber.StatusNotFound, "User not found")
	}
	var req models.ReplaceRolesRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	roles, err := h.roleService.ReplaceRoles(c.UserContext(), userID, req.Roles)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Roles updated successfully", models.UserRolesResponse{UserID: userID, Roles: roles})
}

// SetupRoleRoutes registers the role administration routes. They require an admin caller.
func SetupRoleRoutes(api fiber.Router, roleService RoleManager, authMiddleware fiber.Handler, log *zap.Logger) {
	handler := NewRoleHandler(roleService, log)
	usersGroup := api.Group("/users", authMiddleware, handler.RequireAdmin)
	usersGroup.Get("/:id/roles", handler.GetRoles)
	usersGroup.Put("/:id/roles", handler.ReplaceRoles)
}
