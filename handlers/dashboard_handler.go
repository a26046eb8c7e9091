package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bloodbank/backend/models"
)

// DashboardReader serves the aggregate read views.
type DashboardReader interface {
	Stats(ctx context.Context, userID uuid.UUID) (*models.DashboardResponse, error)
	AvailableDonors(ctx context.Context, params models.AvailableDonorsParams) ([]models.AvailableDonor, error)
}

type DashboardHandler struct {
	dashboard DashboardReader
	log       *zap.Logger
}

func NewDashboardHandler(dashboard DashboardReader, log *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, log: log}
}

// Stats handles GET /api/v1/dashboard/stats
func (h *DashboardHandler) Stats(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}
	stats, err := h.dashboard.Stats(c.UserContext(), userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Dashboard stats retrieved successfully", stats)
}

// AvailableDonors handles GET /api/v1/donors?blood_group=&location=
// Publicly accessible (no auth required).
func (h *DashboardHandler) AvailableDonors(c *fiber.Ctx) error {
	var params models.AvailableDonorsParams
	if err := c.QueryParser(&params); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid query parameters")
	}
	donors, err := h.dashboard.AvailableDonors(c.UserContext(), params)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Available donors retrieved successfully", donors)
}

// SetupDashboardRoutes registers the dashboard (authenticated) and donor search (public) routes.
func SetupDashboardRoutes(api fiber.Router, dashboard DashboardReader, authMiddleware fiber.Handler, log *zap.Logger) {
	handler := NewDashboardHandler(dashboard, log)
	api.Get("/dashboard/stats", authMiddleware, handler.Stats)
	api.Get("/donors", handler.AvailableDonors)
}
