package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bloodbank/backend/models"
)

// DonationManager is the donation side of the lifecycle.
type DonationManager interface {
	ConfirmDonation(ctx context.Context, donationID, actorID uuid.UUID) (*models.DonationResponse, error)
	CancelDonation(ctx context.Context, donationID, actorID uuid.UUID) (*models.DonationResponse, error)
	ListDonations(ctx context.Context, callerID uuid.UUID, params models.ListDonationsParams) ([]models.DonationResponse, error)
}

// DonationHandler handles HTTP requests related to donations.
type DonationHandler struct {
	lifecycle DonationManager
	log       *zap.Logger
}

// NewDonationHandler creates a new DonationHandler instance.
func NewDonationHandler(lifecycle DonationManager, log *zap.Logger) *DonationHandler {
	return &DonationHandler{lifecycle: lifecycle, log: log}
}

// ListDonations handles GET /api/v1/donations?role=donor|recipient
func (h *DonationHandler) ListDonations(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}
	var params models.ListDonationsParams
	if err := c.QueryParser(&params); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid query parameters")
	}

	donations, err := h.lifecycle.ListDonations(c.UserContext(), userID, params)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Donations retrieved successfully", donations)
}

// ConfirmDonation handles POST /api/v1/donations/:id/confirm
// Only the recipient may confirm. The donor enters the cooldown.
func (h *DonationHandler) ConfirmDonation(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}
	donationID, ok := idParam(c, "id")
	if !ok {
		return fail(c, fiber.StatusNotFound, "Donation not found")
	}

	donation, err := h.lifecycle.ConfirmDonation(c.UserContext(), donationID, userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Donation confirmed successfully", donation)
}

// CancelDonation handles POST /api/v1/donations/:id/cancel
func (h *DonationHandler) CancelDonation(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}
	donationID, ok := idParam(c, "id")
	if !ok {
		return fail(c, fiber.StatusNotFound, "Donation not found")
	}

	donation, err := h.lifecycle.CancelDonation(c.UserContext(), donationID, userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Donation canceled successfully", donation)
}

// SetupDonationRoutes registers donation routes. All require authentication.
func SetupDonationRoutes(api fiber.Router, lifecycle DonationManager, authMiddleware fiber.Handler, log *zap.Logger) {
	handler := NewDonationHandler(lifecycle, log)
	donationGroup := api.Group("/donations", authMiddleware)
	donationGroup.Get("/", handler.ListDonations)
	donationGroup.Post("/:id/confirm", handler.ConfirmDonation)
	donationGroup.Post("/:id/cancel", handler.CancelDonation)
}
