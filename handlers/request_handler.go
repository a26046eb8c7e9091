package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bloodbank/backend/models"
)

// RequestManager is the blood request side of the lifecycle.
type RequestManager interface {
	CreateRequest(ctx context.Context, requesterID uuid.UUID, req models.CreateBloodRequestRequest) (*models.BloodRequestResponse, error)
	GetRequest(ctx context.Context, requestID uuid.UUID) (*models.BloodRequestResponse, error)
	ListRequests(ctx context.Context, callerID uuid.UUID, params models.ListBloodRequestsParams) ([]models.BloodRequestResponse, error)
	AcceptRequest(ctx context.Context, requestID, donorID uuid.UUID) (*models.AcceptRequestResponse, error)
	CancelRequest(ctx context.Context, requestID, actorID uuid.UUID) (*models.BloodRequestResponse, error)
}

// RequestHandler handles HTTP requests related to blood requests.
type RequestHandler struct {
	lifecycle RequestManager
	log       *zap.Logger
}

// NewRequestHandler creates a new RequestHandler instance.
func NewRequestHandler(lifecycle RequestManager, log *zap.Logger) *RequestHandler {
	return &RequestHandler{lifecycle: lifecycle, log: log}
}

// CreateRequest handles POST /api/v1/requests
// Requires authentication. The caller becomes the requester.
func (h *RequestHandler) CreateRequest(c *fiber.Ctx) error {
	// 1. Get authenticated user ID from context (set by auth middleware)
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}

	// 2. Parse request body
	var req models.CreateBloodRequestRequest
	if err := c.BodyParser(&req); err != nil {
		h.log.Debug("Error parsing create request body", zap.String("user_id", userID.String()), zap.Error(err))
		return badBody(c, err)
	}

	// 3. Call service to create the request
	request, err := h.lifecycle.CreateRequest(c.UserContext(), userID, req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return success(c, fiber.StatusCreated, "Blood request created successfully", request)
}

// ListRequests handles GET /api/v1/requests?status=&blood_group=&urgency=&mine=
func (h *RequestHandler) ListRequests(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}

	var params models.ListBloodRequestsParams
	if err := c.QueryParser(&params); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid query parameters")
	}
	if c.QueryBool("my_requests") {
		params.Mine = true
	}

	requests, err := h.lifecycle.ListRequests(c.UserContext(), userID, params)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Blood requests retrieved successfully", requests)
}

// GetRequest handles GET /api/v1/requests/:id
func (h *RequestHandler) GetRequest(c *fiber.Ctx) error {
	requestID, ok := idParam(c, "id")
	if !ok {
		return fail(c, fiber.StatusNotFound, "Blood request not found")
	}
	request, err := h.lifecycle.GetRequest(c.UserContext(), requestID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Blood request retrieved successfully", request)
}

// AcceptRequest handles POST /api/v1/requests/:id/accept
// The caller must hold the donor role and be eligible to donate.
func (h *RequestHandler) AcceptRequest(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}
	requestID, ok := idParam(c, "id")
	if !ok {
		return fail(c, fiber.StatusNotFound, "Blood request not found")
	}

	accepted, err := h.lifecycle.AcceptRequest(c.UserContext(), requestID, userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Blood request accepted successfully", accepted)
}

// CancelRequest handles POST /api/v1/requests/:id/cancel
// Only the requester may cancel; pending donations are canceled with it.
func (h *RequestHandler) CancelRequest(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, err.Error())
	}
	requestID, ok := idParam(c, "id")
	if !ok {
		return fail(c, fiber.StatusNotFound, "Blood request not found")
	}

	request, err := h.lifecycle.CancelRequest(c.UserContext(), requestID, userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, "Blood request canceled successfully", request)
}

// SetupRequestRoutes registers blood request routes. All require authentication.
func SetupRequestRoutes(api fiber.Router, lifecycle RequestManager, authMiddleware fiber.Handler, log *zap.Logger) {
	handler := NewRequestHandler(lifecycle, log)
	requestGroup := api.Group("/requests", authMiddleware)
	requestGroup.Post("/", handler.CreateRequest)
	requestGroup.Get("/", handler.ListRequests)
	requestGroup.Get("/:id", handler.GetRequest)
	requestGroup.Post("/:id/accept", handler.AcceptRequest)
	requestGroup.Post("/:id/cancel", handler.CancelRequest)
}
