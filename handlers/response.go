package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bloodbank/backend/middleware"
	"bloodbank/backend/services"
)

// errUnauthenticated is returned when a protected handler runs without a principal.
var errUnauthenticated = errors.New("unauthorized: missing user identification")

func success(c *fiber.Ctx, status int, message string, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "success",
		"message": message,
		"data":    data,
	})
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
	})
}

// respondError maps a service error onto the HTTP status classes. Unclassified errors are
// logged and answered with a generic 500.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		log.Error("Unexpected error handling request",
			zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Internal server error")
	}

	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(svcErr, services.ErrValidation),
		errors.Is(svcErr, services.ErrConflict),
		errors.Is(svcErr, services.ErrNotEligible):
		status = fiber.StatusBadRequest
	case errors.Is(svcErr, services.ErrUnauthorized):
		status = fiber.StatusUnauthorized
	case errors.Is(svcErr, services.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(svcErr, services.ErrNotFound):
		status = fiber.StatusNotFound
	}

	body := fiber.Map{
		"status":  "error",
		"message": svcErr.Message,
	}
	if len(svcErr.Fields) > 0 {
		body["errors"] = svcErr.Fields
	}
	return c.Status(status).JSON(body)
}

func badBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"status":  "error",
		"message": "Invalid request body",
		"details": err.Error(),
	})
}

// currentUserID returns the principal set by middleware.Protected.
func currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := c.Locals(middleware.UserIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, errUnauthenticated
	}
	return id, nil
}

// idParam parses a UUID path parameter.
func idParam(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}
