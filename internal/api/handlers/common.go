// Package handlers contains the fiber HTTP and websocket handlers.
package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ronith256/rag-agent/internal/shared"
)

// errorResponse maps domain errors onto HTTP statuses. Unclassified errors
// are reported as internal without leaking detail.
func errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, shared.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, shared.ErrConfiguration):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, shared.ErrUpstream):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Upstream service error"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}
