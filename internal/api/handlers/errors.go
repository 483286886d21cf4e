package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/vidscope/vidscope-backend/internal/models"
)

// respondError maps service errors onto HTTP statuses. EmbeddingUnavailable
// never reaches here: retrieval degrades instead of failing.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case models.IsInvalidRequest(err):
		return errorJSON(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, models.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, models.ErrGenerationTimeout):
		return errorJSON(c, fiber.StatusGatewayTimeout, "generation_timeout", err.Error())
	default:
		return errorJSON(c, fiber.StatusInternalServerError, "internal", err.Error())
	}
}

func errorJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}
