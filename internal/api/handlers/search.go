package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vidscope/vidscope-backend/internal/models"
	"github.com/vidscope/vidscope-backend/internal/services"
)

// Search handles POST /api/v1/search
func Search(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.SearchRequest
		if err := c.BodyParser(&req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_request", "invalid request body")
		}

		resp, err := svc.Retrieval.Search(c.UserContext(), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(resp)
	}
}

// SearchVideo handles POST /api/v1/videos/:id/search
func SearchVideo(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.SearchRequest
		if err := c.BodyParser(&req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_request", "invalid request body")
		}

		resp, err := svc.Retrieval.SearchVideo(c.UserContext(), c.Params("id"), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(resp)
	}
}
