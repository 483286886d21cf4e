package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vidscope/vidscope-backend/internal/services"
)

// ListChatTurns handles GET /api/v1/videos/:id/chat/turns
func ListChatTurns(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := clampQueryInt(c, "limit", defaultPageLimit, maxPageLimit)

		turns, err := svc.ChatTurns.ListForVideo(c.UserContext(), c.Params("id"), limit)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"turns": turns})
	}
}

// GetChatTurn handles GET /api/v1/chat/turns/:turnId
func GetChatTurn(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		turn, err := svc.ChatTurns.Get(c.UserContext(), c.Params("turnId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(turn)
	}
}
