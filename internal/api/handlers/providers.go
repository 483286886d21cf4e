package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vidscope/vidscope-backend/internal/providers"
	"github.com/vidscope/vidscope-backend/internal/services"
)

// GetProviders handles GET /api/v1/providers
func GetProviders(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		all := svc.Providers.GetAll()
		infos := make([]providers.ProviderInfo, 0, len(all))
		for id, p := range all {
			infos = append(infos, providers.ProviderInfo{
				ID:           id,
				Name:         p.Name(),
				Capabilities: p.Capabilities(),
			})
		}
		return c.JSON(fiber.Map{"providers": infos})
	}
}

// GetProviderModels handles GET /api/v1/providers/:id/models
func GetProviderModels(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		provider := svc.Providers.Get(c.Params("id"))
		if provider == nil {
			return errorJSON(c, fiber.StatusNotFound, "not_found", "unknown provider")
		}

		models, err := provider.GetModels(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"models": models})
	}
}

// GetEmbeddingsStatus handles GET /api/v1/embeddings/status
func GetEmbeddingsStatus(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(svc.Embeddings)
	}
}

// Health handles GET /api/v1/health
func Health() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "vidscope-backend",
		})
	}
}
