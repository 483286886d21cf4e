package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/vidscope/vidscope-backend/internal/api/handlers"
	"github.com/vidscope/vidscope-backend/internal/services"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, svc *services.Services) {
	api := app.Group("/api/v1")

	// Retrieval
	api.Post("/search", handlers.Search(svc))
	api.Post("/videos/:id/search", handlers.SearchVideo(svc))

	// Grounded chat
	api.Post("/videos/:id/chat", handlers.Chat(svc))
	api.Post("/videos/:id/chat/stream", handlers.ChatStream(svc))

	// Library read side
	api.Get("/videos", handlers.ListVideos(svc))
	api.Get("/videos/:id", handlers.GetVideo(svc))
	api.Get("/videos/:id/transcripts", handlers.ListTranscripts(svc))
	api.Get("/transcripts/:id/cues", handlers.ListCues(svc))

	// Turn audit
	api.Get("/videos/:id/chat/turns", handlers.ListChatTurns(svc))
	api.Get("/chat/turns/:turnId", handlers.GetChatTurn(svc))

	// Provider discovery
	api.Get("/providers", handlers.GetProviders(svc))
	api.Get("/providers/:id/models", handlers.GetProviderModels(svc))
	api.Get("/embeddings/status", handlers.GetEmbeddingsStatus(svc))

	api.Get("/health", handlers.Health())

	// WebSocket chat stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(handlers.ChatWS(svc)))
}
