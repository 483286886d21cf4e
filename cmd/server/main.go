package main

import (
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/vidscope/vidscope-backend/internal/api"
	"github.com/vidscope/vidscope-backend/internal/config"
	"github.com/vidscope/vidscope-backend/internal/database"
	"github.com/vidscope/vidscope-backend/internal/embeddings"
	"github.com/vidscope/vidscope-backend/internal/models"
	"github.com/vidscope/vidscope-backend/internal/providers"
	"github.com/vidscope/vidscope-backend/internal/providers/factory"
	"github.com/vidscope/vidscope-backend/internal/services"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(db, cfg.Database); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	// Embeddings are optional: without a backend, semantic retrieval
	// degrades to keyword-only instead of blocking startup.
	embedder, err := embeddings.NewEmbedder(cfg.Embeddings)
	if err != nil {
		log.WithError(err).Warn("embeddings unavailable, semantic search degraded")
		embedder = nil
	}

	registry := providers.NewRegistry()
	for id, ferr := range factory.RegisterFromConfig(registry, cfg.Providers) {
		log.WithError(ferr).WithField("provider", id).Warn("skipping provider")
	}

	svc := services.NewServices(db.DB, cfg, registry, embedder, log)

	app := fiber.New(fiber.Config{
		AppName:      "VidScope Backend",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: getOrigins(),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	api.SetupRoutes(app, svc)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.WithField("addr", addr).Info("vidscope backend starting")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	if models.IsInvalidRequest(err) {
		code = fiber.StatusBadRequest
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": err.Error(),
		},
	})
}

func getOrigins() string {
	origins := os.Getenv("VIDSCOPE_CORS_ORIGINS")
	if origins == "" {
		return "http://localhost:3000,http://localhost:5173"
	}
	return origins
}
