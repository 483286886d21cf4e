package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vidscope/vidscope-backend/internal/services"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200

	defaultCueLimit = 500
	maxCueLimit     = 2000
)

func clampQueryInt(c *fiber.Ctx, key string, def, max int) int {
	v := c.QueryInt(key, def)
	if v <= 0 {
		v = def
	}
	if v > max {
		v = max
	}
	return v
}

// ListVideos handles GET /api/v1/videos
func ListVideos(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := clampQueryInt(c, "limit", defaultPageLimit, maxPageLimit)
		offset := c.QueryInt("offset", 0)
		if offset < 0 {
			offset = 0
		}

		videos, err := svc.Videos.List(c.UserContext(), limit, offset)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"videos": videos})
	}
}

// GetVideo handles GET /api/v1/videos/:id
func GetVideo(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		video, err := svc.Videos.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(video)
	}
}

// ListTranscripts handles GET /api/v1/videos/:id/transcripts
func ListTranscripts(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		transcripts, err := svc.Transcripts.ListForVideo(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"transcripts": transcripts})
	}
}

// ListCues handles GET /api/v1/transcripts/:id/cues with cursor pagination
// over the cue index.
func ListCues(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cursor := c.QueryInt("cursor", 0)
		if cursor < 0 {
			cursor = 0
		}
		limit := clampQueryInt(c, "limit", defaultCueLimit, maxCueLimit)

		cues, nextCursor, err := svc.Cues.ListByTranscript(c.UserContext(), c.Params("id"), cursor, limit)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"cues":        cues,
			"next_cursor": nextCursor,
		})
	}
}
