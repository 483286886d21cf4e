package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/vidscope/vidscope-backend/internal/models"
	"github.com/vidscope/vidscope-backend/internal/services"
)

// Chat handles POST /api/v1/videos/:id/chat
func Chat(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.ChatRequest
		if err := c.BodyParser(&req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_request", "invalid request body")
		}

		resp, err := svc.Chat.Chat(c.UserContext(), c.Params("id"), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(resp)
	}
}

// ChatStream handles POST /api/v1/videos/:id/chat/stream. The response is a
// newline-delimited JSON stream of tagged event frames; the HTTP status is
// always 200 once streaming starts, terminal failures travel as error
// frames.
func ChatStream(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.ChatRequest
		if err := c.BodyParser(&req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_request", "invalid request body")
		}

		// The stream writer outlives this handler, so the turn runs on its
		// own cancelable context instead of the request context.
		ctx, cancel := context.WithCancel(context.Background())

		events, err := svc.Chat.StreamTurn(ctx, c.Params("id"), req)
		if err != nil {
			cancel()
			return respondError(c, err)
		}

		c.Set("Content-Type", "application/x-ndjson")
		c.Set("Cache-Control", "no-cache, no-transform")
		c.Set("Connection", "keep-alive")

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer cancel()
			for ev := range events {
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
					// Client disconnected: cancel downstream and drain.
					cancel()
					continue
				}
				if err := w.Flush(); err != nil {
					cancel()
					continue
				}
			}
		})
		return nil
	}
}

// wsChatRequest is the first frame a WebSocket client sends.
type wsChatRequest struct {
	VideoID string `json:"video_id"`
	models.ChatRequest
}

// ChatWS handles GET /ws/chat. The client sends one chat request frame and
// receives the same tagged event frames as the NDJSON endpoint. Closing the
// socket cancels the turn.
func ChatWS(svc *services.Services) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		defer conn.Close()

		var req wsChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			_ = conn.WriteJSON(models.StreamEvent{
				Type:  models.StreamEventError,
				Error: &models.StreamError{Code: "invalid_request", Message: "failed to parse request"},
			})
			return
		}
		if req.VideoID == "" {
			_ = conn.WriteJSON(models.StreamEvent{
				Type:  models.StreamEventError,
				Error: &models.StreamError{Code: "invalid_request", Message: "video_id is required"},
			})
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Detect the client going away while we stream.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		events, err := svc.Chat.StreamTurn(ctx, req.VideoID, req.ChatRequest)
		if err != nil {
			_ = conn.WriteJSON(models.StreamEvent{
				Type:  models.StreamEventError,
				Error: &models.StreamError{Code: errorCode(err), Message: err.Error()},
			})
			return
		}

		for ev := range events {
			if err := conn.WriteJSON(ev); err != nil {
				cancel()
				// Keep draining so the dispatcher can finish the turn record.
				for range events {
				}
				return
			}
		}
	}
}

func errorCode(err error) string {
	if models.IsInvalidRequest(err) {
		return "invalid_request"
	}
	return "chat_failed"
}
