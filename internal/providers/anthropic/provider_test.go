package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vidscope/vidscope-backend/internal/config"
	"github.com/vidscope/vidscope-backend/internal/providers"
)

func TestStreamCompleteAbandonedOnCancel(t *testing.T) {
	// Emit one delta, then hold the connection open until the client leaves.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"hello\"}}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	p, err := NewProvider("anthropic", config.ProviderConfig{
		Name:    "Anthropic",
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	chunks, err := p.StreamComplete(ctx, providers.CompletionRequest{
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	// Nobody reads until well after the deadline. The producer must notice
	// the dead context and close the channel instead of blocking on a send.
	time.Sleep(150 * time.Millisecond)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-chunks:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("stream producer still running after context expiry")
		}
	}
}
