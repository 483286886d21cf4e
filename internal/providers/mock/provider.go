package mock

import (
	"context"
	"fmt"

	"github.com/vidscope/vidscope-backend/internal/config"
	"github.com/vidscope/vidscope-backend/internal/providers"
)

// Provider is a deterministic offline backend used in development and smoke
// tests. It reports Streaming=false on purpose so the dispatcher's
// chunked-delivery path stays exercised without a real model.
type Provider struct {
	id     string
	config config.ProviderConfig
}

// NewProvider creates a mock provider
func NewProvider(id string, cfg config.ProviderConfig) (*Provider, error) {
	return &Provider{id: id, config: cfg}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	if p.config.Name != "" {
		return p.config.Name
	}
	return "Mock"
}

// Capabilities reports a chat-only, non-streaming backend
func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{Chat: true, Streaming: false, MaxContextTokens: 8192}
}

// Complete echoes the last user message with a canned citation so grounded
// responses can be exercised end to end.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var lastUser string
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			lastUser = msg.Content
		}
	}

	return &providers.CompletionResponse{
		ID:           "mock-completion",
		Model:        "mock",
		Content:      fmt.Sprintf("Based on the transcript [S1], here is a response to: %s", lastUser),
		FinishReason: "stop",
	}, nil
}

// StreamComplete delegates to Complete and emits the result as one chunk.
func (p *Provider) StreamComplete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
	chunks := make(chan providers.StreamChunk, 2)

	go func() {
		defer close(chunks)
		resp, err := p.Complete(ctx, req)
		if err != nil {
			chunks <- providers.StreamChunk{Error: err.Error()}
			return
		}
		chunks <- providers.StreamChunk{Delta: resp.Content}
		chunks <- providers.StreamChunk{FinishReason: "stop"}
	}()

	return chunks, nil
}

// GetModels returns the single mock model
func (p *Provider) GetModels(ctx context.Context) ([]providers.Model, error) {
	return []providers.Model{{ID: "mock", Object: "model", OwnedBy: "vidscope"}}, nil
}

// ValidateConfig validates the provider configuration
func (p *Provider) ValidateConfig() error {
	return nil
}
