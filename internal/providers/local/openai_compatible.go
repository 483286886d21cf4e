package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/vidscope/vidscope-backend/internal/config"
	"github.com/vidscope/vidscope-backend/internal/providers"
)

// OpenAICompatibleProvider implements a provider for OpenAI-compatible APIs
// such as Ollama, vLLM, and LM Studio.
type OpenAICompatibleProvider struct {
	id     string
	config config.ProviderConfig
	client *openai.Client
}

// NewOpenAICompatibleProvider creates a new OpenAI-compatible provider
func NewOpenAICompatibleProvider(id string, cfg config.ProviderConfig) (*OpenAICompatibleProvider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required for OpenAI-compatible provider")
	}

	// Local providers usually ignore the key but the client requires one.
	apiKey := "dummy-key"
	if cfg.APIKey != "" {
		apiKey = cfg.APIKey
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/") + "/v1"

	return &OpenAICompatibleProvider{
		id:     id,
		config: cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Name returns the provider name
func (p *OpenAICompatibleProvider) Name() string {
	return p.config.Name
}

// Capabilities reports native streaming support
func (p *OpenAICompatibleProvider) Capabilities() providers.Capabilities {
	return providers.Capabilities{Chat: true, Streaming: true, MaxContextTokens: 32768}
}

// Complete performs a non-streaming completion
func (p *OpenAICompatibleProvider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	openAIReq := p.convertRequest(req)
	openAIReq.Stream = false

	resp, err := p.client.CreateChatCompletion(ctx, openAIReq)
	if err != nil {
		return nil, err
	}

	out := &providers.CompletionResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
		out.FinishReason = string(resp.Choices[0].FinishReason)
	}
	return out, nil
}

// StreamComplete performs a streaming completion
func (p *OpenAICompatibleProvider) StreamComplete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
	chunks := make(chan providers.StreamChunk)

	// send delivers a chunk unless the caller stopped reading.
	send := func(c providers.StreamChunk) bool {
		select {
		case chunks <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(chunks)

		openAIReq := p.convertRequest(req)
		openAIReq.Stream = true

		stream, err := p.client.CreateChatCompletionStream(ctx, openAIReq)
		if err != nil {
			send(providers.StreamChunk{Error: err.Error()})
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				send(providers.StreamChunk{FinishReason: "stop"})
				return
			}
			if err != nil {
				send(providers.StreamChunk{Error: err.Error()})
				return
			}

			if len(response.Choices) > 0 {
				choice := response.Choices[0]
				chunk := providers.StreamChunk{
					ID:    response.ID,
					Model: response.Model,
				}
				if choice.Delta.Content != "" {
					chunk.Delta = choice.Delta.Content
				}
				if choice.FinishReason != "" {
					chunk.FinishReason = string(choice.FinishReason)
				}
				if !send(chunk) {
					return
				}
			}
		}
	}()

	return chunks, nil
}

// GetModels returns available models, trying the /v1/models endpoint first
// and falling back to the configured list.
func (p *OpenAICompatibleProvider) GetModels(ctx context.Context) ([]providers.Model, error) {
	url := strings.TrimSuffix(p.config.BaseURL, "/") + "/v1/models"

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		if models := p.configuredModels(); models != nil {
			return models, nil
		}
		return nil, fmt.Errorf("failed to discover models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if models := p.configuredModels(); models != nil {
			return models, nil
		}
		return nil, fmt.Errorf("models endpoint returned status %d", resp.StatusCode)
	}

	var modelsResp struct {
		Data []providers.Model `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, err
	}

	return modelsResp.Data, nil
}

// ValidateConfig validates the provider configuration
func (p *OpenAICompatibleProvider) ValidateConfig() error {
	if p.config.BaseURL == "" {
		return errors.New("base URL is required")
	}
	return nil
}

func (p *OpenAICompatibleProvider) configuredModels() []providers.Model {
	if len(p.config.Models) == 0 {
		return nil
	}
	models := make([]providers.Model, len(p.config.Models))
	for i, modelID := range p.config.Models {
		models[i] = providers.Model{
			ID:      modelID,
			Object:  "model",
			OwnedBy: p.config.Name,
		}
	}
	return models
}

// convertRequest converts internal request to OpenAI request
func (p *OpenAICompatibleProvider) convertRequest(req providers.CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	model := req.Model
	if model == "" {
		model = p.config.DefaultModel
	}

	openAIReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   req.Stream,
	}
	if req.Temperature != nil {
		openAIReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		openAIReq.MaxTokens = *req.MaxTokens
	}

	return openAIReq
}
