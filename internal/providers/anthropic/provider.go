package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vidscope/vidscope-backend/internal/config"
	"github.com/vidscope/vidscope-backend/internal/providers"
)

const (
	anthropicAPIURL  = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"

	defaultMaxTokens = 4096
)

// Provider implements the Anthropic provider
type Provider struct {
	id     string
	config config.ProviderConfig
	client *http.Client
}

// anthropicRequest represents a request to Anthropic's API
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	System      string             `json:"system,omitempty"`
}

// anthropicMessage represents a message in Anthropic format
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse represents a response from Anthropic's API
type anthropicResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Role       string `json:"role"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason,omitempty"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	Usage anthropicUsage `json:"usage"`
}

// anthropicUsage represents token usage
type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// anthropicStreamEvent represents a streaming event
type anthropicStreamEvent struct {
	Type    string                `json:"type"`
	Delta   *anthropicStreamDelta `json:"delta,omitempty"`
	Message *anthropicResponse    `json:"message,omitempty"`
}

// anthropicStreamDelta represents a delta in streaming
type anthropicStreamDelta struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// NewProvider creates a new Anthropic provider
func NewProvider(id string, cfg config.ProviderConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	return &Provider{
		id:     id,
		config: cfg,
		client: &http.Client{},
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return p.config.Name
}

// Capabilities reports native streaming support
func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{Chat: true, Streaming: true, MaxContextTokens: 200000}
}

// Complete performs a non-streaming completion
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	anthropicReq := p.convertRequest(req)
	anthropicReq.Stream = false

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Anthropic API error: %s - %s", resp.Status, string(bodyBytes))
	}

	var anthropicResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&anthropicResp); err != nil {
		return nil, err
	}

	return p.convertResponse(&anthropicResp), nil
}

// StreamComplete performs a streaming completion over SSE
func (p *Provider) StreamComplete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
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

		anthropicReq := p.convertRequest(req)
		anthropicReq.Stream = true

		body, err := json.Marshal(anthropicReq)
		if err != nil {
			send(providers.StreamChunk{Error: err.Error()})
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", p.endpoint(), bytes.NewReader(body))
		if err != nil {
			send(providers.StreamChunk{Error: err.Error()})
			return
		}
		p.setHeaders(httpReq)

		resp, err := p.client.Do(httpReq)
		if err != nil {
			send(providers.StreamChunk{Error: err.Error()})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			send(providers.StreamChunk{Error: fmt.Sprintf("Anthropic API error: %s - %s", resp.Status, string(bodyBytes))})
			return
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err == io.EOF {
				break
			}
			if err != nil {
				send(providers.StreamChunk{Error: err.Error()})
				return
			}

			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				send(providers.StreamChunk{FinishReason: "stop"})
				break
			}

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue // Skip malformed events
			}

			chunk := p.convertStreamEvent(&event)
			if chunk != nil {
				if !send(*chunk) {
					return
				}
			}
		}
	}()

	return chunks, nil
}

// GetModels returns available models. Anthropic has no models endpoint, so
// the configured list is returned.
func (p *Provider) GetModels(ctx context.Context) ([]providers.Model, error) {
	models := make([]providers.Model, len(p.config.Models))
	for i, id := range p.config.Models {
		models[i] = providers.Model{ID: id, Object: "model", OwnedBy: "anthropic"}
	}
	return models, nil
}

// ValidateConfig validates the provider configuration
func (p *Provider) ValidateConfig() error {
	if p.config.APIKey == "" {
		return errors.New("API key is required")
	}
	return nil
}

func (p *Provider) endpoint() string {
	if p.config.BaseURL != "" {
		return strings.TrimSuffix(p.config.BaseURL, "/") + "/v1/messages"
	}
	return anthropicAPIURL
}

// setHeaders sets the required headers for Anthropic API
func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}

// convertRequest converts internal request to Anthropic request. The system
// message travels in the dedicated System field.
func (p *Provider) convertRequest(req providers.CompletionRequest) anthropicRequest {
	model := req.Model
	if model == "" {
		model = p.config.DefaultModel
	}

	anthropicReq := anthropicRequest{
		Model:       model,
		MaxTokens:   defaultMaxTokens,
		Temperature: req.Temperature,
	}
	if req.MaxTokens != nil {
		anthropicReq.MaxTokens = *req.MaxTokens
	}

	messages := []anthropicMessage{}
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			anthropicReq.System = msg.Content
			continue
		}
		messages = append(messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}
	anthropicReq.Messages = messages

	return anthropicReq
}

// convertResponse converts Anthropic response to internal response
func (p *Provider) convertResponse(resp *anthropicResponse) *providers.CompletionResponse {
	var text strings.Builder
	for _, content := range resp.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}

	return &providers.CompletionResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      text.String(),
		FinishReason: convertStopReason(resp.StopReason),
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}

// convertStreamEvent converts an Anthropic stream event to an internal chunk
func (p *Provider) convertStreamEvent(event *anthropicStreamEvent) *providers.StreamChunk {
	switch event.Type {
	case "message_start":
		if event.Message != nil {
			return &providers.StreamChunk{ID: event.Message.ID, Model: event.Message.Model}
		}

	case "content_block_delta":
		if event.Delta != nil && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
			return &providers.StreamChunk{Delta: event.Delta.Text}
		}

	case "message_delta":
		if event.Delta != nil && event.Delta.StopReason != "" {
			return &providers.StreamChunk{FinishReason: convertStopReason(event.Delta.StopReason)}
		}

	case "message_stop":
		return &providers.StreamChunk{FinishReason: "stop"}
	}

	return nil
}

// convertStopReason converts Anthropic stop reason to OpenAI format
func convertStopReason(reason string) string {
	switch reason {
	case "end_turn":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return reason
	}
}
