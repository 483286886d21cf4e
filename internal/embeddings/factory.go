package embeddings

import (
	"github.com/vidscope/vidscope-backend/internal/config"
	"github.com/vidscope/vidscope-backend/internal/models"
)

// NewEmbedder builds an embedder from config. Construction failure means
// "semantic search degraded", not fatal: the error is always an
// EmbeddingUnavailableError so callers can fall back to keyword-only.
func NewEmbedder(cfg config.EmbeddingsConfig) (Embedder, error) {
	switch cfg.Type {
	case "openai":
		e, err := NewOpenAIEmbedder(cfg)
		if err != nil {
			return nil, &models.EmbeddingUnavailableError{Reason: err.Error()}
		}
		return e, nil
	case "", "ollama":
		return NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions), nil
	case "disabled":
		return nil, &models.EmbeddingUnavailableError{Reason: "embeddings disabled"}
	default:
		return nil, &models.EmbeddingUnavailableError{Reason: "unknown embeddings type: " + cfg.Type}
	}
}

// GetStatus reports availability without constructing a client that will be
// thrown away; used by the status endpoint.
func GetStatus(cfg config.EmbeddingsConfig) Status {
	e, err := NewEmbedder(cfg)
	if err != nil {
		reason := err.Error()
		return Status{Enabled: false, Provider: cfg.Type, Reason: &reason}
	}
	return Status{
		Enabled:    true,
		Provider:   cfg.Type,
		ModelID:    e.ModelID(),
		Dimensions: e.Dimensions(),
	}
}
