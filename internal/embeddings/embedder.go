package embeddings

import (
	"context"

	"github.com/vidscope/vidscope-backend/internal/models"
)

// Embedder turns text into a fixed-length vector. Implementations are pure
// functions over network I/O: no retained state beyond the HTTP client.
type Embedder interface {
	// Embed returns the embedding for text, validated against Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelID identifies the active model; vector rows are tagged with it so
	// queries never mix embedding spaces.
	ModelID() string

	// Dimensions is the declared vector length.
	Dimensions() int
}

// Status describes embedding availability for the status endpoint.
type Status struct {
	Enabled    bool    `json:"enabled"`
	Provider   string  `json:"provider,omitempty"`
	ModelID    string  `json:"model_id,omitempty"`
	Dimensions int     `json:"dimensions,omitempty"`
	Reason     *string `json:"reason,omitempty"`
}

// checkDimensions enforces the declared dimensionality. A mismatch indicates
// index/provider drift and must never be silently truncated.
func checkDimensions(vec []float32, want int) ([]float32, error) {
	if len(vec) != want {
		return nil, &models.EmbeddingDimensionMismatchError{Want: want, Got: len(vec)}
	}
	return vec, nil
}
