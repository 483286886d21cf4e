package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/vidscope/vidscope-backend/internal/models"
	"github.com/vidscope/vidscope-backend/internal/repository"
)

// ChunkRepository implements repository.ChunkRepository using PostgreSQL
type ChunkRepository struct {
	db *sqlx.DB
}

// NewChunkRepository creates a new PostgreSQL chunk repository
func NewChunkRepository(db *sqlx.DB) repository.ChunkRepository {
	return &ChunkRepository{db: db}
}

// GetByIDs returns chunks for the given ids. Missing ids are skipped.
func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Chunk, error) {
	if len(ids) == 0 {
		return []models.Chunk{}, nil
	}

	chunks := []models.Chunk{}
	query := `
		SELECT id, transcript_id, cue_start_idx, start_ms, end_ms, text, token_estimate
		FROM transcript_chunks
		WHERE id = ANY($1::uuid[])
	`

	err := r.db.SelectContext(ctx, &chunks, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	return chunks, nil
}
