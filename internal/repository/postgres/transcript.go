package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/vidscope/vidscope-backend/internal/models"
	"github.com/vidscope/vidscope-backend/internal/repository"
)

// TranscriptRepository implements repository.TranscriptRepository using PostgreSQL
type TranscriptRepository struct {
	db *sqlx.DB
}

// NewTranscriptRepository creates a new PostgreSQL transcript repository
func NewTranscriptRepository(db *sqlx.DB) repository.TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// GetLatestForVideo returns the most recently fetched transcript for a video.
// An empty language matches any language.
func (r *TranscriptRepository) GetLatestForVideo(ctx context.Context, videoID, language string) (*models.Transcript, error) {
	var transcript models.Transcript
	query := `
		SELECT id, video_id, language, source, is_generated, fetched_at
		FROM transcripts
		WHERE video_id = $1
		  AND ($2 = '' OR language = $2)
		ORDER BY fetched_at DESC
		LIMIT 1
	`

	err := r.db.GetContext(ctx, &transcript, query, videoID, language)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	return &transcript, nil
}

// ListForVideo returns all transcripts for a video, newest first
func (r *TranscriptRepository) ListForVideo(ctx context.Context, videoID string) ([]models.Transcript, error) {
	transcripts := []models.Transcript{}
	query := `
		SELECT id, video_id, language, source, is_generated, fetched_at
		FROM transcripts
		WHERE video_id = $1
		ORDER BY fetched_at DESC
	`

	err := r.db.SelectContext(ctx, &transcripts, query, videoID)
	if err != nil {
		return nil, err
	}

	return transcripts, nil
}
