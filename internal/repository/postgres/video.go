package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/vidscope/vidscope-backend/internal/models"
	"github.com/vidscope/vidscope-backend/internal/repository"
)

// VideoRepository implements repository.VideoRepository using PostgreSQL
type VideoRepository struct {
	db *sqlx.DB
}

// NewVideoRepository creates a new PostgreSQL video repository
func NewVideoRepository(db *sqlx.DB) repository.VideoRepository {
	return &VideoRepository{db: db}
}

// Get retrieves a video by ID
func (r *VideoRepository) Get(ctx context.Context, id string) (*models.Video, error) {
	var video models.Video
	query := `
		SELECT id, provider, provider_video_id, url, title, channel_name, thumbnail_url, duration_ms, created_at
		FROM videos
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &video, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	return &video, nil
}

// List retrieves videos ordered by most recently added
func (r *VideoRepository) List(ctx context.Context, limit, offset int) ([]models.Video, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	videos := []models.Video{}
	query := `
		SELECT id, provider, provider_video_id, url, title, channel_name, thumbnail_url, duration_ms, created_at
		FROM videos
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	err := r.db.SelectContext(ctx, &videos, query, limit, offset)
	if err != nil {
		return nil, err
	}

	return videos, nil
}
