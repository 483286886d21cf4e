package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/vidscope/vidscope-backend/internal/models"
	"github.com/vidscope/vidscope-backend/internal/repository"
)

// ChatTurnRepository implements repository.ChatTurnRepository using PostgreSQL
type ChatTurnRepository struct {
	db *sqlx.DB
}

// NewChatTurnRepository creates a new PostgreSQL chat turn repository
func NewChatTurnRepository(db *sqlx.DB) repository.ChatTurnRepository {
	return &ChatTurnRepository{db: db}
}

// Create opens a turn in the running state and returns its id. The row
// exists before generation starts so a crash mid-stream still leaves an
// auditable record.
func (r *ChatTurnRepository) Create(ctx context.Context, in repository.CreateTurnInput) (string, error) {
	id := uuid.New().String()
	query := `
		INSERT INTO chat_turns (
			id, video_id, transcript_id, trace_id, provider, model_id,
			status, at_ms, request_json, retrieval_json, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		id, in.VideoID, in.TranscriptID, in.TraceID, in.Provider, in.ModelID,
		models.TurnStatusRunning, in.AtMs,
		nullableJSON(in.RequestJSON), nullableJSON(in.RetrievalJSON), time.Now())
	if err != nil {
		return "", err
	}

	return id, nil
}

// Finish transitions a turn to its terminal state.
func (r *ChatTurnRepository) Finish(ctx context.Context, in repository.FinishTurnInput) error {
	query := `
		UPDATE chat_turns
		SET status = $2,
		    response_text = $3,
		    response_json = $4,
		    error = $5,
		    finished_at = NOW(),
		    duration_ms = $6
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		in.ID, in.Status, in.ResponseText, nullableJSON(in.ResponseJSON), in.Error, in.DurationMs)
	return err
}

// Get retrieves a turn by ID
func (r *ChatTurnRepository) Get(ctx context.Context, id string) (*models.ChatTurn, error) {
	var turn models.ChatTurn
	query := `
		SELECT id, video_id, transcript_id, trace_id, status, provider, model_id,
		       at_ms, error, request_json, retrieval_json, response_text, response_json,
		       created_at, finished_at, duration_ms
		FROM chat_turns
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &turn, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	return &turn, nil
}

// ListForVideo returns recent turn summaries for a video, newest first
func (r *ChatTurnRepository) ListForVideo(ctx context.Context, videoID string, limit int) ([]models.ChatTurn, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	turns := []models.ChatTurn{}
	query := `
		SELECT id, video_id, transcript_id, trace_id, status, provider, model_id,
		       at_ms, error, created_at, finished_at, duration_ms
		FROM chat_turns
		WHERE video_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	err := r.db.SelectContext(ctx, &turns, query, videoID, limit)
	if err != nil {
		return nil, err
	}

	return turns, nil
}

// nullableJSON converts empty raw JSON to NULL instead of an empty string.
func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
