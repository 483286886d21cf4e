package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/vidscope/vidscope-backend/internal/models"
	"github.com/vidscope/vidscope-backend/internal/repository"
)

// CueRepository implements repository.CueRepository using PostgreSQL
type CueRepository struct {
	db *sqlx.DB
}

// NewCueRepository creates a new PostgreSQL cue repository
func NewCueRepository(db *sqlx.DB) repository.CueRepository {
	return &CueRepository{db: db}
}

// ListInWindow returns cues overlapping [startMs, endMs] in time order
func (r *CueRepository) ListInWindow(ctx context.Context, transcriptID string, startMs, endMs int64, limit int) ([]models.Cue, error) {
	if limit <= 0 || limit > 2000 {
		limit = 2000
	}

	cues := []models.Cue{}
	query := `
		SELECT id, transcript_id, idx, start_ms, end_ms, text, speaker_id
		FROM transcript_cues
		WHERE transcript_id = $1
		  AND end_ms >= $2
		  AND start_ms <= $3
		ORDER BY start_ms ASC
		LIMIT $4
	`

	err := r.db.SelectContext(ctx, &cues, query, transcriptID, startMs, endMs, limit)
	if err != nil {
		return nil, err
	}

	return cues, nil
}

// ListByTranscript pages through cues from cursorIdx. It fetches one extra
// row to decide whether another page exists.
func (r *CueRepository) ListByTranscript(ctx context.Context, transcriptID string, cursorIdx, limit int) ([]models.Cue, *int, error) {
	if limit <= 0 || limit > 5000 {
		limit = 5000
	}

	cues := []models.Cue{}
	query := `
		SELECT id, transcript_id, idx, start_ms, end_ms, text, speaker_id
		FROM transcript_cues
		WHERE transcript_id = $1
		  AND idx >= $2
		ORDER BY idx ASC
		LIMIT $3
	`

	err := r.db.SelectContext(ctx, &cues, query, transcriptID, cursorIdx, limit+1)
	if err != nil {
		return nil, nil, err
	}

	if len(cues) > limit {
		cues = cues[:limit]
		next := cues[len(cues)-1].Idx + 1
		return cues, &next, nil
	}

	return cues, nil, nil
}
