package repository

import (
	"context"
	"encoding/json"

	"github.com/vidscope/vidscope-backend/internal/models"
)

// VideoRepository reads library entries. The library is ingested elsewhere;
// this core only consumes it.
type VideoRepository interface {
	Get(ctx context.Context, id string) (*models.Video, error)
	List(ctx context.Context, limit, offset int) ([]models.Video, error)
}

// TranscriptRepository resolves transcripts for a video.
type TranscriptRepository interface {
	// GetLatestForVideo returns the most recent transcript, optionally
	// filtered by language (empty = any). Returns models.ErrNotFound when
	// the video has no transcript.
	GetLatestForVideo(ctx context.Context, videoID, language string) (*models.Transcript, error)
	ListForVideo(ctx context.Context, videoID string) ([]models.Transcript, error)
}

// CueRepository reads transcript cues.
type CueRepository interface {
	// ListInWindow returns cues overlapping [startMs, endMs] in time order.
	ListInWindow(ctx context.Context, transcriptID string, startMs, endMs int64, limit int) ([]models.Cue, error)
	// ListByTranscript pages through cues from cursorIdx. nextCursor is nil
	// when the listing is exhausted.
	ListByTranscript(ctx context.Context, transcriptID string, cursorIdx, limit int) (cues []models.Cue, nextCursor *int, err error)
}

// ChunkRepository reads coalesced transcript chunks.
type ChunkRepository interface {
	GetByIDs(ctx context.Context, ids []string) ([]models.Chunk, error)
}

// SearchIndex is the contract both retrievers consume: a full-text index and
// a nearest-neighbor vector index over the same evidence universe.
type SearchIndex interface {
	// KeywordSearch ranks cues across the library by full-text relevance.
	KeywordSearch(ctx context.Context, scope models.RetrievalScope, query string, limit int) ([]models.SearchHit, error)
	// VectorSearch ranks chunks across the library by cosine similarity.
	VectorSearch(ctx context.Context, scope models.RetrievalScope, embedding []float32, modelID string, limit int) ([]models.SearchHit, error)
	// KeywordSearchVideo ranks cues within one video.
	KeywordSearchVideo(ctx context.Context, videoID, language, query string, limit int) ([]models.SearchHit, error)
	// VectorSearchVideo ranks transcript chunks within one video.
	VectorSearchVideo(ctx context.Context, videoID, language string, embedding []float32, modelID string, limit int) ([]models.SearchHit, error)
	// VectorSearchFrames ranks visual frame chunks within one video.
	VectorSearchFrames(ctx context.Context, videoID string, embedding []float32, modelID string, limit int) ([]models.SearchHit, error)
}

// CreateTurnInput opens a chat turn in the running state.
type CreateTurnInput struct {
	VideoID       string
	TranscriptID  string
	TraceID       string
	Provider      string
	ModelID       string
	AtMs          *int64
	RequestJSON   json.RawMessage
	RetrievalJSON json.RawMessage
}

// FinishTurnInput transitions a turn to its terminal state.
type FinishTurnInput struct {
	ID           string
	Status       string
	ResponseText *string
	ResponseJSON json.RawMessage
	Error        *string
	DurationMs   int64
}

// TurnWriter is the audit side-channel for chat turns. Writes are
// best-effort from the dispatcher's point of view: a failed audit write must
// never mask the original outcome.
type TurnWriter interface {
	Create(ctx context.Context, in CreateTurnInput) (string, error)
	Finish(ctx context.Context, in FinishTurnInput) error
}

// ChatTurnRepository adds the read side used by the audit endpoints.
type ChatTurnRepository interface {
	TurnWriter
	Get(ctx context.Context, id string) (*models.ChatTurn, error)
	ListForVideo(ctx context.Context, videoID string, limit int) ([]models.ChatTurn, error)
}
