package services

import (
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/vidscope/vidscope-backend/internal/config"
	"github.com/vidscope/vidscope-backend/internal/embeddings"
	"github.com/vidscope/vidscope-backend/internal/metrics"
	"github.com/vidscope/vidscope-backend/internal/providers"
	"github.com/vidscope/vidscope-backend/internal/rag"
	"github.com/vidscope/vidscope-backend/internal/repository"
	"github.com/vidscope/vidscope-backend/internal/repository/postgres"
	"github.com/vidscope/vidscope-backend/internal/retrieval"
)

// Services holds all service instances
type Services struct {
	Retrieval *retrieval.Service
	Chat      *ChatService
	Providers *providers.Registry

	Videos      repository.VideoRepository
	Transcripts repository.TranscriptRepository
	Cues        repository.CueRepository
	ChatTurns   repository.ChatTurnRepository

	Embeddings embeddings.Status
}

// NewServices creates all service instances. embedder may be nil when no
// embedding backend is configured; semantic retrieval then degrades to
// keyword-only everywhere.
func NewServices(db *sqlx.DB, cfg *config.Config, registry *providers.Registry, embedder embeddings.Embedder, logger *logrus.Logger) *Services {
	videos := postgres.NewVideoRepository(db)
	transcripts := postgres.NewTranscriptRepository(db)
	cues := postgres.NewCueRepository(db)
	chunks := postgres.NewChunkRepository(db)
	index := postgres.NewSearchIndex(db)
	turns := postgres.NewChatTurnRepository(db)

	observer := metrics.NewLogObserver(logger)

	retrievalSvc := retrieval.NewService(index, embedder, cfg.Retrieval, observer, logger)
	builder := rag.NewBuilder(transcripts, cues, chunks, index, embedder, cfg.Retrieval, logger)
	chatSvc := NewChatService(builder, registry, turns, observer, logger, cfg.Server.Heartbeat, 0)

	return &Services{
		Retrieval:   retrievalSvc,
		Chat:        chatSvc,
		Providers:   registry,
		Videos:      videos,
		Transcripts: transcripts,
		Cues:        cues,
		ChatTurns:   turns,
		Embeddings:  embeddings.GetStatus(cfg.Embeddings),
	}
}

// mustJSON marshals audit payloads. The inputs are our own structs, so a
// marshal failure is a programming error; the record then carries null
// rather than failing the turn.
func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
