package retrieval

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vidscope/vidscope-backend/internal/config"
	"github.com/vidscope/vidscope-backend/internal/embeddings"
	"github.com/vidscope/vidscope-backend/internal/metrics"
	"github.com/vidscope/vidscope-backend/internal/models"
	"github.com/vidscope/vidscope-backend/internal/repository"
)

// Service runs keyword, semantic, and hybrid retrieval over the search
// index. The embedder may be nil: every semantic branch then degrades to
// keyword-only with a non-fatal embedding_error instead of failing the
// request.
type Service struct {
	index    repository.SearchIndex
	embedder embeddings.Embedder
	cfg      config.RetrievalConfig
	observer metrics.Observer
	logger   *logrus.Logger
}

// NewService creates a retrieval service.
func NewService(index repository.SearchIndex, embedder embeddings.Embedder, cfg config.RetrievalConfig, observer metrics.Observer, logger *logrus.Logger) *Service {
	if cfg.SemanticBoost <= 0 {
		cfg.SemanticBoost = DefaultSemanticBoost
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &Service{index: index, embedder: embedder, cfg: cfg, observer: observer, logger: logger}
}

func (s *Service) validate(req *models.SearchRequest) error {
	if req.Query == "" {
		return models.NewInvalidRequest("query is required")
	}
	switch req.Mode {
	case "":
		req.Mode = models.SearchModeKeyword
	case models.SearchModeKeyword, models.SearchModeSemantic, models.SearchModeHybrid:
	default:
		return models.NewInvalidRequest("unknown search mode: %s", req.Mode)
	}
	if req.Limit <= 0 {
		req.Limit = s.cfg.DefaultLimit
	}
	if req.Limit > s.cfg.MaxLimit {
		return models.NewInvalidRequest("limit must be between 1 and %d", s.cfg.MaxLimit)
	}
	return nil
}

func (s *Service) scope(req models.SearchRequest) models.RetrievalScope {
	scope := models.RetrievalScope{}
	if req.Scope != nil {
		scope = *req.Scope
	}
	if scope.Language == "" {
		scope.Language = req.Language
	}
	return scope
}

// embedQuery produces the query embedding or the degradation reason.
func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.embedder == nil {
		return nil, &models.EmbeddingUnavailableError{Reason: "no embedding provider configured"}
	}
	return s.embedder.Embed(ctx, query)
}

// Search runs a library-wide search. Both retrievers run concurrently in
// hybrid mode; the semantic branch is allowed to fail independently and is
// reported through SearchResponse.EmbeddingError.
func (s *Service) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	scope := s.scope(req)

	resp, err := s.run(ctx, req,
		func(ctx context.Context) ([]models.SearchHit, error) {
			return s.index.KeywordSearch(ctx, scope, req.Query, req.Limit)
		},
		func(ctx context.Context, embedding []float32) ([]models.SearchHit, error) {
			return s.index.VectorSearch(ctx, scope, embedding, s.embedder.ModelID(), req.Limit)
		},
		false)
	if err != nil {
		return nil, err
	}

	s.observer.SearchCompleted(req.Mode, len(resp.Hits), resp.EmbeddingError != nil)
	return resp, nil
}

// SearchVideo runs a search scoped to one video. Semantic retrieval covers
// both transcript chunks and visual frame chunks, merged by score. In
// semantic mode an embedding failure falls back to keyword hits so the
// caller never dead-ends.
func (s *Service) SearchVideo(ctx context.Context, videoID string, req models.SearchRequest) (*models.SearchResponse, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	language := req.Language
	if language == "" {
		language = "en"
	}

	resp, err := s.run(ctx, req,
		func(ctx context.Context) ([]models.SearchHit, error) {
			return s.index.KeywordSearchVideo(ctx, videoID, language, req.Query, req.Limit)
		},
		func(ctx context.Context, embedding []float32) ([]models.SearchHit, error) {
			return s.searchVideoSemantic(ctx, videoID, language, embedding, req.Limit)
		},
		true)
	if err != nil {
		return nil, err
	}

	s.observer.SearchCompleted(req.Mode, len(resp.Hits), resp.EmbeddingError != nil)
	return resp, nil
}

// searchVideoSemantic merges transcript-chunk and frame-chunk similarity
// hits into one descending list.
func (s *Service) searchVideoSemantic(ctx context.Context, videoID, language string, embedding []float32, limit int) ([]models.SearchHit, error) {
	hits, err := s.index.VectorSearchVideo(ctx, videoID, language, embedding, s.embedder.ModelID(), limit)
	if err != nil {
		return nil, err
	}

	frameHits, err := s.index.VectorSearchFrames(ctx, videoID, embedding, s.embedder.ModelID(), limit)
	if err != nil {
		return nil, err
	}

	hits = append(hits, frameHits...)
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

type keywordFn func(ctx context.Context) ([]models.SearchHit, error)
type semanticFn func(ctx context.Context, embedding []float32) ([]models.SearchHit, error)

// run executes the requested mode over the two retriever closures.
// keywordFallback controls whether a failed semantic-only search degrades to
// keyword hits (per-video behavior) or to an empty set (library behavior).
func (s *Service) run(ctx context.Context, req models.SearchRequest, keyword keywordFn, semantic semanticFn, keywordFallback bool) (*models.SearchResponse, error) {
	switch req.Mode {
	case models.SearchModeKeyword:
		hits, err := keyword(ctx)
		if err != nil {
			return nil, err
		}
		return &models.SearchResponse{Hits: hits, EmbeddingError: nil}, nil

	case models.SearchModeSemantic:
		hits, embErr := s.trySemantic(ctx, req.Query, semantic)
		if embErr == nil {
			return &models.SearchResponse{Hits: hits, EmbeddingError: nil}, nil
		}
		reason := embErr.Error()
		if !keywordFallback {
			return &models.SearchResponse{Hits: []models.SearchHit{}, EmbeddingError: &reason}, nil
		}
		kwHits, err := keyword(ctx)
		if err != nil {
			return nil, err
		}
		return &models.SearchResponse{Hits: kwHits, EmbeddingError: &reason}, nil

	default: // hybrid
		var (
			kwHits  []models.SearchHit
			semHits []models.SearchHit
			embErr  error
		)

		// Both branches run concurrently; the semantic branch may fail
		// without blocking or failing the keyword branch.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			kwHits, err = keyword(gctx)
			return err
		})
		g.Go(func() error {
			semHits, embErr = s.trySemantic(gctx, req.Query, semantic)
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		hits := MergeHits(kwHits, semHits, s.cfg.SemanticBoost, req.Limit)
		if embErr != nil {
			reason := embErr.Error()
			s.logger.WithField("reason", reason).Warn("semantic retrieval degraded to keyword-only")
			return &models.SearchResponse{Hits: hits, EmbeddingError: &reason}, nil
		}
		return &models.SearchResponse{Hits: hits, EmbeddingError: nil}, nil
	}
}

// trySemantic embeds the query and runs the semantic closure, never
// panicking the request: any failure is returned for degradation.
func (s *Service) trySemantic(ctx context.Context, query string, semantic semanticFn) ([]models.SearchHit, error) {
	embedding, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := semantic(ctx, embedding)
	if err != nil {
		return nil, err
	}
	return hits, nil
}
