package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vidscope/vidscope-backend/internal/config"
	"github.com/vidscope/vidscope-backend/internal/embeddings"
	"github.com/vidscope/vidscope-backend/internal/models"
	"github.com/vidscope/vidscope-backend/internal/repository"
	"github.com/vidscope/vidscope-backend/internal/retrieval"
)

const (
	cueSnippetLen   = 240
	chunkSnippetLen = 900

	windowCueFetchLimit = 2000
	maxWindowCuesCap    = 200
	maxSourcesCap       = 120
)

// Builder assembles the bounded, citable context for one chat turn. It never
// calls a generation backend: the output is a rendered system prompt plus
// the ordered source list the prompt refers to, so the whole step is
// testable without a model.
type Builder struct {
	transcripts repository.TranscriptRepository
	cues        repository.CueRepository
	chunks      repository.ChunkRepository
	index       repository.SearchIndex
	embedder    embeddings.Embedder
	cfg         config.RetrievalConfig
	logger      *logrus.Logger
}

// NewBuilder creates a context builder. The embedder may be nil; semantic
// retrieval then degrades and the reason is recorded in the retrieval meta.
func NewBuilder(
	transcripts repository.TranscriptRepository,
	cues repository.CueRepository,
	chunks repository.ChunkRepository,
	index repository.SearchIndex,
	embedder embeddings.Embedder,
	cfg config.RetrievalConfig,
	logger *logrus.Logger,
) *Builder {
	if cfg.SemanticBoost <= 0 {
		cfg.SemanticBoost = retrieval.DefaultSemanticBoost
	}
	if cfg.MaxWindowCues <= 0 {
		cfg.MaxWindowCues = 60
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = 80
	}
	return &Builder{
		transcripts: transcripts,
		cues:        cues,
		chunks:      chunks,
		index:       index,
		embedder:    embedder,
		cfg:         cfg,
		logger:      logger,
	}
}

// BuildInput carries one turn's retrieval parameters.
type BuildInput struct {
	VideoID   string
	AtMs      *int64
	Language  string
	Query     string
	WindowMs  int64
	SemanticK int
	KeywordK  int
}

// Build resolves the latest transcript for the video, pulls the local-time
// window around the playhead, runs keyword and semantic retrieval
// concurrently, and renders the system prompt with S1..Sn source tags.
// Returns models.ErrNotFound when the video has no transcript.
func (b *Builder) Build(ctx context.Context, in BuildInput) (*models.RagContext, error) {
	language := in.Language
	if language == "" {
		language = "en"
	}

	transcript, err := b.transcripts.GetLatestForVideo(ctx, in.VideoID, language)
	if err != nil {
		return nil, err
	}

	var atMs int64
	if in.AtMs != nil {
		atMs = *in.AtMs
	}
	half := in.WindowMs / 2
	windowStart := atMs - half
	if windowStart < 0 {
		windowStart = 0
	}
	windowEnd := atMs + half

	allWindowCues, err := b.cues.ListInWindow(ctx, transcript.ID, windowStart, windowEnd, windowCueFetchLimit)
	if err != nil {
		return nil, err
	}
	maxWindowCues := b.cfg.MaxWindowCues
	if maxWindowCues > maxWindowCuesCap {
		maxWindowCues = maxWindowCuesCap
	}
	windowCues := pickCenteredWindowCues(allWindowCues, in.AtMs, maxWindowCues)

	var (
		kwHits    []models.SearchHit
		semHits   []models.SearchHit
		chunkText map[string]string
		embErr    error
	)

	// Both retrievers run concurrently; the semantic branch may fail
	// independently without blocking or failing the keyword branch.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if in.KeywordK <= 0 {
			return nil
		}
		var err error
		kwHits, err = b.index.KeywordSearchVideo(gctx, in.VideoID, language, in.Query, in.KeywordK)
		return err
	})
	g.Go(func() error {
		if in.SemanticK <= 0 {
			return nil
		}
		semHits, chunkText, embErr = b.retrieveSemantic(gctx, in.VideoID, language, in.Query, in.SemanticK)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if embErr != nil && b.logger != nil {
		b.logger.WithFields(logrus.Fields{
			"video_id": in.VideoID,
			"reason":   embErr.Error(),
		}).Warn("semantic retrieval degraded while building chat context")
	}

	merged := retrieval.MergeHits(kwHits, semHits, b.cfg.SemanticBoost, 0)

	maxSources := b.cfg.MaxSources
	if maxSources > maxSourcesCap {
		maxSources = maxSourcesCap
	}
	sources := b.assembleSources(windowCues, merged, chunkText, maxSources)

	meta := models.RetrievalMeta{
		TranscriptID: transcript.ID,
		Window:       models.TimeWindow{StartMs: windowStart, EndMs: windowEnd},
		WindowCues:   len(windowCues),
		SemanticHits: len(semHits),
		KeywordHits:  len(kwHits),
	}
	if embErr != nil {
		reason := embErr.Error()
		meta.EmbeddingError = &reason
	}

	return &models.RagContext{
		TranscriptID: transcript.ID,
		SystemPrompt: renderSystemPrompt(in.AtMs, sources),
		Sources:      sources,
		Retrieval:    meta,
	}, nil
}

// retrieveSemantic embeds the query, ranks transcript and visual-frame
// chunks, and fetches the full chunk texts so the prompt can carry more than
// the index snippet. Any failure is returned for degradation, never
// propagated as a request error.
func (b *Builder) retrieveSemantic(ctx context.Context, videoID, language, query string, k int) ([]models.SearchHit, map[string]string, error) {
	if b.embedder == nil {
		return nil, nil, &models.EmbeddingUnavailableError{Reason: "no embedding provider configured"}
	}
	embedding, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	hits, err := b.index.VectorSearchVideo(ctx, videoID, language, embedding, b.embedder.ModelID(), k)
	if err != nil {
		return nil, nil, err
	}
	frameHits, err := b.index.VectorSearchFrames(ctx, videoID, embedding, b.embedder.ModelID(), k)
	if err != nil {
		return nil, nil, err
	}
	hits = append(hits, frameHits...)
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}

	chunkIDs := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.ChunkID != nil && h.SourceType != "visual" {
			chunkIDs = append(chunkIDs, *h.ChunkID)
		}
	}
	chunkText := make(map[string]string, len(chunkIDs))
	if len(chunkIDs) > 0 {
		chunks, err := b.chunks.GetByIDs(ctx, chunkIDs)
		if err != nil {
			return nil, nil, err
		}
		for _, ch := range chunks {
			chunkText[ch.ID] = ch.Text
		}
	}
	return hits, chunkText, nil
}

// assembleSources assigns stable S1..Sn ordinals: local-context cues first
// in time order, then merged hits in score order, de-duplicated by type:id
// and capped at maxSources.
func (b *Builder) assembleSources(windowCues []models.Cue, merged []models.SearchHit, chunkText map[string]string, maxSources int) []models.ChatSource {
	sources := make([]models.ChatSource, 0, len(windowCues)+len(merged))
	seen := make(map[string]struct{})

	add := func(s models.ChatSource) {
		if len(sources) >= maxSources {
			return
		}
		key := s.Type + ":" + s.ID
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		s.Ref = fmt.Sprintf("S%d", len(sources)+1)
		sources = append(sources, s)
	}

	for _, c := range windowCues {
		add(models.ChatSource{
			Type:    models.SourceTypeCue,
			ID:      c.ID,
			StartMs: c.StartMs,
			EndMs:   c.EndMs,
			Snippet: cleanSnippet(c.Text, cueSnippetLen),
		})
	}

	for _, h := range merged {
		score := h.Score
		switch {
		case h.SourceType == "visual":
			add(models.ChatSource{
				Type:    models.SourceTypeFrame,
				ID:      h.CueID,
				StartMs: h.StartMs,
				EndMs:   h.EndMs,
				Score:   &score,
				Snippet: cleanSnippet(h.Snippet, cueSnippetLen),
			})
		case h.ChunkID != nil:
			full := h.Snippet
			if text, ok := chunkText[*h.ChunkID]; ok {
				full = text
			}
			add(models.ChatSource{
				Type:    models.SourceTypeChunk,
				ID:      *h.ChunkID,
				StartMs: h.StartMs,
				EndMs:   h.EndMs,
				Score:   &score,
				Snippet: cleanSnippet(full, chunkSnippetLen),
			})
		default:
			add(models.ChatSource{
				Type:    models.SourceTypeCue,
				ID:      h.CueID,
				StartMs: h.StartMs,
				EndMs:   h.EndMs,
				Score:   &score,
				Snippet: cleanSnippet(h.Snippet, cueSnippetLen),
			})
		}
	}

	return sources
}

// pickCenteredWindowCues trims an oversized cue window to max cues centered
// on the playhead. When the playhead is unknown it keeps the earliest cues.
func pickCenteredWindowCues(cues []models.Cue, atMs *int64, max int) []models.Cue {
	if len(cues) <= max {
		return cues
	}
	if atMs == nil {
		return cues[:max]
	}

	// Binary search for the cue whose start is closest but <= atMs.
	best := 0
	lo, hi := 0, len(cues)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		if cues[mid].StartMs <= *atMs {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	start := best - max/2
	if start < 0 {
		start = 0
	}
	end := start + max
	if end > len(cues) {
		end = len(cues)
	}
	return cues[start:end]
}

func renderSystemPrompt(atMs *int64, sources []models.ChatSource) string {
	nowLine := "Playhead: unknown."
	if atMs != nil {
		nowLine = fmt.Sprintf("Playhead: t=%s (at_ms=%d).", formatHms(*atMs), *atMs)
	}

	lines := make([]string, 0, len(sources))
	for _, s := range sources {
		lines = append(lines, fmt.Sprintf("[%s|%s|%s-%s|start_ms=%d|end_ms=%d] %s",
			s.Ref, s.Type, formatHms(s.StartMs), formatHms(s.EndMs), s.StartMs, s.EndMs, s.Snippet))
	}
	sourcesText := strings.Join(lines, "\n")
	if sourcesText == "" {
		sourcesText = "(no sources)"
	}

	return strings.Join([]string{
		"You are a grounded assistant for a video's transcript and derived context.",
		"Use ONLY the SOURCES below; do not guess beyond them.",
		"When you use a source, cite it inline using the bracket form like [S1] or [S2].",
		"If the SOURCES are insufficient, say what is missing and ask a clarifying question.",
		nowLine,
		"",
		"SOURCES:",
		sourcesText,
	}, "\n")
}

// formatHms renders a millisecond offset as hh:mm:ss.
func formatHms(ms int64) string {
	totalSeconds := ms / 1000
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// cleanSnippet collapses whitespace to one line and truncates with an
// ellipsis at maxLen. Truncation counts runes so a cut never splits a
// multibyte character.
func cleanSnippet(s string, maxLen int) string {
	oneLine := strings.Join(strings.Fields(s), " ")
	runes := []rune(oneLine)
	if len(runes) <= maxLen {
		return oneLine
	}
	cut := maxLen - 3
	if cut < 0 {
		cut = 0
	}
	return string(runes[:cut]) + "..."
}
