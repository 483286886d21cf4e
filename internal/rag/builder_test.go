package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidscope/vidscope-backend/internal/config"
	"github.com/vidscope/vidscope-backend/internal/embeddings"
	"github.com/vidscope/vidscope-backend/internal/models"
)

type fakeTranscripts struct {
	transcript *models.Transcript
	err        error
}

func (f *fakeTranscripts) GetLatestForVideo(ctx context.Context, videoID, language string) (*models.Transcript, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}

func (f *fakeTranscripts) ListForVideo(ctx context.Context, videoID string) ([]models.Transcript, error) {
	return nil, nil
}

type fakeCues struct {
	cues []models.Cue
}

func (f *fakeCues) ListInWindow(ctx context.Context, transcriptID string, startMs, endMs int64, limit int) ([]models.Cue, error) {
	out := []models.Cue{}
	for _, c := range f.cues {
		if c.EndMs >= startMs && c.StartMs <= endMs {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCues) ListByTranscript(ctx context.Context, transcriptID string, cursorIdx, limit int) ([]models.Cue, *int, error) {
	return nil, nil, nil
}

type fakeChunks struct {
	chunks map[string]models.Chunk
}

func (f *fakeChunks) GetByIDs(ctx context.Context, ids []string) ([]models.Chunk, error) {
	out := []models.Chunk{}
	for _, id := range ids {
		if ch, ok := f.chunks[id]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

type fakeIndex struct {
	keywordHits []models.SearchHit
	chunkHits   []models.SearchHit
	frameHits   []models.SearchHit
	keywordErr  error
}

func (f *fakeIndex) KeywordSearch(ctx context.Context, scope models.RetrievalScope, query string, limit int) ([]models.SearchHit, error) {
	return nil, nil
}

func (f *fakeIndex) VectorSearch(ctx context.Context, scope models.RetrievalScope, embedding []float32, modelID string, limit int) ([]models.SearchHit, error) {
	return nil, nil
}

func (f *fakeIndex) KeywordSearchVideo(ctx context.Context, videoID, language, query string, limit int) ([]models.SearchHit, error) {
	return f.keywordHits, f.keywordErr
}

func (f *fakeIndex) VectorSearchVideo(ctx context.Context, videoID, language string, embedding []float32, modelID string, limit int) ([]models.SearchHit, error) {
	return f.chunkHits, nil
}

func (f *fakeIndex) VectorSearchFrames(ctx context.Context, videoID string, embedding []float32, modelID string, limit int) ([]models.SearchHit, error) {
	return f.frameHits, nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) ModelID() string { return "fake-embed" }
func (f *fakeEmbedder) Dimensions() int { return 3 }

func strPtr(s string) *string { return &s }
func int64Ptr(v int64) *int64 { return &v }

func newTestBuilder(transcripts *fakeTranscripts, cues *fakeCues, chunks *fakeChunks, index *fakeIndex, embedder *fakeEmbedder) *Builder {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	var e embeddings.Embedder
	if embedder != nil {
		e = embedder
	}
	if chunks == nil {
		chunks = &fakeChunks{}
	}
	cfg := config.RetrievalConfig{SemanticBoost: 1.2, MaxWindowCues: 60, MaxSources: 80}
	return NewBuilder(transcripts, cues, chunks, index, e, cfg, logger)
}

func TestBuild_NotFoundWithoutTranscript(t *testing.T) {
	b := newTestBuilder(
		&fakeTranscripts{err: models.ErrNotFound},
		&fakeCues{}, nil, &fakeIndex{}, nil)

	_, err := b.Build(context.Background(), BuildInput{VideoID: "v1", Query: "anything"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBuild_OrdinalsWindowFirstThenHits(t *testing.T) {
	transcripts := &fakeTranscripts{transcript: &models.Transcript{ID: "t1", VideoID: "v1"}}
	cues := &fakeCues{cues: []models.Cue{
		{ID: "cw1", StartMs: 9000, EndMs: 11000, Text: "now on screen"},
		{ID: "cw2", StartMs: 11000, EndMs: 13000, Text: "still on screen"},
	}}
	chunks := &fakeChunks{chunks: map[string]models.Chunk{
		"ch1": {ID: "ch1", StartMs: 60000, EndMs: 90000, Text: "the full chunk text"},
	}}
	index := &fakeIndex{
		keywordHits: []models.SearchHit{
			{CueID: "ck1", VideoID: "v1", StartMs: 30000, EndMs: 32000, Score: 0.4, Snippet: "keyword match", SourceType: "transcript"},
		},
		chunkHits: []models.SearchHit{
			{CueID: "ca1", ChunkID: strPtr("ch1"), VideoID: "v1", StartMs: 60000, EndMs: 90000, Score: 0.9, Snippet: "short", SourceType: "transcript"},
		},
	}

	b := newTestBuilder(transcripts, cues, chunks, index, &fakeEmbedder{})
	rc, err := b.Build(context.Background(), BuildInput{
		VideoID: "v1", AtMs: int64Ptr(10000), Query: "topic",
		WindowMs: 10000, SemanticK: 5, KeywordK: 5,
	})

	require.NoError(t, err)
	require.Len(t, rc.Sources, 4)

	// Window cues first in time order, then merged hits by score.
	assert.Equal(t, "S1", rc.Sources[0].Ref)
	assert.Equal(t, "cw1", rc.Sources[0].ID)
	assert.Equal(t, "S2", rc.Sources[1].Ref)
	assert.Equal(t, "cw2", rc.Sources[1].ID)
	assert.Equal(t, "S3", rc.Sources[2].Ref)
	assert.Equal(t, "ch1", rc.Sources[2].ID)
	assert.Equal(t, models.SourceTypeChunk, rc.Sources[2].Type)
	assert.Equal(t, "S4", rc.Sources[3].Ref)
	assert.Equal(t, "ck1", rc.Sources[3].ID)

	// Window cues are unscored; retrieved hits carry scores.
	assert.Nil(t, rc.Sources[0].Score)
	require.NotNil(t, rc.Sources[2].Score)
	assert.InDelta(t, 0.9*1.2, *rc.Sources[2].Score, 1e-9)

	// Chunk hits expand to the full chunk text, not the index snippet.
	assert.Equal(t, "the full chunk text", rc.Sources[2].Snippet)

	assert.Equal(t, "t1", rc.TranscriptID)
	assert.Equal(t, models.TimeWindow{StartMs: 5000, EndMs: 15000}, rc.Retrieval.Window)
	assert.Equal(t, 2, rc.Retrieval.WindowCues)
	assert.Equal(t, 1, rc.Retrieval.SemanticHits)
	assert.Equal(t, 1, rc.Retrieval.KeywordHits)
	assert.Nil(t, rc.Retrieval.EmbeddingError)
}

func TestBuild_SystemPromptRendersSourceTags(t *testing.T) {
	transcripts := &fakeTranscripts{transcript: &models.Transcript{ID: "t1", VideoID: "v1"}}
	cues := &fakeCues{cues: []models.Cue{
		{ID: "cw1", StartMs: 9000, EndMs: 11000, Text: "  lots   of\n whitespace  "},
	}}

	b := newTestBuilder(transcripts, cues, nil, &fakeIndex{}, nil)
	rc, err := b.Build(context.Background(), BuildInput{
		VideoID: "v1", AtMs: int64Ptr(10000), Query: "topic", WindowMs: 10000,
	})

	require.NoError(t, err)
	assert.Contains(t, rc.SystemPrompt, "cite it inline")
	assert.Contains(t, rc.SystemPrompt, "Playhead: t=00:00:10 (at_ms=10000).")
	assert.Contains(t, rc.SystemPrompt, "[S1|cue|00:00:09-00:00:11|start_ms=9000|end_ms=11000] lots of whitespace")
}

func TestBuild_EmptySourcesPromptPlaceholder(t *testing.T) {
	transcripts := &fakeTranscripts{transcript: &models.Transcript{ID: "t1", VideoID: "v1"}}

	b := newTestBuilder(transcripts, &fakeCues{}, nil, &fakeIndex{}, nil)
	rc, err := b.Build(context.Background(), BuildInput{VideoID: "v1", Query: "topic", WindowMs: 10000})

	require.NoError(t, err)
	assert.Empty(t, rc.Sources)
	assert.Contains(t, rc.SystemPrompt, "(no sources)")
	assert.Contains(t, rc.SystemPrompt, "Playhead: unknown.")
}

func TestBuild_EmbeddingFailureDegradesToKeyword(t *testing.T) {
	transcripts := &fakeTranscripts{transcript: &models.Transcript{ID: "t1", VideoID: "v1"}}
	index := &fakeIndex{
		keywordHits: []models.SearchHit{
			{CueID: "ck1", VideoID: "v1", StartMs: 30000, EndMs: 32000, Score: 0.4, Snippet: "keyword match", SourceType: "transcript"},
		},
	}

	b := newTestBuilder(transcripts, &fakeCues{}, nil, index, &fakeEmbedder{err: errors.New("provider down")})
	rc, err := b.Build(context.Background(), BuildInput{
		VideoID: "v1", Query: "topic", WindowMs: 10000, SemanticK: 5, KeywordK: 5,
	})

	require.NoError(t, err)
	require.Len(t, rc.Sources, 1)
	assert.Equal(t, "ck1", rc.Sources[0].ID)
	require.NotNil(t, rc.Retrieval.EmbeddingError)
	assert.Contains(t, *rc.Retrieval.EmbeddingError, "provider down")
	assert.Equal(t, 0, rc.Retrieval.SemanticHits)
	assert.Equal(t, 1, rc.Retrieval.KeywordHits)
}

func TestBuild_NilEmbedderDegrades(t *testing.T) {
	transcripts := &fakeTranscripts{transcript: &models.Transcript{ID: "t1", VideoID: "v1"}}

	b := newTestBuilder(transcripts, &fakeCues{}, nil, &fakeIndex{}, nil)
	rc, err := b.Build(context.Background(), BuildInput{
		VideoID: "v1", Query: "topic", WindowMs: 10000, SemanticK: 5,
	})

	require.NoError(t, err)
	require.NotNil(t, rc.Retrieval.EmbeddingError)
	assert.Contains(t, *rc.Retrieval.EmbeddingError, "no embedding provider configured")
}

func TestBuild_KeywordErrorIsFatal(t *testing.T) {
	transcripts := &fakeTranscripts{transcript: &models.Transcript{ID: "t1", VideoID: "v1"}}
	index := &fakeIndex{keywordErr: errors.New("index offline")}

	b := newTestBuilder(transcripts, &fakeCues{}, nil, index, nil)
	_, err := b.Build(context.Background(), BuildInput{
		VideoID: "v1", Query: "topic", WindowMs: 10000, KeywordK: 5,
	})
	assert.ErrorContains(t, err, "index offline")
}

func TestBuild_DeduplicatesWindowCueAgainstKeywordHit(t *testing.T) {
	transcripts := &fakeTranscripts{transcript: &models.Transcript{ID: "t1", VideoID: "v1"}}
	cues := &fakeCues{cues: []models.Cue{
		{ID: "c1", StartMs: 9000, EndMs: 11000, Text: "shared cue"},
	}}
	index := &fakeIndex{
		keywordHits: []models.SearchHit{
			{CueID: "c1", VideoID: "v1", StartMs: 9000, EndMs: 11000, Score: 0.7, Snippet: "shared cue", SourceType: "transcript"},
		},
	}

	b := newTestBuilder(transcripts, cues, nil, index, nil)
	rc, err := b.Build(context.Background(), BuildInput{
		VideoID: "v1", AtMs: int64Ptr(10000), Query: "topic", WindowMs: 10000, KeywordK: 5,
	})

	require.NoError(t, err)
	require.Len(t, rc.Sources, 1)
	assert.Equal(t, "S1", rc.Sources[0].Ref)
	// The window-cue entry wins; it is offered unscored.
	assert.Nil(t, rc.Sources[0].Score)
}

func TestBuild_FrameHitsBecomeFrameSources(t *testing.T) {
	transcripts := &fakeTranscripts{transcript: &models.Transcript{ID: "t1", VideoID: "v1"}}
	index := &fakeIndex{
		frameHits: []models.SearchHit{
			{CueID: "f1", ChunkID: strPtr("f1"), VideoID: "v1", StartMs: 5000, EndMs: 8000, Score: 0.8, Snippet: "a whiteboard diagram", SourceType: "visual"},
		},
	}

	b := newTestBuilder(transcripts, &fakeCues{}, nil, index, &fakeEmbedder{})
	rc, err := b.Build(context.Background(), BuildInput{
		VideoID: "v1", Query: "diagram", WindowMs: 10000, SemanticK: 5,
	})

	require.NoError(t, err)
	require.Len(t, rc.Sources, 1)
	assert.Equal(t, models.SourceTypeFrame, rc.Sources[0].Type)
	assert.Equal(t, "f1", rc.Sources[0].ID)
	assert.Contains(t, rc.SystemPrompt, "|frame_chunk|")
}

func TestBuild_MaxSourcesCap(t *testing.T) {
	transcripts := &fakeTranscripts{transcript: &models.Transcript{ID: "t1", VideoID: "v1"}}
	cueList := make([]models.Cue, 10)
	for i := range cueList {
		cueList[i] = models.Cue{
			ID:      fmt.Sprintf("c%d", i),
			StartMs: int64(i * 1000),
			EndMs:   int64(i*1000 + 1000),
			Text:    "cue text",
		}
	}
	cues := &fakeCues{cues: cueList}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := config.RetrievalConfig{SemanticBoost: 1.2, MaxWindowCues: 60, MaxSources: 3}
	b := NewBuilder(transcripts, cues, &fakeChunks{}, &fakeIndex{}, nil, cfg, logger)

	rc, err := b.Build(context.Background(), BuildInput{
		VideoID: "v1", AtMs: int64Ptr(5000), Query: "topic", WindowMs: 20000,
	})

	require.NoError(t, err)
	assert.Len(t, rc.Sources, 3)
	assert.Equal(t, "S3", rc.Sources[2].Ref)
}

func TestPickCenteredWindowCues(t *testing.T) {
	cueList := make([]models.Cue, 100)
	for i := range cueList {
		cueList[i] = models.Cue{ID: fmt.Sprintf("c%d", i), StartMs: int64(i * 1000)}
	}

	t.Run("under max returns all", func(t *testing.T) {
		got := pickCenteredWindowCues(cueList[:5], int64Ptr(2000), 10)
		assert.Len(t, got, 5)
	})

	t.Run("nil playhead keeps earliest", func(t *testing.T) {
		got := pickCenteredWindowCues(cueList, nil, 10)
		require.Len(t, got, 10)
		assert.Equal(t, "c0", got[0].ID)
		assert.Equal(t, "c9", got[9].ID)
	})

	t.Run("centered on playhead", func(t *testing.T) {
		got := pickCenteredWindowCues(cueList, int64Ptr(50000), 10)
		require.Len(t, got, 10)
		assert.Equal(t, "c45", got[0].ID)
		assert.Equal(t, "c54", got[9].ID)
	})

	t.Run("clamped at the start", func(t *testing.T) {
		got := pickCenteredWindowCues(cueList, int64Ptr(1000), 10)
		require.Len(t, got, 10)
		assert.Equal(t, "c0", got[0].ID)
	})

	t.Run("clamped at the end", func(t *testing.T) {
		got := pickCenteredWindowCues(cueList, int64Ptr(99000), 10)
		require.Len(t, got, 6)
		assert.Equal(t, "c94", got[0].ID)
		assert.Equal(t, "c99", got[5].ID)
	})
}

func TestCleanSnippet(t *testing.T) {
	assert.Equal(t, "a b c", cleanSnippet("  a \n b\t c ", 240))
	long := strings.Repeat("x", 300)
	got := cleanSnippet(long, 240)
	assert.Len(t, got, 240)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestCleanSnippetMultibyte(t *testing.T) {
	// A cut landing inside a multibyte rune must not produce invalid UTF-8.
	got := cleanSnippet(strings.Repeat("a", 236)+"日本語の文章です", 240)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 240, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "日..."))

	// Short multibyte text passes through untouched.
	assert.Equal(t, "日本語", cleanSnippet("日本語", 240))
}

func TestFormatHms(t *testing.T) {
	assert.Equal(t, "00:00:00", formatHms(0))
	assert.Equal(t, "00:00:09", formatHms(9500))
	assert.Equal(t, "01:02:03", formatHms((3600+2*60+3)*1000))
}
