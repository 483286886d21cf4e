package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vidscope/vidscope-backend/internal/models"
)

func kwHit(videoID, cueID string, score float64, snippet string) models.SearchHit {
	return models.SearchHit{CueID: cueID, VideoID: videoID, Score: score, Snippet: snippet}
}

func semHit(videoID, cueID string, score float64, snippet string) models.SearchHit {
	chunkID := cueID + "-chunk"
	return models.SearchHit{CueID: cueID, ChunkID: &chunkID, VideoID: videoID, Score: score, Snippet: snippet}
}

func TestMergeHits_SemanticBoost(t *testing.T) {
	sem := []models.SearchHit{semHit("v1", "c1", 0.5, "a chunk")}

	merged := MergeHits(nil, sem, 1.2, 10)

	assert.Len(t, merged, 1)
	assert.InDelta(t, 0.6, merged[0].Score, 1e-9)
	assert.Equal(t, models.HitSourceSemantic, merged[0].Source)
}

func TestMergeHits_MaxMergeKeepsLargerScore(t *testing.T) {
	tests := []struct {
		name     string
		kwScore  float64
		semScore float64
		want     float64
	}{
		{name: "keyword wins", kwScore: 0.9, semScore: 0.5, want: 0.9},
		{name: "boosted semantic wins", kwScore: 0.5, semScore: 0.8, want: 0.96},
		{name: "boost decides close call", kwScore: 0.55, semScore: 0.5, want: 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kw := []models.SearchHit{kwHit("v1", "c1", tt.kwScore, "keyword snippet")}
			sem := []models.SearchHit{semHit("v1", "c1", tt.semScore, "semantic snippet")}

			merged := MergeHits(kw, sem, 1.2, 10)

			assert.Len(t, merged, 1)
			assert.InDelta(t, tt.want, merged[0].Score, 1e-9)
		})
	}
}

func TestMergeHits_KeywordSnippetFillsEmptySemanticSnippet(t *testing.T) {
	kw := []models.SearchHit{kwHit("v1", "c1", 0.3, "tight keyword excerpt")}
	sem := []models.SearchHit{semHit("v1", "c1", 0.9, "")}

	merged := MergeHits(kw, sem, 1.2, 10)

	assert.Len(t, merged, 1)
	assert.Equal(t, "tight keyword excerpt", merged[0].Snippet)

	// A non-empty semantic snippet is kept as-is.
	sem[0].Snippet = "long chunk text"
	merged = MergeHits(kw, sem, 1.2, 10)
	assert.Equal(t, "long chunk text", merged[0].Snippet)
}

func TestMergeHits_Deduplication(t *testing.T) {
	kw := []models.SearchHit{
		kwHit("v1", "c1", 0.4, "one"),
		kwHit("v1", "c2", 0.3, "two"),
	}
	sem := []models.SearchHit{
		semHit("v1", "c1", 0.5, "one again"),
		semHit("v2", "c1", 0.5, "different video, same cue id"),
	}

	merged := MergeHits(kw, sem, 1.2, 10)

	// (v1,c1) collapses; (v2,c1) is a distinct key.
	assert.Len(t, merged, 3)
}

func TestMergeHits_SortedDescendingAndTruncated(t *testing.T) {
	kw := []models.SearchHit{
		kwHit("v1", "c1", 0.1, "a"),
		kwHit("v1", "c2", 0.9, "b"),
		kwHit("v1", "c3", 0.5, "c"),
	}
	sem := []models.SearchHit{
		semHit("v1", "c4", 0.6, "d"), // 0.72 boosted
	}

	merged := MergeHits(kw, sem, 1.2, 3)

	assert.Len(t, merged, 3)
	assert.Equal(t, "c2", merged[0].CueID)
	assert.Equal(t, "c4", merged[1].CueID)
	assert.Equal(t, "c3", merged[2].CueID)
}

func TestMergeHits_StableTieBreak(t *testing.T) {
	// Equal final scores: keyword-set order wins, then semantic-set order.
	kw := []models.SearchHit{
		kwHit("v1", "k1", 0.5, "a"),
		kwHit("v1", "k2", 0.5, "b"),
	}
	sem := []models.SearchHit{
		semHit("v1", "s1", 0.5/1.2, "c"),
		semHit("v1", "s2", 0.5/1.2, "d"),
	}

	merged := MergeHits(kw, sem, 1.2, 10)

	refs := []string{merged[0].CueID, merged[1].CueID, merged[2].CueID, merged[3].CueID}
	assert.Equal(t, []string{"k1", "k2", "s1", "s2"}, refs)
}

func TestMergeHits_Deterministic(t *testing.T) {
	kw := []models.SearchHit{
		kwHit("v1", "c1", 0.4, "one"),
		kwHit("v1", "c2", 0.2, "two"),
		kwHit("v2", "c3", 0.7, "three"),
	}
	sem := []models.SearchHit{
		semHit("v1", "c2", 0.6, "two-sem"),
		semHit("v2", "c4", 0.3, "four"),
	}

	first := MergeHits(kw, sem, 1.2, 10)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, MergeHits(kw, sem, 1.2, 10))
	}
}

func TestMergeHits_EmptyInputs(t *testing.T) {
	assert.Empty(t, MergeHits(nil, nil, 1.2, 10))

	kw := []models.SearchHit{kwHit("v1", "c1", 0.4, "one")}
	merged := MergeHits(kw, nil, 1.2, 10)
	assert.Len(t, merged, 1)
	assert.Equal(t, models.HitSourceKeyword, merged[0].Source)
}
