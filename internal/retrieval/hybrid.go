package retrieval

import (
	"sort"

	"github.com/vidscope/vidscope-backend/internal/models"
)

// DefaultSemanticBoost is the factor applied to semantic scores before
// merging. Cosine similarity is treated as a stronger relevance signal than
// raw full-text rank; the value is tunable through config.
const DefaultSemanticBoost = 1.2

// MergeHits combines keyword and semantic hit sets into one ordered,
// de-duplicated list:
//
//   - hits are keyed by (video_id, cue_id)
//   - semantic scores are multiplied by boost before merging
//   - a key present in both sets keeps the maximum score, and the keyword
//     snippet fills in whenever the semantic snippet is empty
//   - the merged set is sorted descending by score with a stable tie-break
//     (keyword-set order, then semantic-set order) and truncated to limit
//
// The result is deterministic for fixed inputs regardless of which retriever
// finished first.
func MergeHits(keyword, semantic []models.SearchHit, boost float64, limit int) []models.SearchHit {
	type keyed struct {
		hit   models.SearchHit
		order int
	}

	byKey := make(map[string]*keyed, len(keyword)+len(semantic))
	order := 0

	for _, h := range keyword {
		h.Source = models.HitSourceKeyword
		byKey[h.VideoID+":"+h.CueID] = &keyed{hit: h, order: order}
		order++
	}

	for _, h := range semantic {
		h.Score *= boost
		h.Source = models.HitSourceSemantic
		key := h.VideoID + ":" + h.CueID
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = &keyed{hit: h, order: order}
			order++
			continue
		}
		// Present in both: keep the max score, prefer the keyword snippet
		// when the semantic snippet is empty.
		kw := existing.hit
		if h.Snippet == "" {
			h.Snippet = kw.Snippet
		}
		if kw.Score > h.Score {
			h.Score = kw.Score
		}
		existing.hit = h
	}

	merged := make([]keyed, 0, len(byKey))
	for _, k := range byKey {
		merged = append(merged, *k)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].hit.Score != merged[j].hit.Score {
			return merged[i].hit.Score > merged[j].hit.Score
		}
		return merged[i].order < merged[j].order
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	hits := make([]models.SearchHit, len(merged))
	for i, k := range merged {
		hits[i] = k.hit
	}
	return hits
}
