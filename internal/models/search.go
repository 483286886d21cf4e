package models

// Search modes accepted by the search endpoints.
const (
	SearchModeKeyword  = "keyword"
	SearchModeSemantic = "semantic"
	SearchModeHybrid   = "hybrid"
)

// Hit sources, recorded per hit so callers can tell which retriever produced
// it after the merge.
const (
	HitSourceKeyword  = "keyword"
	HitSourceSemantic = "semantic"
)

// SearchHit is one scored retrieval result. CueID anchors the hit to a
// playable timestamp; ChunkID is set when the hit came from a coalesced
// chunk (semantic retrieval). Scores are retriever-local: full-text rank for
// keyword hits, cosine similarity for semantic hits.
type SearchHit struct {
	CueID   string  `json:"cue_id" db:"cue_id"`
	ChunkID *string `json:"chunk_id,omitempty" db:"chunk_id"`
	VideoID string  `json:"video_id" db:"video_id"`
	StartMs int64   `json:"start_ms" db:"start_ms"`
	EndMs   int64   `json:"end_ms" db:"end_ms"`
	Score   float64 `json:"score" db:"score"`
	Snippet string  `json:"snippet" db:"snippet"`
	Source  string  `json:"source" db:"source"`
	// SourceType distinguishes transcript evidence from visual-frame
	// evidence ("transcript" or "visual").
	SourceType string `json:"source_type,omitempty" db:"source_type"`

	// Library-wide searches also carry the owning video's display fields.
	Title        string `json:"title,omitempty" db:"title"`
	ChannelName  string `json:"channel_name,omitempty" db:"channel_name"`
	VideoURL     string `json:"video_url,omitempty" db:"video_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
}

// RetrievalScope narrows a search to a subset of the library. Empty slices
// mean "no filter". The same scope is applied to both retrievers so the
// hybrid merge is over a consistent universe.
type RetrievalScope struct {
	VideoIDs     []string `json:"video_ids,omitempty"`
	ChannelNames []string `json:"channel_names,omitempty"`
	Topics       []string `json:"topics,omitempty"`
	People       []string `json:"people,omitempty"`
	Language     string   `json:"language,omitempty"`
}

// SearchRequest is the body of POST /search and POST /videos/:id/search.
type SearchRequest struct {
	Query    string          `json:"query"`
	Mode     string          `json:"mode"`
	Limit    int             `json:"limit"`
	Language string          `json:"language,omitempty"`
	Scope    *RetrievalScope `json:"scope,omitempty"`
}

// SearchResponse always reports success when keyword retrieval succeeded;
// EmbeddingError is non-nil when the semantic branch was unavailable.
type SearchResponse struct {
	Hits           []SearchHit `json:"hits"`
	EmbeddingError *string     `json:"embedding_error"`
}
