package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/vidscope/vidscope-backend/internal/models"
	"github.com/vidscope/vidscope-backend/internal/repository"
)

// SearchIndex implements repository.SearchIndex over Postgres full-text
// search and pgvector. Keyword relevance is ts_rank_cd over a stored
// tsvector; queries that produce an empty tsquery fall back to an ILIKE
// substring match with a fixed low-confidence score so the caller can tell
// "no matching terms" apart from "no index".
type SearchIndex struct {
	db *sqlx.DB
}

// NewSearchIndex creates a new PostgreSQL search index
func NewSearchIndex(db *sqlx.DB) repository.SearchIndex {
	return &SearchIndex{db: db}
}

// toPgVector renders a pgvector literal: '[1,2,3]'.
func toPgVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// textArray binds an optional scope filter: nil disables the predicate.
func textArray(values []string) interface{} {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	return pq.Array(cleaned)
}

func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

func scopeLanguage(scope models.RetrievalScope) string {
	if scope.Language == "" {
		return "en"
	}
	return scope.Language
}

// KeywordSearch ranks cues across the library by full-text relevance,
// restricted to each video's latest transcript so stale fetches never rank.
func (s *SearchIndex) KeywordSearch(ctx context.Context, scope models.RetrievalScope, query string, limit int) ([]models.SearchHit, error) {
	limit = clampLimit(limit, 20, 100)

	hits := []models.SearchHit{}
	q := `
		WITH q AS (
			SELECT websearch_to_tsquery('english', $1) AS q
		),
		latest AS (
			SELECT DISTINCT ON (video_id) id, video_id
			FROM transcripts
			WHERE language = $2
			ORDER BY video_id, fetched_at DESC
		)
		SELECT
			v.id::text AS video_id,
			v.title,
			v.channel_name,
			v.url AS video_url,
			v.thumbnail_url,
			c.id::text AS cue_id,
			c.start_ms,
			c.end_ms,
			CASE WHEN q.q = ''::tsquery THEN 0.01 ELSE ts_rank_cd(c.tsv, q.q) END AS score,
			substring(c.text FROM 1 FOR 240) AS snippet,
			'keyword' AS source,
			'transcript' AS source_type
		FROM latest t
		JOIN videos v ON v.id = t.video_id
		JOIN transcript_cues c ON c.transcript_id = t.id
		JOIN q ON TRUE
		WHERE (
			   (q.q <> ''::tsquery AND c.tsv @@ q.q)
			OR (q.q = ''::tsquery AND c.text ILIKE ('%' || $1 || '%'))
		)
		  AND ($4::uuid[] IS NULL OR v.id = ANY($4::uuid[]))
		  AND ($5::text[] IS NULL OR v.channel_name = ANY($5::text[]))
		  AND ($6::text[] IS NULL OR EXISTS (
			SELECT 1 FROM video_tags vt WHERE vt.video_id = v.id AND vt.tag = ANY($6::text[])
		  ))
		  AND ($7::text[] IS NULL OR EXISTS (
			SELECT 1 FROM entities e WHERE e.video_id = v.id AND e.type = 'person' AND e.canonical_name = ANY($7::text[])
		  ))
		ORDER BY score DESC
		LIMIT $3
	`

	err := s.db.SelectContext(ctx, &hits, q,
		query, scopeLanguage(scope), limit,
		textArray(scope.VideoIDs), textArray(scope.ChannelNames),
		textArray(scope.Topics), textArray(scope.People))
	if err != nil {
		return nil, err
	}

	return hits, nil
}

// VectorSearch ranks chunks across the library by cosine similarity. Score
// is 1 - cosine distance. Each hit is anchored to the cue at the chunk's
// starting index so the caller gets a playable timestamp.
func (s *SearchIndex) VectorSearch(ctx context.Context, scope models.RetrievalScope, embedding []float32, modelID string, limit int) ([]models.SearchHit, error) {
	limit = clampLimit(limit, 20, 100)

	hits := []models.SearchHit{}
	q := `
		WITH latest AS (
			SELECT DISTINCT ON (video_id) id, video_id
			FROM transcripts
			WHERE language = $2
			ORDER BY video_id, fetched_at DESC
		),
		hits AS (
			SELECT
				t.id AS transcript_id,
				v.id AS video_id,
				v.title,
				v.channel_name,
				v.url AS video_url,
				v.thumbnail_url,
				ch.id AS chunk_id,
				ch.start_ms,
				ch.end_ms,
				ch.cue_start_idx,
				(1 - (e.embedding <=> $1::vector)) AS score,
				ch.text AS snippet
			FROM latest t
			JOIN videos v ON v.id = t.video_id
			JOIN transcript_chunks ch ON ch.transcript_id = t.id
			JOIN embeddings e ON e.chunk_id = ch.id
			WHERE e.model_id = $3
			  AND ($5::uuid[] IS NULL OR v.id = ANY($5::uuid[]))
			  AND ($6::text[] IS NULL OR v.channel_name = ANY($6::text[]))
			  AND ($7::text[] IS NULL OR EXISTS (
				SELECT 1 FROM video_tags vt WHERE vt.video_id = v.id AND vt.tag = ANY($7::text[])
			  ))
			  AND ($8::text[] IS NULL OR EXISTS (
				SELECT 1 FROM entities en WHERE en.video_id = v.id AND en.type = 'person' AND en.canonical_name = ANY($8::text[])
			  ))
			ORDER BY e.embedding <=> $1::vector
			LIMIT $4
		)
		SELECT
			hits.video_id::text AS video_id,
			hits.title,
			hits.channel_name,
			hits.video_url,
			hits.thumbnail_url,
			c.id::text AS cue_id,
			hits.chunk_id::text AS chunk_id,
			hits.start_ms,
			hits.end_ms,
			hits.score,
			substring(hits.snippet FROM 1 FOR 240) AS snippet,
			'semantic' AS source,
			'transcript' AS source_type
		FROM hits
		JOIN transcript_cues c ON c.transcript_id = hits.transcript_id AND c.idx = hits.cue_start_idx
		ORDER BY hits.score DESC
	`

	err := s.db.SelectContext(ctx, &hits, q,
		toPgVector(embedding), scopeLanguage(scope), modelID, limit,
		textArray(scope.VideoIDs), textArray(scope.ChannelNames),
		textArray(scope.Topics), textArray(scope.People))
	if err != nil {
		return nil, err
	}

	return hits, nil
}

// KeywordSearchVideo ranks cues within one video's latest transcript.
func (s *SearchIndex) KeywordSearchVideo(ctx context.Context, videoID, language, query string, limit int) ([]models.SearchHit, error) {
	limit = clampLimit(limit, 20, 50)
	if language == "" {
		language = "en"
	}

	hits := []models.SearchHit{}
	q := `
		WITH t AS (
			SELECT id
			FROM transcripts
			WHERE video_id = $1 AND language = $3
			ORDER BY fetched_at DESC
			LIMIT 1
		),
		q AS (
			SELECT websearch_to_tsquery('english', $2) AS q
		)
		SELECT
			c.id::text AS cue_id,
			$1::text AS video_id,
			c.start_ms,
			c.end_ms,
			CASE WHEN q.q = ''::tsquery THEN 0.01 ELSE ts_rank_cd(c.tsv, q.q) END AS score,
			c.text AS snippet,
			'keyword' AS source,
			'transcript' AS source_type
		FROM transcript_cues c
		JOIN t ON t.id = c.transcript_id
		JOIN q ON TRUE
		WHERE (q.q <> ''::tsquery AND c.tsv @@ q.q)
		   OR (q.q = ''::tsquery AND c.text ILIKE ('%' || $2 || '%'))
		ORDER BY score DESC
		LIMIT $4
	`

	err := s.db.SelectContext(ctx, &hits, q, videoID, query, language, limit)
	if err != nil {
		return nil, err
	}

	return hits, nil
}

// VectorSearchVideo ranks transcript chunks within one video's latest
// transcript by cosine similarity.
func (s *SearchIndex) VectorSearchVideo(ctx context.Context, videoID, language string, embedding []float32, modelID string, limit int) ([]models.SearchHit, error) {
	limit = clampLimit(limit, 20, 50)
	if language == "" {
		language = "en"
	}

	hits := []models.SearchHit{}
	q := `
		WITH t AS (
			SELECT id
			FROM transcripts
			WHERE video_id = $1 AND language = $2
			ORDER BY fetched_at DESC
			LIMIT 1
		),
		hits AS (
			SELECT
				ch.id AS chunk_id,
				ch.start_ms,
				ch.end_ms,
				ch.cue_start_idx,
				(1 - (e.embedding <=> $3::vector)) AS score,
				ch.text AS snippet
			FROM transcript_chunks ch
			JOIN embeddings e ON e.chunk_id = ch.id
			JOIN t ON t.id = ch.transcript_id
			WHERE e.model_id = $4
			ORDER BY e.embedding <=> $3::vector
			LIMIT $5
		)
		SELECT
			c.id::text AS cue_id,
			$1::text AS video_id,
			hits.chunk_id::text AS chunk_id,
			hits.start_ms,
			hits.end_ms,
			hits.score,
			substring(hits.snippet FROM 1 FOR 240) AS snippet,
			'semantic' AS source,
			'transcript' AS source_type
		FROM hits
		JOIN t ON TRUE
		JOIN transcript_cues c ON c.transcript_id = t.id AND c.idx = hits.cue_start_idx
		ORDER BY hits.score DESC
	`

	err := s.db.SelectContext(ctx, &hits, q, videoID, language, toPgVector(embedding), modelID, limit)
	if err != nil {
		return nil, err
	}

	return hits, nil
}

// VectorSearchFrames ranks visual frame-description chunks within one video
// by cosine similarity.
func (s *SearchIndex) VectorSearchFrames(ctx context.Context, videoID string, embedding []float32, modelID string, limit int) ([]models.SearchHit, error) {
	limit = clampLimit(limit, 20, 50)

	hits := []models.SearchHit{}
	q := `
		SELECT
			fc.id::text AS cue_id,
			fc.id::text AS chunk_id,
			fc.video_id::text AS video_id,
			fc.start_ms,
			fc.end_ms,
			(1 - (e.embedding <=> $1::vector)) AS score,
			substring(fc.text FROM 1 FOR 240) AS snippet,
			'semantic' AS source,
			'visual' AS source_type
		FROM frame_chunks fc
		JOIN embeddings e ON e.frame_chunk_id = fc.id
		WHERE fc.video_id = $2
		  AND e.model_id = $3
		  AND e.source_type = 'visual'
		ORDER BY e.embedding <=> $1::vector
		LIMIT $4
	`

	err := s.db.SelectContext(ctx, &hits, q, toPgVector(embedding), videoID, modelID, limit)
	if err != nil {
		return nil, err
	}

	return hits, nil
}
