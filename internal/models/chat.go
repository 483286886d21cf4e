package models

import (
	"encoding/json"
	"time"
)

// ChatMessage is one conversation message supplied by the caller.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /videos/:id/chat and /chat/stream.
// The last message must have role "user".
type ChatRequest struct {
	Provider  string        `json:"provider"`
	ModelID   string        `json:"model_id,omitempty"`
	Language  string        `json:"language,omitempty"`
	AtMs      *int64        `json:"at_ms"`
	WindowMs  int64         `json:"window_ms"`
	SemanticK int           `json:"semantic_k"`
	KeywordK  int           `json:"keyword_k"`
	Messages  []ChatMessage `json:"messages"`
}

// Source types offered to the generator.
const (
	SourceTypeCue   = "cue"
	SourceTypeChunk = "chunk"
	SourceTypeFrame = "frame_chunk"
)

// ChatSource is one citable source offered in the prompt. Ref is the ordinal
// tag ("S1".."Sn") the model is instructed to cite.
type ChatSource struct {
	Ref     string   `json:"ref"`
	Type    string   `json:"type"`
	ID      string   `json:"id"`
	StartMs int64    `json:"start_ms"`
	EndMs   int64    `json:"end_ms"`
	Score   *float64 `json:"score,omitempty"`
	Snippet string   `json:"snippet"`
}

// TimeWindow is the local-context span pulled around the playhead.
type TimeWindow struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

// RetrievalMeta records what retrieval contributed to a chat turn.
type RetrievalMeta struct {
	TranscriptID   string     `json:"transcript_id"`
	Window         TimeWindow `json:"window"`
	WindowCues     int        `json:"window_cues"`
	SemanticHits   int        `json:"semantic_hits"`
	KeywordHits    int        `json:"keyword_hits"`
	EmbeddingError *string    `json:"embedding_error"`
}

// RagContext is the assembled, bounded context for one chat turn.
type RagContext struct {
	TranscriptID string        `json:"transcript_id"`
	SystemPrompt string        `json:"system_prompt"`
	Sources      []ChatSource  `json:"sources"`
	Retrieval    RetrievalMeta `json:"retrieval"`
}

// ChatResponse is the final structured response for a chat turn.
type ChatResponse struct {
	TraceID   string        `json:"trace_id"`
	Answer    string        `json:"answer"`
	Sources   []ChatSource  `json:"sources"`
	CitedRefs []string      `json:"cited_refs"`
	Retrieval RetrievalMeta `json:"retrieval"`
}

// Chat turn lifecycle states. A turn is created running and transitions
// exactly once to a terminal state.
const (
	TurnStatusRunning   = "running"
	TurnStatusCompleted = "completed"
	TurnStatusFailed    = "failed"
	TurnStatusCanceled  = "canceled"
)

// ChatTurn is the audit record for one question/answer exchange.
type ChatTurn struct {
	ID            string          `json:"id" db:"id"`
	VideoID       string          `json:"video_id" db:"video_id"`
	TranscriptID  string          `json:"transcript_id" db:"transcript_id"`
	TraceID       string          `json:"trace_id" db:"trace_id"`
	Status        string          `json:"status" db:"status"`
	Provider      string          `json:"provider" db:"provider"`
	ModelID       string          `json:"model_id" db:"model_id"`
	AtMs          *int64          `json:"at_ms" db:"at_ms"`
	Error         *string         `json:"error" db:"error"`
	RequestJSON   json.RawMessage `json:"request_json,omitempty" db:"request_json"`
	RetrievalJSON json.RawMessage `json:"retrieval_json,omitempty" db:"retrieval_json"`
	ResponseText  *string         `json:"response_text,omitempty" db:"response_text"`
	ResponseJSON  json.RawMessage `json:"response_json,omitempty" db:"response_json"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	FinishedAt    *time.Time      `json:"finished_at" db:"finished_at"`
	DurationMs    *int64          `json:"duration_ms" db:"duration_ms"`
}

// Stream event types, in causal order: one meta first, zero or more text and
// heartbeat frames, then exactly one done or error.
const (
	StreamEventMeta      = "meta"
	StreamEventText      = "text"
	StreamEventHeartbeat = "heartbeat"
	StreamEventDone      = "done"
	StreamEventError     = "error"
)

// StreamError is the payload of a terminal error frame.
type StreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StreamEvent is one tagged frame on the chat stream. Exactly the fields for
// the given Type are populated.
type StreamEvent struct {
	Type     string        `json:"type"`
	TraceID  string        `json:"trace_id,omitempty"`
	Delta    string        `json:"delta,omitempty"`
	TS       string        `json:"ts,omitempty"`
	Response *ChatResponse `json:"response,omitempty"`
	Error    *StreamError  `json:"error,omitempty"`
}
