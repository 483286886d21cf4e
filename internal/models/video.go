package models

import "time"

// Video is a library entry produced by ingestion. Read-only here.
type Video struct {
	ID              string    `json:"id" db:"id"`
	Provider        string    `json:"provider" db:"provider"`
	ProviderVideoID string    `json:"provider_video_id" db:"provider_video_id"`
	URL             string    `json:"url" db:"url"`
	Title           string    `json:"title" db:"title"`
	ChannelName     string    `json:"channel_name" db:"channel_name"`
	ThumbnailURL    string    `json:"thumbnail_url" db:"thumbnail_url"`
	DurationMs      int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Transcript is one fetched transcript for a video. A video may carry several
// (per language, per fetch); retrieval always works against the most recent.
type Transcript struct {
	ID          string    `json:"id" db:"id"`
	VideoID     string    `json:"video_id" db:"video_id"`
	Language    string    `json:"language" db:"language"`
	Source      string    `json:"source" db:"source"`
	IsGenerated bool      `json:"is_generated" db:"is_generated"`
	FetchedAt   time.Time `json:"fetched_at" db:"fetched_at"`
}

// Cue is a single transcript utterance.
type Cue struct {
	ID           string  `json:"id" db:"id"`
	TranscriptID string  `json:"transcript_id" db:"transcript_id"`
	Idx          int     `json:"idx" db:"idx"`
	StartMs      int64   `json:"start_ms" db:"start_ms"`
	EndMs        int64   `json:"end_ms" db:"end_ms"`
	Text         string  `json:"text" db:"text"`
	SpeakerID    *string `json:"speaker_id,omitempty" db:"speaker_id"`
}

// Chunk is a coalesced span of cues, the unit semantic embeddings are
// computed over.
type Chunk struct {
	ID            string `json:"id" db:"id"`
	TranscriptID  string `json:"transcript_id" db:"transcript_id"`
	CueStartIdx   int    `json:"cue_start_idx" db:"cue_start_idx"`
	StartMs       int64  `json:"start_ms" db:"start_ms"`
	EndMs         int64  `json:"end_ms" db:"end_ms"`
	Text          string `json:"text" db:"text"`
	TokenEstimate int    `json:"token_estimate" db:"token_estimate"`
}

// FrameChunk is a coalesced span of visual-frame descriptions.
type FrameChunk struct {
	ID      string `json:"id" db:"id"`
	VideoID string `json:"video_id" db:"video_id"`
	StartMs int64  `json:"start_ms" db:"start_ms"`
	EndMs   int64  `json:"end_ms" db:"end_ms"`
	Text    string `json:"text" db:"text"`
}
