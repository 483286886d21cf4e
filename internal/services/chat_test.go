package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidscope/vidscope-backend/internal/metrics"
	"github.com/vidscope/vidscope-backend/internal/models"
	"github.com/vidscope/vidscope-backend/internal/providers"
	"github.com/vidscope/vidscope-backend/internal/rag"
	"github.com/vidscope/vidscope-backend/internal/repository"
)

type fakeBuilder struct {
	ragCtx *models.RagContext
	err    error
}

func (f *fakeBuilder) Build(ctx context.Context, in rag.BuildInput) (*models.RagContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ragCtx, nil
}

type fakeTurns struct {
	mu       sync.Mutex
	created  []repository.CreateTurnInput
	finished []repository.FinishTurnInput
}

func (f *fakeTurns) Create(ctx context.Context, in repository.CreateTurnInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	return "turn-1", nil
}

func (f *fakeTurns) Finish(ctx context.Context, in repository.FinishTurnInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, in)
	return nil
}

func (f *fakeTurns) lastFinish(t *testing.T) repository.FinishTurnInput {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if len(f.finished) > 0 {
			in := f.finished[len(f.finished)-1]
			f.mu.Unlock()
			return in
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("turn was never finished")
	return repository.FinishTurnInput{}
}

// fakeProvider streams the configured deltas with an optional pause between
// them, or fails after emitting errAfter deltas.
type fakeProvider struct {
	streaming bool
	deltas    []string
	delay     time.Duration
	errAfter  int // -1 disables
	block     bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Capabilities() providers.Capabilities {
	return providers.Capabilities{Chat: true, Streaming: f.streaming}
}

func (f *fakeProvider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &providers.CompletionResponse{
		Content:      strings.Join(f.deltas, ""),
		FinishReason: "stop",
	}, nil
}

func (f *fakeProvider) StreamComplete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.StreamChunk, error) {
	chunks := make(chan providers.StreamChunk, 8)
	go func() {
		defer close(chunks)
		if f.block {
			<-ctx.Done()
			chunks <- providers.StreamChunk{Error: ctx.Err().Error()}
			return
		}
		for i, d := range f.deltas {
			if f.errAfter >= 0 && i == f.errAfter {
				chunks <- providers.StreamChunk{Error: "provider exploded"}
				return
			}
			if f.delay > 0 {
				select {
				case <-time.After(f.delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case chunks <- providers.StreamChunk{Delta: d}:
			case <-ctx.Done():
				return
			}
		}
		if f.errAfter >= 0 && f.errAfter >= len(f.deltas) {
			chunks <- providers.StreamChunk{Error: "provider exploded"}
			return
		}
		chunks <- providers.StreamChunk{FinishReason: "stop"}
	}()
	return chunks, nil
}

func (f *fakeProvider) GetModels(ctx context.Context) ([]providers.Model, error) {
	return []providers.Model{{ID: "fake-model"}}, nil
}

func (f *fakeProvider) ValidateConfig() error { return nil }

func testRagContext() *models.RagContext {
	return &models.RagContext{
		TranscriptID: "t1",
		SystemPrompt: "SOURCES:\n[S1|cue|00:00:09-00:00:11|start_ms=9000|end_ms=11000] hello",
		Sources: []models.ChatSource{
			{Ref: "S1", Type: "cue", ID: "c1", StartMs: 9000, EndMs: 11000, Snippet: "hello"},
			{Ref: "S2", Type: "chunk", ID: "ch1", StartMs: 20000, EndMs: 40000, Snippet: "context"},
		},
		Retrieval: models.RetrievalMeta{TranscriptID: "t1", WindowCues: 1, KeywordHits: 1},
	}
}

func newTestChatService(provider providers.Provider, turns *fakeTurns, heartbeat, timeout time.Duration) *ChatService {
	registry := providers.NewRegistry()
	registry.Register("fake", provider)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewChatService(&fakeBuilder{ragCtx: testRagContext()}, registry, turns, metrics.Nop{}, logger, heartbeat, timeout)
}

func userReq() models.ChatRequest {
	return models.ChatRequest{
		Provider: "fake",
		Messages: []models.ChatMessage{{Role: "user", Content: "what is said here?"}},
	}
}

func collect(t *testing.T, events <-chan models.StreamEvent) []models.StreamEvent {
	t.Helper()
	var out []models.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out draining event stream")
		}
	}
}

func TestStreamTurn_EventOrdering(t *testing.T) {
	turns := &fakeTurns{}
	svc := newTestChatService(&fakeProvider{streaming: true, deltas: []string{"The answer ", "cites [S1]."}, errAfter: -1}, turns, time.Minute, time.Minute)

	events, err := svc.StreamTurn(context.Background(), "v1", userReq())
	require.NoError(t, err)

	got := collect(t, events)
	require.GreaterOrEqual(t, len(got), 4)
	assert.Equal(t, models.StreamEventMeta, got[0].Type)
	assert.NotEmpty(t, got[0].TraceID)

	var textEvents []models.StreamEvent
	for _, ev := range got[1 : len(got)-1] {
		require.Contains(t, []string{models.StreamEventText, models.StreamEventHeartbeat}, ev.Type)
		if ev.Type == models.StreamEventText {
			textEvents = append(textEvents, ev)
		}
	}
	require.Len(t, textEvents, 2)
	assert.Equal(t, "The answer ", textEvents[0].Delta)
	assert.Equal(t, "cites [S1].", textEvents[1].Delta)

	last := got[len(got)-1]
	require.Equal(t, models.StreamEventDone, last.Type)
	require.NotNil(t, last.Response)
	assert.Equal(t, "The answer cites [S1].", last.Response.Answer)
	assert.Equal(t, []string{"S1"}, last.Response.CitedRefs)
	assert.Len(t, last.Response.Sources, 2)

	fin := turns.lastFinish(t)
	assert.Equal(t, models.TurnStatusCompleted, fin.Status)
	require.NotNil(t, fin.ResponseText)
	assert.Equal(t, "The answer cites [S1].", *fin.ResponseText)
}

func TestStreamTurn_NonStreamingProviderIsChunked(t *testing.T) {
	long := strings.Repeat("a", 950) + " [S2]"
	turns := &fakeTurns{}
	svc := newTestChatService(&fakeProvider{streaming: false, deltas: []string{long}, errAfter: -1}, turns, time.Minute, time.Minute)

	events, err := svc.StreamTurn(context.Background(), "v1", userReq())
	require.NoError(t, err)

	got := collect(t, events)
	var deltas []string
	for _, ev := range got {
		if ev.Type == models.StreamEventText {
			deltas = append(deltas, ev.Delta)
		}
	}
	require.Len(t, deltas, 3)
	assert.Len(t, deltas[0], 400)
	assert.Len(t, deltas[1], 400)
	assert.Equal(t, long, strings.Join(deltas, ""))

	last := got[len(got)-1]
	require.Equal(t, models.StreamEventDone, last.Type)
	assert.Equal(t, []string{"S2"}, last.Response.CitedRefs)
}

func TestStreamTurn_ProviderErrorAfterText(t *testing.T) {
	turns := &fakeTurns{}
	svc := newTestChatService(&fakeProvider{streaming: true, deltas: []string{"partial ", "never sent"}, errAfter: 1}, turns, time.Minute, time.Minute)

	events, err := svc.StreamTurn(context.Background(), "v1", userReq())
	require.NoError(t, err)

	got := collect(t, events)
	last := got[len(got)-1]
	require.Equal(t, models.StreamEventError, last.Type)
	require.NotNil(t, last.Error)
	assert.Equal(t, "chat_failed", last.Error.Code)
	assert.Contains(t, last.Error.Message, "provider exploded")

	sawText := false
	for _, ev := range got {
		if ev.Type == models.StreamEventText {
			sawText = true
		}
	}
	assert.True(t, sawText, "partial text should have been forwarded before the error")

	fin := turns.lastFinish(t)
	assert.Equal(t, models.TurnStatusFailed, fin.Status)
	require.NotNil(t, fin.Error)
}

func TestStreamTurn_CancellationRecordsCanceledTurn(t *testing.T) {
	turns := &fakeTurns{}
	svc := newTestChatService(&fakeProvider{streaming: true, deltas: []string{"a", "b", "c", "d"}, delay: 50 * time.Millisecond, errAfter: -1}, turns, time.Minute, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := svc.StreamTurn(ctx, "v1", userReq())
	require.NoError(t, err)

	var got []models.StreamEvent
	for ev := range events {
		got = append(got, ev)
		if ev.Type == models.StreamEventText {
			cancel()
		}
	}

	// No terminal frame after cancellation.
	for _, ev := range got {
		assert.NotEqual(t, models.StreamEventDone, ev.Type)
		assert.NotEqual(t, models.StreamEventError, ev.Type)
	}

	fin := turns.lastFinish(t)
	assert.Equal(t, models.TurnStatusCanceled, fin.Status)
	cancel()
}

func TestStreamTurn_GenerationTimeout(t *testing.T) {
	turns := &fakeTurns{}
	svc := newTestChatService(&fakeProvider{streaming: true, block: true}, turns, time.Minute, 30*time.Millisecond)

	events, err := svc.StreamTurn(context.Background(), "v1", userReq())
	require.NoError(t, err)

	got := collect(t, events)
	last := got[len(got)-1]
	require.Equal(t, models.StreamEventError, last.Type)
	assert.Equal(t, "generation_timeout", last.Error.Code)

	fin := turns.lastFinish(t)
	assert.Equal(t, models.TurnStatusFailed, fin.Status)
}

func TestStreamTurn_HeartbeatsWhileIdle(t *testing.T) {
	turns := &fakeTurns{}
	svc := newTestChatService(&fakeProvider{streaming: true, deltas: []string{"slow"}, delay: 80 * time.Millisecond, errAfter: -1}, turns, 20*time.Millisecond, time.Minute)

	events, err := svc.StreamTurn(context.Background(), "v1", userReq())
	require.NoError(t, err)

	got := collect(t, events)
	heartbeats := 0
	for _, ev := range got {
		if ev.Type == models.StreamEventHeartbeat {
			heartbeats++
			assert.NotEmpty(t, ev.TS)
		}
	}
	assert.Greater(t, heartbeats, 0)
}

func TestStreamTurn_ValidationFailuresCreateNoTurn(t *testing.T) {
	turns := &fakeTurns{}
	svc := newTestChatService(&fakeProvider{streaming: true, errAfter: -1}, turns, time.Minute, time.Minute)

	tests := []struct {
		name string
		req  models.ChatRequest
	}{
		{"empty messages", models.ChatRequest{Provider: "fake"}},
		{"last message not user", models.ChatRequest{Provider: "fake", Messages: []models.ChatMessage{
			{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"},
		}}},
		{"missing provider", models.ChatRequest{Messages: []models.ChatMessage{{Role: "user", Content: "hi"}}}},
		{"unknown provider", models.ChatRequest{Provider: "nope", Messages: []models.ChatMessage{{Role: "user", Content: "hi"}}}},
		{"semantic_k out of range", models.ChatRequest{Provider: "fake", SemanticK: 50, Messages: []models.ChatMessage{{Role: "user", Content: "hi"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StreamTurn(context.Background(), "v1", tt.req)
			assert.True(t, models.IsInvalidRequest(err), "want InvalidRequestError, got %v", err)
		})
	}

	_, err := svc.StreamTurn(context.Background(), "v1", models.ChatRequest{Provider: "fake"})
	assert.ErrorContains(t, err, "messages must include at least one user message")

	turns.mu.Lock()
	defer turns.mu.Unlock()
	assert.Empty(t, turns.created)
}

func TestStreamTurn_MissingTranscriptPropagatesNotFound(t *testing.T) {
	registry := providers.NewRegistry()
	registry.Register("fake", &fakeProvider{streaming: true, errAfter: -1})
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	svc := NewChatService(&fakeBuilder{err: models.ErrNotFound}, registry, &fakeTurns{}, metrics.Nop{}, logger, time.Minute, time.Minute)

	_, err := svc.StreamTurn(context.Background(), "v1", userReq())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestChat_AssemblesFinalResponse(t *testing.T) {
	turns := &fakeTurns{}
	svc := newTestChatService(&fakeProvider{streaming: true, deltas: []string{"see [S2] and [S1]"}, errAfter: -1}, turns, time.Minute, time.Minute)

	resp, err := svc.Chat(context.Background(), "v1", userReq())
	require.NoError(t, err)
	assert.Equal(t, "see [S2] and [S1]", resp.Answer)
	assert.Equal(t, []string{"S2", "S1"}, resp.CitedRefs)
	assert.NotEmpty(t, resp.TraceID)
}

func TestChat_ProviderFailureSurfacesGenerationFailed(t *testing.T) {
	turns := &fakeTurns{}
	svc := newTestChatService(&fakeProvider{streaming: true, errAfter: 0}, turns, time.Minute, time.Minute)

	_, err := svc.Chat(context.Background(), "v1", userReq())
	var genErr *models.GenerationFailedError
	require.True(t, errors.As(err, &genErr))
	assert.Contains(t, genErr.Error(), "provider exploded")
}

func TestSliceDeltas(t *testing.T) {
	assert.Nil(t, sliceDeltas("", 400))
	assert.Equal(t, []string{"abc"}, sliceDeltas("abc", 400))

	got := sliceDeltas(strings.Repeat("x", 801), 400)
	require.Len(t, got, 3)
	assert.Len(t, got[2], 1)

	// Multibyte runes are never split.
	multi := strings.Repeat("日", 5)
	got = sliceDeltas(multi, 2)
	require.Len(t, got, 3)
	assert.Equal(t, "日日", got[0])
}
