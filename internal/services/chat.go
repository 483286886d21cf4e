package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vidscope/vidscope-backend/internal/metrics"
	"github.com/vidscope/vidscope-backend/internal/models"
	"github.com/vidscope/vidscope-backend/internal/providers"
	"github.com/vidscope/vidscope-backend/internal/rag"
	"github.com/vidscope/vidscope-backend/internal/repository"
)

const (
	defaultWindowMs   = 180_000
	defaultSemanticK  = 6
	defaultKeywordK   = 6
	maxRetrievalK     = 20
	maxHistoryLen     = 20
	deltaChunkSize    = 400
	defaultGenTimeout = 180 * time.Second
	defaultHeartbeat  = 750 * time.Millisecond
)

// ContextBuilder assembles the grounded context for one turn.
type ContextBuilder interface {
	Build(ctx context.Context, in rag.BuildInput) (*models.RagContext, error)
}

// ChatService drives one grounded chat turn: context assembly, provider
// dispatch, delta streaming, citation extraction, and the audit record.
type ChatService struct {
	builder   ContextBuilder
	registry  *providers.Registry
	turns     repository.TurnWriter
	observer  metrics.Observer
	logger    *logrus.Logger
	heartbeat time.Duration
	timeout   time.Duration
}

// NewChatService creates a chat service. heartbeat is the idle keep-alive
// cadence; timeout bounds one generation call end to end.
func NewChatService(builder ContextBuilder, registry *providers.Registry, turns repository.TurnWriter, observer metrics.Observer, logger *logrus.Logger, heartbeat, timeout time.Duration) *ChatService {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	if timeout <= 0 {
		timeout = defaultGenTimeout
	}
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &ChatService{
		builder:   builder,
		registry:  registry,
		turns:     turns,
		observer:  observer,
		logger:    logger,
		heartbeat: heartbeat,
		timeout:   timeout,
	}
}

func (s *ChatService) validate(req *models.ChatRequest) error {
	if len(req.Messages) == 0 {
		return models.NewInvalidRequest("messages must include at least one user message")
	}
	if req.Messages[len(req.Messages)-1].Role != "user" {
		return models.NewInvalidRequest("last message must have role \"user\"")
	}
	if req.Provider == "" {
		return models.NewInvalidRequest("provider is required")
	}
	if req.SemanticK < 0 || req.SemanticK > maxRetrievalK {
		return models.NewInvalidRequest("semantic_k must be between 0 and %d", maxRetrievalK)
	}
	if req.KeywordK < 0 || req.KeywordK > maxRetrievalK {
		return models.NewInvalidRequest("keyword_k must be between 0 and %d", maxRetrievalK)
	}
	if req.Language == "" {
		req.Language = "en"
	}
	if req.WindowMs <= 0 {
		req.WindowMs = defaultWindowMs
	}
	return nil
}

// StreamTurn runs one chat turn and returns its event stream. Validation and
// context-assembly failures are returned synchronously, before any turn
// record exists; once the channel is handed out every outcome travels as a
// stream event and the turn record is finished best-effort.
//
// Event order is causal: one meta frame first, then text and heartbeat
// frames, then exactly one done or error frame. A canceled caller gets no
// terminal frame; the turn is recorded as canceled.
func (s *ChatService) StreamTurn(ctx context.Context, videoID string, req models.ChatRequest) (<-chan models.StreamEvent, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	provider := s.registry.Get(req.Provider)
	if provider == nil {
		return nil, models.NewInvalidRequest("unknown provider: %s", req.Provider)
	}

	// The zero-k case is valid: the prompt then carries window cues only.
	semanticK := req.SemanticK
	keywordK := req.KeywordK
	if semanticK == 0 && keywordK == 0 {
		semanticK = defaultSemanticK
		keywordK = defaultKeywordK
	}

	lastUser := req.Messages[len(req.Messages)-1]
	ragCtx, err := s.builder.Build(ctx, rag.BuildInput{
		VideoID:   videoID,
		AtMs:      req.AtMs,
		Language:  req.Language,
		Query:     lastUser.Content,
		WindowMs:  req.WindowMs,
		SemanticK: semanticK,
		KeywordK:  keywordK,
	})
	if err != nil {
		return nil, err
	}

	traceID := uuid.NewString()
	modelID := req.ModelID
	if modelID == "" {
		modelID = "default"
	}

	turnID, err := s.turns.Create(ctx, repository.CreateTurnInput{
		VideoID:       videoID,
		TranscriptID:  ragCtx.TranscriptID,
		TraceID:       traceID,
		Provider:      req.Provider,
		ModelID:       modelID,
		AtMs:          req.AtMs,
		RequestJSON:   mustJSON(req),
		RetrievalJSON: mustJSON(ragCtx.Retrieval),
	})
	if err != nil {
		return nil, err
	}

	events := make(chan models.StreamEvent)
	go s.runTurn(ctx, events, provider, req, ragCtx, turnID, traceID)
	return events, nil
}

// Chat runs one turn to completion and returns the assembled response. It is
// the non-streaming surface over the same dispatcher.
func (s *ChatService) Chat(ctx context.Context, videoID string, req models.ChatRequest) (*models.ChatResponse, error) {
	events, err := s.StreamTurn(ctx, videoID, req)
	if err != nil {
		return nil, err
	}

	var response *models.ChatResponse
	var streamErr *models.StreamError
	for ev := range events {
		switch ev.Type {
		case models.StreamEventDone:
			response = ev.Response
		case models.StreamEventError:
			streamErr = ev.Error
		}
	}
	if streamErr != nil {
		if streamErr.Code == "generation_timeout" {
			return nil, models.ErrGenerationTimeout
		}
		return nil, &models.GenerationFailedError{Provider: req.Provider, Err: errors.New(streamErr.Message)}
	}
	if response == nil {
		// Caller canceled before a terminal frame.
		return nil, ctx.Err()
	}
	return response, nil
}

// runTurn owns the event channel. It closes the channel after the terminal
// frame, or silently on caller cancellation.
func (s *ChatService) runTurn(ctx context.Context, events chan<- models.StreamEvent, provider providers.Provider, req models.ChatRequest, ragCtx *models.RagContext, turnID, traceID string) {
	defer close(events)
	startedAt := time.Now()

	if !s.emit(ctx, events, models.StreamEvent{Type: models.StreamEventMeta, TraceID: traceID}) {
		s.finishTurn(turnID, models.TurnStatusCanceled, nil, nil, ptr("caller disconnected"), startedAt)
		s.observer.ChatCompleted(req.Provider, models.TurnStatusCanceled, time.Since(startedAt))
		return
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	answer, err := s.generate(genCtx, ctx, events, provider, req, ragCtx)
	durationMs := time.Since(startedAt)

	if err != nil {
		switch {
		case ctx.Err() != nil:
			// Caller went away: record and stop without a terminal frame.
			s.finishTurn(turnID, models.TurnStatusCanceled, nil, nil, ptr(ctx.Err().Error()), startedAt)
			s.observer.ChatCompleted(req.Provider, models.TurnStatusCanceled, durationMs)
			s.log(traceID).Info("chat turn canceled by caller")

		case errors.Is(err, models.ErrGenerationTimeout):
			s.finishTurn(turnID, models.TurnStatusFailed, nil, nil, ptr(err.Error()), startedAt)
			s.observer.ChatCompleted(req.Provider, models.TurnStatusFailed, durationMs)
			s.log(traceID).Warn("chat turn timed out")
			s.emit(ctx, events, errorEvent(traceID, "generation_timeout", err.Error()))

		default:
			s.finishTurn(turnID, models.TurnStatusFailed, nil, nil, ptr(err.Error()), startedAt)
			s.observer.ChatCompleted(req.Provider, models.TurnStatusFailed, durationMs)
			s.log(traceID).WithError(err).Warn("chat turn failed")
			s.emit(ctx, events, errorEvent(traceID, "chat_failed", err.Error()))
		}
		return
	}

	citedRefs := rag.FilterKnownRefs(rag.ExtractCitedRefs(answer), ragCtx.Sources)
	response := &models.ChatResponse{
		TraceID:   traceID,
		Answer:    answer,
		Sources:   ragCtx.Sources,
		CitedRefs: citedRefs,
		Retrieval: ragCtx.Retrieval,
	}

	s.finishTurn(turnID, models.TurnStatusCompleted, &answer, response, nil, startedAt)
	s.observer.ChatCompleted(req.Provider, models.TurnStatusCompleted, durationMs)
	s.emit(ctx, events, models.StreamEvent{Type: models.StreamEventDone, TraceID: traceID, Response: response})
}

// generate calls the provider and forwards deltas as text events, emitting
// heartbeats while idle. Providers without native streaming still produce
// text events: the final answer is re-sliced into fixed-size deltas so every
// provider honors the same client contract.
func (s *ChatService) generate(genCtx, callerCtx context.Context, events chan<- models.StreamEvent, provider providers.Provider, req models.ChatRequest, ragCtx *models.RagContext) (string, error) {
	messages := promptMessages(ragCtx.SystemPrompt, req.Messages)
	completionReq := providers.CompletionRequest{
		Messages: messages,
		Model:    req.ModelID,
	}

	if provider.Capabilities().Streaming {
		return s.generateStreaming(genCtx, callerCtx, events, provider, completionReq)
	}
	return s.generateChunked(genCtx, callerCtx, events, provider, completionReq)
}

func (s *ChatService) generateStreaming(genCtx, callerCtx context.Context, events chan<- models.StreamEvent, provider providers.Provider, req providers.CompletionRequest) (string, error) {
	req.Stream = true
	chunks, err := provider.StreamComplete(genCtx, req)
	if err != nil {
		return "", err
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	var answer string
	for {
		select {
		case <-genCtx.Done():
			return answer, s.deadlineError(genCtx, callerCtx)

		case <-ticker.C:
			if !s.emit(callerCtx, events, heartbeatEvent()) {
				return answer, callerCtx.Err()
			}

		case chunk, ok := <-chunks:
			if !ok {
				return answer, nil
			}
			if chunk.Error != "" {
				return answer, errors.New(chunk.Error)
			}
			if chunk.Delta != "" {
				answer += chunk.Delta
				if !s.emit(callerCtx, events, models.StreamEvent{Type: models.StreamEventText, Delta: chunk.Delta}) {
					return answer, callerCtx.Err()
				}
			}
			if chunk.FinishReason != "" {
				return answer, nil
			}
		}
	}
}

func (s *ChatService) generateChunked(genCtx, callerCtx context.Context, events chan<- models.StreamEvent, provider providers.Provider, req providers.CompletionRequest) (string, error) {
	type result struct {
		resp *providers.CompletionResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := provider.Complete(genCtx, req)
		done <- result{resp, err}
	}()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-genCtx.Done():
			return "", s.deadlineError(genCtx, callerCtx)

		case <-ticker.C:
			if !s.emit(callerCtx, events, heartbeatEvent()) {
				return "", callerCtx.Err()
			}

		case r := <-done:
			if r.err != nil {
				return "", r.err
			}
			answer := r.resp.Content
			for _, delta := range sliceDeltas(answer, deltaChunkSize) {
				if !s.emit(callerCtx, events, models.StreamEvent{Type: models.StreamEventText, Delta: delta}) {
					return answer, callerCtx.Err()
				}
			}
			return answer, nil
		}
	}
}

// deadlineError maps a done generation context to the right failure: caller
// cancellation wins over the generation deadline.
func (s *ChatService) deadlineError(genCtx, callerCtx context.Context) error {
	if callerCtx.Err() != nil {
		return callerCtx.Err()
	}
	if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
		return models.ErrGenerationTimeout
	}
	return genCtx.Err()
}

// emit sends one event unless the caller has gone away.
func (s *ChatService) emit(ctx context.Context, events chan<- models.StreamEvent, ev models.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// finishTurn writes the terminal record. The write is best-effort: a failed
// audit write never masks the turn's outcome. It uses a fresh context so a
// canceled caller still gets a terminal record.
func (s *ChatService) finishTurn(turnID, status string, responseText *string, response *models.ChatResponse, errMsg *string, startedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in := repository.FinishTurnInput{
		ID:           turnID,
		Status:       status,
		ResponseText: responseText,
		Error:        errMsg,
		DurationMs:   time.Since(startedAt).Milliseconds(),
	}
	if response != nil {
		in.ResponseJSON = mustJSON(response)
	}
	if err := s.turns.Finish(ctx, in); err != nil && s.logger != nil {
		s.logger.WithError(err).WithField("turn_id", turnID).Warn("failed to finish chat turn record")
	}
}

func (s *ChatService) log(traceID string) *logrus.Entry {
	if s.logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		return logrus.NewEntry(l)
	}
	return s.logger.WithField("trace_id", traceID)
}

// promptMessages prepends the rendered system prompt and forwards the most
// recent caller messages, dropping any caller-supplied system frames.
func promptMessages(systemPrompt string, history []models.ChatMessage) []providers.Message {
	filtered := make([]providers.Message, 0, len(history)+1)
	filtered = append(filtered, providers.Message{Role: "system", Content: systemPrompt})

	count := 0
	for _, m := range history {
		if m.Role != "system" {
			count++
		}
	}
	skip := count - maxHistoryLen
	for _, m := range history {
		if m.Role == "system" {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		filtered = append(filtered, providers.Message{Role: m.Role, Content: m.Content})
	}
	return filtered
}

// sliceDeltas splits text into fixed-size rune slices.
func sliceDeltas(text string, size int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	deltas := make([]string, 0, len(runes)/size+1)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		deltas = append(deltas, string(runes[i:end]))
	}
	return deltas
}

func heartbeatEvent() models.StreamEvent {
	return models.StreamEvent{Type: models.StreamEventHeartbeat, TS: time.Now().UTC().Format(time.RFC3339Nano)}
}

func errorEvent(traceID, code, message string) models.StreamEvent {
	return models.StreamEvent{
		Type:    models.StreamEventError,
		TraceID: traceID,
		Error:   &models.StreamError{Code: code, Message: message},
	}
}

func ptr(s string) *string { return &s }
