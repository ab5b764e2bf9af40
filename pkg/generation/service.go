package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-answer/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-answer/pkg/llm"
	"github.com/ekaya-inc/ekaya-answer/pkg/logging"
	"github.com/ekaya-inc/ekaya-answer/pkg/prompts"
	"github.com/ekaya-inc/ekaya-answer/pkg/state"
)

// Service runs search-answer and chat generations and formats their output.
// At most one answer generation runs at a time; its progress is published
// to the state store.
type Service struct {
	generator *Generator
	store     *state.Store
	markers   Markers
	logger    *zap.Logger

	mu           sync.Mutex
	cancelAnswer context.CancelCauseFunc
}

// NewService creates a service. Zero markers fall back to DefaultMarkers.
func NewService(generator *Generator, store *state.Store, markers Markers, logger *zap.Logger) *Service {
	if markers == (Markers{}) {
		markers = DefaultMarkers
	}
	return &Service{
		generator: generator,
		store:     store,
		markers:   markers,
		logger:    logger.Named("generation-service"),
	}
}

// Store returns the state store answers are published to.
func (s *Service) Store() *state.Store {
	return s.store
}

// Registry returns the registry of running invocations, answers and chats alike.
func (s *Service) Registry() *Registry {
	return s.generator.Registry()
}

// GenerateAnswer answers query from search results. Every incremental update
// is formatted and stored as the current response. Returns
// ErrGenerationInProgress if another answer is running.
func (s *Service) GenerateAnswer(ctx context.Context, query string, results []prompts.SearchResult) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: query is required", apperrors.ErrInvalidRequest)
	}
	if !s.store.TryBegin() {
		return "", ErrGenerationInProgress
	}

	ctx, cancel := context.WithCancelCause(ctx)
	s.mu.Lock()
	s.cancelAnswer = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancelAnswer = nil
		s.mu.Unlock()
		cancel(nil)
	}()

	s.logger.Info("Generating answer",
		zap.String("query", logging.Preview(query)),
		zap.Int("search_results", len(results)))
	s.store.AddLogEntry(fmt.Sprintf("Generating answer with %d search results", len(results)))

	messages := prompts.BuildAnswerMessages(query, results)

	result, err := s.generator.Generate(ctx, messages, func(text, reasoning string) {
		s.store.Advance(state.StatePreparingToGenerate, state.StateGenerating)
		s.store.UpdateResponse(FormatResponse(text, reasoning, s.markers))
	})

	switch {
	case err == nil:
		formatted := FormatResponse(result.Text, result.ReasoningContent, s.markers)
		s.store.UpdateResponse(formatted)
		s.store.SetState(state.StateCompleted)
		s.store.AddLogEntry(fmt.Sprintf("Answer generated with model %q", result.Model))
		return formatted, nil
	case errors.Is(err, ErrInterrupted):
		s.store.SetState(state.StateInterrupted)
		s.store.AddLogEntry("Answer generation interrupted")
		return "", err
	default:
		s.store.SetState(state.StateFailed)
		s.store.AddLogEntry("Answer generation failed: " + logging.SanitizeError(err))
		return "", err
	}
}

// GenerateChat runs a chat generation over messages. onUpdate receives the
// formatted response after every delta and may be nil. The formatted final
// response is returned.
func (s *Service) GenerateChat(ctx context.Context, messages []llm.Message, onUpdate func(string)) (string, error) {
	s.logger.Debug("Generating chat response", zap.Int("messages", len(messages)))

	result, err := s.generator.Generate(ctx, messages, func(text, reasoning string) {
		if onUpdate != nil {
			onUpdate(FormatResponse(text, reasoning, s.markers))
		}
	})
	if err != nil {
		return "", err
	}
	return FormatResponse(result.Text, result.ReasoningContent, s.markers), nil
}

// Interrupt stops the running answer generation. It reports whether one was running.
func (s *Service) Interrupt() bool {
	s.mu.Lock()
	cancel := s.cancelAnswer
	s.mu.Unlock()

	if cancel == nil {
		return false
	}

	cancel(ErrInterrupted)
	if s.store.State().IsActive() {
		s.store.SetState(state.StateInterrupted)
	}
	s.store.AddLogEntry("Interrupt requested")
	return true
}
