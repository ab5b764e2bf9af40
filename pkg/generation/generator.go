// Package generation drives streamed text generation against an
// OpenAI-compatible endpoint: model discovery, fallback retry across
// candidate models, interruption, and incremental updates.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-answer/pkg/config"
	"github.com/ekaya-inc/ekaya-answer/pkg/llm"
	"github.com/ekaya-inc/ekaya-answer/pkg/logging"
	"github.com/ekaya-inc/ekaya-answer/pkg/metrics"
	"github.com/ekaya-inc/ekaya-answer/pkg/retry"
)

// DefaultMaxRetries bounds the attempts of one generation.
const DefaultMaxRetries = 5

// DefaultBackoffStep is multiplied by the attempt number between fallbacks.
const DefaultBackoffStep = 100 * time.Millisecond

// UpdateFunc receives the accumulated text and reasoning after every delta.
type UpdateFunc func(text, reasoning string)

// LogSink receives human-readable progress messages.
type LogSink interface {
	AddLogEntry(message string)
}

// Settings configures a Generator.
type Settings struct {
	BaseURL string
	APIKey  string

	// Model pins the model. When empty a model is discovered via the lister
	// and failed models are replaced by untried discovered ones.
	Model string

	MaxRetries     int
	BackoffStep    time.Duration
	ListingRetries int

	Sampling llm.SamplingParams
}

// SettingsFromConfig maps service configuration onto generator settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		BaseURL:        cfg.OpenAI.BaseURL,
		APIKey:         cfg.OpenAI.APIKey,
		Model:          cfg.OpenAI.Model,
		MaxRetries:     cfg.Generation.MaxRetries,
		BackoffStep:    cfg.Generation.BackoffStep,
		ListingRetries: cfg.Generation.ListingRetries,
		Sampling: llm.SamplingParams{
			MaxTokens:        cfg.Sampling.MaxTokens,
			Temperature:      float64(cfg.Sampling.Temperature),
			TopP:             float64(cfg.Sampling.TopP),
			FrequencyPenalty: float64(cfg.Sampling.FrequencyPenalty),
			PresencePenalty:  float64(cfg.Sampling.PresencePenalty),
		},
	}
}

// Result is a successful generation.
type Result struct {
	Text             string
	ReasoningContent string
	Model            string
	Attempts         int
}

// Generator runs generations with fallback across models.
type Generator struct {
	provider llm.StreamingProvider
	lister   llm.ModelLister
	settings Settings

	breaker  *llm.CircuitBreaker
	registry *Registry
	sleeper  Sleeper
	rnd      llm.RandomSource
	sink     LogSink
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithSleeper replaces the timer used between fallback attempts.
func WithSleeper(s Sleeper) Option {
	return func(g *Generator) {
		if s != nil {
			g.sleeper = s
		}
	}
}

// WithRandomSource sets the randomness used for model selection.
func WithRandomSource(rnd llm.RandomSource) Option {
	return func(g *Generator) {
		g.rnd = rnd
	}
}

// WithLogSink mirrors progress messages to sink.
func WithLogSink(sink LogSink) Option {
	return func(g *Generator) {
		g.sink = sink
	}
}

// WithMetrics records attempts and outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(g *Generator) {
		g.metrics = c
	}
}

// WithCircuitBreaker guards model listing with cb.
func WithCircuitBreaker(cb *llm.CircuitBreaker) Option {
	return func(g *Generator) {
		if cb != nil {
			g.breaker = cb
		}
	}
}

// WithRegistry shares a registry between generators.
func WithRegistry(r *Registry) Option {
	return func(g *Generator) {
		if r != nil {
			g.registry = r
		}
	}
}

// NewGenerator creates a generator. lister may be nil when settings.Model is set.
func NewGenerator(provider llm.StreamingProvider, lister llm.ModelLister, settings Settings, logger *zap.Logger, opts ...Option) *Generator {
	if settings.MaxRetries < 1 {
		settings.MaxRetries = DefaultMaxRetries
	}
	if settings.BackoffStep <= 0 {
		settings.BackoffStep = DefaultBackoffStep
	}

	g := &Generator{
		provider: provider,
		lister:   lister,
		settings: settings,
		breaker:  llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig()),
		registry: NewRegistry(),
		sleeper:  TimerSleeper{},
		logger:   logger.Named("generation"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Registry returns the registry of running invocations.
func (g *Generator) Registry() *Registry {
	return g.registry
}

// Generate streams a completion for messages, falling back to other
// discovered models when an attempt fails. onUpdate may be nil.
//
// The invocation id is taken from ctx (llm.WithInvocationID) or generated.
// Cancelling ctx, or interrupting the id through the registry, stops the
// generation with ErrInterrupted and no further attempt is made.
func (g *Generator) Generate(ctx context.Context, messages []llm.Message, onUpdate UpdateFunc) (*Result, error) {
	id, ok := llm.InvocationID(ctx)
	if !ok {
		id = uuid.New()
		ctx = llm.WithInvocationID(ctx, id)
	}

	runCtx, release, err := g.registry.Register(ctx, id)
	if errors.Is(err, ErrDuplicateInvocation) {
		rekeyed := uuid.New()
		g.logger.Warn("Invocation ID already running, assigning a new one",
			zap.String("requested_id", id.String()),
			zap.String("invocation_id", rekeyed.String()))
		id = rekeyed
		runCtx, release, err = g.registry.Register(llm.WithInvocationID(ctx, id), id)
	}
	if err != nil {
		return nil, err
	}
	defer release()
	ctx = runCtx

	logger := g.logger.With(zap.String("invocation_id", id.String()))
	start := time.Now()

	result, err := g.run(ctx, logger, messages, onUpdate)

	g.metrics.RecordGeneration(outcomeOf(err), time.Since(start))
	switch {
	case err == nil:
		logger.Info("Generation completed",
			zap.String("model", result.Model),
			zap.Int("attempts", result.Attempts),
			zap.Duration("duration", time.Since(start)))
	case errors.Is(err, ErrInterrupted):
		logger.Info("Generation interrupted", zap.Duration("duration", time.Since(start)))
	default:
		logger.Error("Generation failed",
			zap.String("error", logging.SanitizeError(err)),
			zap.Duration("duration", time.Since(start)))
	}
	return result, err
}

func (g *Generator) run(ctx context.Context, logger *zap.Logger, messages []llm.Message, onUpdate UpdateFunc) (*Result, error) {
	model, available, err := g.resolveModel(ctx, logger)
	if err != nil {
		return nil, err
	}

	maxRetries := g.settings.MaxRetries
	attempted := make(map[string]struct{}, maxRetries)
	var lastErr error

	for attempt := 0; ; {
		if attempt >= maxRetries {
			return nil, &RetriesExhaustedError{Attempts: attempt, Last: lastErr}
		}
		attempted[model] = struct{}{}
		attempt++

		text, reasoning, err := g.attempt(ctx, model, messages, onUpdate)
		if err == nil {
			g.metrics.RecordAttempt(model, metrics.OutcomeSuccess)
			if onUpdate != nil {
				onUpdate(text, reasoning)
			}
			return &Result{
				Text:             text,
				ReasoningContent: reasoning,
				Model:            model,
				Attempts:         attempt,
			}, nil
		}

		if errors.Is(err, ErrInterrupted) {
			g.metrics.RecordAttempt(model, metrics.OutcomeInterrupted)
			return nil, err
		}

		g.metrics.RecordAttempt(model, metrics.OutcomeFailure)
		lastErr = &TransientError{Model: model, Attempt: attempt, Err: err}
		logger.Warn("Generation attempt failed",
			zap.String("model", model),
			zap.Int("attempt", attempt),
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.String("error", logging.SanitizeError(err)))

		next, ok := llm.SelectRandomModel(available, attempted, g.rnd)
		if !ok {
			return nil, lastErr
		}
		if attempt >= maxRetries {
			return nil, &RetriesExhaustedError{Attempts: attempt, Last: lastErr}
		}

		g.addLogEntry(fmt.Sprintf("Model %q failed, retrying with %q (Attempt %d/%d)", model, next, attempt, maxRetries))
		g.metrics.RecordFallback()

		if err := g.sleeper.Sleep(ctx, g.settings.BackoffStep*time.Duration(attempt)); err != nil || ctx.Err() != nil {
			return nil, interruptError(ctx)
		}
		model = next
	}
}

// attempt streams one completion on a handle derived from ctx. Interruption
// of ctx takes precedence over any provider error or partial result.
func (g *Generator) attempt(ctx context.Context, model string, messages []llm.Message, onUpdate UpdateFunc) (string, string, error) {
	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var text, reasoning strings.Builder
	res, err := g.provider.Stream(attemptCtx, &llm.StreamRequest{
		Model:    model,
		Messages: messages,
		Sampling: g.settings.Sampling,
	}, func(d llm.Delta) error {
		if ctx.Err() != nil {
			return interruptError(ctx)
		}
		text.WriteString(d.Content)
		reasoning.WriteString(d.ReasoningContent)
		if onUpdate != nil {
			onUpdate(text.String(), reasoning.String())
		}
		return nil
	})

	if ctx.Err() != nil {
		return "", "", interruptError(ctx)
	}
	if err != nil {
		return "", "", err
	}

	if text.Len() == 0 && reasoning.Len() == 0 && res != nil {
		return res.Text, res.ReasoningContent, nil
	}
	return text.String(), reasoning.String(), nil
}

// resolveModel returns the first model to try and the discovered candidates
// for fallback. A pinned model skips discovery and has no fallbacks.
func (g *Generator) resolveModel(ctx context.Context, logger *zap.Logger) (string, []llm.ModelDescriptor, error) {
	if g.settings.Model != "" {
		g.addLogEntry(fmt.Sprintf("Using configured model %q", g.settings.Model))
		return g.settings.Model, nil, nil
	}

	available := g.listModels(ctx, logger)
	if ctx.Err() != nil {
		return "", nil, interruptError(ctx)
	}

	model, ok := llm.SelectRandomModel(available, nil, g.rnd)
	if !ok {
		g.addLogEntry("No model available for generation")
		return "", nil, ErrNoModelAvailable
	}

	g.addLogEntry(fmt.Sprintf("Selected model %q from %d available", model, len(available)))
	return model, available, nil
}

// listModels is best effort: failures are logged and yield no models.
func (g *Generator) listModels(ctx context.Context, logger *zap.Logger) []llm.ModelDescriptor {
	if g.lister == nil {
		return nil
	}

	if err := g.breaker.Allow(); err != nil {
		logger.Warn("Skipping model listing", zap.Error(err))
		g.metrics.RecordListingFailure("breaker_open")
		g.addLogEntry("Skipping model listing: " + err.Error())
		return nil
	}

	cfg := &retry.Config{
		MaxRetries:       g.settings.ListingRetries,
		InitialDelay:     g.settings.BackoffStep,
		MaxDelay:         2 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 3,
		Sleep:            g.sleeper.Sleep,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Warn("Retrying model listing",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.String("error", logging.SanitizeError(err)))
			g.addLogEntry(fmt.Sprintf("Listing models failed, retrying (Attempt %d/%d)", attempt, g.settings.ListingRetries+1))
		},
	}
	models, err := retry.Do(ctx, cfg, func(ctx context.Context) ([]llm.ModelDescriptor, error) {
		return g.lister.ListModels(ctx, g.settings.BaseURL, g.settings.APIKey)
	})
	if err != nil {
		if ctx.Err() != nil {
			// An abandoned probe must not leave the breaker half-open.
			if g.breaker.State() == llm.CircuitHalfOpen {
				g.breaker.RecordFailure()
			}
			return nil
		}
		g.breaker.RecordFailure()
		g.metrics.RecordListingFailure(listingFailureReason(err))
		logger.Error("Failed to list models",
			zap.String("base_url", logging.SanitizeURL(g.settings.BaseURL)),
			zap.String("error", logging.SanitizeError(err)),
			zap.String("breaker_state", g.breaker.State().String()))
		g.addLogEntry("Error listing models: " + logging.SanitizeError(err))
		return nil
	}

	g.breaker.RecordSuccess()
	logger.Debug("Listed models", zap.Int("count", len(models)))
	return models
}

func (g *Generator) addLogEntry(message string) {
	if g.sink != nil {
		g.sink.AddLogEntry(message)
	}
}

func listingFailureReason(err error) string {
	var le *llm.ListingError
	if errors.As(err, &le) && le.StatusCode > 0 {
		return "http_status"
	}
	return "transport"
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrInterrupted):
		return metrics.OutcomeInterrupted
	case errors.Is(err, ErrRetriesExhausted):
		return metrics.OutcomeExhausted
	case errors.Is(err, ErrNoModelAvailable):
		return metrics.OutcomeNoModel
	default:
		return metrics.OutcomeFailure
	}
}
