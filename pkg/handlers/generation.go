package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-answer/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-answer/pkg/config"
	"github.com/ekaya-inc/ekaya-answer/pkg/generation"
	"github.com/ekaya-inc/ekaya-answer/pkg/llm"
	"github.com/ekaya-inc/ekaya-answer/pkg/logging"
	"github.com/ekaya-inc/ekaya-answer/pkg/prompts"
	"github.com/ekaya-inc/ekaya-answer/pkg/state"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// ModelsResponse for GET /api/models
type ModelsResponse struct {
	Models          []llm.ModelDescriptor `json:"models"`
	ConfiguredModel string                `json:"configured_model,omitempty"`
}

// ChatRequest for POST /api/chat
type ChatRequest struct {
	Messages []llm.Message `json:"messages"`
}

// AnswerRequest for POST /api/answer
type AnswerRequest struct {
	Query         string                 `json:"query"`
	SearchResults []prompts.SearchResult `json:"search_results"`
}

// AnswerResponse for POST /api/answer
type AnswerResponse struct {
	Response string `json:"response"`
}

// InterruptResponse for the interrupt endpoints.
type InterruptResponse struct {
	Interrupted bool `json:"interrupted"`
}

// ChatEvent is the payload of "update" and "done" stream events.
type ChatEvent struct {
	Text string `json:"text"`
}

// ChatErrorEvent is the payload of the "error" stream event.
type ChatErrorEvent struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Stream event names.
const (
	EventUpdate = "update"
	EventDone   = "done"
	EventError  = "error"
)

// GenerationService is the generation API the handler serves.
type GenerationService interface {
	GenerateAnswer(ctx context.Context, query string, results []prompts.SearchResult) (string, error)
	GenerateChat(ctx context.Context, messages []llm.Message, onUpdate func(string)) (string, error)
	Interrupt() bool
	Store() *state.Store
	Registry() *generation.Registry
}

var _ GenerationService = (*generation.Service)(nil)

// ============================================================================
// Handler
// ============================================================================

// GenerationHandler serves model listing, chat, and search-answer generation.
type GenerationHandler struct {
	service GenerationService
	lister  llm.ModelLister
	cfg     *config.Config
	logger  *zap.Logger
}

// NewGenerationHandler creates a generation handler.
func NewGenerationHandler(service GenerationService, lister llm.ModelLister, cfg *config.Config, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{
		service: service,
		lister:  lister,
		cfg:     cfg,
		logger:  logger,
	}
}

// RegisterRoutes registers the generation routes on the given mux.
func (h *GenerationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/models", h.ListModels)
	mux.HandleFunc("POST /api/chat", h.Chat)
	mux.HandleFunc("POST /api/answer", h.Answer)
	mux.HandleFunc("GET /api/state", h.State)
	mux.HandleFunc("POST /api/interrupt", h.Interrupt)
	mux.HandleFunc("POST /api/generations/{id}/interrupt", h.InterruptGeneration)
}

// ListModels handles GET /api/models
func (h *GenerationHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.lister.ListModels(r.Context(), h.cfg.OpenAI.BaseURL, h.cfg.OpenAI.APIKey)
	if err != nil {
		h.logger.Error("Failed to list models", zap.String("error", logging.SanitizeError(err)))
		if err := ErrorResponse(w, http.StatusBadGateway, "listing_failed", logging.SanitizeError(err)); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if models == nil {
		models = []llm.ModelDescriptor{}
	}

	data := ModelsResponse{
		Models:          models,
		ConfiguredModel: h.cfg.OpenAI.Model,
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Chat handles POST /api/chat
// The response is a Server-Sent Events stream: one "update" per delta with
// the formatted text so far, then "done" or "error".
func (h *GenerationHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := DecodeJSON(r, &req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if msg := validateMessages(req.Messages); msg != "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_messages", msg); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	stream, ok := newEventStream(w)
	if !ok {
		h.logger.Error("SSE not supported")
		if err := ErrorResponse(w, http.StatusInternalServerError, "sse_unsupported", "SSE not supported"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var last string
	text, err := h.service.GenerateChat(r.Context(), req.Messages, func(formatted string) {
		if formatted == last {
			return
		}
		last = formatted
		if err := stream.Send(EventUpdate, ChatEvent{Text: formatted}); err != nil {
			h.logger.Debug("Failed to write chat update", zap.Error(err))
		}
	})
	if err != nil {
		_, code := generationErrorStatus(err)
		h.logGenerationError("Chat generation failed", err)
		if err := stream.Send(EventError, ChatErrorEvent{Error: code, Message: logging.SanitizeError(err)}); err != nil {
			h.logger.Debug("Failed to write chat error", zap.Error(err))
		}
		return
	}

	if err := stream.Send(EventDone, ChatEvent{Text: text}); err != nil {
		h.logger.Debug("Failed to write chat completion", zap.Error(err))
	}
}

// Answer handles POST /api/answer
func (h *GenerationHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := DecodeJSON(r, &req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_query", "Query is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response, err := h.service.GenerateAnswer(r.Context(), req.Query, req.SearchResults)
	if err != nil {
		status, code := generationErrorStatus(err)
		h.logGenerationError("Answer generation failed", err)
		if err := ErrorResponse(w, status, code, logging.SanitizeError(err)); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	data := AnswerResponse{Response: response}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// State handles GET /api/state
func (h *GenerationHandler) State(w http.ResponseWriter, r *http.Request) {
	data := h.service.Store().Snapshot()
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Interrupt handles POST /api/interrupt
func (h *GenerationHandler) Interrupt(w http.ResponseWriter, r *http.Request) {
	interrupted := h.service.Interrupt()
	h.logger.Info("Interrupt requested", zap.Bool("interrupted", interrupted))

	data := InterruptResponse{Interrupted: interrupted}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// InterruptGeneration handles POST /api/generations/{id}/interrupt
// The id is the X-Request-Id of the request that started the generation.
func (h *GenerationHandler) InterruptGeneration(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_id", "Invalid generation ID"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if !h.service.Registry().Interrupt(id) {
		if err := ErrorResponse(w, http.StatusNotFound, "not_found", "No running generation with that ID"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	h.logger.Info("Generation interrupted", zap.String("invocation_id", id.String()))

	data := InterruptResponse{Interrupted: true}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *GenerationHandler) logGenerationError(msg string, err error) {
	fields := []zap.Field{zap.String("error", logging.SanitizeError(err))}
	switch {
	case errors.Is(err, generation.ErrInterrupted), errors.Is(err, generation.ErrGenerationInProgress):
		h.logger.Warn(msg, fields...)
	default:
		h.logger.Error(msg, fields...)
	}
}

// generationErrorStatus maps a generation error to an HTTP status and error code.
func generationErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, generation.ErrGenerationInProgress):
		return http.StatusConflict, "generation_in_progress"
	case errors.Is(err, generation.ErrInterrupted):
		return http.StatusConflict, "interrupted"
	case errors.Is(err, generation.ErrRetriesExhausted):
		return http.StatusBadGateway, "retries_exhausted"
	case errors.Is(err, generation.ErrNoModelAvailable):
		return http.StatusBadGateway, "no_model_available"
	case errors.Is(err, apperrors.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusBadGateway, "generation_failed"
	}
}

func validateMessages(messages []llm.Message) string {
	if len(messages) == 0 {
		return "At least one message is required"
	}
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return "Unsupported message role: " + m.Role
		}
	}
	return ""
}
