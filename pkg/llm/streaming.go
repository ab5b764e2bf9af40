package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SamplingParams are the per-request sampling knobs sent to the provider.
type SamplingParams struct {
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// StreamRequest is a single streamed chat completion.
type StreamRequest struct {
	Model    string
	Messages []Message
	Sampling SamplingParams
}

// Delta is one incremental piece of output. Either field may be empty.
type Delta struct {
	Content          string
	ReasoningContent string
}

// StreamResult is the accumulated output of a completed stream.
type StreamResult struct {
	Text             string
	ReasoningContent string
	FinishReason     string
	Chunks           int
}

// DeltaFunc receives each delta as it arrives. Returning an error stops the
// stream and Stream returns that error unchanged.
type DeltaFunc func(Delta) error

// StreamingProvider performs streamed chat completions. Implementations must
// stop promptly when ctx is canceled and report provider failures as errors
// distinct from the cancellation itself.
type StreamingProvider interface {
	Stream(ctx context.Context, req *StreamRequest, onDelta DeltaFunc) (*StreamResult, error)
}

// OpenAIStreamer streams chat completions from an OpenAI-compatible endpoint.
type OpenAIStreamer struct {
	client   *openai.Client
	endpoint string
	logger   *zap.Logger
}

// NewOpenAIStreamer creates a streamer for the endpoint. A nil httpClient uses
// http.DefaultTransport with no overall timeout, since streams are long-lived.
func NewOpenAIStreamer(ep Endpoint, httpClient *http.Client, logger *zap.Logger) (*OpenAIStreamer, error) {
	if ep.BaseURL == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	var base http.RoundTripper
	timeout := time.Duration(0)
	if httpClient != nil {
		base = httpClient.Transport
		timeout = httpClient.Timeout
	}

	clientConfig := openai.DefaultConfig(ep.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(ep.BaseURL, "/")
	clientConfig.HTTPClient = &http.Client{
		Transport: newHeaderTransport(base, ProviderHeaders(ep)),
		Timeout:   timeout,
	}

	return &OpenAIStreamer{
		client:   openai.NewClientWithConfig(clientConfig),
		endpoint: ep.BaseURL,
		logger:   logger.Named("llm"),
	}, nil
}

// Stream issues the request and forwards text and reasoning deltas to onDelta.
func (s *OpenAIStreamer) Stream(ctx context.Context, req *StreamRequest, onDelta DeltaFunc) (*StreamResult, error) {
	start := time.Now()

	s.logger.Debug("Starting stream",
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
		zap.Int("max_tokens", req.Sampling.MaxTokens),
		zap.Float64("temperature", req.Sampling.Temperature))

	stream, err := s.client.CreateChatCompletionStream(ctx, s.buildRequest(req))
	if err != nil {
		s.logger.Error("Failed to create stream",
			zap.String("model", req.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, s.wrapError(err, req.Model)
	}
	defer stream.Close()

	var text, reasoning strings.Builder
	result := &StreamResult{}

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.logger.Error("Stream receive error",
				zap.String("model", req.Model),
				zap.Int("chunks", result.Chunks),
				zap.Error(err))
			return nil, s.wrapError(err, req.Model)
		}

		result.Chunks++
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.FinishReason != "" {
			result.FinishReason = string(choice.FinishReason)
		}

		delta := Delta{
			Content:          choice.Delta.Content,
			ReasoningContent: choice.Delta.ReasoningContent,
		}
		if delta.Content == "" && delta.ReasoningContent == "" {
			continue
		}

		text.WriteString(delta.Content)
		reasoning.WriteString(delta.ReasoningContent)

		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return nil, err
			}
		}
	}

	result.Text = text.String()
	result.ReasoningContent = reasoning.String()

	s.logger.Info("Stream completed",
		zap.String("model", req.Model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chunks", result.Chunks),
		zap.Int("content_length", len(result.Text)),
		zap.Int("reasoning_length", len(result.ReasoningContent)))

	return result, nil
}

func (s *OpenAIStreamer) buildRequest(req *StreamRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	return openai.ChatCompletionRequest{
		Model:            req.Model,
		Messages:         messages,
		MaxTokens:        req.Sampling.MaxTokens,
		Temperature:      float32(req.Sampling.Temperature),
		TopP:             float32(req.Sampling.TopP),
		FrequencyPenalty: float32(req.Sampling.FrequencyPenalty),
		PresencePenalty:  float32(req.Sampling.PresencePenalty),
		Stream:           true,
	}
}

// wrapError classifies err and attaches the model and endpoint.
func (s *OpenAIStreamer) wrapError(err error, model string) error {
	classified := ClassifyError(err)
	out := *classified
	out.Model = model
	out.Endpoint = s.endpoint
	return &out
}

// Ensure OpenAIStreamer implements StreamingProvider at compile time.
var _ StreamingProvider = (*OpenAIStreamer)(nil)
