package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// sseChunk renders one chat.completion.chunk event.
func sseChunk(content, reasoning, finish string) string {
	delta := map[string]string{}
	if content != "" {
		delta["content"] = content
	}
	if reasoning != "" {
		delta["reasoning_content"] = reasoning
	}
	choice := map[string]any{"index": 0, "delta": delta}
	if finish != "" {
		choice["finish_reason"] = finish
	}
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "test-model",
		"choices": []any{choice},
	})
	return fmt.Sprintf("data: %s\n\n", body)
}

// newSSEServer serves the given events and records the decoded request body and headers.
func newSSEServer(t *testing.T, events []string, gotBody *map[string]any, gotHeader *http.Header) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotBody != nil {
			_ = json.NewDecoder(r.Body).Decode(gotBody)
		}
		if gotHeader != nil {
			*gotHeader = r.Header.Clone()
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			_, _ = w.Write([]byte(e))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
}

func newTestStreamer(t *testing.T, ep Endpoint) *OpenAIStreamer {
	t.Helper()
	s, err := NewOpenAIStreamer(ep, nil, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestNewOpenAIStreamer_RequiresEndpoint(t *testing.T) {
	_, err := NewOpenAIStreamer(Endpoint{}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestStream_AccumulatesTextAndReasoning(t *testing.T) {
	var body map[string]any
	server := newSSEServer(t, []string{
		sseChunk("", "Let me ", ""),
		sseChunk("", "think.", ""),
		sseChunk("Hel", "", ""),
		sseChunk("lo", "", "stop"),
	}, &body, nil)
	defer server.Close()

	s := newTestStreamer(t, Endpoint{BaseURL: server.URL + "/v1/"})

	var deltas []Delta
	result, err := s.Stream(context.Background(), &StreamRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Sampling: SamplingParams{MaxTokens: 64, Temperature: 0.5, TopP: 0.9},
	}, func(d Delta) error {
		deltas = append(deltas, d)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello", result.Text)
	assert.Equal(t, "Let me think.", result.ReasoningContent)
	assert.Equal(t, "stop", result.FinishReason)
	assert.Len(t, deltas, 4)

	assert.Equal(t, "test-model", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.EqualValues(t, 64, body["max_tokens"])
	assert.InDelta(t, 0.5, body["temperature"], 0.0001)
}

func TestStream_SendsGatewayHeadersAndRequestID(t *testing.T) {
	var header http.Header
	server := newSSEServer(t, []string{sseChunk("ok", "", "stop")}, nil, &header)
	defer server.Close()

	s := newTestStreamer(t, Endpoint{
		BaseURL:            server.URL,
		APIKey:             "sk-test",
		EndpointIdentifier: "EHF-OPENAI-API-LLM",
		UserSession:        `{"user-session-user-email":"dev@example.com"}`,
	})

	invocation := uuid.New()
	ctx := WithInvocationID(context.Background(), invocation)
	_, err := s.Stream(ctx, &StreamRequest{Model: "m"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", header.Get("Authorization"))
	assert.Equal(t, "EHF-OPENAI-API-LLM", header.Get(endpointIdentifierHeader))
	assert.Equal(t, `{"user-session-user-email":"dev@example.com"}`, header.Get(userSessionHeader))
	assert.Equal(t, invocation.String(), header.Get(requestIDHeader))
}

func TestStream_ProviderErrorIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	s := newTestStreamer(t, Endpoint{BaseURL: server.URL + "/v1"})

	_, err := s.Stream(context.Background(), &StreamRequest{Model: "busy-model"}, nil)

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, 503, llmErr.StatusCode)
	assert.True(t, llmErr.Retryable)
	assert.Equal(t, "busy-model", llmErr.Model)
	assert.Contains(t, err.Error(), "model=busy-model")
}

func TestStream_DeltaErrorStopsStream(t *testing.T) {
	server := newSSEServer(t, []string{
		sseChunk("one", "", ""),
		sseChunk("two", "", ""),
	}, nil, nil)
	defer server.Close()

	s := newTestStreamer(t, Endpoint{BaseURL: server.URL})
	stop := errors.New("stop here")

	calls := 0
	_, err := s.Stream(context.Background(), &StreamRequest{Model: "m"}, func(Delta) error {
		calls++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStream_CanceledContext(t *testing.T) {
	server := newSSEServer(t, []string{sseChunk("never", "", "")}, nil, nil)
	defer server.Close()

	s := newTestStreamer(t, Endpoint{BaseURL: server.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Stream(ctx, &StreamRequest{Model: "m"}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ErrorTypeCanceled, GetErrorType(err))
}
