// Package llm provides OpenAI-compatible model discovery and streaming
// chat completion.
package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// ModelDescriptor identifies a model as reported by the provider.
type ModelDescriptor struct {
	ID string `json:"id"`
}

// ModelLister discovers the models an endpoint serves.
type ModelLister interface {
	ListModels(ctx context.Context, baseURL, apiKey string) ([]ModelDescriptor, error)
}

// HTTPModelLister queries GET {baseURL}/models on an OpenAI-compatible endpoint.
// It never retries; callers decide whether a failed listing is worth repeating.
type HTTPModelLister struct {
	httpClient *http.Client
	endpoint   Endpoint // Only the gateway headers are used; URL and key come per call
	logger     *zap.Logger
}

// NewHTTPModelLister creates a lister. A nil client gets a 10s-timeout default.
func NewHTTPModelLister(httpClient *http.Client, endpoint Endpoint, logger *zap.Logger) *HTTPModelLister {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPModelLister{
		httpClient: httpClient,
		endpoint:   endpoint,
		logger:     logger.Named("model-lister"),
	}
}

// ListModels returns the entries of the response's "data" array. A body whose
// "data" is missing or not an array yields an empty list.
func (l *HTTPModelLister) ListModels(ctx context.Context, baseURL, apiKey string) ([]ModelDescriptor, error) {
	if baseURL == "" {
		return nil, &ListingError{Cause: fmt.Errorf("base URL is required to list models")}
	}

	modelsURL := strings.TrimSuffix(baseURL, "/") + "/models"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelsURL, nil)
	if err != nil {
		return nil, &ListingError{Cause: fmt.Errorf("create request: %w", err)}
	}

	ep := l.endpoint
	ep.APIKey = apiKey
	req.Header = ProviderHeaders(ep)
	req.Header.Set("Accept", "application/json")
	if id, ok := InvocationID(ctx); ok {
		req.Header.Set(requestIDHeader, id.String())
	}

	l.logger.Debug("Listing models", zap.String("url", modelsURL))

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, &ListingError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ListingError{
			StatusCode: resp.StatusCode,
			Status:     reasonPhrase(resp),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ListingError{Cause: fmt.Errorf("read response: %w", err)}
	}
	if !gjson.ValidBytes(body) {
		return nil, &ListingError{Cause: fmt.Errorf("response is not valid JSON")}
	}

	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		l.logger.Debug("Models response has no data array")
		return []ModelDescriptor{}, nil
	}

	entries := data.Array()
	models := make([]ModelDescriptor, 0, len(entries))
	for _, entry := range entries {
		id := entry.Get("id")
		if id.Type != gjson.String {
			continue
		}
		models = append(models, ModelDescriptor{ID: id.String()})
	}

	l.logger.Debug("Listed models", zap.Int("count", len(models)))

	return models, nil
}

// Ensure HTTPModelLister implements ModelLister at compile time.
var _ ModelLister = (*HTTPModelLister)(nil)

// reasonPhrase returns the status text the server sent, falling back to the
// standard text when the status line carries none.
func reasonPhrase(resp *http.Response) string {
	phrase := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if phrase == "" {
		return http.StatusText(resp.StatusCode)
	}
	return phrase
}
