package llm

import (
	"context"
	"sync"
)

// MockStreamingProvider is a configurable StreamingProvider for tests.
// Set StreamFunc to control behavior; calls are recorded in Requests.
type MockStreamingProvider struct {
	// StreamFunc is called when Stream is invoked.
	// If nil, emits a single "mock response" delta and succeeds.
	StreamFunc func(ctx context.Context, req *StreamRequest, onDelta DeltaFunc) (*StreamResult, error)

	mu       sync.Mutex
	requests []StreamRequest
}

// NewMockStreamingProvider creates a new mock provider.
func NewMockStreamingProvider() *MockStreamingProvider {
	return &MockStreamingProvider{}
}

// Stream implements StreamingProvider.
func (m *MockStreamingProvider) Stream(ctx context.Context, req *StreamRequest, onDelta DeltaFunc) (*StreamResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, *req)
	m.mu.Unlock()

	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req, onDelta)
	}

	delta := Delta{Content: "mock response"}
	if onDelta != nil {
		if err := onDelta(delta); err != nil {
			return nil, err
		}
	}
	return &StreamResult{Text: delta.Content, Chunks: 1}, nil
}

// Requests returns a copy of every request received so far.
func (m *MockStreamingProvider) Requests() []StreamRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StreamRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Models returns the model of every request, in call order.
func (m *MockStreamingProvider) Models() []string {
	reqs := m.Requests()
	models := make([]string, len(reqs))
	for i, r := range reqs {
		models[i] = r.Model
	}
	return models
}

// Ensure MockStreamingProvider implements StreamingProvider at compile time.
var _ StreamingProvider = (*MockStreamingProvider)(nil)

// MockModelLister is a configurable ModelLister for tests.
type MockModelLister struct {
	// Models is returned when ListModelsFunc is nil.
	Models []ModelDescriptor
	// Err is returned when ListModelsFunc is nil.
	Err error
	// ListModelsFunc overrides the static Models/Err.
	ListModelsFunc func(ctx context.Context, baseURL, apiKey string) ([]ModelDescriptor, error)

	mu    sync.Mutex
	calls int
}

// ListModels implements ModelLister.
func (m *MockModelLister) ListModels(ctx context.Context, baseURL, apiKey string) ([]ModelDescriptor, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.ListModelsFunc != nil {
		return m.ListModelsFunc(ctx, baseURL, apiKey)
	}
	return m.Models, m.Err
}

// Calls returns how many times ListModels was invoked.
func (m *MockModelLister) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Ensure MockModelLister implements ModelLister at compile time.
var _ ModelLister = (*MockModelLister)(nil)
