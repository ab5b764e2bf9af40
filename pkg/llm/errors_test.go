package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
)

// TestError_Error_WithStatusCode tests Error.Error() includes status code
func TestError_Error_WithStatusCode(t *testing.T) {
	err := &Error{
		Type:       ErrorTypeEndpoint,
		Message:    "server error",
		StatusCode: 503,
	}

	result := err.Error()
	if !strings.Contains(result, "HTTP 503") {
		t.Errorf("expected error message to contain 'HTTP 503', got: %s", result)
	}
	if !strings.Contains(result, "server error") {
		t.Errorf("expected error message to contain 'server error', got: %s", result)
	}
}

// TestError_Error_WithEndpoint tests the endpoint is reduced to its host
func TestError_Error_WithEndpoint(t *testing.T) {
	err := &Error{
		Type:     ErrorTypeEndpoint,
		Message:  "connection failed",
		Endpoint: "https://api.example.com/v1",
		Model:    "gpt-4o",
	}

	result := err.Error()
	if !strings.Contains(result, "endpoint=api.example.com") {
		t.Errorf("expected error message to contain 'endpoint=api.example.com', got: %s", result)
	}
	if strings.Contains(result, "/v1") {
		t.Errorf("endpoint should be redacted to host only, got: %s", result)
	}
	if !strings.Contains(result, "model=gpt-4o") {
		t.Errorf("expected error message to contain 'model=gpt-4o', got: %s", result)
	}
}

// TestError_Error_MinimalContext tests Error.Error() without optional fields
func TestError_Error_MinimalContext(t *testing.T) {
	err := &Error{
		Type:    ErrorTypeAuth,
		Message: "authentication failed",
	}

	result := err.Error()
	expected := "auth authentication failed"
	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(ErrorTypeUnknown, "llm error", false, cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

// TestClassifyError_ExtractsStatusCode tests ClassifyError extracts status codes
func TestClassifyError_ExtractsStatusCode(t *testing.T) {
	tests := []struct {
		name               string
		inputError         error
		expectedStatusCode int
		expectedType       ErrorType
		expectedRetryable  bool
	}{
		{
			name:               "503 service unavailable",
			inputError:         errors.New("HTTP 503 Service Unavailable"),
			expectedStatusCode: 503,
			expectedType:       ErrorTypeEndpoint,
			expectedRetryable:  true,
		},
		{
			name:               "429 rate limit",
			inputError:         errors.New("HTTP 429 Too Many Requests"),
			expectedStatusCode: 429,
			expectedType:       ErrorTypeRateLimited,
			expectedRetryable:  true,
		},
		{
			name:               "401 unauthorized",
			inputError:         errors.New("HTTP 401 Unauthorized"),
			expectedStatusCode: 401,
			expectedType:       ErrorTypeAuth,
			expectedRetryable:  false,
		},
		{
			name:               "404 not found",
			inputError:         errors.New("HTTP 404 Not Found"),
			expectedStatusCode: 404,
			expectedType:       ErrorTypeEndpoint,
			expectedRetryable:  false,
		},
		{
			name:               "go-openai APIError",
			inputError:         &openai.APIError{HTTPStatusCode: 502, Message: "bad gateway"},
			expectedStatusCode: 502,
			expectedType:       ErrorTypeEndpoint,
			expectedRetryable:  true,
		},
		{
			name:               "model does not exist",
			inputError:         &openai.APIError{HTTPStatusCode: 404, Message: "The model `x` does not exist"},
			expectedStatusCode: 404,
			expectedType:       ErrorTypeModel,
			expectedRetryable:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ClassifyError(tt.inputError)
			if result.StatusCode != tt.expectedStatusCode {
				t.Errorf("expected status code %d, got %d", tt.expectedStatusCode, result.StatusCode)
			}
			if result.Type != tt.expectedType {
				t.Errorf("expected type %s, got %s", tt.expectedType, result.Type)
			}
			if result.Retryable != tt.expectedRetryable {
				t.Errorf("expected retryable=%v, got %v", tt.expectedRetryable, result.Retryable)
			}
		})
	}
}

func TestClassifyError_NoStatusCode(t *testing.T) {
	result := ClassifyError(errors.New("dial tcp: connection refused"))

	if result.StatusCode != 0 {
		t.Errorf("expected status code 0, got %d", result.StatusCode)
	}
	if result.Type != ErrorTypeEndpoint {
		t.Errorf("expected type %s, got %s", ErrorTypeEndpoint, result.Type)
	}
	if !result.Retryable {
		t.Error("expected connection failures to be retryable")
	}
}

func TestClassifyError_Canceled(t *testing.T) {
	result := ClassifyError(fmt.Errorf("read stream: %w", context.Canceled))

	if result.Type != ErrorTypeCanceled {
		t.Errorf("expected type %s, got %s", ErrorTypeCanceled, result.Type)
	}
	if !errors.Is(result, context.Canceled) {
		t.Error("expected classified error to still match context.Canceled")
	}
}

func TestClassifyError_PassesThroughStructuredError(t *testing.T) {
	original := NewError(ErrorTypeModel, "model not found", false, nil)
	wrapped := fmt.Errorf("attempt 1: %w", original)

	if got := ClassifyError(wrapped); got != original {
		t.Errorf("expected the existing *Error to be returned, got %v", got)
	}
	if ClassifyError(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestGetErrorType(t *testing.T) {
	retryable := NewError(ErrorTypeRateLimited, "rate limited", true, nil)
	plain := errors.New("plain")

	if GetErrorType(fmt.Errorf("attempt: %w", retryable)) != ErrorTypeRateLimited {
		t.Error("expected wrapped error type to be found")
	}
	if GetErrorType(retryable) != ErrorTypeRateLimited {
		t.Errorf("expected %s, got %s", ErrorTypeRateLimited, GetErrorType(retryable))
	}
	if GetErrorType(plain) != ErrorTypeUnknown {
		t.Errorf("expected %s, got %s", ErrorTypeUnknown, GetErrorType(plain))
	}
}

func TestListingError(t *testing.T) {
	tests := []struct {
		name      string
		err       *ListingError
		message   string
		retryable bool
	}{
		{
			name:      "server error",
			err:       &ListingError{StatusCode: 503, Status: "Service Unavailable"},
			message:   "failed to fetch models: 503 Service Unavailable",
			retryable: true,
		},
		{
			name:      "unauthorized",
			err:       &ListingError{StatusCode: 401, Status: "Unauthorized"},
			message:   "failed to fetch models: 401 Unauthorized",
			retryable: false,
		},
		{
			name:      "network failure",
			err:       &ListingError{Cause: errors.New("no such host")},
			message:   "failed to fetch models: no such host",
			retryable: true,
		},
		{
			name:      "canceled",
			err:       &ListingError{Cause: context.Canceled},
			message:   "failed to fetch models: context canceled",
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.message {
				t.Errorf("expected %q, got %q", tt.message, tt.err.Error())
			}
			if tt.err.IsRetryable() != tt.retryable {
				t.Errorf("expected retryable=%v, got %v", tt.retryable, tt.err.IsRetryable())
			}
		})
	}
}
