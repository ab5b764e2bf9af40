package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		errorCode  string
		message    string
	}{
		{"bad request", http.StatusBadRequest, "invalid_request", "Invalid request body"},
		{"conflict", http.StatusConflict, "generation_in_progress", "An answer is already being generated"},
		{"bad gateway", http.StatusBadGateway, "retries_exhausted", "all models failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			if err := ErrorResponse(w, tt.statusCode, tt.errorCode, tt.message); err != nil {
				t.Fatalf("ErrorResponse returned error: %v", err)
			}

			resp := w.Result()
			defer resp.Body.Close()

			if resp.StatusCode != tt.statusCode {
				t.Errorf("status code = %d, want %d", resp.StatusCode, tt.statusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response body: %v", err)
			}
			if body["error"] != tt.errorCode {
				t.Errorf("body[error] = %q, want %q", body["error"], tt.errorCode)
			}
			if body["message"] != tt.message {
				t.Errorf("body[message] = %q, want %q", body["message"], tt.message)
			}
		})
	}
}

func TestWriteJSON_Envelope(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]string{"key": "value"}})
	if err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
		Error   *string           `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if !body.Success {
		t.Error("expected success to be true")
	}
	if body.Data["key"] != "value" {
		t.Errorf("data[key] = %q, want %q", body.Data["key"], "value")
	}
	if body.Error != nil {
		t.Error("expected error to be omitted")
	}
}

func TestWriteJSON_UnencodableData(t *testing.T) {
	w := httptest.NewRecorder()

	if err := WriteJSON(w, http.StatusOK, make(chan int)); err == nil {
		t.Error("expected error for unencodable data, got nil")
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"query":"q"}`, false},
		{"malformed", `{"query":`, true},
		{"unknown field", `{"query":"q","extra":1}`, true},
		{"trailing value", `{"query":"q"}{"query":"r"}`, true},
		{"empty", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var v struct {
				Query string `json:"query"`
			}

			err := DecodeJSON(req, &v)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeJSON error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEventStream_Send(t *testing.T) {
	rec := httptest.NewRecorder()

	stream, ok := newEventStream(rec)
	if !ok {
		t.Fatal("expected recorder to support flushing")
	}
	if err := stream.Send("update", map[string]string{"text": "hi"}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if got := rec.Body.String(); got != "event: update\ndata: {\"text\":\"hi\"}\n\n" {
		t.Errorf("unexpected event body %q", got)
	}
	if !rec.Flushed {
		t.Error("expected event to be flushed")
	}
}

type nonFlushingWriter struct {
	http.ResponseWriter
}

func TestEventStream_RequiresFlusher(t *testing.T) {
	if _, ok := newEventStream(nonFlushingWriter{httptest.NewRecorder()}); ok {
		t.Error("expected writer without Flush to be rejected")
	}
}
