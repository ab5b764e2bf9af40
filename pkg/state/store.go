// Package state holds the observable state of answer generation: the
// generation lifecycle, the latest formatted response, and a bounded log of
// human-readable entries.
package state

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// GenerationState is the lifecycle of the current answer generation.
type GenerationState string

const (
	StateIdle                GenerationState = "idle"
	StatePreparingToGenerate GenerationState = "preparingToGenerate"
	StateGenerating          GenerationState = "generating"
	StateInterrupted         GenerationState = "interrupted"
	StateCompleted           GenerationState = "completed"
	StateFailed              GenerationState = "failed"
)

// IsActive reports whether a generation is currently running.
func (s GenerationState) IsActive() bool {
	return s == StatePreparingToGenerate || s == StateGenerating
}

// DefaultMaxLogEntries caps the retained log entries.
const DefaultMaxLogEntries = 500

// LogEntry is one line in the user-visible generation log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Snapshot is a point-in-time copy of the store.
type Snapshot struct {
	State      GenerationState `json:"state"`
	Response   string          `json:"response"`
	LogEntries []LogEntry      `json:"log_entries"`
}

// Store is an in-memory, concurrency-safe state and log sink.
type Store struct {
	mu         sync.RWMutex
	state      GenerationState
	response   string
	logEntries []LogEntry
	maxEntries int
	now        func() time.Time
	logger     *zap.Logger
}

// NewStore creates a store in the idle state. Log entries are mirrored to logger.
func NewStore(maxEntries int, logger *zap.Logger) *Store {
	if maxEntries < 1 {
		maxEntries = DefaultMaxLogEntries
	}
	return &Store{
		state:      StateIdle,
		maxEntries: maxEntries,
		now:        time.Now,
		logger:     logger.Named("state"),
	}
}

// State returns the current generation state.
func (s *Store) State() GenerationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState moves to a new generation state.
func (s *Store) SetState(next GenerationState) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev != next {
		s.logger.Debug("Generation state changed",
			zap.String("from", string(prev)),
			zap.String("to", string(next)))
	}
}

// Advance moves from the given state to next and reports whether it did.
// The state is left alone when it is not from.
func (s *Store) Advance(from, next GenerationState) bool {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.mu.Unlock()

	s.logger.Debug("Generation state changed",
		zap.String("from", string(from)),
		zap.String("to", string(next)))
	return true
}

// TryBegin atomically moves from a non-active state to preparingToGenerate.
// It returns false if a generation is already running.
func (s *Store) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsActive() {
		return false
	}
	s.state = StatePreparingToGenerate
	s.response = ""
	return true
}

// UpdateResponse replaces the current response text.
func (s *Store) UpdateResponse(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.response = text
}

// Response returns the current response text.
func (s *Store) Response() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.response
}

// AddLogEntry appends a message to the log, dropping the oldest entry when full.
func (s *Store) AddLogEntry(message string) {
	entry := LogEntry{Timestamp: s.now(), Message: message}

	s.mu.Lock()
	if len(s.logEntries) >= s.maxEntries {
		s.logEntries = append(s.logEntries[:0], s.logEntries[1:]...)
	}
	s.logEntries = append(s.logEntries, entry)
	s.mu.Unlock()

	s.logger.Info(message)
}

// LogEntries returns a copy of the retained log entries, oldest first.
func (s *Store) LogEntries() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LogEntry, len(s.logEntries))
	copy(out, s.logEntries)
	return out
}

// Snapshot returns state, response and log entries in one consistent read.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]LogEntry, len(s.logEntries))
	copy(entries, s.logEntries)
	return Snapshot{
		State:      s.state,
		Response:   s.response,
		LogEntries: entries,
	}
}
