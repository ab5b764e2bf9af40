package generation

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrDuplicateInvocation is returned by Register when the id is already running.
var ErrDuplicateInvocation = errors.New("invocation id already registered")

// Registry tracks running generations so they can be interrupted by id.
type Registry struct {
	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelCauseFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		cancels: make(map[uuid.UUID]context.CancelCauseFunc),
	}
}

// Register derives a cancellable context for invocation id. The returned
// release func must be called when the invocation ends; it is safe to call
// more than once. An id that is still registered is rejected with
// ErrDuplicateInvocation.
func (r *Registry) Register(ctx context.Context, id uuid.UUID) (context.Context, func(), error) {
	r.mu.Lock()
	if _, exists := r.cancels[id]; exists {
		r.mu.Unlock()
		return nil, nil, ErrDuplicateInvocation
	}
	ctx, cancel := context.WithCancelCause(ctx)
	r.cancels[id] = cancel
	r.mu.Unlock()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.cancels, id)
			r.mu.Unlock()
			cancel(nil)
		})
	}, nil
}

// Interrupt cancels invocation id with ErrInterrupted. It reports whether
// the invocation was running.
func (r *Registry) Interrupt(id uuid.UUID) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()

	if ok {
		cancel(ErrInterrupted)
	}
	return ok
}

// InterruptAll cancels every running invocation and returns how many there were.
func (r *Registry) InterruptAll() int {
	r.mu.Lock()
	cancels := make([]context.CancelCauseFunc, 0, len(r.cancels))
	for _, cancel := range r.cancels {
		cancels = append(cancels, cancel)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel(ErrInterrupted)
	}
	return len(cancels)
}

// Active returns the number of running invocations.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}
