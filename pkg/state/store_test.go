package state

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStore_StartsIdle(t *testing.T) {
	s := NewStore(0, zap.NewNop())

	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.Response())
	assert.Empty(t, s.LogEntries())
}

func TestStore_TryBegin(t *testing.T) {
	s := NewStore(0, zap.NewNop())
	s.UpdateResponse("stale answer")

	require.True(t, s.TryBegin())
	assert.Equal(t, StatePreparingToGenerate, s.State())
	assert.Empty(t, s.Response(), "a new generation clears the previous response")

	assert.False(t, s.TryBegin(), "cannot begin while preparing")

	s.SetState(StateGenerating)
	assert.False(t, s.TryBegin(), "cannot begin while generating")

	for _, finished := range []GenerationState{StateCompleted, StateFailed, StateInterrupted, StateIdle} {
		s.SetState(finished)
		assert.True(t, s.TryBegin(), "should begin after %s", finished)
		s.SetState(finished)
	}
}

func TestStore_Advance(t *testing.T) {
	s := NewStore(0, zap.NewNop())
	require.True(t, s.TryBegin())

	assert.True(t, s.Advance(StatePreparingToGenerate, StateGenerating))
	assert.Equal(t, StateGenerating, s.State())

	assert.False(t, s.Advance(StatePreparingToGenerate, StateGenerating), "already generating")

	s.SetState(StateInterrupted)
	assert.False(t, s.Advance(StatePreparingToGenerate, StateGenerating))
	assert.Equal(t, StateInterrupted, s.State(), "a finished state is not overwritten")
}

func TestStore_TryBeginIsExclusive(t *testing.T) {
	s := NewStore(0, zap.NewNop())

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryBegin() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestStore_AddLogEntryCapsAndMirrors(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewStore(3, zap.New(core))

	for i := 1; i <= 5; i++ {
		s.AddLogEntry(fmt.Sprintf("entry %d", i))
	}

	entries := s.LogEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, "entry 3", entries[0].Message)
	assert.Equal(t, "entry 5", entries[2].Message)
	assert.Equal(t, 5, logs.Len(), "every entry is mirrored to the logger")
}

func TestStore_Snapshot(t *testing.T) {
	s := NewStore(0, zap.NewNop())
	s.SetState(StateGenerating)
	s.UpdateResponse("partial")
	s.AddLogEntry("started")

	snap := s.Snapshot()

	assert.Equal(t, StateGenerating, snap.State)
	assert.Equal(t, "partial", snap.Response)
	require.Len(t, snap.LogEntries, 1)

	// Mutating the snapshot must not affect the store
	snap.LogEntries[0].Message = "changed"
	assert.Equal(t, "started", s.LogEntries()[0].Message)
}
