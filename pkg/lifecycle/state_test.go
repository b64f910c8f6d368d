package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateHappyPath(t *testing.T) {
	s := NewState()
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.False(t, s.Ready())

	id := s.BeginAttempt()
	assert.NotEmpty(t, id)
	assert.Equal(t, PhaseStarting, s.Phase())

	s.MarkRunning()
	assert.Equal(t, PhaseRunning, s.Phase())

	s.MarkReady(42)
	assert.True(t, s.Ready())

	snap := s.Snapshot()
	assert.Equal(t, "READY", snap.Phase)
	assert.Equal(t, 1, snap.Attempts)
	assert.Equal(t, 42, snap.TableCount)
	require.NotNil(t, snap.StartedAt)
	require.NotNil(t, snap.CompletedAt)
	assert.Empty(t, snap.ErrorMessage)
}

func TestStateFailureAndRetry(t *testing.T) {
	s := NewState()
	first := s.BeginAttempt()
	s.MarkFailed(errors.New("connect: refused"))

	snap := s.Snapshot()
	assert.Equal(t, "FAILED", snap.Phase)
	assert.Equal(t, "connect: refused", snap.ErrorMessage)

	second := s.BeginAttempt()
	assert.NotEqual(t, first, second, "each attempt gets a fresh build id")
	snap = s.Snapshot()
	assert.Equal(t, 2, snap.Attempts)
	assert.Empty(t, snap.ErrorMessage)
}

func TestStateStoppedIsTerminal(t *testing.T) {
	s := NewState()
	s.BeginAttempt()
	s.MarkStopped()

	s.MarkFailed(errors.New("late failure"))
	assert.Equal(t, PhaseStopped, s.Phase())
	assert.Empty(t, s.Snapshot().ErrorMessage)
}

func TestStateMarkRunningOnlyFromStarting(t *testing.T) {
	s := NewState()
	s.MarkRunning()
	assert.Equal(t, PhaseIdle, s.Phase())
}

func TestStateEnrichingFlag(t *testing.T) {
	s := NewState()
	s.BeginAttempt()
	s.MarkRunning()
	s.MarkReady(3)

	s.SetEnriching(true)
	assert.True(t, s.Snapshot().Enriching)
	s.UpdateTableCount(9)
	s.SetEnriching(false)

	snap := s.Snapshot()
	assert.False(t, snap.Enriching)
	assert.Equal(t, 9, snap.TableCount)
	assert.True(t, s.Ready())
}
