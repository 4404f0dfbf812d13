package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateManager_HappyPath(t *testing.T) {
	m := NewStateManager()
	var seen []Phase
	m.OnChange = func(p Phase, _ error) { seen = append(seen, p) }

	require.NoError(t, m.Advance(PhaseLookup))
	require.NoError(t, m.Advance(PhaseHandshake))
	require.NoError(t, m.Advance(PhaseConnected))
	require.NoError(t, m.Advance(PhaseConnected), "same phase is a no-op")

	assert.Equal(t, PhaseConnected, m.Phase())
	assert.Equal(t, []Phase{PhaseLookup, PhaseHandshake, PhaseConnected}, seen)
}

func TestStateManager_FailAndRetry(t *testing.T) {
	m := NewStateManager()
	require.NoError(t, m.Advance(PhaseLookup))

	cause := errors.New("peer unavailable")
	require.NoError(t, m.Fail(cause))
	assert.Equal(t, PhaseDisconnected, m.Phase())
	assert.ErrorIs(t, m.Err(), cause)

	require.NoError(t, m.Advance(PhaseLookup))
	assert.NoError(t, m.Err(), "a new attempt clears the previous cause")
}

func TestStateManager_RejectsSkips(t *testing.T) {
	m := NewStateManager()
	assert.ErrorIs(t, m.Advance(PhaseConnected), ErrInvalidTransition)
	assert.Equal(t, PhaseInit, m.Phase())
}
