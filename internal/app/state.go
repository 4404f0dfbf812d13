package app

import (
	"errors"
	"fmt"
	"sync"
)

// Phase is where a guest is in reaching the host.
type Phase string

const (
	PhaseInit         Phase = "init"
	PhaseLookup       Phase = "lookup"
	PhaseHandshake    Phase = "handshake"
	PhaseConnected    Phase = "connected"
	PhaseDisconnected Phase = "disconnected"
)

var ErrInvalidTransition = errors.New("invalid phase transition")

var transitions = map[Phase][]Phase{
	PhaseInit:         {PhaseLookup},
	PhaseLookup:       {PhaseHandshake, PhaseDisconnected},
	PhaseHandshake:    {PhaseConnected, PhaseDisconnected},
	PhaseConnected:    {PhaseDisconnected},
	PhaseDisconnected: {PhaseLookup},
}

// StateManager tracks the guest's connection phase in a concurrent-safe manner.
type StateManager struct {
	mu    sync.Mutex
	phase Phase
	err   error

	// OnChange is called after every successful transition, outside the lock.
	OnChange func(phase Phase, err error)
}

func NewStateManager() *StateManager {
	return &StateManager{phase: PhaseInit}
}

func (m *StateManager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Err is the cause of the last disconnect, if any.
func (m *StateManager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Advance moves to next. Moving to the current phase is a no-op.
func (m *StateManager) Advance(next Phase) error {
	return m.move(next, nil)
}

// Fail moves to PhaseDisconnected and records cause.
func (m *StateManager) Fail(cause error) error {
	return m.move(PhaseDisconnected, cause)
}

func (m *StateManager) move(next Phase, cause error) error {
	m.mu.Lock()
	cur := m.phase
	if cur == next {
		m.mu.Unlock()
		return nil
	}
	allowed := false
	for _, p := range transitions[cur] {
		if p == next {
			allowed = true
			break
		}
	}
	if !allowed {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
	}
	m.phase = next
	if next == PhaseLookup {
		m.err = nil
	}
	if cause != nil {
		m.err = cause
	}
	err := m.err
	onChange := m.OnChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(next, err)
	}
	return nil
}
