package concurrency

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardRejectsWhileBusy(t *testing.T) {
	g := NewConcurrencyGuard()
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- g.ExecuteWithContext(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.True(t, g.Busy())
	assert.ErrorIs(t, g.ExecuteWithContext(context.Background(), func(context.Context) error { return nil }), ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, g.Busy())
}

func TestGuardReturnsTaskError(t *testing.T) {
	g := NewConcurrencyGuard()
	boom := errors.New("boom")
	err := g.ExecuteWithContext(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, g.Busy(), "the guard is released after a failing task")
}

func TestExecuteWithContext_Cancelled(t *testing.T) {
	g := NewConcurrencyGuard()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := g.ExecuteWithContext(ctx, func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}
