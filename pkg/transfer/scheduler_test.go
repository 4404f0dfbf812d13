package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Scenario B: three requests in quick succession go out one at a time, in order.
func TestScheduler_SerializesRequests(t *testing.T) {
	s := NewScheduler()
	assert.True(t, s.Request("F1"))
	assert.True(t, s.Request("F2"))
	assert.True(t, s.Request("F3"))

	var issued []string
	id, ok := s.Next()
	assert.True(t, ok)
	issued = append(issued, id)

	_, ok = s.Next()
	assert.False(t, ok, "a second request must wait for the first")

	for _, want := range []string{"F2", "F3"} {
		assert.True(t, s.Done(issued[len(issued)-1], true))
		id, ok = s.Next()
		assert.True(t, ok)
		assert.Equal(t, want, id)
		issued = append(issued, id)
	}
	assert.Equal(t, []string{"F1", "F2", "F3"}, issued)

	s.Done("F3", true)
	_, ok = s.Next()
	assert.False(t, ok)
}

func TestScheduler_SkipsDuplicates(t *testing.T) {
	s := NewScheduler()
	assert.True(t, s.Request("a"))
	assert.False(t, s.Request("a"), "already queued")

	id, _ := s.Next()
	assert.False(t, s.Request(id), "in flight")

	s.Done(id, true)
	assert.False(t, s.Request(id), "completed")
	assert.True(t, s.Completed(id))
}

func TestScheduler_FailedCanBeRetried(t *testing.T) {
	s := NewScheduler()
	s.Request("a")
	id, _ := s.Next()
	s.Done(id, false)

	assert.True(t, s.Request("a"))
	assert.False(t, s.Done("zzz", false), "only the in-flight id frees the slot")
}

func TestScheduler_RequestAll(t *testing.T) {
	s := NewScheduler()
	s.Request("a")
	id, _ := s.Next()
	s.Done(id, true)
	s.Request("b")

	added := s.RequestAll([]string{"a", "b", "c", "d"})
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"b", "c", "d"}, s.Pending())
}

func TestScheduler_Reset(t *testing.T) {
	s := NewScheduler()
	s.RequestAll([]string{"a", "b"})
	s.Next()
	s.Reset()

	_, inFlight := s.InFlight()
	assert.False(t, inFlight)
	assert.Empty(t, s.Pending())
	assert.True(t, s.Request("a"))
}
