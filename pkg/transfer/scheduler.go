package transfer

import "sync"

// Scheduler serializes download requests: a FIFO of file ids with at most
// one request in flight.
type Scheduler struct {
	mu        sync.Mutex
	queue     []string
	queued    map[string]bool
	inFlight  string
	completed map[string]bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		queued:    make(map[string]bool),
		completed: make(map[string]bool),
	}
}

// Request enqueues fileID unless it is queued, in flight or already completed.
func (s *Scheduler) Request(fileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestLocked(fileID)
}

// RequestAll enqueues every id Request would accept and returns how many were added.
func (s *Scheduler) RequestAll(fileIDs []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range fileIDs {
		if s.requestLocked(id) {
			n++
		}
	}
	return n
}

func (s *Scheduler) requestLocked(fileID string) bool {
	if fileID == "" || s.queued[fileID] || s.inFlight == fileID || s.completed[fileID] {
		return false
	}
	s.queue = append(s.queue, fileID)
	s.queued[fileID] = true
	return true
}

// Next pops the head of the queue and marks it in flight. It returns false
// while another request is in flight or the queue is empty.
func (s *Scheduler) Next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight != "" || len(s.queue) == 0 {
		return "", false
	}
	id := s.queue[0]
	s.queue = s.queue[1:]
	delete(s.queued, id)
	s.inFlight = id
	return id, true
}

// Done frees the slot held by fileID. Completed ids are never requested again;
// failed ones may be.
func (s *Scheduler) Done(fileID string, ok bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight != fileID {
		return false
	}
	s.inFlight = ""
	if ok {
		s.completed[fileID] = true
	}
	return true
}

func (s *Scheduler) InFlight() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight, s.inFlight != ""
}

func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queue...)
}

func (s *Scheduler) Completed(fileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[fileID]
}

// Reset drops the queue and the in-flight slot, keeping completion history.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.queued = make(map[string]bool)
	s.inFlight = ""
}
