package transfer

import (
	"time"
)

// TransferState is the lifecycle of one file moving over one connection.
type TransferState int

const (
	StateStarting TransferState = iota
	StateTransferring
	StateCompleted
	StateFailed
)

func (ts TransferState) String() string {
	switch ts {
	case StateStarting:
		return "starting"
	case StateTransferring:
		return "transferring"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (ts TransferState) IsTerminal() bool {
	return ts == StateCompleted || ts == StateFailed
}

// CanTransitionTo checks if a state transition is valid
func (ts TransferState) CanTransitionTo(next TransferState) bool {
	switch ts {
	case StateStarting:
		return next == StateTransferring || next == StateCompleted || next == StateFailed
	case StateTransferring:
		return next == StateTransferring || next == StateCompleted || next == StateFailed
	default:
		return false
	}
}

// TransferStatus is the record kept per (connection, file) pair.
type TransferStatus struct {
	ConnectionID string        `json:"connection_id"`
	FileID       string        `json:"file_id"`
	FileName     string        `json:"file_name"`
	MimeType     string        `json:"mime_type"`
	State        TransferState `json:"state"`

	BytesTransferred int64 `json:"bytes_transferred"`
	ExpectedSize     int64 `json:"expected_size"`

	TransferRate float64       `json:"transfer_rate"` // bytes per second
	ETA          time.Duration `json:"eta"`

	StartTime      time.Time  `json:"start_time"`
	LastUpdateTime time.Time  `json:"last_update_time"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`

	LastError error `json:"-"`
}

func (ts *TransferStatus) Percent() float64 {
	if ts.ExpectedSize <= 0 {
		if ts.State == StateCompleted {
			return 100.0
		}
		return 0.0
	}
	p := float64(ts.BytesTransferred) / float64(ts.ExpectedSize) * 100.0
	if p > 100 {
		p = 100
	}
	return p
}

func (ts *TransferStatus) Remaining() int64 {
	remaining := ts.ExpectedSize - ts.BytesTransferred
	if remaining < 0 {
		return 0
	}
	return remaining
}

// advance moves the record to next, ignoring invalid transitions.
func (ts *TransferStatus) advance(next TransferState, now time.Time) bool {
	if !ts.State.CanTransitionTo(next) {
		return false
	}
	ts.State = next
	ts.LastUpdateTime = now
	if next.IsTerminal() {
		t := now
		ts.CompletionTime = &t
		if next == StateCompleted {
			ts.ETA = 0
		}
	}
	return true
}

func (ts *TransferStatus) apply(p Progress) {
	ts.TransferRate = p.Rate
	ts.ETA = p.ETA
}
