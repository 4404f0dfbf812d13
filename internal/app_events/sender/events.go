package sender

import (
	"time"

	appevents "github.com/rescp17/nwshare/internal/app_events"
	"github.com/rescp17/nwshare/pkg/chat"
	"github.com/rescp17/nwshare/pkg/session"
	"github.com/rescp17/nwshare/pkg/transfer"
)

// --- App Events (from TUI to App) ---

// RemoveFileEvent takes a file off the catalogue.
type RemoveFileEvent struct {
	appevents.Event
	FileID string
}

// SendTextEvent broadcasts a chat message to every guest.
type SendTextEvent struct {
	appevents.Event
	Text string
}

type NudgeEvent struct {
	appevents.Event
}

// StopSessionEvent ends the session once running transfers finish.
type StopSessionEvent struct {
	appevents.Event
}

var (
	_ appevents.AppEvent = (*RemoveFileEvent)(nil)
	_ appevents.AppEvent = (*SendTextEvent)(nil)
	_ appevents.AppEvent = (*NudgeEvent)(nil)
	_ appevents.AppEvent = (*StopSessionEvent)(nil)
)

// --- UI Messages (from App to TUI) ---

type SessionReadyMsg struct {
	Code   string
	PeerID string
}

type PeerConnectedMsg struct {
	ConnID string
	PeerID string
}

type PeerDisconnectedMsg struct {
	ConnID string
}

// TransferUpdateMsg carries every progress sample and terminal state.
type TransferUpdateMsg struct {
	Status transfer.TransferStatus
}

type LatencyMsg struct {
	ConnID string
	RTT    time.Duration
}

type ChatMsg struct {
	Message chat.Message
}

type NudgedMsg struct {
	ConnID string
}

// SessionEndingMsg is sent when the session stops accepting guests.
type SessionEndingMsg struct {
	Reason session.EndReason
}

type SessionEndedMsg struct {
	Reason session.EndReason
}
