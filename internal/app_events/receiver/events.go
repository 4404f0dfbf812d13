package receiver

import (
	"time"

	appevents "github.com/rescp17/nwshare/internal/app_events"
	"github.com/rescp17/nwshare/internal/app"
	"github.com/rescp17/nwshare/pkg/chat"
	"github.com/rescp17/nwshare/pkg/protocol"
	"github.com/rescp17/nwshare/pkg/transfer"
)

// --- UI to App Events ---

// ConnectEvent dials the host behind a session code.
type ConnectEvent struct {
	appevents.Event
	Code string
}

type SubmitPasswordEvent struct {
	appevents.Event
	Password string
}

type RequestFileEvent struct {
	appevents.Event
	FileID string
}

type DownloadAllEvent struct {
	appevents.Event
}

type SendTextEvent struct {
	appevents.Event
	Text string
}

type NudgeEvent struct {
	appevents.Event
}

var (
	_ appevents.AppEvent = (*ConnectEvent)(nil)
	_ appevents.AppEvent = (*SubmitPasswordEvent)(nil)
	_ appevents.AppEvent = (*RequestFileEvent)(nil)
	_ appevents.AppEvent = (*DownloadAllEvent)(nil)
	_ appevents.AppEvent = (*SendTextEvent)(nil)
	_ appevents.AppEvent = (*NudgeEvent)(nil)
)

// --- App to UI Messages ---

type PhaseMsg struct {
	Phase app.Phase
	Err   error
}

type ManifestMsg struct {
	Locked bool
	Files  []protocol.FileMeta
}

type PasswordResultMsg struct {
	OK bool
}

type DownloadUpdateMsg struct {
	Status transfer.TransferStatus
}

type DownloadCompleteMsg struct {
	Status   transfer.TransferStatus
	Download transfer.Download
}

// HostErrorMsg is an ERROR the host sent in reply to a request.
type HostErrorMsg struct {
	Payload protocol.ErrorPayload
}

type LatencyMsg struct {
	RTT time.Duration
}

type ChatMsg struct {
	Message chat.Message
}

type NudgedMsg struct{}
