package receiver

import (
	"time"

	"github.com/rescp17/nwshare/internal/app"
	"github.com/rescp17/nwshare/pkg/chat"
	"github.com/rescp17/nwshare/pkg/protocol"
	"github.com/rescp17/nwshare/pkg/transfer"
)

type FileState string

const (
	FileAvailable   FileState = "available"
	FileQueued      FileState = "queued"
	FileRequested   FileState = "requested"
	FileDownloading FileState = "downloading"
	FileDone        FileState = "done"
	FileFailed      FileState = "failed"
)

type FileView struct {
	Meta     protocol.FileMeta
	State    FileState
	Progress *transfer.TransferStatus
	Location string
	Err      error
}

// Snapshot is a copy of the guest's state for rendering.
type Snapshot struct {
	Phase    app.Phase
	Err      error
	HostID   string
	Manifest bool // a manifest has arrived
	Locked   bool
	// PasswordRejected is true after a failed attempt until the next success.
	PasswordRejected bool
	Files            []FileView
	Latency          time.Duration
	HasLatency       bool
	Chat             []chat.Message
}

func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	pc := a.conn
	s := Snapshot{
		Manifest:         a.seen,
		Locked:           a.manifest.Locked,
		PasswordRejected: a.rejected,
	}
	files := append([]protocol.FileMeta(nil), a.manifest.Files...)
	downloads := make(map[string]transfer.Download, len(a.downloads))
	for k, v := range a.downloads {
		downloads[k] = v
	}
	failures := make(map[string]error, len(a.failures))
	for k, v := range a.failures {
		failures[k] = v
	}
	a.mu.Unlock()

	s.Phase = a.state.Phase()
	s.Err = a.state.Err()
	s.Chat = a.chat.Messages()

	var current *transfer.TransferStatus
	if pc != nil {
		s.HostID = pc.PeerID()
		s.Latency, s.HasLatency = a.probe.Latency(pc.ID())
		if st, ok := a.reasm.Current(pc.ID()); ok {
			current = &st
		}
	}
	inFlight, _ := a.sched.InFlight()
	pending := make(map[string]bool)
	for _, id := range a.sched.Pending() {
		pending[id] = true
	}

	for _, f := range files {
		v := FileView{Meta: f, State: FileAvailable}
		switch {
		case current != nil && current.FileID == f.ID:
			v.State = FileDownloading
			v.Progress = current
		case f.ID == inFlight:
			v.State = FileRequested
		case pending[f.ID]:
			v.State = FileQueued
		}
		if v.State == FileAvailable {
			if d, ok := downloads[f.ID]; ok {
				v.State = FileDone
				v.Location = d.Location
			} else if err, ok := failures[f.ID]; ok {
				v.State = FileFailed
				v.Err = err
			}
		}
		s.Files = append(s.Files, v)
	}
	return s
}
