package sender

import (
	"time"

	"github.com/rescp17/nwshare/pkg/chat"
	"github.com/rescp17/nwshare/pkg/protocol"
	"github.com/rescp17/nwshare/pkg/session"
	"github.com/rescp17/nwshare/pkg/transfer"
)

type FileView struct {
	Meta  protocol.FileMeta
	Stats session.FileStats
}

type GuestView struct {
	ConnID   string
	PeerID   string
	Unlocked bool
	Latency  time.Duration
	// HasLatency is false until the first PONG arrives.
	HasLatency bool
}

// Snapshot is a copy of the host's state for rendering.
type Snapshot struct {
	Code      string
	PeerID    string
	Locked    bool
	Files     []FileView
	Guests    []GuestView
	Transfers []transfer.TransferStatus
	// Rate is the combined send rate of running transfers in bytes per second.
	Rate      float64
	Downloads int
	Limit     int
	BytesSent int64
	// Remaining is -1 when the session never expires.
	Remaining time.Duration
	Chat      []chat.Message
	Ended     session.EndReason
}

func (a *App) Snapshot() Snapshot {
	s := Snapshot{
		Code:      a.code,
		PeerID:    a.PeerID(),
		Locked:    a.gate.Locked(),
		Transfers: a.engine.Statuses(),
		Downloads: a.quota.Downloads(),
		Limit:     a.quota.Limit(),
		BytesSent: a.quota.BytesSent(),
		Remaining: a.quota.Remaining(),
		Chat:      a.chat.Messages(),
		Ended:     a.EndReason(),
	}
	for _, m := range a.files.Metas() {
		s.Files = append(s.Files, FileView{Meta: m, Stats: a.quota.FileStats(m.ID)})
	}
	for _, pc := range a.registry.Connections() {
		g := GuestView{ConnID: pc.ID(), PeerID: pc.PeerID(), Unlocked: a.gate.Unlocked(pc.ID())}
		g.Latency, g.HasLatency = a.probe.Latency(pc.ID())
		s.Guests = append(s.Guests, g)
	}
	for _, t := range s.Transfers {
		if !t.State.IsTerminal() {
			s.Rate += t.TransferRate
		}
	}
	return s
}
