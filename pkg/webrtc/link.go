package webrtc

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rescp17/nwshare/api"
	"github.com/rescp17/nwshare/pkg/registry"
)

const recvQueue = 256

// Link is one PeerConnection and its data channel.
type Link struct {
	id     string
	peerID string
	prov   *Provider
	pc     *webrtc.PeerConnection

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	remoteSet bool
	pending   []webrtc.ICECandidateInit

	recv     chan []byte
	opened   chan struct{}
	openOnce sync.Once
	failed   chan error
	done     chan struct{}
	once     sync.Once
}

var _ registry.Link = (*Link)(nil)

func newLink(p *Provider, connID, peerID string, pc *webrtc.PeerConnection) *Link {
	l := &Link{
		id:     connID,
		peerID: peerID,
		prov:   p,
		pc:     pc,
		recv:   make(chan []byte, recvQueue),
		opened: make(chan struct{}),
		failed: make(chan error, 1),
		done:   make(chan struct{}),
	}
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := l.signal(api.SignalCandidate, c.ToJSON()); err != nil {
			p.log.Debug("ICE candidate not sent", "conn", connID, "error", err)
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.log.Debug("Peer connection state", "conn", connID, "state", s.String())
		switch s {
		case webrtc.PeerConnectionStateFailed:
			l.fail(ErrICEFailed)
			go l.Close()
		case webrtc.PeerConnectionStateClosed:
			go l.Close()
		}
	})
	return l
}

func (l *Link) ID() string { return l.id }
func (l *Link) PeerID() string { return l.peerID }
func (l *Link) Recv() <-chan []byte { return l.recv }
func (l *Link) Done() <-chan struct{} { return l.done }

func (l *Link) attach(dc *webrtc.DataChannel) {
	l.mu.Lock()
	l.dc = dc
	l.mu.Unlock()

	dc.OnOpen(func() {
		l.openOnce.Do(func() { close(l.opened) })
	})
	// pion hands every callback a fresh buffer, so frames are kept as-is.
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case l.recv <- msg.Data:
		case <-l.done:
		}
	})
	dc.OnClose(func() { go l.Close() })
}

func (l *Link) channel() *webrtc.DataChannel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dc
}

func (l *Link) Send(frame []byte) error {
	select {
	case <-l.done:
		return registry.ErrTransportClosed
	default:
	}
	dc := l.channel()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return registry.ErrTransportClosed
	}
	if err := dc.Send(frame); err != nil {
		return fmt.Errorf("%w: %v", registry.ErrTransportClosed, err)
	}
	return nil
}

func (l *Link) BufferedAmount() uint64 {
	dc := l.channel()
	if dc == nil {
		return 0
	}
	return dc.BufferedAmount()
}

func (l *Link) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		l.prov.untrack(l)
		if dc := l.channel(); dc != nil {
			dc.Close()
		}
		err = l.pc.Close()
	})
	return err
}

func (l *Link) signal(t api.SignalType, payload any) error {
	env, err := api.NewEnvelope(t, l.peerID, l.id, payload)
	if err != nil {
		return err
	}
	return l.prov.sig.Send(env)
}

func (l *Link) fail(err error) {
	select {
	case l.failed <- err:
	default:
	}
}

// remoteReady flushes candidates that arrived before the remote description.
func (l *Link) remoteReady() {
	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, c := range pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			l.prov.log.Warn("Failed to add ICE candidate", "conn", l.id, "error", err)
		}
	}
}

func (l *Link) addCandidate(c webrtc.ICECandidateInit) {
	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, c)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	if err := l.pc.AddICECandidate(c); err != nil {
		l.prov.log.Warn("Failed to add ICE candidate", "conn", l.id, "error", err)
	}
}
