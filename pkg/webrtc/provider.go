package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rescp17/nwshare/api"
	"github.com/rescp17/nwshare/pkg/registry"
)

// HandshakeTimeout bounds how long an offered link may take to open its data channel.
const HandshakeTimeout = 30 * time.Second

var (
	ErrPeerUnavailable = errors.New("peer unavailable")
	ErrSignalingLost   = errors.New("rendezvous connection lost")
	ErrICEFailed       = errors.New("ICE connection failed")
)

// Provider implements registry.Provider on top of a Signaler.
type Provider struct {
	api *WebRTCAPI
	sig Signaler
	log *slog.Logger

	mu       sync.Mutex
	links    map[string]*Link
	sigLost  bool
	accept   chan *Link
	done     chan struct{}
	closeErr error
	once     sync.Once
}

var _ registry.Provider = (*Provider)(nil)

// NewProvider starts reading sig. The Provider owns sig and closes it on Close.
func NewProvider(sig Signaler, cfg Config) *Provider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{
		api:    NewWebRTCAPI(cfg),
		sig:    sig,
		log:    logger.With("component", "webrtc", "peer", sig.LocalID()),
		links:  make(map[string]*Link),
		accept: make(chan *Link),
		done:   make(chan struct{}),
	}
	go p.dispatch()
	return p
}

func (p *Provider) LocalID() string { return p.sig.LocalID() }

func (p *Provider) Connect(ctx context.Context, remoteID string) (registry.Link, error) {
	p.mu.Lock()
	lost := p.sigLost
	p.mu.Unlock()
	select {
	case <-p.done:
		return nil, registry.ErrProviderClosed
	default:
	}
	if lost {
		return nil, ErrSignalingLost
	}

	pc, err := p.api.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	l := newLink(p, uuid.NewString(), remoteID, pc)
	p.track(l)

	ordered := true
	dc, err := pc.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}
	l.attach(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}
	if err := l.signal(api.SignalOffer, offer); err != nil {
		l.Close()
		return nil, err
	}
	p.log.Debug("Offer sent", "conn", l.id, "remote", remoteID)

	select {
	case <-l.opened:
		p.log.Info("Data channel open", "conn", l.id, "remote", remoteID)
		return l, nil
	case err := <-l.failed:
		l.Close()
		return nil, err
	case <-ctx.Done():
		l.Close()
		return nil, ctx.Err()
	case <-p.done:
		l.Close()
		return nil, registry.ErrProviderClosed
	}
}

func (p *Provider) Accept(ctx context.Context) (registry.Link, error) {
	select {
	case l := <-p.accept:
		return l, nil
	case <-p.done:
		return nil, registry.ErrProviderClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes every link and the signaler.
func (p *Provider) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.mu.Lock()
		links := make([]*Link, 0, len(p.links))
		for _, l := range p.links {
			links = append(links, l)
		}
		p.mu.Unlock()
		for _, l := range links {
			l.Close()
		}
		p.closeErr = p.sig.Close()
	})
	return p.closeErr
}

func (p *Provider) track(l *Link) {
	p.mu.Lock()
	p.links[l.id] = l
	p.mu.Unlock()
}

func (p *Provider) untrack(l *Link) {
	p.mu.Lock()
	if cur, ok := p.links[l.id]; ok && cur == l {
		delete(p.links, l.id)
	}
	p.mu.Unlock()
}

func (p *Provider) lookup(connID string) (*Link, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.links[connID]
	return l, ok
}

func (p *Provider) dispatch() {
	for env := range p.sig.Incoming() {
		p.handle(env)
	}
	select {
	case <-p.done:
		return
	default:
	}
	p.log.Warn("Rendezvous connection lost; open links stay up, new ones cannot be made")
	p.mu.Lock()
	p.sigLost = true
	pending := make([]*Link, 0)
	for _, l := range p.links {
		pending = append(pending, l)
	}
	p.mu.Unlock()
	for _, l := range pending {
		l.fail(ErrSignalingLost)
	}
}

func (p *Provider) handle(env api.Envelope) {
	switch env.Type {
	case api.SignalOffer:
		p.handleOffer(env)
	case api.SignalAnswer:
		l, ok := p.lookup(env.ConnID)
		if !ok {
			return
		}
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(env.Payload, &answer); err != nil {
			l.fail(fmt.Errorf("invalid answer: %w", err))
			return
		}
		if err := l.pc.SetRemoteDescription(answer); err != nil {
			l.fail(fmt.Errorf("failed to set remote description: %w", err))
			return
		}
		l.remoteReady()
	case api.SignalCandidate:
		l, ok := p.lookup(env.ConnID)
		if !ok {
			return
		}
		var c webrtc.ICECandidateInit
		if err := json.Unmarshal(env.Payload, &c); err != nil {
			p.log.Warn("Invalid ICE candidate", "conn", env.ConnID, "error", err)
			return
		}
		l.addCandidate(c)
	case api.SignalUnavailable:
		if l, ok := p.lookup(env.ConnID); ok {
			l.fail(fmt.Errorf("%w: %s", ErrPeerUnavailable, env.From))
		}
	default:
		p.log.Warn("Unknown signal", "type", env.Type, "from", env.From)
	}
}

func (p *Provider) handleOffer(env api.Envelope) {
	if _, dup := p.lookup(env.ConnID); dup || env.ConnID == "" {
		return
	}
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(env.Payload, &offer); err != nil {
		p.log.Warn("Invalid offer", "from", env.From, "error", err)
		return
	}
	pc, err := p.api.newPeerConnection()
	if err != nil {
		p.log.Error("Failed to create peer connection", "error", err)
		return
	}
	l := newLink(p, env.ConnID, env.From, pc)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != ChannelLabel {
			dc.Close()
			return
		}
		l.attach(dc)
	})
	p.track(l)

	if err := pc.SetRemoteDescription(offer); err != nil {
		p.log.Warn("Rejecting offer", "from", env.From, "error", err)
		l.Close()
		return
	}
	l.remoteReady()
	answer, err := pc.CreateAnswer(nil)
	if err == nil {
		err = pc.SetLocalDescription(answer)
	}
	if err == nil {
		err = l.signal(api.SignalAnswer, answer)
	}
	if err != nil {
		p.log.Warn("Failed to answer offer", "from", env.From, "error", err)
		l.Close()
		return
	}

	go p.handOver(l)
}

// handOver queues an answered link for Accept once its channel opens.
func (p *Provider) handOver(l *Link) {
	timer := time.NewTimer(HandshakeTimeout)
	defer timer.Stop()
	select {
	case <-l.opened:
	case err := <-l.failed:
		p.log.Warn("Incoming link failed", "conn", l.id, "remote", l.peerID, "error", err)
		l.Close()
		return
	case <-timer.C:
		p.log.Warn("Incoming link timed out", "conn", l.id, "remote", l.peerID)
		l.Close()
		return
	case <-l.done:
		return
	case <-p.done:
		return
	}
	select {
	case p.accept <- l:
		p.log.Info("Data channel open", "conn", l.id, "remote", l.peerID)
	case <-l.done:
	case <-p.done:
		l.Close()
	}
}
