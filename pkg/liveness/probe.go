// Package liveness measures round-trip latency with PING/PONG control messages.
package liveness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rescp17/nwshare/pkg/protocol"
)

const DefaultInterval = 2 * time.Second

type Messenger interface {
	SendMessage(connID string, msg *protocol.Message) error
}

type Probe struct {
	out      Messenger
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger

	// OnLatency is called with every new round-trip measurement.
	OnLatency func(connID string, rtt time.Duration)

	mu      sync.Mutex
	latency map[string]time.Duration
}

func NewProbe(out Messenger, interval time.Duration, logger *slog.Logger) *Probe {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		out:      out,
		interval: interval,
		now:      time.Now,
		log:      logger.With("component", "liveness"),
		latency:  make(map[string]time.Duration),
	}
}

// Run pings connID every interval until ctx ends or done is closed.
func (p *Probe) Run(ctx context.Context, connID string, done <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			p.Ping(connID)
		}
	}
}

func (p *Probe) Ping(connID string) {
	msg, err := protocol.NewMessage(protocol.Ping, protocol.PingPayload{TS: p.now().UnixMilli()})
	if err != nil {
		p.log.Error("Failed to build ping", "error", err)
		return
	}
	if err := p.out.SendMessage(connID, msg); err != nil {
		p.log.Debug("Ping not sent", "conn", connID, "error", err)
	}
}

// HandlePing echoes the payload back unchanged.
func (p *Probe) HandlePing(connID string, msg *protocol.Message) {
	pong := &protocol.Message{Type: protocol.Pong, Payload: msg.Payload}
	if err := p.out.SendMessage(connID, pong); err != nil {
		p.log.Debug("Pong not sent", "conn", connID, "error", err)
	}
}

func (p *Probe) HandlePong(connID string, msg *protocol.Message) {
	var payload protocol.PingPayload
	if err := protocol.DecodePayload(msg, &payload); err != nil {
		p.log.Warn("Ignoring malformed pong", "conn", connID, "error", err)
		return
	}
	rtt := time.Duration(p.now().UnixMilli()-payload.TS) * time.Millisecond
	if rtt < 0 {
		rtt = 0
	}
	p.mu.Lock()
	p.latency[connID] = rtt
	p.mu.Unlock()
	if p.OnLatency != nil {
		p.OnLatency(connID, rtt)
	}
}

func (p *Probe) Latency(connID string) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rtt, ok := p.latency[connID]
	return rtt, ok
}

func (p *Probe) Forget(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.latency, connID)
}
