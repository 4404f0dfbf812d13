// Package memconn is an in-process connection provider. Links behave like an
// ordered data channel: every sent frame stays counted in BufferedAmount until
// the remote reader has taken it.
package memconn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rescp17/nwshare/pkg/registry"
)

var (
	ErrPeerUnavailable = errors.New("peer unavailable")
	ErrIDTaken         = errors.New("peer id already registered")
)

type Options struct {
	// FrameDelay is slept before each frame is delivered, throttling throughput.
	FrameDelay time.Duration
	// OnSend observes every frame right before it is queued.
	OnSend func(linkID string, bufferedBefore uint64, frame []byte)
}

// Network connects Providers by id.
type Network struct {
	opts Options

	mu        sync.Mutex
	providers map[string]*Provider
	links     map[string]*Link // keyed by connection id + "/" + local peer id
}

func NewNetwork(opts Options) *Network {
	return &Network{
		opts:      opts,
		providers: make(map[string]*Provider),
		links:     make(map[string]*Link),
	}
}

// Outbound returns the end of connection connID owned by localID.
func (n *Network) Outbound(connID, localID string) (*Link, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.links[connID+"/"+localID]
	return l, ok
}

// Provider registers a new endpoint under id.
func (n *Network) Provider(id string) (*Provider, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.providers[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrIDTaken, id)
	}
	p := &Provider{
		net:    n,
		id:     id,
		accept: make(chan *Link),
		done:   make(chan struct{}),
	}
	n.providers[id] = p
	return p, nil
}

func (n *Network) lookup(id string) (*Provider, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.providers[id]
	return p, ok
}

func (n *Network) remove(p *Provider) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cur, ok := n.providers[p.id]; ok && cur == p {
		delete(n.providers, p.id)
	}
}

type Provider struct {
	net       *Network
	id        string
	accept    chan *Link
	done      chan struct{}
	closeOnce sync.Once
}

var _ registry.Provider = (*Provider)(nil)

func (p *Provider) LocalID() string { return p.id }

func (p *Provider) Connect(ctx context.Context, remoteID string) (registry.Link, error) {
	remote, ok := p.net.lookup(remoteID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerUnavailable, remoteID)
	}
	local, far := newPair(p.net.opts, uuid.NewString(), p.id, remoteID)
	select {
	case remote.accept <- far:
	case <-remote.done:
		local.Close()
		return nil, fmt.Errorf("%w: %s", ErrPeerUnavailable, remoteID)
	case <-ctx.Done():
		local.Close()
		return nil, ctx.Err()
	}
	p.net.mu.Lock()
	p.net.links[local.id+"/"+p.id] = local
	p.net.links[far.id+"/"+remoteID] = far
	p.net.mu.Unlock()
	return local, nil
}

// Links counts the connection ends known to the network.
func (n *Network) Links() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.links)
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

func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		p.net.remove(p)
		close(p.done)
	})
	return nil
}

type pipe struct {
	done chan struct{}
	once sync.Once
}

func (p *pipe) close() {
	p.once.Do(func() { close(p.done) })
}

// Link is one end of an in-memory connection.
type Link struct {
	id     string
	peerID string
	opts   Options
	pipe   *pipe
	peer   *Link

	recv     chan []byte
	notify   chan struct{}
	buffered atomic.Uint64

	mu    sync.Mutex
	queue [][]byte
	gate  chan struct{}
}

var _ registry.Link = (*Link)(nil)

func newPair(opts Options, connID, localID, remoteID string) (*Link, *Link) {
	shared := &pipe{done: make(chan struct{})}
	a := newLink(opts, connID, remoteID, shared)
	b := newLink(opts, connID, localID, shared)
	a.peer, b.peer = b, a
	go a.pump()
	go b.pump()
	return a, b
}

func newLink(opts Options, connID, peerID string, shared *pipe) *Link {
	gate := make(chan struct{})
	close(gate)
	return &Link{
		id:     connID,
		peerID: peerID,
		opts:   opts,
		pipe:   shared,
		recv:   make(chan []byte),
		notify: make(chan struct{}, 1),
		gate:   gate,
	}
}

func (l *Link) ID() string { return l.id }
func (l *Link) PeerID() string { return l.peerID }
func (l *Link) Recv() <-chan []byte { return l.recv }
func (l *Link) Done() <-chan struct{} { return l.pipe.done }
func (l *Link) BufferedAmount() uint64 { return l.buffered.Load() }
func (l *Link) Close() error { l.pipe.close(); return nil }

func (l *Link) Send(frame []byte) error {
	select {
	case <-l.pipe.done:
		return registry.ErrTransportClosed
	default:
	}
	if l.opts.OnSend != nil {
		l.opts.OnSend(l.id, l.buffered.Load(), frame)
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)

	l.mu.Lock()
	l.queue = append(l.queue, buf)
	l.buffered.Add(uint64(len(buf)))
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
	return nil
}

// Stall stops delivery of queued frames until Resume.
func (l *Link) Stall() {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.gate:
		l.gate = make(chan struct{})
	default:
	}
}

func (l *Link) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.gate:
	default:
		close(l.gate)
	}
}

func (l *Link) pump() {
	for {
		select {
		case <-l.notify:
		case <-l.pipe.done:
			return
		}
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			frame := l.queue[0]
			gate := l.gate
			l.mu.Unlock()

			select {
			case <-gate:
			case <-l.pipe.done:
				return
			}
			if l.opts.FrameDelay > 0 {
				time.Sleep(l.opts.FrameDelay)
			}
			select {
			case l.peer.recv <- frame:
			case <-l.pipe.done:
				return
			}

			l.mu.Lock()
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()
			l.buffered.Add(^uint64(len(frame) - 1))
		}
	}
}
