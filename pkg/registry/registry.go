package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rescp17/nwshare/pkg/protocol"
)

const (
	DefaultHighWatermark uint64 = 12 * 1024 * 1024
	DefaultLowWatermark  uint64 = 1024 * 1024
	DefaultPollInterval         = 5 * time.Millisecond
)

type Status string

const (
	StatusReady        Status = "ready"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

type StatusEvent struct {
	Status       Status
	ConnectionID string
	PeerID       string
}

// Handlers receive registry events. Callbacks for different connections may
// run concurrently; callbacks for one connection run in order on a single goroutine.
type Handlers struct {
	OnConnection func(pc *PeerConnection)
	OnData       func(pc *PeerConnection, frame *protocol.Frame)
	OnStatus     func(ev StatusEvent)
	OnError      func(err error)
}

type Options struct {
	HighWatermark uint64
	LowWatermark  uint64
	PollInterval  time.Duration
	Codec         protocol.Codec
	Logger        *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.HighWatermark == 0 {
		o.HighWatermark = DefaultHighWatermark
	}
	if o.LowWatermark == 0 || o.LowWatermark > o.HighWatermark {
		o.LowWatermark = DefaultLowWatermark
		if o.LowWatermark > o.HighWatermark {
			o.LowWatermark = o.HighWatermark / 2
		}
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Codec == nil {
		o.Codec = protocol.NewJSONCodec()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// PeerConnection is a live connection owned by a Registry.
type PeerConnection struct {
	link      Link
	closed    atomic.Bool
	closeOnce sync.Once
}

func (pc *PeerConnection) ID() string     { return pc.link.ID() }
func (pc *PeerConnection) PeerID() string { return pc.link.PeerID() }

func (pc *PeerConnection) IsOpen() bool {
	if pc.closed.Load() {
		return false
	}
	select {
	case <-pc.link.Done():
		return false
	default:
		return true
	}
}

func (pc *PeerConnection) BufferedAmount() uint64 {
	return pc.link.BufferedAmount()
}

func (pc *PeerConnection) Done() <-chan struct{} {
	return pc.link.Done()
}

func (pc *PeerConnection) send(frame []byte) error {
	if !pc.IsOpen() {
		return ErrTransportClosed
	}
	return pc.link.Send(frame)
}

// markClosed reports true only for the first caller.
func (pc *PeerConnection) markClosed() bool {
	first := false
	pc.closeOnce.Do(func() {
		pc.closed.Store(true)
		first = true
	})
	return first
}

// Registry owns every live connection over one Provider.
type Registry struct {
	provider Provider
	handlers Handlers
	opts     Options
	log      *slog.Logger

	mu        sync.RWMutex
	conns     map[string]*PeerConnection
	accepting bool
	destroyed bool
	wg        sync.WaitGroup
}

func New(provider Provider, handlers Handlers, opts Options) *Registry {
	opts.applyDefaults()
	return &Registry{
		provider:  provider,
		handlers:  handlers,
		opts:      opts,
		log:       opts.Logger.With("component", "registry"),
		conns:     make(map[string]*PeerConnection),
		accepting: true,
	}
}

func (r *Registry) LocalID() string {
	return r.provider.LocalID()
}

func (r *Registry) Codec() protocol.Codec {
	return r.opts.Codec
}

// Serve accepts incoming links until ctx ends or the provider is closed.
func (r *Registry) Serve(ctx context.Context) error {
	r.emitStatus(StatusEvent{Status: StatusReady, PeerID: r.provider.LocalID()})
	for {
		link, err := r.provider.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrProviderClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		r.mu.RLock()
		refuse := !r.accepting || r.destroyed
		r.mu.RUnlock()
		if refuse {
			r.log.Info("Refusing incoming connection", "peer", link.PeerID())
			_ = link.Close()
			continue
		}
		r.adopt(link)
	}
}

// Connect dials remoteID. Failures are reported through OnError as a
// *ConnectivityError and returned.
func (r *Registry) Connect(ctx context.Context, remoteID string) (*PeerConnection, error) {
	r.mu.RLock()
	destroyed := r.destroyed
	r.mu.RUnlock()
	if destroyed {
		return nil, ErrDestroyed
	}

	link, err := r.provider.Connect(ctx, remoteID)
	if err != nil {
		cerr := &ConnectivityError{PeerID: remoteID, Err: err}
		r.log.Warn("Connection attempt failed", "peer", remoteID, "error", err)
		r.emitError(cerr)
		return nil, cerr
	}
	pc := r.adopt(link)
	if pc == nil {
		return nil, ErrDestroyed
	}
	return pc, nil
}

// adopt registers link and starts its reader. It returns nil when the
// registry has already been destroyed.
func (r *Registry) adopt(link Link) *PeerConnection {
	pc := &PeerConnection{link: link}

	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		_ = link.Close()
		return nil
	}
	r.conns[link.ID()] = pc
	r.wg.Add(1)
	r.mu.Unlock()

	r.log.Info("Connection open", "conn", link.ID(), "peer", link.PeerID())
	if r.handlers.OnConnection != nil {
		r.handlers.OnConnection(pc)
	}
	r.emitStatus(StatusEvent{Status: StatusConnected, ConnectionID: link.ID(), PeerID: link.PeerID()})

	go r.readLoop(pc)
	return pc
}

func (r *Registry) readLoop(pc *PeerConnection) {
	defer r.wg.Done()
	defer r.release(pc)

	recv := pc.link.Recv()
	for {
		select {
		case raw, ok := <-recv:
			if !ok {
				return
			}
			r.dispatch(pc, raw)
		case <-pc.link.Done():
			// deliver whatever already arrived before the close
			for {
				select {
				case raw, ok := <-recv:
					if !ok {
						return
					}
					r.dispatch(pc, raw)
				default:
					return
				}
			}
		}
	}
}

func (r *Registry) dispatch(pc *PeerConnection, raw []byte) {
	frame, err := protocol.Classify(r.opts.Codec, raw)
	if err != nil {
		r.log.Warn("Dropping unreadable frame", "conn", pc.ID(), "error", err)
		r.emitError(fmt.Errorf("connection %s: %w", pc.ID(), err))
		return
	}
	if r.handlers.OnData != nil {
		r.handlers.OnData(pc, frame)
	}
}

func (r *Registry) release(pc *PeerConnection) {
	r.mu.Lock()
	if cur, ok := r.conns[pc.ID()]; ok && cur == pc {
		delete(r.conns, pc.ID())
	}
	r.mu.Unlock()

	_ = pc.link.Close()
	if pc.markClosed() {
		r.log.Info("Connection closed", "conn", pc.ID(), "peer", pc.PeerID())
		r.emitStatus(StatusEvent{Status: StatusDisconnected, ConnectionID: pc.ID(), PeerID: pc.PeerID()})
	}
}

func (r *Registry) Get(connID string) (*PeerConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pc, ok := r.conns[connID]
	return pc, ok
}

// Connections returns the open connections ordered by id.
func (r *Registry) Connections() []*PeerConnection {
	r.mu.RLock()
	out := make([]*PeerConnection, 0, len(r.conns))
	for _, pc := range r.conns {
		if pc.IsOpen() {
			out = append(out, pc)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// SendTo sends a pre-encoded frame. Unknown or closed connections are ignored.
func (r *Registry) SendTo(connID string, frame []byte) {
	pc, ok := r.Get(connID)
	if !ok {
		return
	}
	if err := pc.send(frame); err != nil && !errors.Is(err, ErrTransportClosed) {
		r.log.Warn("Send failed", "conn", connID, "error", err)
	}
}

// Broadcast sends frame to every open connection. One failing peer never
// stops delivery to the others.
func (r *Registry) Broadcast(frame []byte) {
	for _, pc := range r.Connections() {
		if err := pc.send(frame); err != nil && !errors.Is(err, ErrTransportClosed) {
			r.log.Warn("Broadcast send failed", "conn", pc.ID(), "error", err)
		}
	}
}

func (r *Registry) SendMessage(connID string, msg *protocol.Message) error {
	frame, err := protocol.EncodeControl(r.opts.Codec, msg)
	if err != nil {
		return err
	}
	r.SendTo(connID, frame)
	return nil
}

func (r *Registry) BroadcastMessage(msg *protocol.Message) error {
	frame, err := protocol.EncodeControl(r.opts.Codec, msg)
	if err != nil {
		return err
	}
	r.Broadcast(frame)
	return nil
}

func (r *Registry) SendChunk(connID string, data []byte) {
	r.SendTo(connID, protocol.EncodeChunk(data))
}

// WaitForCapacity returns immediately while the outbound buffer is below the
// high watermark. Otherwise it waits until the buffer drains below the low
// watermark, the connection closes or ctx ends.
func (r *Registry) WaitForCapacity(ctx context.Context, connID string) error {
	pc, ok := r.Get(connID)
	if !ok || !pc.IsOpen() {
		return ErrTransportClosed
	}
	if pc.BufferedAmount() < r.opts.HighWatermark {
		return nil
	}

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pc.Done():
			return ErrTransportClosed
		case <-ticker.C:
			if !pc.IsOpen() {
				return ErrTransportClosed
			}
			if pc.BufferedAmount() < r.opts.LowWatermark {
				return nil
			}
		}
	}
}

// Flush waits until every open connection has handed its queued bytes to the network.
func (r *Registry) Flush(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	for {
		pending := false
		for _, pc := range r.Connections() {
			if pc.BufferedAmount() > 0 {
				pending = true
				break
			}
		}
		if !pending {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// StopAccepting makes Serve close any further incoming links at once.
func (r *Registry) StopAccepting() {
	r.mu.Lock()
	r.accepting = false
	r.mu.Unlock()
}

func (r *Registry) Close(connID string) {
	if pc, ok := r.Get(connID); ok {
		_ = pc.link.Close()
	}
}

// Destroy closes every connection and the provider. It is safe to call more
// than once and from inside a handler; use Wait to block until every reader
// has delivered its final disconnected event.
func (r *Registry) Destroy() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	r.accepting = false
	conns := make([]*PeerConnection, 0, len(r.conns))
	for _, pc := range r.conns {
		conns = append(conns, pc)
	}
	r.mu.Unlock()

	for _, pc := range conns {
		_ = pc.link.Close()
	}
	if err := r.provider.Close(); err != nil {
		r.log.Warn("Provider close failed", "error", err)
	}
}

func (r *Registry) Wait() {
	r.wg.Wait()
}

func (r *Registry) emitStatus(ev StatusEvent) {
	if r.handlers.OnStatus != nil {
		r.handlers.OnStatus(ev)
	}
}

func (r *Registry) emitError(err error) {
	if r.handlers.OnError != nil {
		r.handlers.OnError(err)
	}
}
