// Package sender runs the host side of a sharing session: it offers a
// catalogue of files to every guest that connects and streams the ones they ask for.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	appevents "github.com/rescp17/nwshare/internal/app_events"
	"github.com/rescp17/nwshare/internal/app_events/sender"
	"github.com/rescp17/nwshare/pkg/catalog"
	"github.com/rescp17/nwshare/pkg/chat"
	"github.com/rescp17/nwshare/pkg/discovery"
	"github.com/rescp17/nwshare/pkg/liveness"
	"github.com/rescp17/nwshare/pkg/protocol"
	"github.com/rescp17/nwshare/pkg/registry"
	"github.com/rescp17/nwshare/pkg/session"
	"github.com/rescp17/nwshare/pkg/transfer"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultEndGrace      = time.Second
	DefaultExpiryCheck   = 500 * time.Millisecond
	DefaultFlushTimeout  = 5 * time.Second
	defaultUIBufferDepth = 64
)

type Options struct {
	Transfer      *transfer.Config
	Session       session.Config
	ProbeInterval time.Duration
	// EndGrace is how long the session lingers after it stops accepting guests.
	EndGrace     time.Duration
	ExpiryCheck  time.Duration
	FlushTimeout time.Duration

	// Announce, when set, advertises the session on the local network.
	Announce   discovery.Adapter
	Instance   string
	Rendezvous string

	Logger *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Transfer == nil {
		o.Transfer = transfer.DefaultConfig()
	}
	if o.EndGrace <= 0 {
		o.EndGrace = DefaultEndGrace
	}
	if o.ExpiryCheck <= 0 {
		o.ExpiryCheck = DefaultExpiryCheck
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = DefaultFlushTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// App is the main application logic controller for the host.
type App struct {
	code     string
	opts     Options
	log      *slog.Logger
	files    *catalog.Catalog
	gate     *session.Gate
	quota    *session.Quota
	registry *registry.Registry
	engine   *transfer.Sender
	probe    *liveness.Probe
	chat     *chat.Log

	uiMessages chan tea.Msg            // App -> TUI
	appEvents  chan appevents.AppEvent // TUI -> App

	// transfers outlive Run's context only until the session is torn down
	transferCtx    context.Context
	cancelTransfer context.CancelFunc

	mu        sync.Mutex
	runCtx    context.Context
	endReason session.EndReason
	ending    chan struct{}
	done      chan struct{}
	peers     map[string]string
}

// NewApp creates a host over provider. The provider's local id must be the
// session's peer id.
func NewApp(provider registry.Provider, files *catalog.Catalog, opts Options) (*App, error) {
	opts.applyDefaults()
	if err := opts.Transfer.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transfer config: %w", err)
	}
	if err := opts.Session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	code, ok := session.CodeFromPeerID(provider.LocalID())
	if !ok {
		return nil, fmt.Errorf("provider id %q is not a session peer id", provider.LocalID())
	}

	tctx, cancel := context.WithCancel(context.Background())
	a := &App{
		code:           code,
		opts:           opts,
		log:            opts.Logger.With("role", "host", "code", code),
		files:          files,
		gate:           session.NewGate(opts.Session.Password),
		quota:          session.NewQuota(opts.Session),
		chat:           chat.NewLog(),
		uiMessages:     make(chan tea.Msg, defaultUIBufferDepth),
		appEvents:      make(chan appevents.AppEvent),
		transferCtx:    tctx,
		cancelTransfer: cancel,
		runCtx:         context.Background(),
		ending:         make(chan struct{}),
		done:           make(chan struct{}),
		peers:          make(map[string]string),
	}

	a.registry = registry.New(provider, registry.Handlers{
		OnConnection: a.onConnection,
		OnData:       a.onData,
		OnStatus:     a.onStatus,
		OnError: func(err error) {
			a.log.Warn("Registry error", "error", err)
		},
	}, registry.Options{
		HighWatermark: opts.Transfer.HighWatermark,
		LowWatermark:  opts.Transfer.LowWatermark,
		PollInterval:  opts.Transfer.CapacityPollInterval,
		Logger:        a.log,
	})

	a.engine = transfer.NewSender(a.registry, opts.Transfer, transfer.SenderHooks{
		OnProgress: a.onTransferProgress,
		OnComplete: a.onTransferComplete,
		OnFailed:   a.onTransferFailed,
	}, a.log)

	a.probe = liveness.NewProbe(a.registry, opts.ProbeInterval, a.log)
	a.probe.OnLatency = func(connID string, rtt time.Duration) {
		a.post(sender.LatencyMsg{ConnID: connID, RTT: rtt})
	}
	return a, nil
}

func (a *App) Code() string   { return a.code }
func (a *App) PeerID() string { return a.registry.LocalID() }

// UIMessages returns the channel for the UI to listen on for updates.
func (a *App) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

// AppEvents returns a write-only channel for the TUI to send events to the app.
func (a *App) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

// Done is closed once the session has been torn down.
func (a *App) Done() <-chan struct{} {
	return a.done
}

func (a *App) EndReason() session.EndReason {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.endReason
}

// Run serves guests until the session ends or ctx is cancelled. Cancelling ctx
// aborts running transfers; Stop lets them finish.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	a.post(sender.SessionReadyMsg{Code: a.code, PeerID: a.PeerID()})
	a.log.Info("Session open", "files", a.files.Len(), "locked", a.gate.Locked(), "limit", a.quota.Limit())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.registry.Serve(gctx)
	})

	g.Go(func() error {
		return a.watchExpiry(gctx)
	})

	g.Go(func() error {
		return a.eventLoop(gctx)
	})

	if a.opts.Announce != nil {
		g.Go(func() error {
			return a.announce(gctx)
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			a.cancelTransfer()
			a.end(session.EndReasonUser)
		case <-a.done:
		}
		<-a.done
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) eventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.done:
			return nil
		case event := <-a.appEvents:
			switch e := event.(type) {
			case sender.RemoveFileEvent:
				a.RemoveFile(e.FileID)
			case sender.SendTextEvent:
				a.SendText(e.Text)
			case sender.NudgeEvent:
				a.Nudge()
			case sender.StopSessionEvent:
				a.Stop()
			default:
				a.log.Warn("Received unhandled app event", "event", event)
			}
		}
	}
}

func (a *App) watchExpiry(ctx context.Context) error {
	if a.opts.Session.ExpiresAt.IsZero() {
		return nil
	}
	ticker := time.NewTicker(a.opts.ExpiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.ending:
			return nil
		case <-ticker.C:
			if a.quota.Expired() {
				a.end(session.EndReasonTime)
				return nil
			}
		}
	}
}

func (a *App) announce(ctx context.Context) error {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.ending:
			cancel()
		case <-actx.Done():
		}
	}()
	info := discovery.NewSessionService(a.opts.Instance, a.code, a.opts.Rendezvous, a.gate.Locked())
	if err := a.opts.Announce.Announce(actx, info); err != nil {
		// the session still works without LAN discovery
		a.sendAndLogError("Failed to announce session", err)
	}
	return nil
}

// Stop ends the session once running transfers have finished.
func (a *App) Stop() {
	a.end(session.EndReasonUser)
}

// end stops accepting guests and tears the session down in the background.
// Only the first reason is kept.
func (a *App) end(reason session.EndReason) {
	a.mu.Lock()
	if a.endReason != session.EndReasonNone {
		a.mu.Unlock()
		return
	}
	a.endReason = reason
	close(a.ending)
	a.mu.Unlock()

	a.log.Info("Session ending", "reason", reason)
	a.registry.StopAccepting()
	a.post(sender.SessionEndingMsg{Reason: reason})
	go a.teardown(reason)
}

func (a *App) teardown(reason session.EndReason) {
	time.Sleep(a.opts.EndGrace)
	a.engine.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.FlushTimeout)
	if err := a.registry.Flush(ctx); err != nil {
		a.log.Warn("Outbound queues not drained before teardown", "error", err)
	}
	cancel()

	a.registry.Destroy()
	a.registry.Wait()
	a.cancelTransfer()

	a.log.Info("Session ended", "reason", reason, "downloads", a.quota.Downloads(), "bytes", a.quota.BytesSent())
	a.post(sender.SessionEndedMsg{Reason: reason})
	close(a.done)
}

func (a *App) onConnection(pc *registry.PeerConnection) {
	a.mu.Lock()
	a.peers[pc.ID()] = pc.PeerID()
	ctx := a.runCtx
	a.mu.Unlock()

	a.sendManifest(pc.ID())
	go a.probe.Run(ctx, pc.ID(), pc.Done())
	a.post(sender.PeerConnectedMsg{ConnID: pc.ID(), PeerID: pc.PeerID()})
}

func (a *App) onStatus(ev registry.StatusEvent) {
	if ev.Status != registry.StatusDisconnected {
		return
	}
	a.mu.Lock()
	delete(a.peers, ev.ConnectionID)
	a.mu.Unlock()

	a.engine.CancelConnection(ev.ConnectionID)
	a.gate.Forget(ev.ConnectionID)
	a.probe.Forget(ev.ConnectionID)
	a.post(sender.PeerDisconnectedMsg{ConnID: ev.ConnectionID})
}

func (a *App) onData(pc *registry.PeerConnection, frame *protocol.Frame) {
	if frame.Kind == protocol.KindChunk {
		a.log.Warn("Ignoring chunk from guest", "conn", pc.ID(), "bytes", len(frame.Chunk))
		return
	}
	msg := frame.Message
	connID := pc.ID()

	switch msg.Type {
	case protocol.VerifyPassword:
		a.handleVerify(connID, msg)
	case protocol.RequestFile:
		a.handleRequest(connID, msg)
	case protocol.Text:
		var p protocol.TextPayload
		if err := protocol.DecodePayload(msg, &p); err != nil {
			a.log.Warn("Bad text message", "conn", connID, "error", err)
			return
		}
		if m, ok := a.chat.Append(p.Text, chat.Peer); ok {
			a.post(sender.ChatMsg{Message: m})
		}
	case protocol.Ping:
		a.probe.HandlePing(connID, msg)
	case protocol.Pong:
		a.probe.HandlePong(connID, msg)
	case protocol.Nudge:
		a.post(sender.NudgedMsg{ConnID: connID})
	default:
		a.log.Debug("Ignoring message", "conn", connID, "type", msg.Type)
	}
}

func (a *App) handleVerify(connID string, msg *protocol.Message) {
	var p protocol.VerifyPasswordPayload
	if err := protocol.DecodePayload(msg, &p); err != nil {
		a.log.Warn("Bad password message", "conn", connID, "error", err)
		return
	}
	if err := a.gate.Verify(connID, p.Password); err != nil {
		a.log.Info("Password rejected", "conn", connID)
		a.send(connID, protocol.PasswordIncorrect, nil)
		return
	}
	a.log.Info("Password accepted", "conn", connID)
	a.send(connID, protocol.PasswordCorrect, nil)
	a.sendManifest(connID)
}

func (a *App) handleRequest(connID string, msg *protocol.Message) {
	var p protocol.RequestFilePayload
	if err := protocol.DecodePayload(msg, &p); err != nil {
		a.log.Warn("Bad file request", "conn", connID, "error", err)
		return
	}
	if !a.gate.Unlocked(connID) {
		a.refuse(connID, p.FileID, protocol.CodeLocked, "password required")
		return
	}
	if err := a.quota.Check(); err != nil {
		code := protocol.CodeQuotaExceeded
		if errors.Is(err, session.ErrExpired) {
			code = protocol.CodeExpired
		}
		a.refuse(connID, p.FileID, code, err.Error())
		return
	}
	select {
	case <-a.ending:
		a.refuse(connID, p.FileID, protocol.CodeExpired, "session is ending")
		return
	default:
	}

	entry, err := a.files.Get(p.FileID)
	if err != nil {
		a.refuse(connID, p.FileID, protocol.CodeNotFound, "no such file")
		return
	}
	if err := a.engine.Start(a.transferCtx, connID, entry.Meta, entry.Open); err != nil {
		if errors.Is(err, transfer.ErrTransferActive) {
			// the guest's scheduler already waits for the running file
			return
		}
		a.log.Error("Could not start transfer", "conn", connID, "file", entry.Meta.Name, "error", err)
	}
}

func (a *App) refuse(connID, fileID, code, message string) {
	a.log.Info("Refusing file request", "conn", connID, "file", fileID, "code", code)
	a.send(connID, protocol.Error, protocol.ErrorPayload{Code: code, Message: message, FileID: fileID})
}

func (a *App) onTransferProgress(st transfer.TransferStatus) {
	a.post(sender.TransferUpdateMsg{Status: st})
}

func (a *App) onTransferComplete(st transfer.TransferStatus) {
	count, exhausted := a.quota.RecordDownload(st.FileID, st.BytesTransferred)
	a.log.Info("Download recorded", "file", st.FileName, "downloads", count)
	a.post(sender.TransferUpdateMsg{Status: st})
	if exhausted {
		a.end(session.EndReasonLimit)
	}
}

func (a *App) onTransferFailed(st transfer.TransferStatus) {
	a.post(sender.TransferUpdateMsg{Status: st})
	if errors.Is(st.LastError, registry.ErrTransportClosed) {
		return
	}
	if pc, ok := a.registry.Get(st.ConnectionID); !ok || !pc.IsOpen() {
		return
	}
	// no END_FILE follows, so the guest learns about the failure here
	a.send(st.ConnectionID, protocol.Error, protocol.ErrorPayload{
		Code:    protocol.CodeFailed,
		Message: "could not send " + st.FileName,
		FileID:  st.FileID,
	})
}

func (a *App) sendManifest(connID string) {
	a.send(connID, protocol.Manifest, a.gate.ManifestFor(connID, a.files.Metas()))
}

// RemoveFile takes a file off the catalogue and re-sends the manifest to
// every guest that can see it.
func (a *App) RemoveFile(fileID string) bool {
	if !a.files.Remove(fileID) {
		return false
	}
	for _, pc := range a.registry.Connections() {
		if a.gate.Unlocked(pc.ID()) {
			a.sendManifest(pc.ID())
		}
	}
	return true
}

// SendText records text and broadcasts it to every guest.
func (a *App) SendText(text string) {
	m, ok := a.chat.Append(text, chat.Self)
	if !ok {
		return
	}
	msg, err := protocol.NewMessage(protocol.Text, protocol.TextPayload{Text: text})
	if err != nil {
		a.sendAndLogError("Failed to build text message", err)
		return
	}
	if err := a.registry.BroadcastMessage(msg); err != nil {
		a.sendAndLogError("Failed to send text message", err)
		return
	}
	a.post(sender.ChatMsg{Message: m})
}

func (a *App) Nudge() {
	msg, _ := protocol.NewMessage(protocol.Nudge, nil)
	if err := a.registry.BroadcastMessage(msg); err != nil {
		a.sendAndLogError("Failed to nudge guests", err)
	}
}

func (a *App) send(connID string, t protocol.MessageType, payload any) {
	msg, err := protocol.NewMessage(t, payload)
	if err != nil {
		a.log.Error("Failed to build message", "type", t, "error", err)
		return
	}
	if err := a.registry.SendMessage(connID, msg); err != nil {
		a.log.Warn("Failed to send message", "conn", connID, "type", t, "error", err)
	}
}

// post never blocks; a slow or absent UI loses updates, not the session.
func (a *App) post(msg tea.Msg) {
	select {
	case a.uiMessages <- msg:
	default:
		a.log.Debug("UI queue full, dropping update", "msg", fmt.Sprintf("%T", msg))
	}
}

// sendAndLogError is a helper function to both log an error and send it to the UI.
func (a *App) sendAndLogError(baseMessage string, err error) {
	a.log.Error(baseMessage, "error", err)
	a.post(appevents.Error{Err: fmt.Errorf("%s: %w", baseMessage, err)})
}
