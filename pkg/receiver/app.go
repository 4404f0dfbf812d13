// Package receiver runs the guest side of a session: it dials a host by code,
// unlocks the catalogue and downloads files one at a time.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rescp17/nwshare/internal/app"
	appevents "github.com/rescp17/nwshare/internal/app_events"
	"github.com/rescp17/nwshare/internal/app_events/receiver"
	"github.com/rescp17/nwshare/pkg/chat"
	"github.com/rescp17/nwshare/pkg/concurrency"
	"github.com/rescp17/nwshare/pkg/liveness"
	"github.com/rescp17/nwshare/pkg/protocol"
	"github.com/rescp17/nwshare/pkg/registry"
	"github.com/rescp17/nwshare/pkg/session"
	"github.com/rescp17/nwshare/pkg/transfer"
)

var (
	ErrInvalidCode  = errors.New("invalid session code")
	ErrNotConnected = errors.New("not connected to a host")
	ErrLocked       = errors.New("catalogue is locked")
	ErrUnknownFile  = errors.New("file is not in the catalogue")
)

// HostError is a request the host refused with an ERROR message.
type HostError struct {
	Code    string
	Message string
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host refused request (%s): %s", e.Code, e.Message)
}

const defaultUIBufferDepth = 64

type Options struct {
	// Sink stores finished files. Defaults to memory.
	Sink             transfer.Sink
	ProgressInterval time.Duration
	ProbeInterval    time.Duration
	Registry         registry.Options
	Logger           *slog.Logger
}

// App is the main application logic controller for the guest.
type App struct {
	log      *slog.Logger
	guard    *concurrency.ConcurrencyGuard
	state    *app.StateManager
	registry *registry.Registry
	reasm    *transfer.Reassembler
	sched    *transfer.Scheduler
	probe    *liveness.Probe
	chat     *chat.Log

	uiMessages chan tea.Msg
	appEvents  chan appevents.AppEvent

	mu        sync.Mutex
	runCtx    context.Context
	conn      *registry.PeerConnection
	streaming string // file between START_FILE and END_FILE
	manifest  protocol.ManifestPayload
	seen      bool // a manifest has arrived
	rejected  bool // last password attempt failed
	downloads map[string]transfer.Download
	failures  map[string]error
}

// NewApp creates a guest over provider.
func NewApp(provider registry.Provider, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sink == nil {
		opts.Sink = transfer.NewMemorySink()
	}

	a := &App{
		log:        opts.Logger.With("role", "guest"),
		guard:      concurrency.NewConcurrencyGuard(),
		state:      app.NewStateManager(),
		sched:      transfer.NewScheduler(),
		chat:       chat.NewLog(),
		uiMessages: make(chan tea.Msg, defaultUIBufferDepth),
		appEvents:  make(chan appevents.AppEvent),
		runCtx:     context.Background(),
		downloads:  make(map[string]transfer.Download),
		failures:   make(map[string]error),
	}
	a.state.OnChange = func(p app.Phase, err error) {
		a.log.Info("Phase changed", "phase", p, "error", err)
		a.post(receiver.PhaseMsg{Phase: p, Err: err})
	}

	ropts := opts.Registry
	ropts.Logger = a.log
	a.registry = registry.New(provider, registry.Handlers{
		OnConnection: a.onConnection,
		OnData:       a.onData,
		OnStatus:     a.onStatus,
		OnError: func(err error) {
			a.log.Warn("Registry error", "error", err)
		},
	}, ropts)

	a.reasm = transfer.NewReassembler(opts.Sink, opts.ProgressInterval, transfer.ReceiveHooks{
		OnStart:    a.onDownloadProgress,
		OnProgress: a.onDownloadProgress,
		OnComplete: a.onDownloadComplete,
		OnFailed:   a.onDownloadFailed,
	}, a.log)

	a.probe = liveness.NewProbe(a.registry, opts.ProbeInterval, a.log)
	a.probe.OnLatency = func(_ string, rtt time.Duration) {
		a.post(receiver.LatencyMsg{RTT: rtt})
	}
	return a
}

func (a *App) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

func (a *App) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

func (a *App) Phase() app.Phase {
	return a.state.Phase()
}

// Run handles UI events until ctx ends, then closes the connection.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	defer a.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-a.appEvents:
			a.handleEvent(ctx, event)
		}
	}
}

func (a *App) handleEvent(ctx context.Context, event appevents.AppEvent) {
	var err error
	switch e := event.(type) {
	case receiver.ConnectEvent:
		go func() {
			if err := a.Connect(ctx, e.Code); err != nil {
				a.sendAndLogError("Could not reach the host", err)
			}
		}()
	case receiver.SubmitPasswordEvent:
		err = a.VerifyPassword(e.Password)
	case receiver.RequestFileEvent:
		_, err = a.RequestFile(e.FileID)
	case receiver.DownloadAllEvent:
		_, err = a.DownloadAll()
	case receiver.SendTextEvent:
		err = a.SendText(e.Text)
	case receiver.NudgeEvent:
		err = a.Nudge()
	default:
		a.log.Warn("Received unhandled app event", "event", event)
	}
	if err != nil {
		a.sendAndLogError("Request failed", err)
	}
}

// Connect dials the host behind code. Only one attempt runs at a time.
func (a *App) Connect(ctx context.Context, code string) error {
	return a.guard.ExecuteWithContext(ctx, func(ctx context.Context) error {
		return a.connect(ctx, strings.TrimSpace(code))
	})
}

func (a *App) connect(ctx context.Context, code string) error {
	if err := a.state.Advance(app.PhaseLookup); err != nil {
		return err
	}
	if !session.ValidCode(code) {
		err := fmt.Errorf("%w: %q", ErrInvalidCode, code)
		_ = a.state.Fail(err)
		return err
	}
	if err := a.state.Advance(app.PhaseHandshake); err != nil {
		return err
	}
	if _, err := a.registry.Connect(ctx, session.PeerID(code)); err != nil {
		_ = a.state.Fail(err)
		return err
	}
	return nil
}

// Close drops the connection and releases the registry.
func (a *App) Close() {
	a.registry.Destroy()
	a.registry.Wait()
}

func (a *App) onConnection(pc *registry.PeerConnection) {
	a.mu.Lock()
	a.conn = pc
	a.streaming = ""
	a.seen = false
	a.rejected = false
	a.manifest = protocol.ManifestPayload{}
	ctx := a.runCtx
	a.mu.Unlock()

	if err := a.state.Advance(app.PhaseConnected); err != nil {
		a.log.Warn("Unexpected connection", "conn", pc.ID(), "error", err)
	}
	go a.probe.Run(ctx, pc.ID(), pc.Done())
}

func (a *App) onStatus(ev registry.StatusEvent) {
	if ev.Status != registry.StatusDisconnected {
		return
	}
	a.mu.Lock()
	current := a.conn != nil && a.conn.ID() == ev.ConnectionID
	if current {
		a.conn = nil
		a.streaming = ""
	}
	a.mu.Unlock()
	if !current {
		return
	}

	a.reasm.Fail(ev.ConnectionID, registry.ErrTransportClosed)
	a.sched.Reset()
	a.probe.Forget(ev.ConnectionID)
	_ = a.state.Fail(registry.ErrTransportClosed)
}

func (a *App) onData(pc *registry.PeerConnection, frame *protocol.Frame) {
	connID := pc.ID()
	if frame.Kind == protocol.KindChunk {
		if err := a.reasm.HandleChunk(connID, frame.Chunk); err != nil {
			a.log.Warn("Chunk rejected", "conn", connID, "error", err)
		}
		return
	}

	msg := frame.Message
	switch msg.Type {
	case protocol.Manifest:
		a.handleManifest(msg)
	case protocol.StartFile:
		var meta protocol.StartFilePayload
		if err := protocol.DecodePayload(msg, &meta); err != nil {
			a.log.Warn("Bad START_FILE", "conn", connID, "error", err)
			return
		}
		// a file replaced by this one is still marked streaming while it fails
		err := a.reasm.HandleStart(connID, meta)
		a.mu.Lock()
		a.streaming = meta.ID
		a.mu.Unlock()
		if err != nil {
			a.log.Error("Could not start download", "file", meta.Name, "error", err)
			a.finish(meta.ID, err)
		}
	case protocol.EndFile:
		var p protocol.EndFilePayload
		if err := protocol.DecodePayload(msg, &p); err != nil {
			a.log.Warn("Bad END_FILE", "conn", connID, "error", err)
			return
		}
		a.handleEnd(connID, p.FileID)
	case protocol.PasswordCorrect:
		a.mu.Lock()
		a.rejected = false
		a.mu.Unlock()
		a.post(receiver.PasswordResultMsg{OK: true})
	case protocol.PasswordIncorrect:
		a.mu.Lock()
		a.rejected = true
		a.mu.Unlock()
		a.post(receiver.PasswordResultMsg{OK: false})
	case protocol.Error:
		a.handleError(connID, msg)
	case protocol.Text:
		var p protocol.TextPayload
		if err := protocol.DecodePayload(msg, &p); err != nil {
			a.log.Warn("Bad text message", "error", err)
			return
		}
		if m, ok := a.chat.Append(p.Text, chat.Peer); ok {
			a.post(receiver.ChatMsg{Message: m})
		}
	case protocol.Ping:
		a.probe.HandlePing(connID, msg)
	case protocol.Pong:
		a.probe.HandlePong(connID, msg)
	case protocol.Nudge:
		a.post(receiver.NudgedMsg{})
	default:
		a.log.Debug("Ignoring message", "type", msg.Type)
	}
}

func (a *App) handleManifest(msg *protocol.Message) {
	var m protocol.ManifestPayload
	if err := protocol.DecodePayload(msg, &m); err != nil {
		a.log.Warn("Bad manifest", "error", err)
		return
	}
	if m.Locked {
		m.Files = nil
	}
	a.mu.Lock()
	a.manifest = m
	a.seen = true
	a.mu.Unlock()
	a.log.Info("Manifest received", "locked", m.Locked, "files", len(m.Files))
	a.post(receiver.ManifestMsg{Locked: m.Locked, Files: m.Files})
}

// handleEnd frees the request slot. The next request waits for END_FILE even
// when the file was finalized at its last chunk, since the host only accepts
// a new request once it has finished the current one.
func (a *App) handleEnd(connID, fileID string) {
	a.reasm.HandleEnd(connID, fileID)

	a.mu.Lock()
	if a.streaming == fileID {
		a.streaming = ""
	}
	_, ok := a.downloads[fileID]
	a.mu.Unlock()

	a.sched.Done(fileID, ok)
	a.pump()
}

func (a *App) handleError(connID string, msg *protocol.Message) {
	var p protocol.ErrorPayload
	if err := protocol.DecodePayload(msg, &p); err != nil {
		a.log.Warn("Bad error message", "error", err)
		return
	}
	a.log.Warn("Host reported an error", "code", p.Code, "file", p.FileID, "message", p.Message)
	a.post(receiver.HostErrorMsg{Payload: p})

	if p.Code == protocol.CodeQuotaExceeded || p.Code == protocol.CodeExpired {
		// nothing else will be served
		a.sched.Reset()
	}
	if p.FileID == "" {
		return
	}
	herr := &HostError{Code: p.Code, Message: p.Message}
	a.mu.Lock()
	streaming := a.streaming == p.FileID
	if streaming {
		a.streaming = ""
	}
	a.mu.Unlock()
	if cur, ok := a.reasm.Current(connID); streaming && ok && cur.FileID == p.FileID {
		// the host gave up mid-file and sends no END_FILE
		a.reasm.Fail(connID, herr)
	}
	a.finish(p.FileID, herr)
}

func (a *App) onDownloadProgress(st transfer.TransferStatus) {
	a.post(receiver.DownloadUpdateMsg{Status: st})
}

func (a *App) onDownloadComplete(st transfer.TransferStatus, d transfer.Download) {
	a.mu.Lock()
	a.downloads[st.FileID] = d
	delete(a.failures, st.FileID)
	a.mu.Unlock()
	a.post(receiver.DownloadCompleteMsg{Status: st, Download: d})
}

func (a *App) onDownloadFailed(st transfer.TransferStatus) {
	a.post(receiver.DownloadUpdateMsg{Status: st})
	a.finish(st.FileID, st.LastError)
}

// finish records a failed file and frees its request slot. While the host is
// still streaming that file the next request waits for its END_FILE.
func (a *App) finish(fileID string, cause error) {
	if cause == nil {
		cause = errors.New("transfer failed")
	}
	a.mu.Lock()
	a.failures[fileID] = cause
	streaming := a.streaming == fileID
	a.mu.Unlock()
	if a.sched.Done(fileID, false) && !streaming {
		a.pump()
	}
}

// pump issues the next queued request when no other is in flight.
func (a *App) pump() {
	a.mu.Lock()
	pc := a.conn
	a.mu.Unlock()
	if pc == nil {
		return
	}
	id, ok := a.sched.Next()
	if !ok {
		return
	}
	a.log.Info("Requesting file", "file", id)
	if err := a.send(protocol.RequestFile, protocol.RequestFilePayload{FileID: id}); err != nil {
		a.finish(id, err)
	}
}

func (a *App) connected() (*registry.PeerConnection, protocol.ManifestPayload, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil, protocol.ManifestPayload{}, ErrNotConnected
	}
	return a.conn, a.manifest, nil
}

// VerifyPassword sends an unlock attempt. The answer arrives asynchronously.
func (a *App) VerifyPassword(password string) error {
	return a.send(protocol.VerifyPassword, protocol.VerifyPasswordPayload{Password: password})
}

// RequestFile queues fileID for download. It reports false when the file is
// already queued, downloading or done.
func (a *App) RequestFile(fileID string) (bool, error) {
	_, m, err := a.connected()
	if err != nil {
		return false, err
	}
	if m.Locked {
		return false, ErrLocked
	}
	known := false
	for _, f := range m.Files {
		if f.ID == fileID {
			known = true
			break
		}
	}
	if !known {
		return false, fmt.Errorf("%w: %s", ErrUnknownFile, fileID)
	}

	a.mu.Lock()
	delete(a.failures, fileID)
	a.mu.Unlock()

	queued := a.sched.Request(fileID)
	a.pump()
	return queued, nil
}

// DownloadAll queues every file in the catalogue that is not yet done or pending.
func (a *App) DownloadAll() (int, error) {
	_, m, err := a.connected()
	if err != nil {
		return 0, err
	}
	if m.Locked {
		return 0, ErrLocked
	}
	ids := make([]string, 0, len(m.Files))
	a.mu.Lock()
	for _, f := range m.Files {
		ids = append(ids, f.ID)
		delete(a.failures, f.ID)
	}
	a.mu.Unlock()

	n := a.sched.RequestAll(ids)
	a.pump()
	return n, nil
}

func (a *App) SendText(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := a.send(protocol.Text, protocol.TextPayload{Text: text}); err != nil {
		return err
	}
	if m, ok := a.chat.Append(text, chat.Self); ok {
		a.post(receiver.ChatMsg{Message: m})
	}
	return nil
}

func (a *App) Nudge() error {
	return a.send(protocol.Nudge, nil)
}

func (a *App) send(t protocol.MessageType, payload any) error {
	pc, _, err := a.connected()
	if err != nil {
		return err
	}
	msg, err := protocol.NewMessage(t, payload)
	if err != nil {
		return err
	}
	return a.registry.SendMessage(pc.ID(), msg)
}

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
