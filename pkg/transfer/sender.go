package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rescp17/nwshare/pkg/protocol"
	"golang.org/x/sync/semaphore"
)

// Outbound is the part of the connection registry the sender engine drives.
type Outbound interface {
	SendMessage(connID string, msg *protocol.Message) error
	SendChunk(connID string, data []byte)
	WaitForCapacity(ctx context.Context, connID string) error
}

// SenderHooks are called outside the engine's lock.
type SenderHooks struct {
	OnProgress func(TransferStatus)
	OnComplete func(TransferStatus)
	OnFailed   func(TransferStatus)
}

type transferKey struct {
	connID string
	fileID string
}

type outgoing struct {
	status TransferStatus
	cancel context.CancelFunc
}

// Sender streams files to connections, at most one file per connection at a time.
type Sender struct {
	out   Outbound
	cfg   *Config
	hooks SenderHooks
	log   *slog.Logger
	sem   *semaphore.Weighted
	now   func() time.Time

	mu        sync.Mutex
	transfers map[transferKey]*outgoing
	active    map[string]transferKey
	wg        sync.WaitGroup
}

func NewSender(out Outbound, cfg *Config, hooks SenderHooks, logger *slog.Logger) *Sender {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		out:       out,
		cfg:       cfg,
		hooks:     hooks,
		log:       logger.With("component", "sender"),
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrentTransfers)),
		now:       time.Now,
		transfers: make(map[transferKey]*outgoing),
		active:    make(map[string]transferKey),
	}
}

// Start reserves the connection and streams the file in the background. It
// returns ErrTransferActive without sending anything when the connection is busy.
func (s *Sender) Start(ctx context.Context, connID string, meta protocol.FileMeta, open func() (io.ReadCloser, error)) error {
	tctx, err := s.reserve(ctx, connID, meta)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		src, err := open()
		if err != nil {
			s.finish(connID, meta.ID, fmt.Errorf("open %s: %w", meta.Name, err))
			return
		}
		defer src.Close()
		_ = s.run(tctx, connID, meta, src)
	}()
	return nil
}

// Send streams src to connID and blocks until the transfer ends.
func (s *Sender) Send(ctx context.Context, connID string, meta protocol.FileMeta, src io.Reader) error {
	tctx, err := s.reserve(ctx, connID, meta)
	if err != nil {
		return err
	}
	return s.run(tctx, connID, meta, src)
}

func (s *Sender) reserve(ctx context.Context, connID string, meta protocol.FileMeta) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, busy := s.active[connID]; busy {
		s.log.Info("Ignoring request while a transfer is active",
			"conn", connID, "file", meta.ID, "active", key.fileID)
		return nil, ErrTransferActive
	}

	tctx, cancel := context.WithCancel(ctx)
	key := transferKey{connID: connID, fileID: meta.ID}
	now := s.now()
	s.transfers[key] = &outgoing{
		status: TransferStatus{
			ConnectionID:   connID,
			FileID:         meta.ID,
			FileName:       meta.Name,
			MimeType:       meta.MimeType,
			State:          StateStarting,
			ExpectedSize:   meta.Size,
			StartTime:      now,
			LastUpdateTime: now,
		},
		cancel: cancel,
	}
	s.active[connID] = key
	return tctx, nil
}

func (s *Sender) run(ctx context.Context, connID string, meta protocol.FileMeta, src io.Reader) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return s.finish(connID, meta.ID, err)
	}
	defer s.sem.Release(1)

	start, err := protocol.NewMessage(protocol.StartFile, meta)
	if err != nil {
		return s.finish(connID, meta.ID, err)
	}
	if err := s.out.SendMessage(connID, start); err != nil {
		return s.finish(connID, meta.ID, err)
	}
	s.log.Info("Sending file", "conn", connID, "file", meta.Name, "size", meta.Size)

	chunker, err := NewChunker(src, meta.Size, s.cfg.ChunkSize)
	if err != nil {
		return s.finish(connID, meta.ID, err)
	}
	sampler := NewSampler(s.cfg.ProgressInterval, meta.Size, s.now)

	for {
		if err := s.out.WaitForCapacity(ctx, connID); err != nil {
			return s.finish(connID, meta.ID, err)
		}
		chunk, err := chunker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.finish(connID, meta.ID, err)
		}
		s.out.SendChunk(connID, chunk.Data)

		if p, ok := sampler.Observe(chunker.BytesRead()); ok {
			s.update(connID, meta.ID, chunker.BytesRead(), &p)
		} else {
			s.update(connID, meta.ID, chunker.BytesRead(), nil)
		}
	}

	// let the queue drain before announcing the end
	if err := s.out.WaitForCapacity(ctx, connID); err != nil {
		return s.finish(connID, meta.ID, err)
	}
	end, err := protocol.NewMessage(protocol.EndFile, protocol.EndFilePayload{FileID: meta.ID})
	if err != nil {
		return s.finish(connID, meta.ID, err)
	}
	// The connection is free and the download counted before the peer can
	// see END_FILE and ask for the next file.
	s.finish(connID, meta.ID, nil)
	if err := s.out.SendMessage(connID, end); err != nil {
		s.log.Warn("END_FILE not sent", "conn", connID, "file", meta.Name, "error", err)
	}
	return nil
}

func (s *Sender) update(connID, fileID string, bytes int64, p *Progress) {
	s.mu.Lock()
	o, ok := s.transfers[transferKey{connID, fileID}]
	if !ok {
		s.mu.Unlock()
		return
	}
	o.status.BytesTransferred = bytes
	o.status.advance(StateTransferring, s.now())
	if p != nil {
		o.status.apply(*p)
	}
	snapshot := o.status
	s.mu.Unlock()

	if p != nil && s.hooks.OnProgress != nil {
		s.hooks.OnProgress(snapshot)
	}
}

// finish moves the record to its terminal state and frees the connection.
func (s *Sender) finish(connID, fileID string, cause error) error {
	key := transferKey{connID, fileID}

	s.mu.Lock()
	o, ok := s.transfers[key]
	if !ok {
		s.mu.Unlock()
		return cause
	}
	next := StateCompleted
	if cause != nil {
		next = StateFailed
		o.status.LastError = cause
	}
	o.status.advance(next, s.now())
	o.cancel()
	if s.active[connID] == key {
		delete(s.active, connID)
	}
	snapshot := o.status
	s.mu.Unlock()

	if s.cfg.RetainFor > 0 {
		time.AfterFunc(s.cfg.RetainFor, func() { s.prune(key, o) })
	} else {
		s.prune(key, o)
	}

	if cause != nil {
		s.log.Warn("Transfer failed", "conn", connID, "file", snapshot.FileName, "error", cause)
		if s.hooks.OnFailed != nil {
			s.hooks.OnFailed(snapshot)
		}
		return cause
	}
	s.log.Info("Transfer complete", "conn", connID, "file", snapshot.FileName, "bytes", snapshot.BytesTransferred)
	if s.hooks.OnComplete != nil {
		s.hooks.OnComplete(snapshot)
	}
	return nil
}

func (s *Sender) prune(key transferKey, o *outgoing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.transfers[key]; ok && cur == o {
		delete(s.transfers, key)
	}
}

// CancelConnection aborts whatever is being sent to connID.
func (s *Sender) CancelConnection(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.active[connID]; ok {
		s.transfers[key].cancel()
	}
}

func (s *Sender) Active(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[connID]
	return ok
}

func (s *Sender) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Statuses returns a copy of every retained record, oldest first.
func (s *Sender) Statuses() []TransferStatus {
	s.mu.Lock()
	out := make([]TransferStatus, 0, len(s.transfers))
	for _, o := range s.transfers {
		out = append(out, o.status)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ConnectionID < out[j].ConnectionID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Wait blocks until every transfer started with Start has ended.
func (s *Sender) Wait() {
	s.wg.Wait()
}
