package transfer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rescp17/nwshare/pkg/protocol"
)

// ReceiveHooks are called outside the reassembler's lock.
type ReceiveHooks struct {
	OnStart    func(TransferStatus)
	OnProgress func(TransferStatus)
	OnComplete func(TransferStatus, Download)
	OnFailed   func(TransferStatus)
}

type reception struct {
	status  TransferStatus
	blob    Blob
	sampler *Sampler
}

// Reassembler rebuilds files from START_FILE, chunk and END_FILE frames. Each
// connection has at most one file in progress.
type Reassembler struct {
	sink     Sink
	interval time.Duration
	hooks    ReceiveHooks
	log      *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	active map[string]*reception
	// dropped chunks and reset sequences
	violations int
}

func NewReassembler(sink Sink, progressInterval time.Duration, hooks ReceiveHooks, logger *slog.Logger) *Reassembler {
	if logger == nil {
		logger = slog.Default()
	}
	if progressInterval <= 0 {
		progressInterval = DefaultConfig().ProgressInterval
	}
	return &Reassembler{
		sink:     sink,
		interval: progressInterval,
		hooks:    hooks,
		log:      logger.With("component", "reassembler"),
		now:      time.Now,
		active:   make(map[string]*reception),
	}
}

type outcome struct {
	status   TransferStatus
	download *Download
}

// HandleStart begins a new file. An unfinished file on the same connection is
// discarded and reported failed.
func (r *Reassembler) HandleStart(connID string, meta protocol.FileMeta) error {
	var replaced *TransferStatus

	r.mu.Lock()
	if prev, ok := r.active[connID]; ok {
		r.violations++
		_ = prev.blob.Abort()
		prev.status.LastError = fmt.Errorf("%w: %s restarted by %s", ErrProtocolViolation, prev.status.FileName, meta.Name)
		prev.status.advance(StateFailed, r.now())
		delete(r.active, connID)
		st := prev.status
		replaced = &st
	}
	r.mu.Unlock()

	if replaced != nil {
		r.log.Warn("New file started before the previous one finished", "conn", connID,
			"previous", replaced.FileName, "next", meta.Name)
		if r.hooks.OnFailed != nil {
			r.hooks.OnFailed(*replaced)
		}
	}

	if meta.Size < 0 {
		return fmt.Errorf("%w: negative size for %s", ErrProtocolViolation, meta.Name)
	}

	blob, err := r.sink.Create(meta)
	if err != nil {
		return fmt.Errorf("failed to prepare %s: %w", meta.Name, err)
	}

	now := r.now()
	rec := &reception{
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
		blob:    blob,
		sampler: NewSampler(r.interval, meta.Size, r.now),
	}

	r.mu.Lock()
	r.active[connID] = rec
	started := rec.status
	var done *outcome
	if meta.Size == 0 {
		done = r.finalizeLocked(connID, rec)
	}
	r.mu.Unlock()

	r.log.Info("Receiving file", "conn", connID, "file", meta.Name, "size", meta.Size)
	if r.hooks.OnStart != nil {
		r.hooks.OnStart(started)
	}
	r.report(done)
	return nil
}

// HandleChunk appends data to the file in progress on connID.
func (r *Reassembler) HandleChunk(connID string, data []byte) error {
	r.mu.Lock()
	rec, ok := r.active[connID]
	if !ok {
		r.violations++
		r.mu.Unlock()
		return fmt.Errorf("%w: chunk of %d bytes with no file in progress", ErrProtocolViolation, len(data))
	}

	if _, err := rec.blob.Write(data); err != nil {
		werr := fmt.Errorf("failed to write %s: %w", rec.status.FileName, err)
		done := r.failLocked(connID, rec, werr)
		r.mu.Unlock()
		r.report(done)
		return werr
	}
	rec.status.BytesTransferred += int64(len(data))
	rec.status.advance(StateTransferring, r.now())

	var done *outcome
	var progress *TransferStatus
	if rec.status.BytesTransferred >= rec.status.ExpectedSize {
		done = r.finalizeLocked(connID, rec)
	} else if p, ok := rec.sampler.Observe(rec.status.BytesTransferred); ok {
		rec.status.apply(p)
		st := rec.status
		progress = &st
	}
	r.mu.Unlock()

	if progress != nil && r.hooks.OnProgress != nil {
		r.hooks.OnProgress(*progress)
	}
	r.report(done)
	return nil
}

// HandleEnd finalizes the file in progress if it is fileID. Late or
// mismatched END_FILE messages are ignored.
func (r *Reassembler) HandleEnd(connID, fileID string) {
	r.mu.Lock()
	rec, ok := r.active[connID]
	if !ok || rec.status.FileID != fileID {
		r.mu.Unlock()
		r.log.Debug("Ignoring END_FILE", "conn", connID, "file", fileID)
		return
	}
	done := r.finalizeLocked(connID, rec)
	r.mu.Unlock()
	r.report(done)
}

// Fail discards the file in progress on connID, if any.
func (r *Reassembler) Fail(connID string, cause error) {
	r.mu.Lock()
	rec, ok := r.active[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	done := r.failLocked(connID, rec, cause)
	r.mu.Unlock()
	r.report(done)
}

func (r *Reassembler) Current(connID string) (TransferStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.active[connID]
	if !ok {
		return TransferStatus{}, false
	}
	return rec.status, true
}

func (r *Reassembler) Violations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.violations
}

func (r *Reassembler) finalizeLocked(connID string, rec *reception) *outcome {
	delete(r.active, connID)
	d, err := rec.blob.Commit()
	if err != nil {
		rec.status.LastError = err
		rec.status.advance(StateFailed, r.now())
		return &outcome{status: rec.status}
	}
	rec.status.apply(rec.sampler.Final(rec.status.BytesTransferred))
	rec.status.advance(StateCompleted, r.now())
	return &outcome{status: rec.status, download: &d}
}

func (r *Reassembler) failLocked(connID string, rec *reception, cause error) *outcome {
	delete(r.active, connID)
	_ = rec.blob.Abort()
	rec.status.LastError = cause
	rec.status.advance(StateFailed, r.now())
	return &outcome{status: rec.status}
}

func (r *Reassembler) report(o *outcome) {
	if o == nil {
		return
	}
	if o.download != nil {
		r.log.Info("File received", "conn", o.status.ConnectionID, "file", o.status.FileName,
			"bytes", o.status.BytesTransferred, "location", o.download.Location)
		if r.hooks.OnComplete != nil {
			r.hooks.OnComplete(o.status, *o.download)
		}
		return
	}
	r.log.Warn("File reception failed", "conn", o.status.ConnectionID, "file", o.status.FileName,
		"error", o.status.LastError)
	if r.hooks.OnFailed != nil {
		r.hooks.OnFailed(o.status)
	}
}
