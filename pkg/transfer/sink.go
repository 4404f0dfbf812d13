package transfer

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rescp17/nwshare/pkg/protocol"
)

// Download is a finalized file.
type Download struct {
	Meta        protocol.FileMeta
	Location    string
	Size        int64
	CompletedAt time.Time
}

// Sink stores reassembled files.
type Sink interface {
	Create(meta protocol.FileMeta) (Blob, error)
}

// Blob accumulates the chunks of one file. Exactly one of Commit and Abort is called.
type Blob interface {
	Write(p []byte) (int, error)
	Commit() (Download, error)
	Abort() error
}

// MemorySink keeps finalized files in memory, keyed by file id.
type MemorySink struct {
	mu    sync.Mutex
	files map[string][]byte
	order []Download
}

func NewMemorySink() *MemorySink {
	return &MemorySink{files: make(map[string][]byte)}
}

func (m *MemorySink) Create(meta protocol.FileMeta) (Blob, error) {
	return &memoryBlob{sink: m, meta: meta}, nil
}

func (m *MemorySink) Bytes(fileID string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[fileID]
	return b, ok
}

func (m *MemorySink) Downloads() []Download {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Download(nil), m.order...)
}

type memoryBlob struct {
	sink *MemorySink
	meta protocol.FileMeta
	buf  bytes.Buffer
}

func (b *memoryBlob) Write(p []byte) (int, error) {
	return b.buf.Write(p)
}

func (b *memoryBlob) Commit() (Download, error) {
	d := Download{
		Meta:        b.meta,
		Location:    "mem://" + b.meta.ID,
		Size:        int64(b.buf.Len()),
		CompletedAt: time.Now(),
	}
	b.sink.mu.Lock()
	b.sink.files[b.meta.ID] = b.buf.Bytes()
	b.sink.order = append(b.sink.order, d)
	b.sink.mu.Unlock()
	return d, nil
}

func (b *memoryBlob) Abort() error {
	b.buf.Reset()
	return nil
}

// DirSink writes files into a directory. Data goes to a hidden part file
// first and is renamed to a unique, sanitized name on commit.
type DirSink struct {
	dir string
	mu  sync.Mutex
}

func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &DirSink{dir: dir}, nil
}

func (d *DirSink) Dir() string {
	return d.dir
}

func (d *DirSink) Create(meta protocol.FileMeta) (Blob, error) {
	f, err := os.CreateTemp(d.dir, ".nwshare-*.part")
	if err != nil {
		return nil, fmt.Errorf("failed to create part file: %w", err)
	}
	return &fileBlob{sink: d, meta: meta, file: f}, nil
}

type fileBlob struct {
	sink    *DirSink
	meta    protocol.FileMeta
	file    *os.File
	written int64
}

func (b *fileBlob) Write(p []byte) (int, error) {
	n, err := b.file.Write(p)
	b.written += int64(n)
	return n, err
}

func (b *fileBlob) Commit() (Download, error) {
	part := b.file.Name()
	if err := b.file.Close(); err != nil {
		_ = os.Remove(part)
		return Download{}, fmt.Errorf("failed to close part file: %w", err)
	}

	b.sink.mu.Lock()
	defer b.sink.mu.Unlock()
	target, err := uniquePath(b.sink.dir, SafeName(b.meta.Name))
	if err != nil {
		_ = os.Remove(part)
		return Download{}, err
	}
	if err := os.Rename(part, target); err != nil {
		_ = os.Remove(part)
		return Download{}, fmt.Errorf("failed to move %s into place: %w", b.meta.Name, err)
	}
	return Download{
		Meta:        b.meta,
		Location:    target,
		Size:        b.written,
		CompletedAt: time.Now(),
	}, nil
}

func (b *fileBlob) Abort() error {
	part := b.file.Name()
	closeErr := b.file.Close()
	if err := os.Remove(part); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return closeErr
}

// SafeName strips any directory components a remote peer put in a file name.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		return "download"
	}
	return name
}

// uniquePath picks dir/name, or "name (n).ext" when that is already taken.
func uniquePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < 10000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, dir)
}
