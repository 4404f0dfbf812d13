// Package catalog holds the files a host offers. Entries keep the metadata
// fixed at the time they were added.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rescp17/nwshare/pkg/protocol"
)

const fallbackMimeType = "application/octet-stream"

var ErrNotFound = errors.New("file not found in catalogue")

type Entry struct {
	Meta protocol.FileMeta
	// Path is empty for in-memory entries.
	Path string
	data []byte
}

// Open returns a fresh reader over the entry's content.
func (e *Entry) Open() (io.ReadCloser, error) {
	if e.Path == "" {
		return io.NopCloser(bytes.NewReader(e.data)), nil
	}
	return os.Open(e.Path)
}

type Catalog struct {
	mu      sync.RWMutex
	entries []*Entry
	byID    map[string]*Entry
}

func New() *Catalog {
	return &Catalog{byID: make(map[string]*Entry)}
}

// AddPath adds a file, or every regular file below a directory.
func (c *Catalog) AddPath(path string) ([]protocol.FileMeta, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		e, err := newFileEntry(path, info)
		if err != nil {
			return nil, err
		}
		c.add(e)
		return []protocol.FileMeta{e.Meta}, nil
	}

	var added []protocol.FileMeta
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			slog.Warn("Skipping unreadable path", "path", p, "error", err)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			slog.Warn("Skipping file", "path", p, "error", err)
			return nil
		}
		e, err := newFileEntry(p, info)
		if err != nil {
			slog.Warn("Skipping file", "path", p, "error", err)
			return nil
		}
		c.add(e)
		added = append(added, e.Meta)
		return nil
	})
	if err != nil {
		return added, err
	}
	return added, nil
}

func newFileEntry(path string, info os.FileInfo) (*Entry, error) {
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	mimeType := fallbackMimeType
	if mime, err := mimetype.DetectFile(path); err == nil {
		mimeType = mime.String()
	}
	return &Entry{
		Meta: protocol.FileMeta{
			ID:       uuid.NewString(),
			Name:     info.Name(),
			Size:     info.Size(),
			MimeType: mimeType,
		},
		Path: path,
	}, nil
}

// AddBytes adds an in-memory file. An empty mimeType is detected from data.
func (c *Catalog) AddBytes(name string, data []byte, mimeType string) protocol.FileMeta {
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}
	e := &Entry{
		Meta: protocol.FileMeta{
			ID:       uuid.NewString(),
			Name:     name,
			Size:     int64(len(data)),
			MimeType: mimeType,
		},
		data: data,
	}
	c.add(e)
	return e.Meta
}

func (c *Catalog) add(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	c.byID[e.Meta.ID] = e
}

// Remove takes a file off the list. Transfers already running are unaffected.
func (c *Catalog) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[id]; !ok {
		return false
	}
	delete(c.byID, id)
	for i, e := range c.entries {
		if e.Meta.ID == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	return true
}

func (c *Catalog) Get(id string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Metas lists the offered files in the order they were added.
func (c *Catalog) Metas() []protocol.FileMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]protocol.FileMeta, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Meta
	}
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Catalog) TotalSize() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, e := range c.entries {
		total += e.Meta.Size
	}
	return total
}
