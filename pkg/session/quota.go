package session

import (
	"sync"
	"time"
)

type EndReason string

const (
	EndReasonNone  EndReason = ""
	EndReasonTime  EndReason = "time"
	EndReasonLimit EndReason = "limit"
	EndReasonUser  EndReason = "user"
)

type FileStats struct {
	Downloads        int
	LastDownloadedAt time.Time
}

// Quota counts completed downloads against the session's limit and expiry.
type Quota struct {
	limit     int
	expiresAt time.Time
	now       func() time.Time

	mu        sync.Mutex
	downloads int
	bytesSent int64
	perFile   map[string]FileStats
}

func NewQuota(cfg Config) *Quota {
	return &Quota{
		limit:     cfg.MaxDownloads,
		expiresAt: cfg.ExpiresAt,
		now:       time.Now,
		perFile:   make(map[string]FileStats),
	}
}

// RecordDownload counts one completed download and reports whether the
// limit is now reached.
func (q *Quota) RecordDownload(fileID string, bytes int64) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.downloads++
	q.bytesSent += bytes
	st := q.perFile[fileID]
	st.Downloads++
	st.LastDownloadedAt = q.now()
	q.perFile[fileID] = st
	return q.downloads, q.limit > 0 && q.downloads >= q.limit
}

func (q *Quota) Exhausted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit > 0 && q.downloads >= q.limit
}

func (q *Quota) Expired() bool {
	return !q.expiresAt.IsZero() && !q.now().Before(q.expiresAt)
}

// Check returns ErrExpired or ErrQuotaExceeded once the session must stop serving.
func (q *Quota) Check() error {
	if q.Expired() {
		return ErrExpired
	}
	if q.Exhausted() {
		return ErrQuotaExceeded
	}
	return nil
}

// Remaining is the time left before expiry, or -1 when the session never expires.
func (q *Quota) Remaining() time.Duration {
	if q.expiresAt.IsZero() {
		return -1
	}
	d := q.expiresAt.Sub(q.now())
	if d < 0 {
		return 0
	}
	return d
}

func (q *Quota) Downloads() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.downloads
}

func (q *Quota) Limit() int {
	return q.limit
}

func (q *Quota) BytesSent() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytesSent
}

func (q *Quota) FileStats(fileID string) FileStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.perFile[fileID]
}
