package transfer

import "time"

type Progress struct {
	Bytes   int64
	Total   int64
	Percent float64
	Rate    float64 // bytes per second over the last sample window
	ETA     time.Duration
}

// Sampler throttles progress reporting to one sample per interval.
type Sampler struct {
	interval  time.Duration
	total     int64
	now       func() time.Time
	last      time.Time
	lastBytes int64
	rate      float64
}

func NewSampler(interval time.Duration, total int64, now func() time.Time) *Sampler {
	if now == nil {
		now = time.Now
	}
	return &Sampler{
		interval: interval,
		total:    total,
		now:      now,
		last:     now(),
	}
}

// Observe reports a sample when at least one interval passed since the last one.
func (s *Sampler) Observe(bytes int64) (Progress, bool) {
	now := s.now()
	elapsed := now.Sub(s.last)
	if elapsed < s.interval {
		return Progress{}, false
	}
	s.rate = float64(bytes-s.lastBytes) / elapsed.Seconds()
	s.last = now
	s.lastBytes = bytes
	return s.progress(bytes), true
}

// Final always reports a sample, used when the transfer ends.
func (s *Sampler) Final(bytes int64) Progress {
	return s.progress(bytes)
}

func (s *Sampler) progress(bytes int64) Progress {
	p := Progress{Bytes: bytes, Total: s.total, Rate: s.rate}
	if s.total > 0 {
		p.Percent = float64(bytes) / float64(s.total) * 100
		if p.Percent > 100 {
			p.Percent = 100
		}
	} else {
		p.Percent = 100
	}
	if s.rate > 0 && bytes < s.total {
		p.ETA = time.Duration(float64(s.total-bytes) / s.rate * float64(time.Second))
	}
	return p
}
