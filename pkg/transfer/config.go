package transfer

import (
	"errors"
	"time"
)

// Config holds the tunables of both transfer engines.
type Config struct {
	ChunkSize    int `json:"chunk_size"`
	MaxChunkSize int `json:"max_chunk_size"`
	MinChunkSize int `json:"min_chunk_size"`

	// Outbound buffer watermarks in bytes: pause above High, resume below Low.
	HighWatermark        uint64        `json:"high_watermark"`
	LowWatermark         uint64        `json:"low_watermark"`
	CapacityPollInterval time.Duration `json:"capacity_poll_interval"`

	ProgressInterval       time.Duration `json:"progress_interval"`
	MaxConcurrentTransfers int           `json:"max_concurrent_transfers"`

	// How long terminal transfer records stay visible before they are pruned.
	RetainFor time.Duration `json:"retain_for"`
}

const (
	DefaultChunkSize = 16 * 1024  // interoperable with browser data channels
	MaxChunkSize     = 256 * 1024 // 256KB
	MinChunkSize     = 4 * 1024   // 4KB

	DefaultHighWatermark uint64 = 12 * 1024 * 1024
	DefaultLowWatermark  uint64 = 1024 * 1024
)

func DefaultConfig() *Config {
	return &Config{
		ChunkSize:    DefaultChunkSize,
		MaxChunkSize: MaxChunkSize,
		MinChunkSize: MinChunkSize,

		HighWatermark:        DefaultHighWatermark,
		LowWatermark:         DefaultLowWatermark,
		CapacityPollInterval: 5 * time.Millisecond,

		ProgressInterval:       100 * time.Millisecond,
		MaxConcurrentTransfers: 8,

		RetainFor: 3 * time.Second,
	}
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return errors.New("chunk_size must be positive")
	}
	if c.MinChunkSize <= 0 {
		return errors.New("min_chunk_size must be positive")
	}
	if c.MaxChunkSize <= 0 {
		return errors.New("max_chunk_size must be positive")
	}
	if c.MinChunkSize > c.MaxChunkSize {
		return errors.New("min_chunk_size cannot be greater than max_chunk_size")
	}
	if c.ChunkSize < c.MinChunkSize {
		return errors.New("chunk_size cannot be less than min_chunk_size")
	}
	if c.ChunkSize > c.MaxChunkSize {
		return errors.New("chunk_size cannot be greater than max_chunk_size")
	}

	if c.HighWatermark == 0 {
		return errors.New("high_watermark must be positive")
	}
	if c.LowWatermark >= c.HighWatermark {
		return errors.New("low_watermark must be below high_watermark")
	}
	if c.CapacityPollInterval <= 0 {
		return errors.New("capacity_poll_interval must be positive")
	}

	if c.ProgressInterval <= 0 {
		return errors.New("progress_interval must be positive")
	}
	if c.MaxConcurrentTransfers <= 0 {
		return errors.New("max_concurrent_transfers must be positive")
	}
	if c.RetainFor < 0 {
		return errors.New("retain_for cannot be negative")
	}
	return nil
}
