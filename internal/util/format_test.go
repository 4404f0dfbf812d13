package util

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want string
	}{
		{"zero", 0, "0 B"},
		{"max bytes", 1023, "1023 B"},
		{"exact KB", 1024, "1 KB"},
		{"one decimal", 1536, "1.5 KB"},
		{"two decimals", 1280, "1.25 KB"},
		{"three decimals", 1152, "1.125 KB"},
		{"small remainder", 1025, "1.0 KB"},
		{"never rounds up", 1048575, "1023.999 KB"},
		{"chunk", 16 * 1024, "16 KB"},
		{"high watermark", 12 * 1024 * 1024, "12 MB"},
		{"GB", 2952790016, "2.75 GB"},
		{"PB", 1125899906842624, "1 PB"},
		{"max int64", math.MaxInt64, "8191.999 PB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSize(tt.size))
		})
	}
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "0 B/s", FormatSpeed(0))
	assert.Equal(t, "0 B/s", FormatSpeed(math.NaN()))
	assert.Equal(t, "512 B/s", FormatSpeed(512))
	assert.Equal(t, "1.5 MB/s", FormatSpeed(1.5*1024*1024))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(-time.Second))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "3m05s", FormatDuration(3*time.Minute+5*time.Second))
	assert.Equal(t, "1h02m", FormatDuration(time.Hour+2*time.Minute+40*time.Second))
	assert.Equal(t, "1s", FormatDuration(600*time.Millisecond))
}
