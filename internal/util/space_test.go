package util

import (
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
)

func TestPadRight(t *testing.T) {
	tests := []struct {
		name  string
		str   string
		width int
		want  string
	}{
		{"empty", "", 5, "     "},
		{"short", "abc", 10, "abc       "},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 10, "hello w..."},
		{"wide runes", "你好", 8, "你好    "},
		{"mixed", "hello世界", 12, "hello世界   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PadRight(tt.str, tt.width)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.width, runewidth.StringWidth(got))
		})
	}
}

func TestPadLeft(t *testing.T) {
	assert.Equal(t, "   42", PadLeft("42", 5))
	assert.Equal(t, "hello", PadLeft("hello", 5))
	assert.Equal(t, "hello w...", PadLeft("hello world", 10))
}
