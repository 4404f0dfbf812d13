package catalog

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPath_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text content"), 0o644))

	c := New()
	metas, err := c.AddPath(path)
	require.NoError(t, err)
	require.Len(t, metas, 1)

	m := metas[0]
	assert.Equal(t, "notes.txt", m.Name)
	assert.Equal(t, int64(18), m.Size)
	assert.Contains(t, m.MimeType, "text/plain")
	assert.NotEmpty(t, m.ID)

	e, err := c.Get(m.ID)
	require.NoError(t, err)
	r, err := e.Open()
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "plain text content", string(b))
}

func TestAddPath_DirectoryIsFlattened(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("bb"), 0o644))

	c := New()
	metas, err := c.AddPath(dir)
	require.NoError(t, err)
	assert.Len(t, metas, 2)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(3), c.TotalSize())
}

func TestAddPath_Missing(t *testing.T) {
	_, err := New().AddPath(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestAddBytesAndRemove(t *testing.T) {
	c := New()
	png := []byte("\x89PNG\r\n\x1a\n0000")
	first := c.AddBytes("img.png", png, "")
	second := c.AddBytes("data.bin", []byte{1, 2, 3}, "application/x-custom")

	assert.Equal(t, "image/png", first.MimeType)
	assert.Equal(t, "application/x-custom", second.MimeType)
	assert.Equal(t, []string{first.ID, second.ID}, []string{c.Metas()[0].ID, c.Metas()[1].ID})

	assert.True(t, c.Remove(first.ID))
	assert.False(t, c.Remove(first.ID))
	_, err := c.Get(first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, c.Metas(), 1)
}

func TestMetaIsStable(t *testing.T) {
	c := New()
	m := c.AddBytes("x", []byte("x"), "text/plain")
	e, err := c.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, m, e.Meta)
	assert.Equal(t, m, c.Metas()[0])
}
