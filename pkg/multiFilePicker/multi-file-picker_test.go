package multiFilePicker

import (
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDir creates file_a.txt, file_d.txt and subdir_b/file_c.txt.
func setupTestDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file_a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir_b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "subdir_b", "file_c.txt"), []byte("c"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file_d.txt"), []byte("d"), 0o644))
	return dir
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func names(m *Model) []string {
	var out []string
	for _, it := range m.items {
		out = append(out, it.Name())
	}
	return out
}

func TestNew_DirectoriesFirst(t *testing.T) {
	dir := setupTestDir(t)
	m := New(dir)

	assert.Equal(t, modeBrowse, m.mode)
	assert.Equal(t, []string{"subdir_b", "file_a.txt", "file_d.txt"}, names(m))
	assert.Empty(t, m.Selected())
}

func TestNew_BadPathAsksForInput(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, modeInput, m.mode)
	assert.Error(t, m.inputErr)
}

func TestMovementIsClamped(t *testing.T) {
	m := New(setupTestDir(t))

	m.Update(runes("k"))
	assert.Equal(t, 0, m.cursor)
	m.Update(runes("j"))
	m.Update(runes("j"))
	m.Update(runes("j"))
	assert.Equal(t, 2, m.cursor)
}

func TestSelectAndConfirm(t *testing.T) {
	dir := setupTestDir(t)
	m := New(dir)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd, "nothing selected yet")

	m.Update(runes("j"))
	m.Update(runes(" "))
	m.Update(runes("k"))
	m.Update(runes(" "))
	want := []string{filepath.Join(dir, "file_a.txt"), filepath.Join(dir, "subdir_b")}
	assert.Equal(t, want, m.Selected())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	msg, ok := cmd().(SelectedPathsMsg)
	require.True(t, ok)
	assert.Equal(t, want, msg.Paths)

	_, cmd = m.Update(msg)
	require.NotNil(t, cmd)
	assert.Equal(t, want, m.Chosen())
}

func TestToggleDeselects(t *testing.T) {
	m := New(setupTestDir(t))
	m.Update(runes(" "))
	m.Update(runes(" "))
	assert.Empty(t, m.Selected())
}

func TestOpenAndParent(t *testing.T) {
	dir := setupTestDir(t)
	m := New(dir)

	m.Update(runes("o"))
	assert.Equal(t, filepath.Join(dir, "subdir_b"), m.path)
	assert.Equal(t, []string{"file_c.txt"}, names(m))

	m.Update(runes("u"))
	assert.Equal(t, dir, m.path)
}

func TestInputMode(t *testing.T) {
	dir := setupTestDir(t)
	m := New(dir)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlP})
	assert.Equal(t, modeInput, m.mode)
	m.input.SetValue("subdir_b")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, modeBrowse, m.mode)
	assert.Equal(t, filepath.Join(dir, "subdir_b"), m.path)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlP})
	m.input.SetValue("nope")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, modeInput, m.mode)
	assert.Error(t, m.inputErr)

	// esc goes back to the loaded directory
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, modeBrowse, m.mode)
}

func TestQuitWithoutSelection(t *testing.T) {
	m := New(setupTestDir(t))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Nil(t, m.Chosen())
}

func TestView(t *testing.T) {
	m := New(setupTestDir(t))
	v := m.View()
	assert.Contains(t, v, "subdir_b/")
	assert.Contains(t, v, "file_a.txt")
	assert.Contains(t, v, "0 selected")
}
