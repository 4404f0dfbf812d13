// Package multiFilePicker lets the host choose what to share when no paths
// were given on the command line.
package multiFilePicker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rescp17/nwshare/internal/style"
	"github.com/rescp17/nwshare/internal/util"
)

type mode int

const (
	modeBrowse mode = iota
	modeInput
)

// SelectedPathsMsg is emitted on confirm with the chosen files and directories, sorted.
type SelectedPathsMsg struct {
	Paths []string
}

// --- Key Map ---
type KeyMap struct {
	Up           key.Binding
	Down         key.Binding
	Left         key.Binding // Page up
	Right        key.Binding // Page down
	Open         key.Binding
	Parent       key.Binding
	ToggleSelect key.Binding
	ToggleInput  key.Binding
	Confirm      key.Binding
	Quit         key.Binding
}

var DefaultKeyMap = KeyMap{
	Up:           key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
	Down:         key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
	Left:         key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "page up")),
	Right:        key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "page down")),
	Open:         key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open dir")),
	Parent:       key.NewBinding(key.WithKeys("backspace", "u"), key.WithHelp("u", "parent dir")),
	ToggleSelect: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle select")),
	ToggleInput:  key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "input path")),
	Confirm:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "share selection")),
	Quit:         key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "quit/back")),
}

// --- Model ---
type Model struct {
	path     string
	items    []fs.DirEntry
	selected map[string]struct{}
	cursor   int
	offset   int
	height   int
	keys     KeyMap
	mode     mode
	input    textinput.Model
	inputErr error

	chosen   []string
	quitting bool
}

// New starts browsing dir, or asks for a path when dir cannot be read.
func New(dir string) *Model {
	ti := style.NewInput("directory to browse", 256)
	ti.Width = 80
	m := &Model{
		selected: make(map[string]struct{}),
		keys:     DefaultKeyMap,
		input:    ti,
	}
	if err := m.SetPath(dir); err != nil {
		m.inputErr = err
		m.mode = modeInput
		m.input.Focus()
	}
	return m
}

// Run shows the picker full screen and returns the confirmed selection; nil
// when the user quit without confirming.
func Run(dir string) ([]string, error) {
	final, err := tea.NewProgram(New(dir), tea.WithAltScreen()).Run()
	if err != nil {
		return nil, err
	}
	return final.(*Model).Chosen(), nil
}

// Chosen is the confirmed selection.
func (m *Model) Chosen() []string {
	return m.chosen
}

// Selected lists the currently marked paths, sorted.
func (m *Model) Selected() []string {
	paths := make([]string, 0, len(m.selected))
	for p := range m.selected {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (m *Model) Init() tea.Cmd {
	if m.mode == modeInput {
		return textinput.Blink
	}
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, nil
	}
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
	case SelectedPathsMsg:
		m.chosen = msg.Paths
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			if m.mode == modeInput && m.path != "" {
				m.mode = modeBrowse
				m.input.Blur()
				m.input.Reset()
				m.inputErr = nil
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit
		}
		if m.mode == modeInput {
			return m, m.updateInput(msg)
		}
		return m, m.updateBrowse(msg)
	}
	return m, nil
}

func (m *Model) updateBrowse(msg tea.KeyMsg) tea.Cmd {
	visible := m.visibleItems()
	switch {
	case key.Matches(msg, m.keys.ToggleInput):
		m.mode = modeInput
		return m.input.Focus()
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(m.cursor - 1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(m.cursor + 1)
	case key.Matches(msg, m.keys.Right):
		m.moveCursor(m.cursor + visible)
	case key.Matches(msg, m.keys.Left):
		m.moveCursor(m.cursor - visible)
	case key.Matches(msg, m.keys.Open):
		if m.cursor < len(m.items) && m.items[m.cursor].IsDir() {
			if err := m.SetPath(filepath.Join(m.path, m.items[m.cursor].Name())); err != nil {
				m.inputErr = err
			}
		}
	case key.Matches(msg, m.keys.Parent):
		if err := m.SetPath(filepath.Dir(m.path)); err != nil {
			m.inputErr = err
		}
	case key.Matches(msg, m.keys.ToggleSelect):
		if m.cursor >= len(m.items) {
			return nil
		}
		path := filepath.Join(m.path, m.items[m.cursor].Name())
		if _, ok := m.selected[path]; ok {
			delete(m.selected, path)
		} else {
			m.selected[path] = struct{}{}
		}
	case key.Matches(msg, m.keys.Confirm):
		if len(m.selected) > 0 {
			paths := m.Selected()
			return func() tea.Msg { return SelectedPathsMsg{Paths: paths} }
		}
	}
	return nil
}

func (m *Model) updateInput(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, m.keys.Confirm) {
		path := m.input.Value()
		if !filepath.IsAbs(path) {
			path = filepath.Join(m.path, path)
		}
		if err := m.SetPath(path); err != nil {
			m.inputErr = err
			return nil
		}
		m.input.Reset()
		m.input.Blur()
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) moveCursor(to int) {
	if len(m.items) == 0 {
		return
	}
	m.cursor = max(0, min(to, len(m.items)-1))
	visible := m.visibleItems()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
}

// SetPath loads dir, directories first, then by name.
func (m *Model) SetPath(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	exists, isDir, err := util.CheckDirectory(abs)
	if err != nil {
		return err
	}
	if !exists || !isDir {
		return fmt.Errorf("not a directory: %s", abs)
	}
	items, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("could not read directory: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsDir() != items[j].IsDir() {
			return items[i].IsDir()
		}
		return items[i].Name() < items[j].Name()
	})
	m.path = abs
	m.items = items
	m.cursor = 0
	m.offset = 0
	m.inputErr = nil
	m.mode = modeBrowse
	return nil
}

func (m *Model) View() string {
	var s strings.Builder
	s.WriteString(style.TitleStyle.Render("Choose what to share") + "  " + m.helpView() + "\n\n")
	if m.mode == modeInput {
		s.WriteString(m.input.View() + "\n")
	}
	if m.inputErr != nil {
		s.WriteString(style.ErrorStyle.Render(m.inputErr.Error()) + "\n")
	}
	if m.path == "" {
		return s.String()
	}

	fmt.Fprintf(&s, "%s  %s\n\n", style.HeaderStyle.Render(m.path),
		style.MutedStyle.Render(fmt.Sprintf("%d selected", len(m.selected))))

	const (
		nameWidth = 36
		sizeWidth = 12
		typeWidth = 28
	)
	end := min(m.offset+m.visibleItems(), len(m.items))
	for i := m.offset; i < end; i++ {
		item := m.items[i]
		if i == m.cursor {
			s.WriteString(style.CursorStyle.String())
		} else {
			s.WriteString(style.NoCursorStyle.String())
		}
		path := filepath.Join(m.path, item.Name())
		if _, ok := m.selected[path]; ok {
			s.WriteString(style.SelectedStyle.String())
		} else {
			s.WriteString(style.DeselectedStyle.String())
		}

		name, size, kind := item.Name(), "", ""
		if item.IsDir() {
			name += "/"
			size = "<DIR>"
		} else {
			if info, err := item.Info(); err == nil {
				size = util.FormatSize(info.Size())
			}
			if mt, err := mimetype.DetectFile(path); err == nil {
				kind = mt.String()
			}
		}
		nameCell := util.PadRight(name, nameWidth)
		if item.IsDir() {
			nameCell = style.DirStyle.Render(nameCell)
		}
		s.WriteString(nameCell + " " + util.PadLeft(size, sizeWidth) + "  " +
			style.MutedStyle.Render(util.PadRight(kind, typeWidth)) + "\n")
	}
	if len(m.items) > m.visibleItems() {
		fmt.Fprintf(&s, "\n... %d/%d ...\n", m.cursor+1, len(m.items))
	}
	return s.String()
}

func (m *Model) helpView() string {
	k := m.keys
	return style.HelpStyle.Render(fmt.Sprintf("%s select · %s open · %s up · %s path · %s share · %s quit",
		k.ToggleSelect.Help().Key, k.Open.Help().Key, k.Parent.Help().Key,
		k.ToggleInput.Help().Key, k.Confirm.Help().Key, k.Quit.Help().Key))
}

func (m *Model) visibleItems() int {
	const header = 6
	if visible := m.height - header; visible > 0 {
		return visible
	}
	return 16
}
