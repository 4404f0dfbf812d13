package ui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Download key.Binding
	All      key.Binding
	Remove   key.Binding
	Password key.Binding
	Chat     key.Binding
	Nudge    key.Binding
	Retry    key.Binding
	Stop     key.Binding
	Quit     key.Binding

	host bool
}

// DefaultKeyMap provides sensible default keybindings.
var DefaultKeyMap = KeyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Download: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "download")),
	All:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "download all")),
	Remove:   key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "remove file")),
	Password: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "password")),
	Chat:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "chat")),
	Nudge:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "nudge")),
	Retry:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reconnect")),
	Stop:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop sharing")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k KeyMap) forHost() KeyMap {
	k.host = true
	return k
}

func (k KeyMap) ShortHelp() []key.Binding {
	if k.host {
		return []key.Binding{k.Up, k.Down, k.Remove, k.Chat, k.Nudge, k.Stop, k.Quit}
	}
	return []key.Binding{k.Up, k.Down, k.Download, k.All, k.Chat, k.Nudge, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.Password, k.Retry}}
}
