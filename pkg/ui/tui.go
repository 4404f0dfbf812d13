package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	appevents "github.com/rescp17/nwshare/internal/app_events"
	"github.com/rescp17/nwshare/internal/style"
	receiverApp "github.com/rescp17/nwshare/pkg/receiver"
	senderApp "github.com/rescp17/nwshare/pkg/sender"
)

type mode int

const (
	None mode = iota
	Host
	Guest
)

// refreshInterval paces snapshot polling between app messages.
const refreshInterval = 250 * time.Millisecond

// AppController is the part of a role application the TUI talks to.
type AppController interface {
	UIMessages() <-chan tea.Msg
	AppEvents() chan<- appevents.AppEvent
}

type refreshMsg time.Time

type appClosedMsg struct{}

type model struct {
	mode          mode
	appController AppController
	keys          KeyMap
	help          help.Model
	width         int

	host  hostModel
	guest guestModel
}

// NewHostModel renders a hosted session.
func NewHostModel(a *senderApp.App) tea.Model {
	return &model{
		mode:          Host,
		appController: a,
		keys:          DefaultKeyMap.forHost(),
		help:          help.New(),
		host:          initHostModel(a),
	}
}

// NewGuestModel connects to code as soon as the program starts.
func NewGuestModel(a *receiverApp.App, code string) tea.Model {
	return &model{
		mode:          Guest,
		appController: a,
		keys:          DefaultKeyMap,
		help:          help.New(),
		guest:         initGuestModel(a, code),
	}
}

func (m *model) Init() tea.Cmd {
	switch m.mode {
	case Host:
		return tea.Batch(m.host.spinner.Tick, m.listenForAppMessages(), refresh())
	case Guest:
		return tea.Batch(m.guest.spinner.Tick, m.listenForAppMessages(), refresh(), m.connect())
	default:
		return nil
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = size.Width
		m.help.Width = size.Width
		return m, nil
	}
	switch m.mode {
	case Host:
		return m.updateHost(msg)
	case Guest:
		return m.updateGuest(msg)
	}
	return m, nil
}

func (m *model) View() string {
	var s string
	switch m.mode {
	case Host:
		s = m.hostView()
	case Guest:
		s = m.guestView()
	default:
		return ""
	}
	return style.DocStyle.Render(s + "\n" + m.help.View(m.keys))
}

// listenForAppMessages is a command that listens for messages from the app controller.
func (m *model) listenForAppMessages() tea.Cmd {
	ch := m.appController.UIMessages()
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return appClosedMsg{}
		}
		return msg
	}
}

// dispatch hands ev to the app without blocking Update.
func (m *model) dispatch(ev appevents.AppEvent) tea.Cmd {
	ch := m.appController.AppEvents()
	return func() tea.Msg {
		ch <- ev
		return nil
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}
