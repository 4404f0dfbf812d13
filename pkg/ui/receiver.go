package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rescp17/nwshare/internal/app"
	appevents "github.com/rescp17/nwshare/internal/app_events"
	receiverEvent "github.com/rescp17/nwshare/internal/app_events/receiver"
	"github.com/rescp17/nwshare/internal/style"
	"github.com/rescp17/nwshare/internal/util"
	receiverApp "github.com/rescp17/nwshare/pkg/receiver"
)

type focus int

const (
	focusList focus = iota
	focusPassword
	focusChat
)

type guestModel struct {
	app      *receiverApp.App
	code     string
	spinner  spinner.Model
	bar      progress.Model
	password textinput.Model
	input    textinput.Model
	focus    focus
	cursor   int
	snap     receiverApp.Snapshot
	notice   string
	err      error
}

func initGuestModel(a *receiverApp.App, code string) guestModel {
	pw := style.NewInput("password", 128)
	pw.EchoMode = textinput.EchoPassword
	return guestModel{
		app:      a,
		code:     code,
		spinner:  style.NewSpinner(),
		bar:      style.NewProgress(24),
		password: pw,
		input:    style.NewInput("message to the host", 500),
		snap:     a.Snapshot(),
	}
}

func (m *model) connect() tea.Cmd {
	m.guest.err = nil
	return m.dispatch(receiverEvent.ConnectEvent{Code: m.guest.code})
}

func (m *model) updateGuest(msg tea.Msg) (tea.Model, tea.Cmd) {
	if cmd, processed := m.handleGuestAppEvent(msg); processed {
		return m, cmd
	}
	switch msg := msg.(type) {
	case refreshMsg:
		m.guest.snap = m.guest.app.Snapshot()
		m.guest.cursor = clampCursor(m.guest.cursor, len(m.guest.snap.Files))
		return m, refresh()
	case tea.KeyMsg:
		return m, m.guestKey(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.guest.spinner, cmd = m.guest.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) handleGuestAppEvent(msg tea.Msg) (tea.Cmd, bool) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case receiverEvent.PhaseMsg:
		switch msg.Phase {
		case app.PhaseConnected:
			m.guest.notice = "Connected"
		case app.PhaseDisconnected:
			m.guest.focus = focusList
			m.guest.notice = ""
			m.guest.err = msg.Err
		}
	case receiverEvent.ManifestMsg:
		if msg.Locked {
			m.guest.focus = focusPassword
			cmd = m.guest.password.Focus()
		} else {
			m.guest.notice = fmt.Sprintf("%d file(s) shared", len(msg.Files))
		}
	case receiverEvent.PasswordResultMsg:
		m.guest.password.Reset()
		if msg.OK {
			m.guest.password.Blur()
			m.guest.focus = focusList
			m.guest.notice = "Unlocked"
		} else {
			m.guest.notice = "Wrong password"
		}
	case receiverEvent.DownloadCompleteMsg:
		m.guest.notice = "Saved " + msg.Download.Location
	case receiverEvent.HostErrorMsg:
		m.guest.err = &receiverApp.HostError{Code: msg.Payload.Code, Message: msg.Payload.Message}
	case receiverEvent.NudgedMsg:
		m.guest.notice = "The host nudged you"
	case receiverEvent.DownloadUpdateMsg, receiverEvent.LatencyMsg, receiverEvent.ChatMsg:
	case appevents.Error:
		m.guest.err = msg.Err
	case appevents.Notice:
		m.guest.notice = msg.Text
	case appClosedMsg:
		return tea.Quit, true
	default:
		return nil, false
	}
	m.guest.snap = m.guest.app.Snapshot()
	return tea.Batch(cmd, m.listenForAppMessages()), true
}

func (m *model) guestKey(msg tea.KeyMsg) tea.Cmd {
	g := &m.guest
	switch g.focus {
	case focusPassword:
		switch msg.Type {
		case tea.KeyEnter:
			return m.dispatch(receiverEvent.SubmitPasswordEvent{Password: g.password.Value()})
		case tea.KeyEsc:
			g.password.Blur()
			g.focus = focusList
			return nil
		case tea.KeyCtrlC:
			return tea.Quit
		}
		var cmd tea.Cmd
		g.password, cmd = g.password.Update(msg)
		return cmd
	case focusChat:
		switch msg.Type {
		case tea.KeyEnter:
			text := g.input.Value()
			g.input.Reset()
			g.input.Blur()
			g.focus = focusList
			if strings.TrimSpace(text) == "" {
				return nil
			}
			return m.dispatch(receiverEvent.SendTextEvent{Text: text})
		case tea.KeyEsc:
			g.input.Reset()
			g.input.Blur()
			g.focus = focusList
			return nil
		}
		var cmd tea.Cmd
		g.input, cmd = g.input.Update(msg)
		return cmd
	}

	connected := g.snap.Phase == app.PhaseConnected
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Retry):
		if g.snap.Phase == app.PhaseDisconnected {
			return m.connect()
		}
	case key.Matches(msg, m.keys.Up):
		g.cursor = clampCursor(g.cursor-1, len(g.snap.Files))
	case key.Matches(msg, m.keys.Down):
		g.cursor = clampCursor(g.cursor+1, len(g.snap.Files))
	case key.Matches(msg, m.keys.Download):
		if connected && g.cursor < len(g.snap.Files) {
			g.err = nil
			return m.dispatch(receiverEvent.RequestFileEvent{FileID: g.snap.Files[g.cursor].Meta.ID})
		}
	case key.Matches(msg, m.keys.All):
		if connected {
			g.err = nil
			return m.dispatch(receiverEvent.DownloadAllEvent{})
		}
	case key.Matches(msg, m.keys.Password):
		if connected && g.snap.Locked {
			g.focus = focusPassword
			return g.password.Focus()
		}
	case key.Matches(msg, m.keys.Chat):
		if connected {
			g.focus = focusChat
			return g.input.Focus()
		}
	case key.Matches(msg, m.keys.Nudge):
		if connected {
			return m.dispatch(receiverEvent.NudgeEvent{})
		}
	}
	return nil
}

func (m *model) guestView() string {
	g := m.guest
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s", style.TitleStyle.Render("nwshare"), style.CodeStyle.Render(g.code))
	if g.snap.HasLatency {
		b.WriteString(style.MutedStyle.Render(fmt.Sprintf("  rtt %dms", g.snap.Latency.Milliseconds())))
	}
	b.WriteString("\n\n")

	switch g.snap.Phase {
	case app.PhaseInit, app.PhaseLookup:
		fmt.Fprintf(&b, "%s Looking for the host...\n", g.spinner.View())
	case app.PhaseHandshake:
		fmt.Fprintf(&b, "%s Connecting...\n", g.spinner.View())
	case app.PhaseDisconnected:
		b.WriteString(style.WarnStyle.Render("Disconnected.") + " Press r to reconnect.\n")
	case app.PhaseConnected:
		switch {
		case !g.snap.Manifest:
			fmt.Fprintf(&b, "%s Waiting for the file list...\n", g.spinner.View())
		case g.snap.Locked:
			b.WriteString("This session is password protected.\n")
			if g.snap.PasswordRejected {
				b.WriteString(style.ErrorStyle.Render("Wrong password, try again.") + "\n")
			}
			if g.focus == focusPassword {
				b.WriteString(g.password.View() + "\n")
			} else {
				b.WriteString(style.HelpStyle.Render("Press p to enter the password.") + "\n")
			}
		default:
			b.WriteString(renderGuestFiles(g.snap, g.cursor, g.bar))
		}
		if len(g.snap.Chat) > 0 {
			b.WriteString("\n" + renderChat(g.snap.Chat, "host"))
		}
		if g.focus == focusChat {
			b.WriteString("\n" + g.input.View() + "\n")
		}
	}

	if g.notice != "" {
		b.WriteString("\n" + style.HighlightStyle.Render(g.notice) + "\n")
	}
	if g.err != nil {
		b.WriteString(style.ErrorStyle.Render("Error: "+g.err.Error()) + "\n")
	}
	return b.String()
}

func renderGuestFiles(s receiverApp.Snapshot, cursor int, bar progress.Model) string {
	var b strings.Builder
	b.WriteString(style.HeaderStyle.Render(fmt.Sprintf("Files (%d)", len(s.Files))) + "\n")
	if len(s.Files) == 0 {
		b.WriteString(style.MutedStyle.Render("  the host shares nothing right now") + "\n")
	}
	for i, f := range s.Files {
		c := style.NoCursorStyle.String()
		if i == cursor {
			c = style.CursorStyle.String()
		}
		row := util.PadRight(f.Meta.Name, nameWidth) + util.PadLeft(util.FormatSize(f.Meta.Size), sizeWidth) + "  "
		switch f.State {
		case receiverApp.FileDownloading:
			row += bar.ViewAs(f.Progress.Percent() / 100)
			if f.Progress.TransferRate > 0 {
				row += "  " + util.FormatSpeed(f.Progress.TransferRate)
			}
		case receiverApp.FileQueued, receiverApp.FileRequested:
			row += style.MutedStyle.Render(string(f.State))
		case receiverApp.FileDone:
			row += style.SuccessStyle.Render("done")
		case receiverApp.FileFailed:
			row += style.ErrorStyle.Render("failed")
		}
		b.WriteString(c + row + "\n")
	}
	return b.String()
}
