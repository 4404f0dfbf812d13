package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	appevents "github.com/rescp17/nwshare/internal/app_events"
	senderEvent "github.com/rescp17/nwshare/internal/app_events/sender"
	"github.com/rescp17/nwshare/internal/style"
	"github.com/rescp17/nwshare/internal/util"
	"github.com/rescp17/nwshare/pkg/chat"
	senderApp "github.com/rescp17/nwshare/pkg/sender"
	"github.com/rescp17/nwshare/pkg/session"
	"github.com/rescp17/nwshare/pkg/transfer"
)

const (
	nameWidth   = 32
	sizeWidth   = 12
	chatHistory = 6
)

type hostModel struct {
	app     *senderApp.App
	spinner spinner.Model
	bar     progress.Model
	input   textinput.Model
	typing  bool
	cursor  int
	snap    senderApp.Snapshot
	notice  string
	err     error
	ending  session.EndReason
}

func initHostModel(a *senderApp.App) hostModel {
	return hostModel{
		app:     a,
		spinner: style.NewSpinner(),
		bar:     style.NewProgress(24),
		input:   style.NewInput("message to every guest", 500),
		snap:    a.Snapshot(),
	}
}

func (m *model) updateHost(msg tea.Msg) (tea.Model, tea.Cmd) {
	if cmd, processed := m.handleHostAppEvent(msg); processed {
		return m, cmd
	}
	switch msg := msg.(type) {
	case refreshMsg:
		m.host.snap = m.host.app.Snapshot()
		m.host.cursor = clampCursor(m.host.cursor, len(m.host.snap.Files))
		return m, refresh()
	case tea.KeyMsg:
		return m, m.hostKey(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.host.spinner, cmd = m.host.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) handleHostAppEvent(msg tea.Msg) (tea.Cmd, bool) {
	switch msg := msg.(type) {
	case senderEvent.SessionReadyMsg:
		m.host.notice = "Waiting for guests"
	case senderEvent.PeerConnectedMsg:
		m.host.notice = "Guest connected: " + shortID(msg.PeerID)
	case senderEvent.PeerDisconnectedMsg:
		m.host.notice = "Guest left"
	case senderEvent.TransferUpdateMsg:
		if msg.Status.State == transfer.StateCompleted {
			m.host.notice = "Sent " + msg.Status.FileName
		}
	case senderEvent.ChatMsg, senderEvent.LatencyMsg:
	case senderEvent.NudgedMsg:
		m.host.notice = "A guest nudged you"
	case senderEvent.SessionEndingMsg:
		m.host.ending = msg.Reason
		m.host.notice = "Session ending: " + endReasonText(msg.Reason)
	case senderEvent.SessionEndedMsg:
		m.host.ending = msg.Reason
		return tea.Quit, true
	case appevents.Error:
		m.host.err = msg.Err
	case appevents.Notice:
		m.host.notice = msg.Text
	case appClosedMsg:
		return tea.Quit, true
	default:
		return nil, false
	}
	m.host.snap = m.host.app.Snapshot()
	return m.listenForAppMessages(), true
}

func (m *model) hostKey(msg tea.KeyMsg) tea.Cmd {
	if m.host.typing {
		switch msg.Type {
		case tea.KeyEnter:
			text := m.host.input.Value()
			m.host.input.Reset()
			m.host.input.Blur()
			m.host.typing = false
			if strings.TrimSpace(text) == "" {
				return nil
			}
			return m.dispatch(senderEvent.SendTextEvent{Text: text})
		case tea.KeyEsc:
			m.host.input.Reset()
			m.host.input.Blur()
			m.host.typing = false
			return nil
		}
		var cmd tea.Cmd
		m.host.input, cmd = m.host.input.Update(msg)
		return cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.host.cursor = clampCursor(m.host.cursor-1, len(m.host.snap.Files))
	case key.Matches(msg, m.keys.Down):
		m.host.cursor = clampCursor(m.host.cursor+1, len(m.host.snap.Files))
	case key.Matches(msg, m.keys.Remove):
		if m.host.cursor < len(m.host.snap.Files) {
			return m.dispatch(senderEvent.RemoveFileEvent{FileID: m.host.snap.Files[m.host.cursor].Meta.ID})
		}
	case key.Matches(msg, m.keys.Chat):
		m.host.typing = true
		return m.host.input.Focus()
	case key.Matches(msg, m.keys.Nudge):
		return m.dispatch(senderEvent.NudgeEvent{})
	case key.Matches(msg, m.keys.Stop):
		return m.dispatch(senderEvent.StopSessionEvent{})
	}
	return nil
}

func (m *model) hostView() string {
	h := m.host
	var b strings.Builder
	b.WriteString(renderHostSummary(h.snap))
	b.WriteString("\n\n")
	b.WriteString(renderHostFiles(h.snap, h.cursor))
	b.WriteString("\n")
	b.WriteString(renderGuests(h.snap))
	b.WriteString("\n")
	b.WriteString(renderTransfers(h.snap.Transfers, h.bar))
	if len(h.snap.Chat) > 0 {
		b.WriteString("\n")
		b.WriteString(renderChat(h.snap.Chat, "guest"))
	}
	if h.typing {
		b.WriteString("\n" + h.input.View() + "\n")
	}
	if h.ending != session.EndReasonNone {
		fmt.Fprintf(&b, "\n%s Finishing running transfers...\n", h.spinner.View())
	} else if h.notice != "" {
		b.WriteString("\n" + style.HighlightStyle.Render(h.notice) + "\n")
	}
	if h.err != nil {
		b.WriteString(style.ErrorStyle.Render("Error: "+h.err.Error()) + "\n")
	}
	return b.String()
}

func renderHostSummary(s senderApp.Snapshot) string {
	lock := style.SuccessStyle.Render("open")
	if s.Locked {
		lock = style.WarnStyle.Render("password protected")
	}
	line := fmt.Sprintf("%s  %s  %s",
		style.TitleStyle.Render("nwshare"), style.CodeStyle.Render(s.Code), lock)

	var parts []string
	if s.Remaining >= 0 {
		parts = append(parts, "expires in "+util.FormatDuration(s.Remaining))
	}
	if s.Limit > 0 {
		parts = append(parts, fmt.Sprintf("downloads %d/%d", s.Downloads, s.Limit))
	} else {
		parts = append(parts, fmt.Sprintf("downloads %d", s.Downloads))
	}
	parts = append(parts, "sent "+util.FormatSize(s.BytesSent))
	if s.Rate > 0 {
		parts = append(parts, util.FormatSpeed(s.Rate))
	}
	return line + "\n" + style.MutedStyle.Render(strings.Join(parts, " · "))
}

func renderHostFiles(s senderApp.Snapshot, cursor int) string {
	var b strings.Builder
	b.WriteString(style.HeaderStyle.Render(fmt.Sprintf("Files (%d)", len(s.Files))) + "\n")
	if len(s.Files) == 0 {
		b.WriteString(style.MutedStyle.Render("  nothing shared") + "\n")
	}
	for i, f := range s.Files {
		c := style.NoCursorStyle.String()
		if i == cursor {
			c = style.CursorStyle.String()
		}
		row := util.PadRight(f.Meta.Name, nameWidth) + util.PadLeft(util.FormatSize(f.Meta.Size), sizeWidth)
		if f.Stats.Downloads > 0 {
			row += style.MutedStyle.Render(fmt.Sprintf("  ↓%d", f.Stats.Downloads))
		}
		b.WriteString(c + style.FileStyle.Render(row) + "\n")
	}
	return b.String()
}

func renderGuests(s senderApp.Snapshot) string {
	var b strings.Builder
	b.WriteString(style.HeaderStyle.Render(fmt.Sprintf("Guests (%d)", len(s.Guests))) + "\n")
	for _, g := range s.Guests {
		row := "  " + util.PadRight(shortID(g.PeerID), 14)
		if g.HasLatency {
			row += util.PadRight(fmt.Sprintf("rtt %dms", g.Latency.Milliseconds()), 12)
		} else {
			row += util.PadRight("rtt -", 12)
		}
		if s.Locked && !g.Unlocked {
			row += style.WarnStyle.Render("locked")
		}
		b.WriteString(row + "\n")
	}
	return b.String()
}

func renderTransfers(ts []transfer.TransferStatus, bar progress.Model) string {
	if len(ts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(style.HeaderStyle.Render("Transfers") + "\n")
	for _, t := range ts {
		b.WriteString("  " + renderTransfer(t, bar) + "\n")
	}
	return b.String()
}

func renderTransfer(t transfer.TransferStatus, bar progress.Model) string {
	name := util.PadRight(t.FileName, 24)
	switch t.State {
	case transfer.StateCompleted:
		return name + " " + style.SuccessStyle.Render("done")
	case transfer.StateFailed:
		msg := "failed"
		if t.LastError != nil {
			msg += ": " + t.LastError.Error()
		}
		return name + " " + style.ErrorStyle.Render(msg)
	}
	line := fmt.Sprintf("%s %s %5.1f%%", name, bar.ViewAs(t.Percent()/100), t.Percent())
	if t.TransferRate > 0 {
		line += "  " + util.FormatSpeed(t.TransferRate) + "  ETA " + util.FormatDuration(t.ETA)
	}
	return line
}

func renderChat(msgs []chat.Message, peerName string) string {
	var b strings.Builder
	b.WriteString(style.HeaderStyle.Render("Chat") + "\n")
	if len(msgs) > chatHistory {
		msgs = msgs[len(msgs)-chatHistory:]
	}
	for _, msg := range msgs {
		who := style.PeerStyle.Render(peerName)
		if msg.Sender == chat.Self {
			who = style.SelfStyle.Render("you")
		}
		fmt.Fprintf(&b, "  %s %s: %s\n", style.MutedStyle.Render(msg.Timestamp.Format("15:04")), who, msg.Text)
	}
	return b.String()
}

func endReasonText(r session.EndReason) string {
	switch r {
	case session.EndReasonTime:
		return "time is up"
	case session.EndReasonLimit:
		return "download limit reached"
	case session.EndReasonUser:
		return "stopped"
	default:
		return string(r)
	}
}

func clampCursor(cursor, n int) int {
	if n == 0 || cursor < 0 {
		return 0
	}
	if cursor >= n {
		return n - 1
	}
	return cursor
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
