package style

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
)

// --- Reusable Colors ---
var (
	colorPink      = lipgloss.Color("205")
	colorDarkGray  = lipgloss.Color("240")
	colorLightGray = lipgloss.Color("229")
	colorCyan      = lipgloss.Color("212")
	colorPurple    = lipgloss.Color("99")
	colorGreen     = lipgloss.Color("42")
	colorYellow    = lipgloss.Color("214")
	colorRed       = lipgloss.Color("196")
)

// --- General Purpose Styles ---
var (
	DocStyle       = lipgloss.NewStyle().Margin(1, 2)
	TitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
	ErrorStyle     = lipgloss.NewStyle().Foreground(colorRed)
	WarnStyle      = lipgloss.NewStyle().Foreground(colorYellow)
	SuccessStyle   = lipgloss.NewStyle().Foreground(colorGreen)
	HelpStyle      = lipgloss.NewStyle().Faint(true)
	HeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorPurple)
	HighlightStyle = lipgloss.NewStyle().Foreground(colorCyan)
	CodeStyle      = lipgloss.NewStyle().Bold(true).Foreground(colorLightGray).
			Background(colorPurple).Padding(0, 1)
	BoxStyle = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorDarkGray).Padding(0, 1)
)

// --- File list ---
var (
	CursorStyle   = lipgloss.NewStyle().Foreground(colorCyan).SetString("> ")
	NoCursorStyle = lipgloss.NewStyle().SetString("  ")
	FileStyle     = lipgloss.NewStyle().Foreground(colorLightGray)
	DirStyle      = lipgloss.NewStyle().Foreground(colorPurple)
	MutedStyle    = lipgloss.NewStyle().Foreground(colorDarkGray)

	SelectedStyle   = lipgloss.NewStyle().Foreground(colorGreen).SetString("[x] ")
	DeselectedStyle = lipgloss.NewStyle().Foreground(colorDarkGray).SetString("[ ] ")
)

// --- Chat ---
var (
	SelfStyle = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	PeerStyle = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
)

// --- Common Components ---

// NewSpinner creates a spinner with a consistent style.
func NewSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPink)
	return s
}

func NewProgress(width int) progress.Model {
	p := progress.New(progress.WithDefaultGradient())
	p.Width = width
	return p
}

// NewInput returns an unfocused single-line input.
func NewInput(placeholder string, limit int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = limit
	ti.Width = 40
	ti.PromptStyle = HighlightStyle
	return ti
}
