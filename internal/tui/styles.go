package tui

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	ColorFgPrimary = lipgloss.Color("#ABB2BF")
	ColorFgMuted   = lipgloss.Color("#636B78")
	ColorRed       = lipgloss.Color("#E06C75")
	ColorGreen     = lipgloss.Color("#98C379")
	ColorYellow    = lipgloss.Color("#E5C07B")
	ColorBlue      = lipgloss.Color("#61AFEF")
	ColorMagenta   = lipgloss.Color("#C678DD")
	ColorBorder    = lipgloss.Color("#3F4451")
)

// Component styles
var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta).
			Bold(true).
			PaddingLeft(1)

	PhaseStyles = map[string]lipgloss.Style{
		"idle":          lipgloss.NewStyle().Foreground(ColorFgMuted),
		"showing":       lipgloss.NewStyle().Foreground(ColorGreen).Bold(true),
		"transitioning": lipgloss.NewStyle().Foreground(ColorYellow).Bold(true),
		"finished":      lipgloss.NewStyle().Foreground(ColorBlue).Bold(true),
	}

	LaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 2)

	ItemNameStyle = lipgloss.NewStyle().
			Foreground(ColorFgPrimary).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	CountdownStyle = lipgloss.NewStyle().
			Foreground(ColorFgPrimary).
			Bold(true).
			PaddingLeft(1)

	CueFlashStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FinishStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true).
			Padding(1, 2)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)
)
