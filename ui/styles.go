package ui

import "github.com/charmbracelet/lipgloss"

const ellipsis = "…"

var (
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	fuchsia   = lipgloss.Color("#EE6FF8")
	red       = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	gray      = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	midGray   = lipgloss.AdaptiveColor{Light: "#B2B2B2", Dark: "#4A4A4A"}

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(fuchsia).
			Bold(true)

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg)

	statusBarStatsStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#949494", Dark: "#5A5A5A"}).
				Background(statusBarBg)

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen)

	statusBarErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFDF5")).
				Background(red)

	onlineDotStyle  = lipgloss.NewStyle().Foreground(mintGreen).Background(statusBarBg)
	offlineDotStyle = lipgloss.NewStyle().Foreground(red).Background(statusBarBg)

	userNameStyle      = lipgloss.NewStyle().Foreground(mintGreen).Bold(true)
	assistantNameStyle = lipgloss.NewStyle().Foreground(fuchsia).Bold(true)
	timestampStyle     = lipgloss.NewStyle().Foreground(gray)
	tagStyle           = lipgloss.NewStyle().Foreground(gray).Italic(true)
	pendingStyle       = lipgloss.NewStyle().Foreground(midGray).Italic(true)
	playMarkerStyle    = lipgloss.NewStyle().Foreground(gray)
	stopMarkerStyle    = lipgloss.NewStyle().Foreground(fuchsia).Bold(true)
	selectedBarStyle   = lipgloss.NewStyle().Foreground(fuchsia)

	recordingStyle = lipgloss.NewStyle().Foreground(red).Bold(true)
	meterStyle     = lipgloss.NewStyle().Foreground(fuchsia)
	callStyle      = lipgloss.NewStyle().Foreground(mintGreen).Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(midGray).
			Padding(0, 1)
	panelTitleStyle    = lipgloss.NewStyle().Foreground(fuchsia).Bold(true)
	panelSelectedStyle = lipgloss.NewStyle().Foreground(fuchsia)
	panelItemStyle     = lipgloss.NewStyle().Foreground(statusBarNoteFg)

	helpViewStyle = lipgloss.NewStyle().
			Foreground(statusBarNoteFg)

	errorTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(red).
			Padding(0, 1)
)
