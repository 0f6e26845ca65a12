package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	colorPurple    = lipgloss.Color("#7D56F4")
	colorGreen     = lipgloss.Color("#04B575")
	colorRed       = lipgloss.Color("#FF4141")
	colorGray      = lipgloss.Color("#626262")
	colorLightGray = lipgloss.Color("#9e9e9e")
	colorWhite     = lipgloss.Color("#FFFFFF")

	styleTitle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	styleStepActive = lipgloss.NewStyle().
			Foreground(colorWhite).
			Background(colorPurple).
			Padding(0, 1).
			Bold(true)

	styleStepDone = lipgloss.NewStyle().
			Foreground(colorGreen).
			Padding(0, 1)

	styleStepPending = lipgloss.NewStyle().
				Foreground(colorGray).
				Padding(0, 1)

	styleCursor = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	styleSelected = lipgloss.NewStyle().
			Foreground(colorGreen)

	styleDim = lipgloss.NewStyle().
			Foreground(colorLightGray)

	styleHelp = lipgloss.NewStyle().
			Foreground(colorGray)

	styleError = lipgloss.NewStyle().
			Foreground(colorRed)

	styleSuccess = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	styleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPurple).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(colorLightGray).
			Width(12)
)
