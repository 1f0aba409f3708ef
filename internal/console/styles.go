package console

import "github.com/charmbracelet/lipgloss"

// Adaptive colors read correctly on both light and dark terminal
// backgrounds, matching the palette the teacher's CLI packages use for
// stderr status messages.
var (
	colorError   = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5F5F"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#AA5500", Dark: "#FFAF00"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#067D17", Dark: "#5FD75F"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0000CC", Dark: "#5FAFFF"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#9E9E9E"}
)

var (
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleInfo    = lipgloss.NewStyle().Foreground(colorInfo)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
)
