package lipgloss

import "github.com/charmbracelet/lipgloss"

// Terminal styles shared by the commands
var (
	Red     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F56"))
	Green   = lipgloss.NewStyle().Foreground(lipgloss.Color("#27C93F"))
	Yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFBD2E"))
	Info    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7DCFFF")).Bold(true)
	BlueSky = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	Gray    = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7DCFFF")).
			Padding(0, 1)
)
