package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Border styles
var (
	StylePaneBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))
)

// Status styles
var (
	StyleEnergyBest = lipgloss.NewStyle().
			Foreground(lipgloss.Color("green")).
			Bold(true)

	StyleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("red")).
			Bold(true)

	StyleCorrupt = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))
)

// UI element styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleCounters = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)
