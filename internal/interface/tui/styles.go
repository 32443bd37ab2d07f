package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	runningStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("120"))

	pendingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("yellow"))

	completedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("cyan"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	phaseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170"))

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("246"))

	approvalBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("yellow")).
				Padding(0, 1)

	insightStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("green"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("246"))
)
