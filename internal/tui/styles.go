package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/lei/runwatch/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39"))

	completedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	warningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("172"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))
)

// stageStyle colours a stage status
func stageStyle(s models.StageStatus) lipgloss.Style {
	switch s {
	case models.StageCompleted:
		return completedStyle
	case models.StageRunning, models.StageStarted:
		return runningStyle
	case models.StageFailed, models.StageTimedOut:
		return failedStyle
	case models.StageUnknown:
		return warningStyle
	default:
		return dimmedStyle
	}
}

// runStyle colours a run status
func runStyle(s models.RunStatus) lipgloss.Style {
	switch s {
	case models.RunCompleted:
		return completedStyle
	case models.RunRunning, models.RunStarted:
		return runningStyle
	case models.RunFailed, models.RunTimedOut, models.RunTerminated, models.RunCanceled:
		return failedStyle
	case models.RunUnknown:
		return warningStyle
	default:
		return dimmedStyle
	}
}
