package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	failStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	headerStyle = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
)

func statusIcon(status string) string {
	switch status {
	case engine.StatusCompleted:
		return "✓"
	case engine.StatusFailed:
		return "✗"
	case engine.StatusCancelled:
		return "○"
	default:
		return "!"
	}
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case engine.StatusCompleted:
		return okStyle
	case engine.StatusFailed:
		return failStyle
	default:
		return warnStyle
	}
}

// column pads s to width cells.
func column(s string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(s)
}
