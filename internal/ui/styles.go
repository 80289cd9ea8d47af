package ui

import (
	"image/color"
	"strings"

	"charm.land/lipgloss/v2"
)

var (
	daySeparatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	timeStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	outNameStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	inNameStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	placeholderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)

	// Delivery markers.
	sendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	retryingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	deliveredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

	dimColor = lipgloss.Color("240")

	// Focused borders fade through these and wrap back to the start.
	rainbowBlend = []color.Color{
		lipgloss.Color("#FF6B9D"),
		lipgloss.Color("#9B59B6"),
		lipgloss.Color("#3498DB"),
		lipgloss.Color("#2ECC71"),
		lipgloss.Color("#FF6B9D"),
	}
)

func applyBorderColor(s lipgloss.Style, focused bool) lipgloss.Style {
	if focused {
		return s.BorderForegroundBlend(rainbowBlend...)
	}
	return s.BorderForeground(dimColor)
}

// truncateHeight limits s to at most maxLines lines.
func truncateHeight(s string, maxLines int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[:maxLines], "\n")
}
