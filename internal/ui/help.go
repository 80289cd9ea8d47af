package ui

import "charm.land/lipgloss/v2"

// HelpModel is a centered overlay listing keyboard shortcuts.
type HelpModel struct {
	visible       bool
	width, height int
}

func (h HelpModel) IsVisible() bool {
	return h.visible
}

func (h HelpModel) Toggle() HelpModel {
	h.visible = !h.visible
	return h
}

func (h HelpModel) SetSize(w, ht int) HelpModel {
	h.width = w
	h.height = ht
	return h
}

const helpText = ` Keyboard Shortcuts

 General
   Ctrl+C        Quit
   ? / F1        Toggle this help
   Ctrl+R        Reconnect
   Tab           Next pane
   Shift+Tab     Previous pane
   Esc           Back to chat list

 Chat List
   j/k / ↑/↓     Navigate chats
   Enter         Open chat
   /             Filter chats

 Messages
   j / k         Scroll down / up
   PgUp / PgDn   Page scroll

 Input
   Enter         Send message

 Markers
   …             Sending
   ↻             Retrying
   ✗             Not sent
   ✓             Delivered`

func (h HelpModel) View() string {
	if !h.visible || h.width == 0 || h.height == 0 {
		return ""
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(1, 3).
		BorderForegroundBlend(rainbowBlend...).
		Render(helpText)
}

// BoxOffset returns the position that centers the box on screen.
func (h HelpModel) BoxOffset() (int, int) {
	box := h.View()
	x := (h.width - lipgloss.Width(box)) / 2
	y := (h.height - lipgloss.Height(box)) / 2
	return max(x, 0), max(y, 0)
}
