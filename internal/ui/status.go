package ui

import (
	"strconv"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
)

var (
	statusBarBg     = lipgloss.Color("#353533")
	statusPillBg    = lipgloss.Color("#FF5FAF")
	statusPillBgOff = lipgloss.Color("#6C5098")
	statusTimeBg    = lipgloss.Color("#6124DF")
	statusUserBg    = lipgloss.Color("#7B5EA7")
)

// statusModel is the bottom bar:
// [connection pill] [chat title] [activity] ... [user] [time]
type statusModel struct {
	connected bool
	reason    string
	chatTitle string
	userName  string
	activity  int
	width     int
	now       func() time.Time
}

func newStatusModel(userName string) statusModel {
	return statusModel{userName: userName, now: time.Now}
}

func (m statusModel) SetWidth(w int) statusModel {
	m.width = w
	return m
}

func (m statusModel) SetChatTitle(title string) statusModel {
	m.chatTitle = title
	m.activity = 0
	return m
}

// SetConnection records the subscription state. reason is shown while
// disconnected.
func (m statusModel) SetConnection(connected bool, reason string) statusModel {
	m.connected = connected
	m.reason = reason
	return m
}

// Touch counts a listener notification for the open chat.
func (m statusModel) Touch() statusModel {
	m.activity++
	return m
}

func (m statusModel) label() string {
	switch {
	case m.connected:
		return "online"
	case m.reason != "":
		return "offline: " + m.reason
	default:
		return "offline"
	}
}

func (m statusModel) View() string {
	pillBg := statusPillBgOff
	if m.connected {
		pillBg = statusPillBg
	}
	base := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true).Padding(0, 1)

	left := base.Background(pillBg).Render(strings.ToUpper(m.label())) +
		base.Background(statusBarBg).Render(m.chatTitle)
	if m.activity > 0 {
		left += base.Background(statusBarBg).Foreground(lipgloss.Color("214")).Render("● " + strconv.Itoa(m.activity))
	}
	right := base.Background(statusUserBg).Render(m.userName) +
		base.Background(statusTimeBg).Render(m.now().Format("15:04"))

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	filler := lipgloss.NewStyle().Background(statusBarBg).Render(strings.Repeat(" ", gap))

	return lipgloss.NewStyle().Background(statusBarBg).Width(m.width).Render(left + filler + right)
}
