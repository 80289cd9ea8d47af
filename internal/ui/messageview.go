package ui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"

	"github.com/danhigham/tgflux/internal/domain"
)

// delivery is what the message view shows about a message's progress to the
// server.
type delivery int

const (
	deliveryNone delivery = iota
	deliverySending
	deliveryRetrying
	deliveryFailed
	deliveryDelivered
)

func deliveryOf(msg domain.Message, local domain.UserID, maxAttempts int) delivery {
	switch m := msg.(type) {
	case domain.LocalMessage:
		switch {
		case m.Failed():
			return deliveryFailed
		case m.DeliveryAttemptsLeft < maxAttempts:
			return deliveryRetrying
		default:
			return deliverySending
		}
	case domain.RemoteMessage:
		if m.SenderID == local {
			return deliveryDelivered
		}
	}
	return deliveryNone
}

func (d delivery) marker() string {
	switch d {
	case deliverySending:
		return sendingStyle.Render("…")
	case deliveryRetrying:
		return retryingStyle.Render("↻ retrying")
	case deliveryFailed:
		return failedStyle.Render("✗ not sent")
	case deliveryDelivered:
		return deliveredStyle.Render("✓")
	default:
		return ""
	}
}

// MessageViewModel displays the open chat using a viewport, and glamour for
// messages with markdown content.
type MessageViewModel struct {
	viewport    viewport.Model
	renderer    *glamour.TermRenderer
	dir         domain.Directory
	local       domain.UserID
	maxAttempts int
	focused     bool
	width       int
	height      int
	messages    []domain.Message
}

func NewMessageViewModel(dir domain.Directory, local domain.UserID, maxAttempts int) MessageViewModel {
	return MessageViewModel{
		viewport:    viewport.New(),
		dir:         dir,
		local:       local,
		maxAttempts: maxAttempts,
	}
}

func (m MessageViewModel) Update(msg tea.Msg) (MessageViewModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "j":
			m.viewport.ScrollDown(1)
			return m, nil
		case "k":
			m.viewport.ScrollUp(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m MessageViewModel) View() string {
	content := truncateHeight(m.viewport.View(), max(m.height-2, 0))

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused)
	return style.Render(content)
}

func (m MessageViewModel) SetSize(w, h int) MessageViewModel {
	m.width = w
	m.height = h
	m.viewport.SetWidth(max(w-2, 1))
	m.viewport.SetHeight(max(h-2, 1))
	m = m.recreateRenderer()
	return m.renderContent(true)
}

func (m MessageViewModel) SetFocused(f bool) MessageViewModel {
	m.focused = f
	return m
}

// SetMessages replaces the shown messages. The view follows new messages only
// when it was already scrolled to the bottom.
func (m MessageViewModel) SetMessages(msgs []domain.Message) MessageViewModel {
	follow := m.viewport.AtBottom() || len(m.messages) == 0
	m.messages = msgs
	return m.renderContent(follow)
}

// ScrollToLatest jumps to the newest message.
func (m MessageViewModel) ScrollToLatest() MessageViewModel {
	m.viewport.GotoBottom()
	return m
}

func (m MessageViewModel) recreateRenderer() MessageViewModel {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(max(m.viewport.Width()-2, 10)),
	)
	if err == nil {
		m.renderer = r
	}
	return m
}

func (m MessageViewModel) renderContent(gotoBottom bool) MessageViewModel {
	var b strings.Builder
	var currentDate string

	if len(m.messages) == 0 {
		b.WriteString(placeholderStyle.Render("No messages yet."))
	}

	for _, msg := range m.messages {
		ts := msg.MessageTime()
		if date := ts.Format("January 2, 2006"); date != currentDate {
			if currentDate != "" {
				b.WriteString("\n")
			}
			b.WriteString(daySeparatorStyle.Render(fmt.Sprintf("───── %s ─────", date)) + "\n")
			currentDate = date
		}

		nameStyle := inNameStyle
		if msg.MessageSender() == m.local {
			nameStyle = outNameStyle
		}
		header := timeStyle.Render(ts.Format("15:04")) + " " + nameStyle.Render(m.dir.UserName(msg.MessageSender())+":")
		marker := deliveryOf(msg, m.local, m.maxAttempts).marker()

		content := msg.MessageContent()
		switch {
		case content.Markdown:
			fmt.Fprintf(&b, "%s %s\n%s\n\n", header, marker, m.renderMarkdown(content.Text))
		case strings.Contains(content.Text, "\n"):
			fmt.Fprintf(&b, "%s %s\n%s\n\n", header, marker, content.Text)
		default:
			fmt.Fprintf(&b, "%s %s %s\n", header, content.Text, marker)
		}
	}

	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width()).Render(b.String()))
	if gotoBottom {
		m.viewport.GotoBottom()
	}
	return m
}

// renderMarkdown renders text through glamour. Glamour joins single newlines
// into paragraphs, so ordinary blocks are rendered line by line to keep the
// sender's line breaks. Fenced code and tables are rendered whole.
func (m MessageViewModel) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text
	}

	blocks := strings.Split(text, "\n\n")
	for i, block := range blocks {
		if block == "" || isMultiLineMarkdown(block) {
			blocks[i] = m.renderBlock(block)
			continue
		}
		lines := strings.Split(block, "\n")
		for j, line := range lines {
			lines[j] = m.renderBlock(line)
		}
		blocks[i] = strings.Join(lines, "\n")
	}
	return strings.Join(blocks, "\n")
}

func (m MessageViewModel) renderBlock(text string) string {
	if text == "" {
		return ""
	}
	r, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimLeft(strings.TrimRight(r, "\n "), "\n")
}

// isMultiLineMarkdown reports whether block is a fenced code block or a table.
func isMultiLineMarkdown(block string) bool {
	if !strings.Contains(block, "\n") {
		return false
	}
	trimmed := strings.TrimSpace(block)
	if strings.HasPrefix(trimmed, "```") {
		return true
	}
	for _, line := range strings.Split(trimmed, "\n") {
		if !strings.Contains(line, "|") {
			return false
		}
	}
	return true
}
