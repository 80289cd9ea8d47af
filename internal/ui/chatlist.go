package ui

import (
	"fmt"
	"io"

	"charm.land/bubbles/v2/list"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/tgflux/internal/domain"
	"github.com/danhigham/tgflux/internal/state"
)

type chatItem struct {
	chatID      domain.ChatID
	title       string
	lastMessage string
	pending     int
	failed      int
}

func (i chatItem) FilterValue() string { return i.title }

// badge summarizes messages of the chat that are not confirmed yet.
func (i chatItem) badge() string {
	switch {
	case i.failed > 0:
		return failedStyle.Render(fmt.Sprintf("! %d", i.failed))
	case i.pending > 0:
		return sendingStyle.Render(fmt.Sprintf("… %d", i.pending))
	default:
		return ""
	}
}

// chatItems lists the chats of s in the order they appeared.
func chatItems(s state.AppState, dir domain.Directory) []chatItem {
	items := make([]chatItem, 0, len(s.Chats))
	for _, id := range s.Chats {
		item := chatItem{
			chatID:  id,
			title:   dir.ChatTitle(id),
			pending: s.PendingCount(id),
			failed:  s.FailedCount(id),
		}
		if last, ok := s.LastMessage(id); ok {
			item.lastMessage = last.MessageContent().Text
		}
		items = append(items, item)
	}
	return items
}

type chatItemDelegate struct{}

func (d chatItemDelegate) Height() int                             { return 2 }
func (d chatItemDelegate) Spacing() int                            { return 1 }
func (d chatItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d chatItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ci, ok := item.(chatItem)
	if !ok {
		return
	}

	// Leave room for the cursor prefix.
	contentWidth := max(m.Width()-2, 1)
	titleStyle := lipgloss.NewStyle().MaxWidth(contentWidth).MaxHeight(1)
	descStyle := lipgloss.NewStyle().MaxWidth(contentWidth).MaxHeight(1).Foreground(lipgloss.Color("240"))

	cursor := "  "
	if index == m.Index() {
		cursor = "> "
		titleStyle = titleStyle.Foreground(lipgloss.Color("170")).Bold(true)
		descStyle = descStyle.Foreground(lipgloss.Color("250"))
	}

	title := ci.title
	if b := ci.badge(); b != "" {
		title += " " + b
	}
	fmt.Fprintf(w, "%s%s\n  %s", cursor, titleStyle.Render(title), descStyle.Render(ci.lastMessage))
}

// ChatListModel wraps bubbles/list for the chat sidebar.
type ChatListModel struct {
	list    list.Model
	focused bool
	width   int
	height  int
}

func NewChatListModel() ChatListModel {
	l := list.New(nil, chatItemDelegate{}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.DisableQuitKeybindings()
	return ChatListModel{list: l}
}

func (m ChatListModel) Update(msg tea.Msg) (ChatListModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" && m.list.FilterState() != list.Filtering {
		item, ok := m.list.SelectedItem().(chatItem)
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return ChatSelectedMsg{ChatID: item.chatID}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m ChatListModel) View() string {
	content := truncateHeight(m.list.View(), max(m.height-2, 0))

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused)
	return style.Render(content)
}

func (m ChatListModel) WithItems(chats []chatItem) ChatListModel {
	items := make([]list.Item, len(chats))
	for i, c := range chats {
		items[i] = c
	}
	m.list.SetItems(items)
	return m
}

func (m ChatListModel) SetSize(w, h int) ChatListModel {
	m.width = w
	m.height = h
	m.list.SetSize(max(w-2, 1), max(h-2, 1))
	return m
}

func (m ChatListModel) SetFocused(f bool) ChatListModel {
	m.focused = f
	return m
}
