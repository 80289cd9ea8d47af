package ui

import (
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// InputModel is the message composer under the message view.
type InputModel struct {
	text    textinput.Model
	focused bool
	width   int
	height  int
}

func NewInputModel() InputModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message..."
	return InputModel{text: ti}
}

func (m InputModel) Update(msg tea.Msg) (InputModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		text := strings.TrimSpace(m.text.Value())
		if text == "" {
			return m, nil
		}
		m.text.Reset()
		return m, func() tea.Msg {
			return sendMessageMsg{text: text}
		}
	}

	var cmd tea.Cmd
	m.text, cmd = m.text.Update(msg)
	return m, cmd
}

func (m InputModel) View() string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused)
	return style.Render(m.text.View())
}

func (m InputModel) SetSize(w, h int) InputModel {
	m.width = w
	m.height = h
	m.text.SetWidth(max(w-4-len(m.text.Prompt), 1))
	return m
}

func (m InputModel) SetFocused(f bool) InputModel {
	m.focused = f
	if f {
		m.text.Focus()
	} else {
		m.text.Blur()
	}
	return m
}
