package ui

import (
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/tgflux/internal/domain"
	"github.com/danhigham/tgflux/internal/state"
)

type focusTarget int

const (
	focusChatList focusTarget = iota
	focusMessages
	focusInput
)

const chatListWidth = 36

// inputRenderedHeight is the input box including its border.
const inputRenderedHeight = 3

// Store is the part of the application store the UI drives.
type Store interface {
	State() state.AppState
	Dispatch(state.Action)
}

// Model is the root Bubble Tea model.
type Model struct {
	chatList    ChatListModel
	messageView MessageViewModel
	input       InputModel
	status      statusModel
	help        HelpModel

	store  Store
	dir    domain.Directory
	notify func(domain.ChatID)

	snapshot   state.AppState
	activeChat domain.ChatID

	focus  focusTarget
	width  int
	height int
}

func NewModel(store Store, dir domain.Directory, maxAttempts int) Model {
	local := store.State().LocalUserID
	return Model{
		chatList:    NewChatListModel(),
		messageView: NewMessageViewModel(dir, local, maxAttempts),
		input:       NewInputModel(),
		status:      newStatusModel(dir.UserName(local)),
		store:       store,
		dir:         dir,
		focus:       focusChatList,
	}
}

func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return StoreUpdatedMsg{} }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m.distributeSize(), nil

	case StoreUpdatedMsg:
		m = m.refreshFromStore()
		// Open the first chat once one exists.
		if m.activeChat == "" && len(m.snapshot.Chats) > 0 {
			first := m.snapshot.Chats[0]
			return m, func() tea.Msg { return ChatSelectedMsg{ChatID: first} }
		}
		return m, nil

	case ChatSelectedMsg:
		m.activeChat = msg.ChatID
		m.store.Dispatch(state.AddListener{ChatID: msg.ChatID, Notify: m.listener(msg.ChatID)})
		m.status = m.status.SetChatTitle(m.dir.ChatTitle(msg.ChatID))
		m.messageView = m.messageView.SetMessages(m.snapshot.MessagesIn(msg.ChatID)).ScrollToLatest()
		m.focus = focusInput
		return m.updateFocus(), nil

	case ChatActivityMsg:
		if msg.ChatID != m.activeChat {
			return m, nil
		}
		m.status = m.status.Touch()
		if m.focus == focusInput {
			m.messageView = m.messageView.ScrollToLatest()
		}
		return m, nil

	case sendMessageMsg:
		if m.activeChat == "" {
			return m, nil
		}
		m.store.Dispatch(state.SendMessage{
			ChatID:  m.activeChat,
			Content: domain.MessageContent{Text: msg.text},
		})
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.help.IsVisible() {
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "?", "f1", "esc":
			m.help = m.help.Toggle()
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+r":
		m.store.Dispatch(state.Connect{})
		return m, nil
	case "f1":
		m.help = m.help.Toggle()
		return m, nil
	case "?":
		if m.focus != focusInput {
			m.help = m.help.Toggle()
			return m, nil
		}
	case "q":
		if m.focus != focusInput {
			return m, tea.Quit
		}
	case "tab":
		m.focus = (m.focus + 1) % 3
		return m.updateFocus(), nil
	case "shift+tab":
		m.focus = (m.focus + 2) % 3
		return m.updateFocus(), nil
	case "esc":
		m.focus = focusChatList
		return m.updateFocus(), nil
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusChatList:
		m.chatList, cmd = m.chatList.Update(msg)
	case focusMessages:
		m.messageView, cmd = m.messageView.Update(msg)
	case focusInput:
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}

	rightPane := lipgloss.JoinVertical(lipgloss.Left, m.messageView.View(), m.input.View())
	panes := lipgloss.JoinHorizontal(lipgloss.Top, m.chatList.View(), rightPane)
	full := lipgloss.JoinVertical(lipgloss.Left, panes, m.status.View())

	mainContent := lipgloss.NewStyle().
		MaxWidth(m.width).
		MaxHeight(m.height).
		Render(full)

	if !m.help.IsVisible() {
		v.SetContent(mainContent)
		return v
	}

	x, y := m.help.BoxOffset()
	bg := lipgloss.NewLayer(mainContent)
	fg := lipgloss.NewLayer(m.help.View()).X(x).Y(y).Z(1)
	v.SetContent(lipgloss.NewCompositor(bg, fg).Render())
	return v
}

func (m Model) distributeSize() Model {
	// One row for the status bar.
	contentHeight := max(m.height-1, 1)

	clWidth := min(chatListWidth, m.width)
	m.chatList = m.chatList.SetSize(clWidth, contentHeight)

	rightWidth := max(m.width-clWidth, 1)
	m.messageView = m.messageView.SetSize(rightWidth, max(contentHeight-inputRenderedHeight, 1))
	m.input = m.input.SetSize(rightWidth, inputRenderedHeight)

	m.status = m.status.SetWidth(m.width)
	m.help = m.help.SetSize(m.width, m.height)
	return m
}

func (m Model) updateFocus() Model {
	m.chatList = m.chatList.SetFocused(m.focus == focusChatList)
	m.messageView = m.messageView.SetFocused(m.focus == focusMessages)
	m.input = m.input.SetFocused(m.focus == focusInput)
	return m
}

func (m Model) refreshFromStore() Model {
	m.snapshot = m.store.State()
	m.chatList = m.chatList.WithItems(chatItems(m.snapshot, m.dir))
	m.status = m.status.SetConnection(m.snapshot.Connected, m.snapshot.DisconnectedBy)
	if m.activeChat != "" {
		m.messageView = m.messageView.SetMessages(m.snapshot.MessagesIn(m.activeChat))
	}
	return m
}

// listener builds the chat listener callback. It runs while the store is
// reducing, so it only forwards into the program.
func (m Model) listener(chat domain.ChatID) func() {
	notify := m.notify
	return func() {
		if notify != nil {
			notify(chat)
		}
	}
}

// App wraps the Bubble Tea program for external use.
type App struct {
	program *tea.Program
}

func NewApp(store Store, dir domain.Directory, maxAttempts int) *App {
	a := &App{}
	model := NewModel(store, dir, maxAttempts)
	model.notify = func(chat domain.ChatID) {
		a.Send(ChatActivityMsg{ChatID: chat})
	}
	a.program = tea.NewProgram(model)
	return a
}

// Run starts the Bubble Tea event loop and blocks until quit.
func (a *App) Run() error {
	_, err := a.program.Run()
	return err
}

// Send delivers msg to the event loop from any goroutine.
func (a *App) Send(msg tea.Msg) {
	go a.program.Send(msg)
}

// OnChange is the store's change hook. It triggers a redraw from the latest
// state.
func (a *App) OnChange(state.AppState) {
	a.Send(StoreUpdatedMsg{})
}
