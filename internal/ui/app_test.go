package ui

import (
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/tgflux/internal/domain"
	"github.com/danhigham/tgflux/internal/state"
)

type fakeStore struct {
	state      state.AppState
	dispatched []state.Action
}

func (f *fakeStore) State() state.AppState   { return f.state }
func (f *fakeStore) Dispatch(a state.Action) { f.dispatched = append(f.dispatched, a) }

type fakeDir struct{}

func (fakeDir) ChatTitle(id domain.ChatID) string { return "#" + string(id) }
func (fakeDir) UserName(id domain.UserID) string  { return string(id) }

var at = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleState() state.AppState {
	s := state.New("me")
	s.Chats = []domain.ChatID{"general", "random"}
	s.Messages = []domain.Message{
		domain.RemoteMessage{ID: "r1", SenderID: "ann", ChatID: "general", Content: domain.MessageContent{Text: "hi"}, Timestamp: at},
		domain.LocalMessage{ID: "l1", SenderID: "me", ChatID: "general", Content: domain.MessageContent{Text: "yo"}, Timestamp: at, DeliveryAttemptsLeft: 2},
		domain.LocalMessage{ID: "l2", SenderID: "me", ChatID: "random", Content: domain.MessageContent{Text: "lost"}, Timestamp: at},
	}
	return s
}

func TestDeliveryOf(t *testing.T) {
	tests := []struct {
		name string
		msg  domain.Message
		want delivery
	}{
		{"fresh local", domain.LocalMessage{SenderID: "me", DeliveryAttemptsLeft: 2}, deliverySending},
		{"retried local", domain.LocalMessage{SenderID: "me", DeliveryAttemptsLeft: 1}, deliveryRetrying},
		{"exhausted local", domain.LocalMessage{SenderID: "me"}, deliveryFailed},
		{"own remote", domain.RemoteMessage{SenderID: "me"}, deliveryDelivered},
		{"incoming", domain.RemoteMessage{SenderID: "ann"}, deliveryNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deliveryOf(tt.msg, "me", 2))
		})
	}
	assert.Empty(t, deliveryNone.marker())
	assert.Contains(t, deliveryFailed.marker(), "not sent")
}

func TestChatItems(t *testing.T) {
	items := chatItems(sampleState(), fakeDir{})
	require.Len(t, items, 2)

	assert.Equal(t, chatItem{chatID: "general", title: "#general", lastMessage: "yo", pending: 1}, items[0])
	assert.Equal(t, chatItem{chatID: "random", title: "#random", lastMessage: "lost", failed: 1}, items[1])
	assert.Contains(t, items[1].badge(), "1")
	assert.Empty(t, chatItem{}.badge())
}

func TestModel_OpensFirstChat(t *testing.T) {
	st := &fakeStore{state: sampleState()}
	m := NewModel(st, fakeDir{}, 2)

	next, cmd := m.Update(StoreUpdatedMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, ChatSelectedMsg{ChatID: "general"}, cmd())

	next, _ = next.Update(ChatSelectedMsg{ChatID: "general"})
	model := next.(Model)
	assert.Equal(t, domain.ChatID("general"), model.activeChat)
	assert.Equal(t, focusInput, model.focus)

	require.Len(t, st.dispatched, 1)
	add, ok := st.dispatched[0].(state.AddListener)
	require.True(t, ok)
	assert.Equal(t, domain.ChatID("general"), add.ChatID)
	require.NotNil(t, add.Notify)

	// Once a chat is open, later updates do not switch it.
	_, cmd = next.Update(StoreUpdatedMsg{})
	assert.Nil(t, cmd)
}

func TestModel_ListenerForwardsActivity(t *testing.T) {
	st := &fakeStore{state: sampleState()}
	m := NewModel(st, fakeDir{}, 2)
	var got []domain.ChatID
	m.notify = func(c domain.ChatID) { got = append(got, c) }

	next, _ := m.Update(ChatSelectedMsg{ChatID: "random"})
	st.dispatched[0].(state.AddListener).Notify()
	assert.Equal(t, []domain.ChatID{"random"}, got)

	next, _ = next.Update(ChatActivityMsg{ChatID: "random"})
	assert.Equal(t, 1, next.(Model).status.activity)

	next, _ = next.Update(ChatActivityMsg{ChatID: "general"})
	assert.Equal(t, 1, next.(Model).status.activity)
}

func TestModel_SendMessage(t *testing.T) {
	st := &fakeStore{state: sampleState()}
	m := NewModel(st, fakeDir{}, 2)

	// Nothing is sent before a chat is open.
	next, _ := m.Update(sendMessageMsg{text: "early"})
	assert.Empty(t, st.dispatched)

	next, _ = next.Update(ChatSelectedMsg{ChatID: "general"})
	next.Update(sendMessageMsg{text: "hello"})

	require.Len(t, st.dispatched, 2)
	assert.Equal(t, state.SendMessage{
		ChatID:  "general",
		Content: domain.MessageContent{Text: "hello"},
	}, st.dispatched[1])
}

func TestModel_Reconnect(t *testing.T) {
	st := &fakeStore{state: sampleState()}
	m := NewModel(st, fakeDir{}, 2)

	m.Update(tea.KeyPressMsg{Code: 'r', Mod: tea.ModCtrl})
	assert.Equal(t, []state.Action{state.Connect{}}, st.dispatched)
}

func TestStatus_Label(t *testing.T) {
	s := newStatusModel("me")
	assert.Equal(t, "offline", s.label())
	assert.Equal(t, "offline: eof", s.SetConnection(false, "eof").label())
	assert.Equal(t, "online", s.SetConnection(true, "").label())
}
