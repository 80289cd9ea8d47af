package state

import (
	"github.com/danhigham/tgflux/internal/domain"
	"github.com/danhigham/tgflux/internal/store"
)

// Store is the application store.
type Store = store.Store[AppState, Action]

// NewStore creates a store for initial reduced by r.
func NewStore(initial AppState, r *Reducer, opts ...store.Option[AppState, Action]) *Store {
	return store.New(initial, r.Reduce, opts...)
}

// Listener is notified when an update touches ChatID. There is a single slot;
// registering a new listener replaces the previous one.
type Listener struct {
	ChatID domain.ChatID
	Notify func()
}

// AppState is the root of the application state. A value is never modified
// after the store publishes it: reducers build a new AppState and new slices
// for any field they change.
type AppState struct {
	LocalUserID domain.UserID
	// Messages in insertion order, ids unique.
	Messages []domain.Message
	// Chats grows as messages for new chats arrive and never shrinks.
	Chats    []domain.ChatID
	Listener *Listener

	// Connected is set once the remote update subscription has been started
	// and cleared when it ends.
	Connected      bool
	DisconnectedBy string
}

// New returns the initial state for localUser.
func New(localUser domain.UserID) AppState {
	return AppState{LocalUserID: localUser}
}

// HasChat reports whether chat has ever had a message.
func (s AppState) HasChat(chat domain.ChatID) bool {
	for _, c := range s.Chats {
		if c == chat {
			return true
		}
	}
	return false
}

// Message looks up a message by id.
func (s AppState) Message(id domain.MessageID) (domain.Message, bool) {
	i := indexOf(s.Messages, id)
	if i < 0 {
		return nil, false
	}
	return s.Messages[i], true
}

// MessagesIn returns the messages of one chat in insertion order.
func (s AppState) MessagesIn(chat domain.ChatID) []domain.Message {
	var out []domain.Message
	for _, m := range s.Messages {
		if m.MessageChat() == chat {
			out = append(out, m)
		}
	}
	return out
}

// LastMessage returns the newest message of chat.
func (s AppState) LastMessage(chat domain.ChatID) (domain.Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].MessageChat() == chat {
			return s.Messages[i], true
		}
	}
	return nil, false
}

// PendingCount counts local messages in chat that still have attempts left.
func (s AppState) PendingCount(chat domain.ChatID) int {
	n := 0
	for _, m := range s.Messages {
		if l, ok := m.(domain.LocalMessage); ok && l.ChatID == chat && !l.Failed() {
			n++
		}
	}
	return n
}

// FailedCount counts local messages in chat that ran out of attempts.
func (s AppState) FailedCount(chat domain.ChatID) int {
	n := 0
	for _, m := range s.Messages {
		if l, ok := m.(domain.LocalMessage); ok && l.ChatID == chat && l.Failed() {
			n++
		}
	}
	return n
}

func indexOf(msgs []domain.Message, id domain.MessageID) int {
	for i, m := range msgs {
		if m.MessageID() == id {
			return i
		}
	}
	return -1
}
