package state

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/tgflux/internal/domain"
	"github.com/danhigham/tgflux/internal/metrics"
	"github.com/danhigham/tgflux/internal/store"
)

// Reducer holds the collaborators the application reducer needs to build its
// commands. Reduce itself never calls them; only the flows it returns do.
type Reducer struct {
	transport   domain.Transport
	maxAttempts int
	now         func() time.Time
	newID       func() domain.MessageID
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// ReducerOption configures a Reducer.
type ReducerOption func(*Reducer)

// WithMaxAttempts sets how many times a new message is sent before it is left
// undelivered.
func WithMaxAttempts(n int) ReducerOption {
	return func(r *Reducer) {
		r.maxAttempts = n
	}
}

// WithClock sets the clock used to stamp sent messages.
func WithClock(now func() time.Time) ReducerOption {
	return func(r *Reducer) {
		r.now = now
	}
}

// WithIDs sets the generator for local message ids.
func WithIDs(newID func() domain.MessageID) ReducerOption {
	return func(r *Reducer) {
		r.newID = newID
	}
}

// WithLogger sets the logger used by delivery flows.
func WithLogger(l *zap.Logger) ReducerOption {
	return func(r *Reducer) {
		r.logger = l
	}
}

// WithMetrics records delivery outcomes and listener notifications.
func WithMetrics(m *metrics.Metrics) ReducerOption {
	return func(r *Reducer) {
		r.metrics = m
	}
}

// NewReducer returns a Reducer that delivers through transport.
func NewReducer(transport domain.Transport, opts ...ReducerOption) *Reducer {
	r := &Reducer{
		transport:   transport,
		maxAttempts: domain.DefaultDeliveryAttempts,
		now:         time.Now,
		newID:       domain.NewMessageID,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reduce is the application reducer.
func (r *Reducer) Reduce(s AppState, action Action) (AppState, store.Command[Action]) {
	switch a := action.(type) {
	case SendMessage:
		return r.sendMessage(s, a)
	case ApplyUpdates:
		return r.applyUpdates(s, a.Updates)
	case AddListener:
		s.Listener = nil
		if a.Notify != nil {
			s.Listener = &Listener{ChatID: a.ChatID, Notify: a.Notify}
		}
		return s, store.None[Action]()
	case Connect:
		if s.Connected {
			return s, store.None[Action]()
		}
		s.Connected = true
		s.DisconnectedBy = ""
		return s, store.FlowCmd[Action](r.subscribe)
	case Disconnected:
		s.Connected = false
		s.DisconnectedBy = a.Reason
		return s, store.None[Action]()
	default:
		panic(fmt.Sprintf("state: unhandled action %T", action))
	}
}

// sendMessage inserts the message optimistically and starts its delivery in
// the same step.
func (r *Reducer) sendMessage(s AppState, a SendMessage) (AppState, store.Command[Action]) {
	local := domain.LocalMessage{
		ID:                   r.newID(),
		SenderID:             s.LocalUserID,
		ChatID:               a.ChatID,
		Content:              a.Content,
		Timestamp:            r.now(),
		DeliveryAttemptsLeft: r.maxAttempts,
	}

	insert := ApplyUpdates{Updates: []domain.Update{domain.NewMessage{Message: local}}}
	return s, store.Batch[Action](
		store.Action[Action](insert),
		store.FlowCmd[Action](r.deliveryLoop(local)),
	)
}

func (r *Reducer) applyUpdates(s AppState, updates []domain.Update) (AppState, store.Command[Action]) {
	msgs := slices.Clone(s.Messages)
	for _, u := range updates {
		switch u := u.(type) {
		case domain.NewMessage:
			// Ids stay unique: an insert for an id already present is dropped.
			if indexOf(msgs, u.Message.MessageID()) < 0 {
				msgs = append(msgs, u.Message)
			}
		case domain.DeleteMessage:
			msgs = slices.DeleteFunc(msgs, func(m domain.Message) bool {
				return m.MessageID() == u.ID
			})
		default:
			panic(fmt.Sprintf("state: unhandled update %T", u))
		}
	}

	// The listener is called on the reducing goroutine, so it can never run
	// after a later AddListener has replaced it. It must not block.
	if l := s.Listener; l != nil && touchesChat(s.Messages, updates, l.ChatID) {
		r.metrics.ListenerNotified()
		l.Notify()
	}

	s.Chats = growChats(s.Chats, s.Messages, msgs)
	s.Messages = msgs
	return s, store.None[Action]()
}

// growChats adds the chat of every message in after that was not in before.
func growChats(chats []domain.ChatID, before, after []domain.Message) []domain.ChatID {
	existing := make(map[domain.MessageID]struct{}, len(before))
	for _, m := range before {
		existing[m.MessageID()] = struct{}{}
	}
	for _, m := range after {
		if _, ok := existing[m.MessageID()]; ok {
			continue
		}
		if !slices.Contains(chats, m.MessageChat()) {
			chats = append(slices.Clip(chats), m.MessageChat())
		}
	}
	return chats
}

// touchesChat reports whether any update affects chat. Deletes resolve their
// chat against before, since the message is gone afterwards; deletes of
// unknown ids affect nothing.
func touchesChat(before []domain.Message, updates []domain.Update, chat domain.ChatID) bool {
	for _, u := range updates {
		switch u := u.(type) {
		case domain.NewMessage:
			if u.Message.MessageChat() == chat {
				return true
			}
		case domain.DeleteMessage:
			if i := indexOf(before, u.ID); i >= 0 && before[i].MessageChat() == chat {
				return true
			}
		}
	}
	return false
}
