package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserID identifies a chat participant.
type UserID string

// ChatID identifies a conversation.
type ChatID string

// MessageID identifies a message, local or confirmed.
type MessageID string

// NewMessageID returns a random id for a message created on this device.
func NewMessageID() MessageID {
	return MessageID(uuid.NewString())
}

// MessageContent is the text payload of a message. Markdown is set when the
// text carries formatting converted from transport entities.
type MessageContent struct {
	Text     string
	Markdown bool
}

// DefaultDeliveryAttempts is the number of sends tried for a new local message.
const DefaultDeliveryAttempts = 2

// Message is either a LocalMessage or a RemoteMessage.
type Message interface {
	MessageID() MessageID
	MessageChat() ChatID
	MessageSender() UserID
	MessageContent() MessageContent
	MessageTime() time.Time

	isMessage()
}

// LocalMessage is a message created on this device and not yet confirmed by
// the server. DeliveryAttemptsLeft never goes below zero; a message with zero
// attempts left is not retried but stays visible as undelivered.
type LocalMessage struct {
	ID                   MessageID
	SenderID             UserID
	ChatID               ChatID
	Content              MessageContent
	Timestamp            time.Time
	DeliveryAttemptsLeft int
}

// RemoteMessage is a message confirmed by the server.
type RemoteMessage struct {
	ID        MessageID
	SenderID  UserID
	ChatID    ChatID
	Content   MessageContent
	Timestamp time.Time
}

func (m LocalMessage) MessageID() MessageID           { return m.ID }
func (m LocalMessage) MessageChat() ChatID            { return m.ChatID }
func (m LocalMessage) MessageSender() UserID          { return m.SenderID }
func (m LocalMessage) MessageContent() MessageContent { return m.Content }
func (m LocalMessage) MessageTime() time.Time         { return m.Timestamp }
func (LocalMessage) isMessage()                       {}

func (m RemoteMessage) MessageID() MessageID           { return m.ID }
func (m RemoteMessage) MessageChat() ChatID            { return m.ChatID }
func (m RemoteMessage) MessageSender() UserID          { return m.SenderID }
func (m RemoteMessage) MessageContent() MessageContent { return m.Content }
func (m RemoteMessage) MessageTime() time.Time         { return m.Timestamp }
func (RemoteMessage) isMessage()                       {}

// Failed reports whether the message ran out of delivery attempts.
func (m LocalMessage) Failed() bool {
	return m.DeliveryAttemptsLeft == 0
}

// WithAttemptUsed returns a copy with one fewer attempt left, floored at zero.
func (m LocalMessage) WithAttemptUsed() LocalMessage {
	if m.DeliveryAttemptsLeft > 0 {
		m.DeliveryAttemptsLeft--
	}
	return m
}

// Confirmed builds the server-confirmed form of m under the given id. Transports
// that keep the local id pass m.ID.
func (m LocalMessage) Confirmed(id MessageID, at time.Time) RemoteMessage {
	return RemoteMessage{
		ID:        id,
		SenderID:  m.SenderID,
		ChatID:    m.ChatID,
		Content:   m.Content,
		Timestamp: at,
	}
}

// Update is either NewMessage or DeleteMessage. Replacing a message is
// expressed as a DeleteMessage followed by a NewMessage.
type Update interface {
	isUpdate()
}

// NewMessage inserts Message unless its id is already present.
type NewMessage struct {
	Message Message
}

// DeleteMessage removes the message with ID, if any.
type DeleteMessage struct {
	ID MessageID
}

func (NewMessage) isUpdate()    {}
func (DeleteMessage) isUpdate() {}

// Replace returns the delete-then-insert pair that swaps old for next.
func Replace(old MessageID, next Message) []Update {
	return []Update{DeleteMessage{ID: old}, NewMessage{Message: next}}
}
