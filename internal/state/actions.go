package state

import "github.com/danhigham/tgflux/internal/domain"

// Action is one of SendMessage, ApplyUpdates, AddListener, Connect or
// Disconnected.
type Action interface {
	ActionName() string
	isAction()
}

// SendMessage creates a local message in ChatID and starts delivering it.
type SendMessage struct {
	ChatID  domain.ChatID
	Content domain.MessageContent
}

// ApplyUpdates applies Updates to the message list in order.
type ApplyUpdates struct {
	Updates []domain.Update
}

// AddListener replaces the chat change listener. A nil Notify clears it.
type AddListener struct {
	ChatID domain.ChatID
	Notify func()
}

// Connect starts the remote update subscription unless it is already running.
type Connect struct{}

// Disconnected records that the remote update subscription ended.
type Disconnected struct {
	Reason string
}

func (SendMessage) ActionName() string  { return "send_message" }
func (ApplyUpdates) ActionName() string { return "apply_updates" }
func (AddListener) ActionName() string  { return "add_listener" }
func (Connect) ActionName() string      { return "connect" }
func (Disconnected) ActionName() string { return "disconnected" }

func (SendMessage) isAction()  {}
func (ApplyUpdates) isAction() {}
func (AddListener) isAction()  {}
func (Connect) isAction()      {}
func (Disconnected) isAction() {}
