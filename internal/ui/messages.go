package ui

import "github.com/danhigham/tgflux/internal/domain"

// StoreUpdatedMsg signals that the store published a new state. The model
// reads the latest state when handling it, so stale or coalesced messages
// are harmless.
type StoreUpdatedMsg struct{}

// ChatActivityMsg is sent by the chat listener when an update touches the
// open chat.
type ChatActivityMsg struct {
	ChatID domain.ChatID
}

// ChatSelectedMsg is emitted when the user picks a chat.
type ChatSelectedMsg struct {
	ChatID domain.ChatID
}

// sendMessageMsg is emitted when the user presses Enter in the input.
type sendMessageMsg struct {
	text string
}
