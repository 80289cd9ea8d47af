package domain

import (
	"context"
	"errors"
)

// ErrNoNetwork is returned by a Deliverer when the message could not reach the
// server. It is the expected, recoverable failure that drives retries.
var ErrNoNetwork = errors.New("no network")

// Deliverer sends one local message to the server. It performs a single
// attempt; retry policy belongs to the caller.
type Deliverer interface {
	Deliver(ctx context.Context, msg LocalMessage) (RemoteMessage, error)
}

// UpdateSource streams server-side updates. Subscribe blocks until ctx is done
// or the source fails, calling handle for every batch received.
type UpdateSource interface {
	Subscribe(ctx context.Context, handle func([]Update)) error
}

// Transport both delivers messages and streams updates.
type Transport interface {
	Deliverer
	UpdateSource
}

// Directory resolves display names for ids.
type Directory interface {
	ChatTitle(id ChatID) string
	UserName(id UserID) string
}
