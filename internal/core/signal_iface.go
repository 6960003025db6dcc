package core

import (
	"context"

	"github.com/Banula-Lavindu/Luster-backend/internal/domain"
)

// SignalConnection abstracts the ordered reliable pipe to the signaling
// backend. Owned by the negotiator; the negotiator must Close() it.
type SignalConnection interface {
	// TrySend enqueues a message preserving send order. Fails on
	// backpressure or after the connection closed.
	TrySend(Message) error
	// Close is idempotent.
	Close()
	// Err reports why the connection terminated; nil after a local Close.
	Err() error
}

// SignalDialer opens one logical channel scoped to a token. Inbound messages
// arrive on the returned channel in arrival order; the channel closes when
// the connection terminates for any reason.
type SignalDialer interface {
	Dial(ctx context.Context, token domain.Token) (SignalConnection, <-chan Message, error)
}
