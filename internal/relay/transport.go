// Package relay carries envelopes between messagers. Delivery is
// at-least-once: a handler error leaves the envelope queued for another
// attempt until the transport's attempt limit is reached.
package relay

import (
	"context"

	"github.com/rebasefi/stbt-ledger/internal/crosschain"
)

// Handler applies one envelope. A non-nil error requests redelivery.
type Handler func(ctx context.Context, env crosschain.Envelope) error

// Transport moves envelopes to the domain named by their DestSelector.
type Transport interface {
	crosschain.Publisher
	// Subscribe delivers envelopes addressed to selector until ctx is done.
	Subscribe(ctx context.Context, selector crosschain.ChainSelector, handler Handler) error
	Close() error
}

const defaultMaxAttempts = 5
