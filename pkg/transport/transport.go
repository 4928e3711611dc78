// Package transport defines the send/receive capability the envelope
// subsystem delegates wire I/O to, and a channel-backed loopback
// implementation for tests and demos.
package transport

import (
	"context"
	"errors"
)

// ErrClosed means the transport has shut down.
var ErrClosed = errors.New("transport: closed")

// Transport is the external transport capability. The envelope
// subsystem assumes nothing about ordering, deduplication or latency;
// validation (including expiry) is re-evaluated on every receipt.
// Transport errors are propagated unchanged; retry policy, if any,
// lives below this interface.
type Transport interface {
	// Send transmits one serialized envelope.
	Send(ctx context.Context, frame []byte) error

	// Receive blocks for the next serialized envelope.
	Receive(ctx context.Context) ([]byte, error)

	Close() error
}
