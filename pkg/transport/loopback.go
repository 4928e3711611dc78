package transport

import (
	"context"
	"sync"
)

// Loopback is an in-process Transport backed by a buffered channel.
// Whatever is sent comes back on Receive, which makes it useful for
// tests, the demo daemon, and single-process deployments.
type Loopback struct {
	frames chan []byte

	// Closure is signaled through done rather than by closing frames,
	// so a Send racing Close fails with ErrClosed instead of
	// panicking.
	done      chan struct{}
	closeOnce sync.Once
}

// NewLoopback returns a Loopback buffering up to depth frames.
func NewLoopback(depth int) *Loopback {
	if depth <= 0 {
		depth = 64
	}
	return &Loopback{
		frames: make(chan []byte, depth),
		done:   make(chan struct{}),
	}
}

// Send enqueues a copy of frame.
func (l *Loopback) Send(ctx context.Context, frame []byte) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case l.frames <- buf:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dequeues the next frame.
func (l *Loopback) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-l.frames:
		return frame, nil
	case <-l.done:
		// Drain frames buffered before closure.
		select {
		case frame := <-l.frames:
			return frame, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts the transport down. Pending Receives drain the buffer
// and then fail with ErrClosed; a blocked Send fails with ErrClosed.
func (l *Loopback) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

var _ Transport = (*Loopback)(nil)
