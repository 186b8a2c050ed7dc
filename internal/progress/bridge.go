package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrBridgeClosed is returned by Publish once the Bridge has been closed.
var ErrBridgeClosed = errors.New("progress bridge closed")

const defaultBridgeBuffer = 1024

// Bridge carries events from any number of producer goroutines to a single
// consumer. Events from one producer keep their order. Publish blocks while
// the buffer is full, so nothing is ever dropped.
type Bridge struct {
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewBridge returns a Bridge with the given buffer size.
func NewBridge(size int) *Bridge {
	if size <= 0 {
		size = defaultBridgeBuffer
	}
	return &Bridge{
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
}

// Publish enqueues evt, waiting for buffer space. It fails when ctx ends or
// the Bridge is closed.
func (b *Bridge) Publish(ctx context.Context, evt Event) error {
	if evt == nil {
		return errors.New("publish: nil event")
	}
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	select {
	case <-b.done:
		return ErrBridgeClosed
	default:
	}
	select {
	case b.events <- evt:
		return nil
	case <-b.done:
		return ErrBridgeClosed
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", evt.Kind(), ctx.Err())
	}
}

// Events is the consumer side. The channel is never closed; consumers should
// also select on Done.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// Done is closed once Close is called.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Close stops accepting events. Buffered events remain readable.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// Len reports the number of buffered events.
func (b *Bridge) Len() int {
	return len(b.events)
}
