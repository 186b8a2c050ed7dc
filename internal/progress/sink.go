package progress

import "context"

// Sink consumes batches of applied events. Implementations must honor ctx
// deadlines and tolerate repeated calls.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter receives individual events; Hub satisfies it so the event loop does
// not care how side sinks buffer or persist.
type Emitter interface {
	Emit(evt Event)
}

// Publisher is the producer side of the Bridge as seen by workers.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// SinkFunc adapts a plain function into a Sink with a no-op Close.
type SinkFunc func(ctx context.Context, batch []Event) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

// Close implements Sink.
func (SinkFunc) Close(context.Context) error {
	return nil
}
