package progress

import "context"

// Sink consumes batches of progress events.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. A nil *Hub is a valid Emitter.
type Emitter interface {
	Emit(evt Event)
}
