package ports

import (
	"context"
	"time"

	eventsv1 "parley/contracts/gen/events/v1"
)

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// Conn is a client connection. Send must not block: it queues the event in
// the connection's FIFO and fails when the queue is full or closed.
type Conn interface {
	ID() string
	Send(event eventsv1.Envelope) error
	Close() error
}

// Bus carries channel events between coordinator instances. Every published
// event is handed to the subscribers of every instance, the publisher's own
// included.
type Bus interface {
	Publish(ctx context.Context, channel string, event eventsv1.Envelope) error
	Subscribe(ctx context.Context, handler func(channel string, event eventsv1.Envelope)) error
}

type Metrics interface {
	ConnectionOpened()
	ConnectionClosed(reason string)
	EventDelivered(eventType string)
	PresenceCompleted(timedOut bool)
}
