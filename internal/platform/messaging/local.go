package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	eventsv1 "parley/contracts/gen/events/v1"
)

// ErrSubscriberFull reports that at least one subscriber missed the event.
var ErrSubscriberFull = errors.New("bus subscriber queue is full")

type subscriber struct {
	ch      chan delivery
	handler func(channel string, event eventsv1.Envelope)
}

type delivery struct {
	channel string
	event   eventsv1.Envelope
}

// Local is the in-process bus used on a single node. Each subscriber drains
// its own buffered queue in order.
type Local struct {
	mu          sync.RWMutex
	subscribers []*subscriber
	buffer      int
	logger      *slog.Logger
}

func NewLocal(buffer int, logger *slog.Logger) *Local {
	if buffer <= 0 {
		buffer = 256
	}
	return &Local{buffer: buffer, logger: logger}
}

func (l *Local) Publish(ctx context.Context, channel string, event eventsv1.Envelope) error {
	l.mu.RLock()
	subs := append([]*subscriber(nil), l.subscribers...)
	l.mu.RUnlock()

	dropped := false
	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub.ch <- delivery{channel: channel, event: event}:
		default:
			dropped = true
			if l.logger != nil {
				l.logger.Warn("dropping event for slow subscriber",
					"event", "bus_publish_drop",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"channel", channel,
					"event_id", event.EventID,
				)
			}
		}
	}
	if dropped {
		return ErrSubscriberFull
	}

	if l.logger != nil {
		l.logger.Debug("event published",
			"event", "bus_publish",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"channel", channel,
			"event_id", event.EventID,
			"event_type", event.EventType,
		)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, handler func(channel string, event eventsv1.Envelope)) error {
	sub := &subscriber{
		ch:      make(chan delivery, l.buffer),
		handler: handler,
	}

	l.mu.Lock()
	l.subscribers = append(l.subscribers, sub)
	l.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				l.removeSubscriber(sub)
				return
			case item := <-sub.ch:
				sub.handler(item.channel, item.event)
			}
		}
	}()
	return nil
}

func (l *Local) removeSubscriber(target *subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()

	filtered := make([]*subscriber, 0, len(l.subscribers))
	for _, item := range l.subscribers {
		if item != target {
			filtered = append(filtered, item)
		}
	}
	l.subscribers = filtered
}
