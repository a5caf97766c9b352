package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	eventsv1 "parley/contracts/gen/events/v1"
	application "parley/contexts/meeting-collaboration/protocol-engine/application"
	"parley/contexts/meeting-collaboration/protocol-engine/ports"
)

// OutboxRelay rebroadcasts outbox rows that were committed but never marked
// published, for example after a broadcast failure or a crash between commit
// and broadcast.
type OutboxRelay struct {
	Outbox      ports.OutboxRepository
	Broadcaster ports.Broadcaster
	Clock       ports.Clock
	BatchSize   int
	// GracePeriod leaves fresh rows to the request path that wrote them.
	GracePeriod time.Duration
	Logger      *slog.Logger
}

// RunOnce publishes a bounded batch of pending rows in commit order and marks
// each row published only after the broadcast succeeds. It stops on the first
// failure so the remaining rows keep their order on the next cycle.
func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}
	grace := r.GracePeriod
	if grace <= 0 {
		grace = 2 * time.Second
	}
	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit, now.Add(-grace))
	if err != nil {
		logger.Error("protocol outbox list failed",
			"event", "protocol_outbox_list_failed",
			"module", "meeting-collaboration/protocol-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(pending) == 0 {
		logger.Debug("protocol outbox relay found no pending rows",
			"event", "protocol_outbox_relay_noop",
			"module", "meeting-collaboration/protocol-engine",
			"layer", "worker",
			"batch_size", limit,
		)
		return nil
	}

	for _, row := range pending {
		var envelope eventsv1.Envelope
		if err := json.Unmarshal(row.Payload, &envelope); err != nil {
			logger.Error("protocol outbox decode failed",
				"event", "protocol_outbox_decode_failed",
				"module", "meeting-collaboration/protocol-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Broadcaster.Broadcast(ctx, row.Channel, envelope); err != nil {
			logger.Error("protocol outbox broadcast failed",
				"event", "protocol_outbox_broadcast_failed",
				"module", "meeting-collaboration/protocol-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"meeting_id", row.Channel,
				"event_type", envelope.EventType,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			logger.Error("protocol outbox mark published failed",
				"event", "protocol_outbox_mark_published_failed",
				"module", "meeting-collaboration/protocol-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
	}

	logger.Info("protocol outbox relay cycle completed",
		"event", "protocol_outbox_relay_completed",
		"module", "meeting-collaboration/protocol-engine",
		"layer", "worker",
		"published_count", len(pending),
	)
	return nil
}

// Run repeats RunOnce every interval until ctx is cancelled. Cycle errors are
// logged by RunOnce and retried on the next tick.
func (r OutboxRelay) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = r.RunOnce(ctx)
		}
	}
}
