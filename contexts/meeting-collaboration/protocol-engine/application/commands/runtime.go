package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "parley/contexts/meeting-collaboration/protocol-engine/application"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
	"parley/contexts/meeting-collaboration/protocol-engine/ports"
)

const moduleName = "meeting-collaboration/protocol-engine"

// Actor is the caller identity resolved by the realtime coordinator: the
// participant behind the connection and the meeting channel it is bound to.
type Actor struct {
	ParticipantID string
	MeetingID     string
	RequestID     string
}

// Runtime carries the collaborators shared by every command use case.
type Runtime struct {
	Repo        ports.Repository
	Broadcaster ports.Broadcaster
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	Logger      *slog.Logger
}

func (r Runtime) now() time.Time {
	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}
	return now
}

func (r Runtime) validID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	return r.IDGen.ValidID(id)
}

func (r Runtime) validateActor(actor Actor) error {
	if !r.validID(actor.ParticipantID) || !r.validID(actor.MeetingID) {
		return domainerrors.ErrInvalidID
	}
	return nil
}

// commit runs fn in one unit of work, records the events it produced in the
// outbox inside the same transaction, and broadcasts them once the write is
// durable. A failed fn leaves no writes and produces no broadcast.
func (r Runtime) commit(
	ctx context.Context,
	actor Actor,
	operation string,
	fn func(ctx context.Context, store ports.Store, batch *eventBatch) error,
) error {
	logger := application.ResolveLogger(r.Logger)
	batch := &eventBatch{
		channel: strings.TrimSpace(actor.MeetingID),
		traceID: strings.TrimSpace(actor.RequestID),
		idGen:   r.IDGen,
	}
	err := r.Repo.WithinTx(ctx, func(ctx context.Context, store ports.Store) error {
		batch.reset(r.now())
		if err := fn(ctx, store, batch); err != nil {
			return err
		}
		for _, envelope := range batch.envelopes {
			if err := store.AppendOutbox(ctx, batch.channel, envelope); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		level := slog.LevelWarn
		if !isDomainError(err) {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "protocol command rejected",
			"event", "protocol_"+operation+"_failed",
			"module", moduleName,
			"layer", "application",
			"meeting_id", batch.channel,
			"participant_id", strings.TrimSpace(actor.ParticipantID),
			"request_id", batch.traceID,
			"error", err.Error(),
		)
		return err
	}
	r.publish(ctx, operation, batch)
	return nil
}

// publish broadcasts committed events in order and stops at the first failure
// so the outbox relay redelivers the remainder in order. While older rows of
// the channel are still pending, the whole batch is left to the relay so the
// channel never sees a newer snapshot before an older one.
func (r Runtime) publish(ctx context.Context, operation string, batch *eventBatch) {
	logger := application.ResolveLogger(r.Logger)
	if r.Broadcaster == nil || len(batch.envelopes) == 0 {
		return
	}
	if behind, err := r.behindBacklog(ctx, batch); err != nil || behind {
		attrs := []any{
			"event", "protocol_broadcast_deferred",
			"module", moduleName,
			"layer", "application",
			"operation", operation,
			"meeting_id", batch.channel,
			"event_count", len(batch.envelopes),
			"reason", "pending_backlog",
		}
		if err != nil {
			attrs = append(attrs, "error", err.Error())
		}
		logger.Warn("protocol broadcast deferred to outbox relay", attrs...)
		return
	}
	for _, envelope := range batch.envelopes {
		if err := r.Broadcaster.Broadcast(ctx, batch.channel, envelope); err != nil {
			logger.Warn("protocol broadcast deferred to outbox relay",
				"event", "protocol_broadcast_deferred",
				"module", moduleName,
				"layer", "application",
				"operation", operation,
				"meeting_id", batch.channel,
				"event_id", envelope.EventID,
				"event_type", envelope.EventType,
				"error", err.Error(),
			)
			return
		}
		if err := r.Repo.MarkOutboxPublished(ctx, envelope.EventID, r.now()); err != nil {
			logger.Warn("protocol outbox mark published failed",
				"event", "protocol_outbox_mark_published_failed",
				"module", moduleName,
				"layer", "application",
				"event_id", envelope.EventID,
				"error", err.Error(),
			)
		}
	}
	logger.Debug("protocol events broadcast",
		"event", "protocol_"+operation+"_broadcast",
		"module", moduleName,
		"layer", "application",
		"meeting_id", batch.channel,
		"event_count", len(batch.envelopes),
	)
}

// behindBacklog reports whether the channel's oldest pending outbox row was
// written before this batch.
func (r Runtime) behindBacklog(ctx context.Context, batch *eventBatch) (bool, error) {
	oldest, found, err := r.Repo.OldestPendingOutbox(ctx, batch.channel)
	if err != nil || !found {
		return false, err
	}
	return oldest.OutboxID != batch.envelopes[0].EventID, nil
}

// lockProtocol loads and locks a protocol of the actor's meeting. Protocols of
// other meetings are reported as missing.
func lockProtocol(ctx context.Context, store ports.Store, actor Actor, protocolID string) (entities.Protocol, error) {
	protocol, err := store.LockProtocol(ctx, strings.TrimSpace(protocolID))
	if err != nil {
		return entities.Protocol{}, err
	}
	if protocol.MeetingID != strings.TrimSpace(actor.MeetingID) {
		return entities.Protocol{}, domainerrors.ErrProtocolNotFound
	}
	return protocol, nil
}

// lockItem resolves an item, then locks its protocol and re-reads the item so
// the returned state cannot change until the unit of work ends.
func lockItem(
	ctx context.Context,
	store ports.Store,
	actor Actor,
	itemID string,
) (entities.ProtocolItem, entities.Protocol, error) {
	item, err := store.GetItem(ctx, strings.TrimSpace(itemID))
	if err != nil {
		return entities.ProtocolItem{}, entities.Protocol{}, err
	}
	protocol, err := lockProtocol(ctx, store, actor, item.ProtocolID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrProtocolNotFound) {
			return entities.ProtocolItem{}, entities.Protocol{}, domainerrors.ErrItemNotFound
		}
		return entities.ProtocolItem{}, entities.Protocol{}, err
	}
	item, err = store.GetItem(ctx, item.ID)
	if err != nil {
		return entities.ProtocolItem{}, entities.Protocol{}, err
	}
	return item, protocol, nil
}

func requireFacilitator(ctx context.Context, store ports.Store, actor Actor, protocol entities.Protocol) error {
	meeting, err := store.GetMeeting(ctx, protocol.MeetingID)
	if err != nil {
		return err
	}
	if !meeting.CanFacilitate(actor.ParticipantID, protocol) {
		return domainerrors.ErrForbidden
	}
	return nil
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domainerrors.ErrInvalidID,
		domainerrors.ErrInvalidRequest,
		domainerrors.ErrGroupNesting,
		domainerrors.ErrConflictingOverride,
		domainerrors.ErrPhaseDisallowsVoting,
		domainerrors.ErrVoteBudgetExceeded,
		domainerrors.ErrAlreadyVoted,
		domainerrors.ErrPhaseNotReady,
		domainerrors.ErrProtocolCompleted,
		domainerrors.ErrProtocolTypeEmpty,
		domainerrors.ErrProtocolNotFound,
		domainerrors.ErrProtocolTypeNotFound,
		domainerrors.ErrPhaseNotFound,
		domainerrors.ErrItemNotFound,
		domainerrors.ErrActionNotFound,
		domainerrors.ErrMeetingNotFound,
		domainerrors.ErrPhaseInconsistent,
		domainerrors.ErrConflict,
		domainerrors.ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, domainerrors.ErrItemNotFound) ||
		errors.Is(err, domainerrors.ErrProtocolNotFound) ||
		errors.Is(err, domainerrors.ErrActionNotFound)
}

func isMeetingNotFound(err error) bool {
	return errors.Is(err, domainerrors.ErrMeetingNotFound)
}
