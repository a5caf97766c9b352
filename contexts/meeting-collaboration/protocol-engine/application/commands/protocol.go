package commands

import (
	"context"
	"fmt"
	"strings"

	eventsv1 "parley/contracts/gen/events/v1"
	application "parley/contexts/meeting-collaboration/protocol-engine/application"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/services"
	"parley/contexts/meeting-collaboration/protocol-engine/ports"
)

type CreateProtocolCommand struct {
	ProtocolTypeID string
	Title          string
	Data           map[string]any
}

type AdvancePhaseCommand struct {
	ProtocolID string
	// Force skips the ready gate of collective phases.
	Force bool
}

type SetReadyCommand struct {
	ProtocolID string
	Ready      bool
}

// ProtocolUseCase drives the lifecycle of a running protocol: creation inside
// a meeting and the phase state machine. Every transition locks the protocol
// row first, so concurrent transitions are applied one after another.
type ProtocolUseCase struct {
	Runtime
}

// CreateProtocol starts a Dynamic in the actor's meeting. Besides the protocol
// itself it moves the meeting's current-protocol pointer and writes a system
// note and summary item; each effect is broadcast as its own ordered event.
func (uc ProtocolUseCase) CreateProtocol(ctx context.Context, actor Actor, cmd CreateProtocolCommand) (entities.Protocol, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("protocol create processing started",
		"event", "protocol_create_started",
		"module", moduleName,
		"layer", "application",
		"meeting_id", strings.TrimSpace(actor.MeetingID),
		"protocol_type_id", strings.TrimSpace(cmd.ProtocolTypeID),
	)
	if err := uc.validateActor(actor); err != nil {
		return entities.Protocol{}, err
	}
	if !uc.validID(cmd.ProtocolTypeID) {
		return entities.Protocol{}, domainerrors.ErrInvalidID
	}
	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		return entities.Protocol{}, domainerrors.ErrInvalidRequest
	}

	var created entities.Protocol
	err := uc.commit(ctx, actor, "create", func(ctx context.Context, store ports.Store, batch *eventBatch) error {
		meeting, err := store.GetMeeting(ctx, strings.TrimSpace(actor.MeetingID))
		if err != nil {
			return err
		}
		protocolType, err := store.GetProtocolType(ctx, strings.TrimSpace(cmd.ProtocolTypeID))
		if err != nil {
			return err
		}
		first, ok := protocolType.FirstPhase()
		if !ok {
			return domainerrors.ErrProtocolTypeEmpty
		}
		protocolID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		created = entities.Protocol{
			ID:                  protocolID,
			MeetingID:           meeting.ID,
			TypeID:              protocolType.ID,
			CreatorID:           strings.TrimSpace(actor.ParticipantID),
			CurrentPhaseIndex:   first.Index,
			Title:               title,
			LastPhaseChangeDate: batch.now,
			Data:                cmd.Data,
			CreatedAt:           batch.now,
			UpdatedAt:           batch.now,
		}
		if err := store.SaveProtocol(ctx, created); err != nil {
			return err
		}

		meeting.CurrentProtocolID = created.ID
		meeting.UpdatedAt = batch.now
		if err := store.SaveMeeting(ctx, meeting); err != nil {
			return err
		}

		noteID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		if err := store.CreateNote(ctx, entities.Note{
			ID:        noteID,
			MeetingID: meeting.ID,
			Text:      fmt.Sprintf("Started %s: %s", protocolType.Name, title),
			IsSystem:  true,
			CreatedAt: batch.now,
		}); err != nil {
			return err
		}
		summaryID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		if err := store.CreateSummaryItem(ctx, entities.SummaryItem{
			ID:         summaryID,
			MeetingID:  meeting.ID,
			Kind:       entities.SummaryItemKindProtocol,
			Text:       title,
			ProtocolID: created.ID,
			CreatedAt:  batch.now,
		}); err != nil {
			return err
		}
		notes, err := store.ListNotes(ctx, meeting.ID)
		if err != nil {
			return err
		}
		summaryItems, err := store.ListSummaryItems(ctx, meeting.ID)
		if err != nil {
			return err
		}

		if err := batch.add(ctx, eventsv1.EventTypeProtocol, ProtocolEventPayload{
			Created: []ProtocolView{NewProtocolView(created)},
		}); err != nil {
			return err
		}
		if err := batch.add(ctx, eventsv1.EventTypeMeeting, MeetingPayload{
			ID:                meeting.ID,
			CurrentProtocolID: meeting.CurrentProtocolID,
		}); err != nil {
			return err
		}
		if err := batch.add(ctx, eventsv1.EventTypeUpdatedNotes, newNotesPayload(meeting.ID, notes)); err != nil {
			return err
		}
		return batch.add(ctx, eventsv1.EventTypeUpdatedSummaryItems, newSummaryItemsPayload(meeting.ID, summaryItems))
	})
	if err != nil {
		return entities.Protocol{}, err
	}

	logger.Info("protocol created",
		"event", "protocol_created",
		"module", moduleName,
		"layer", "application",
		"protocol_id", created.ID,
		"meeting_id", created.MeetingID,
		"protocol_type_id", created.TypeID,
		"current_phase_index", created.CurrentPhaseIndex,
	)
	return created, nil
}

// AdvancePhase moves to the next phase or completes the protocol.
func (uc ProtocolUseCase) AdvancePhase(ctx context.Context, actor Actor, cmd AdvancePhaseCommand) (entities.Protocol, error) {
	return uc.transition(ctx, actor, "advance", cmd.ProtocolID,
		func(protocol entities.Protocol, protocolType entities.ProtocolType, batch *eventBatch) (entities.Protocol, bool, error) {
			next, err := services.AdvancePhase(protocol, protocolType, cmd.Force, batch.now)
			return next, err == nil, err
		},
	)
}

// RetreatPhase moves back one phase; at the first phase nothing changes and
// nothing is broadcast.
func (uc ProtocolUseCase) RetreatPhase(ctx context.Context, actor Actor, protocolID string) (entities.Protocol, error) {
	return uc.transition(ctx, actor, "retreat", protocolID,
		func(protocol entities.Protocol, protocolType entities.ProtocolType, batch *eventBatch) (entities.Protocol, bool, error) {
			return services.RetreatPhase(protocol, protocolType, batch.now)
		},
	)
}

// SetReadyForNextPhase raises or lowers the ready gate of the current phase.
func (uc ProtocolUseCase) SetReadyForNextPhase(ctx context.Context, actor Actor, cmd SetReadyCommand) (entities.Protocol, error) {
	return uc.transition(ctx, actor, "set_ready", cmd.ProtocolID,
		func(protocol entities.Protocol, _ entities.ProtocolType, batch *eventBatch) (entities.Protocol, bool, error) {
			return services.SetReadyForNextPhase(protocol, cmd.Ready, batch.now)
		},
	)
}

func (uc ProtocolUseCase) transition(
	ctx context.Context,
	actor Actor,
	operation string,
	protocolID string,
	apply func(entities.Protocol, entities.ProtocolType, *eventBatch) (entities.Protocol, bool, error),
) (entities.Protocol, error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := uc.validateActor(actor); err != nil {
		return entities.Protocol{}, err
	}
	if !uc.validID(protocolID) {
		return entities.Protocol{}, domainerrors.ErrInvalidID
	}

	var result entities.Protocol
	var changed bool
	err := uc.commit(ctx, actor, operation, func(ctx context.Context, store ports.Store, batch *eventBatch) error {
		protocol, err := lockProtocol(ctx, store, actor, protocolID)
		if err != nil {
			return err
		}
		if err := requireFacilitator(ctx, store, actor, protocol); err != nil {
			return err
		}
		protocolType, err := store.GetProtocolType(ctx, protocol.TypeID)
		if err != nil {
			return err
		}
		result, changed, err = apply(protocol, protocolType, batch)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if err := store.SaveProtocol(ctx, result); err != nil {
			return err
		}
		return batch.add(ctx, eventsv1.EventTypeProtocol, ProtocolEventPayload{
			Changed: []ProtocolView{NewProtocolView(result)},
		})
	})
	if err != nil {
		return entities.Protocol{}, err
	}

	logger.Info("protocol phase transition applied",
		"event", "protocol_"+operation+"_applied",
		"module", moduleName,
		"layer", "application",
		"protocol_id", result.ID,
		"current_phase_index", result.CurrentPhaseIndex,
		"is_completed", result.IsCompleted,
		"ready_for_next_phase", result.ReadyForNextPhase,
		"changed", changed,
	)
	return result, nil
}
