package commands

import (
	"context"
	"errors"
	"strings"

	application "parley/contexts/meeting-collaboration/protocol-engine/application"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/services"
	"parley/contexts/meeting-collaboration/protocol-engine/ports"
)

type CastVoteCommand struct {
	ItemID     string
	ActionType entities.ActionType
}

// VoteUseCase records participant actions against items. The budget check
// of capped phases and the insert share one unit of work under the protocol
// lock, so concurrent votes by one participant cannot overrun the budget.
type VoteUseCase struct {
	Runtime
}

func (uc VoteUseCase) CastVote(ctx context.Context, actor Actor, cmd CastVoteCommand) (entities.ProtocolItemAction, error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := uc.validateActor(actor); err != nil {
		return entities.ProtocolItemAction{}, err
	}
	if !uc.validID(cmd.ItemID) {
		return entities.ProtocolItemAction{}, domainerrors.ErrInvalidID
	}
	actionType := cmd.ActionType
	if actionType == "" {
		actionType = entities.ActionTypeVote
	}
	if actionType != entities.ActionTypeVote {
		return entities.ProtocolItemAction{}, domainerrors.ErrInvalidRequest
	}
	participantID := strings.TrimSpace(actor.ParticipantID)

	var created entities.ProtocolItemAction
	var budget int
	err := uc.commit(ctx, actor, "vote_cast", func(ctx context.Context, store ports.Store, batch *eventBatch) error {
		item, protocol, err := lockItem(ctx, store, actor, cmd.ItemID)
		if err != nil {
			return err
		}
		if protocol.IsCompleted {
			return domainerrors.ErrProtocolCompleted
		}
		protocolType, err := store.GetProtocolType(ctx, protocol.TypeID)
		if err != nil {
			return err
		}
		phase, err := services.CurrentPhase(protocol, protocolType)
		if err != nil {
			return err
		}

		switch phase.Kind.VotePolicy() {
		case entities.VotingClosed:
			return domainerrors.ErrPhaseDisallowsVoting
		case entities.VotingOpen:
		case entities.VotingCapped:
			items, err := store.ListItems(ctx, protocol.ID)
			if err != nil {
				return err
			}
			budget = services.VoteBudget(services.ItemCount(items))
			cast, err := store.CountVotes(ctx, protocol.ID, phase.ID, participantID)
			if err != nil {
				return err
			}
			if cast >= budget {
				return domainerrors.ErrVoteBudgetExceeded
			}
		default:
			return domainerrors.ErrPhaseDisallowsVoting
		}

		if _, found, err := store.FindVote(ctx, participantID, item.ID, phase.ID); err != nil {
			return err
		} else if found {
			return domainerrors.ErrAlreadyVoted
		}

		actionID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		created = entities.ProtocolItemAction{
			ID:              actionID,
			Type:            actionType,
			CreatorID:       participantID,
			ProtocolID:      protocol.ID,
			ProtocolItemID:  item.ID,
			ProtocolPhaseID: phase.ID,
			CreatedAt:       batch.now,
		}
		if err := store.CreateAction(ctx, created); err != nil {
			if errors.Is(err, domainerrors.ErrConflict) {
				return domainerrors.ErrAlreadyVoted
			}
			return err
		}
		changes := &itemChanges{protocolID: protocol.ID}
		changes.change(item)
		changes.createdActions = append(changes.createdActions, created)
		return changes.emit(ctx, store, batch)
	})
	if err != nil {
		return entities.ProtocolItemAction{}, err
	}

	logger.Info("protocol vote cast",
		"event", "protocol_vote_cast",
		"module", moduleName,
		"layer", "application",
		"action_id", created.ID,
		"item_id", created.ProtocolItemID,
		"protocol_id", created.ProtocolID,
		"phase_id", created.ProtocolPhaseID,
		"participant_id", participantID,
		"vote_budget", budget,
	)
	return created, nil
}

// RetractVote deletes one of the actor's own actions. Retracting is allowed
// in any phase.
func (uc VoteUseCase) RetractVote(ctx context.Context, actor Actor, actionID string) error {
	logger := application.ResolveLogger(uc.Logger)
	if err := uc.validateActor(actor); err != nil {
		return err
	}
	if !uc.validID(actionID) {
		return domainerrors.ErrInvalidID
	}
	participantID := strings.TrimSpace(actor.ParticipantID)

	var retracted entities.ProtocolItemAction
	err := uc.commit(ctx, actor, "vote_retract", func(ctx context.Context, store ports.Store, batch *eventBatch) error {
		action, err := store.GetAction(ctx, strings.TrimSpace(actionID))
		if err != nil {
			return err
		}
		protocol, err := lockProtocol(ctx, store, actor, action.ProtocolID)
		if err != nil {
			if errors.Is(err, domainerrors.ErrProtocolNotFound) {
				return domainerrors.ErrActionNotFound
			}
			return err
		}
		action, err = store.GetAction(ctx, action.ID)
		if err != nil {
			return err
		}
		if action.CreatorID != participantID {
			return domainerrors.ErrForbidden
		}
		if err := store.DeleteAction(ctx, action.ID); err != nil {
			return err
		}
		retracted = action

		changes := &itemChanges{protocolID: protocol.ID}
		changes.deletedActions = append(changes.deletedActions, action.ID)
		item, err := store.GetItem(ctx, action.ProtocolItemID)
		switch {
		case err == nil:
			changes.change(item)
		case !errors.Is(err, domainerrors.ErrItemNotFound):
			return err
		}
		return changes.emit(ctx, store, batch)
	})
	if err != nil {
		return err
	}

	logger.Info("protocol vote retracted",
		"event", "protocol_vote_retracted",
		"module", moduleName,
		"layer", "application",
		"action_id", retracted.ID,
		"item_id", retracted.ProtocolItemID,
		"protocol_id", retracted.ProtocolID,
		"participant_id", participantID,
	)
	return nil
}
