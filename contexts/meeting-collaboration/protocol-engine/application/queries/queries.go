package queries

import (
	"context"
	"log/slog"
	"strings"

	application "parley/contexts/meeting-collaboration/protocol-engine/application"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/services"
	"parley/contexts/meeting-collaboration/protocol-engine/ports"
)

const moduleName = "meeting-collaboration/protocol-engine"

type Reader interface {
	ports.ProtocolStore
	ports.ItemStore
	ports.ActionStore
}

type ProtocolDetails struct {
	Protocol     entities.Protocol
	Type         entities.ProtocolType
	CurrentPhase entities.ProtocolPhase
}

type ItemWithVotes struct {
	Item  entities.ProtocolItem
	Votes int
}

type ReviewResult struct {
	ProtocolID string
	Strategy   entities.ResultStrategy
	Rows       []services.Assignment
}

// QueryUseCase serves reads. MeetingID arguments scope a read to one meeting;
// an empty MeetingID reads unscoped.
type QueryUseCase struct {
	Repo   Reader
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

func (uc QueryUseCase) GetProtocolType(ctx context.Context, typeID string) (entities.ProtocolType, error) {
	typeID = strings.TrimSpace(typeID)
	if !uc.validID(typeID) {
		return entities.ProtocolType{}, domainerrors.ErrInvalidID
	}
	return uc.Repo.GetProtocolType(ctx, typeID)
}

func (uc QueryUseCase) GetProtocol(ctx context.Context, meetingID string, protocolID string) (ProtocolDetails, error) {
	protocol, err := uc.loadProtocol(ctx, meetingID, protocolID)
	if err != nil {
		return ProtocolDetails{}, err
	}
	protocolType, err := uc.Repo.GetProtocolType(ctx, protocol.TypeID)
	if err != nil {
		return ProtocolDetails{}, err
	}
	details := ProtocolDetails{Protocol: protocol, Type: protocolType}
	if phase, ok := protocolType.PhaseByIndex(protocol.CurrentPhaseIndex); ok {
		details.CurrentPhase = phase
	}
	return details, nil
}

// ListItems returns the protocol's items in display order with vote counts.
func (uc QueryUseCase) ListItems(ctx context.Context, meetingID string, protocolID string) ([]ItemWithVotes, error) {
	protocol, err := uc.loadProtocol(ctx, meetingID, protocolID)
	if err != nil {
		return nil, err
	}
	candidates, err := uc.candidates(ctx, protocol.ID)
	if err != nil {
		return nil, err
	}
	out := make([]ItemWithVotes, 0, len(candidates))
	for _, candidate := range candidates {
		out = append(out, ItemWithVotes{Item: candidate.Item, Votes: candidate.Votes})
	}
	return out, nil
}

// ReviewResults applies the protocol type's result strategy to the current
// items and votes.
func (uc QueryUseCase) ReviewResults(ctx context.Context, meetingID string, protocolID string) (ReviewResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	protocol, err := uc.loadProtocol(ctx, meetingID, protocolID)
	if err != nil {
		return ReviewResult{}, err
	}
	protocolType, err := uc.Repo.GetProtocolType(ctx, protocol.TypeID)
	if err != nil {
		return ReviewResult{}, err
	}
	strategy, known := services.ParseStrategy(string(protocolType.Strategy))
	if !known {
		logger.Warn("unknown result strategy, using default",
			"event", "protocol_results_strategy_unknown",
			"module", moduleName,
			"layer", "application",
			"protocol_id", protocol.ID,
			"protocol_type_id", protocolType.ID,
			"strategy", string(protocolType.Strategy),
		)
	}
	candidates, err := uc.candidates(ctx, protocol.ID)
	if err != nil {
		return ReviewResult{}, err
	}
	rows := services.ApplyStrategy(strategy, candidates)

	logger.Debug("protocol results computed",
		"event", "protocol_results_computed",
		"module", moduleName,
		"layer", "application",
		"protocol_id", protocol.ID,
		"strategy", string(strategy),
		"candidate_count", len(candidates),
		"row_count", len(rows),
	)
	return ReviewResult{ProtocolID: protocol.ID, Strategy: strategy, Rows: rows}, nil
}

func (uc QueryUseCase) loadProtocol(ctx context.Context, meetingID string, protocolID string) (entities.Protocol, error) {
	protocolID = strings.TrimSpace(protocolID)
	if !uc.validID(protocolID) {
		return entities.Protocol{}, domainerrors.ErrInvalidID
	}
	protocol, err := uc.Repo.GetProtocol(ctx, protocolID)
	if err != nil {
		return entities.Protocol{}, err
	}
	meetingID = strings.TrimSpace(meetingID)
	if meetingID != "" && protocol.MeetingID != meetingID {
		return entities.Protocol{}, domainerrors.ErrProtocolNotFound
	}
	return protocol, nil
}

func (uc QueryUseCase) candidates(ctx context.Context, protocolID string) ([]services.Candidate, error) {
	items, err := uc.Repo.ListItems(ctx, protocolID)
	if err != nil {
		return nil, err
	}
	actions, err := uc.Repo.ListActions(ctx, protocolID)
	if err != nil {
		return nil, err
	}
	return services.Candidates(items, actions), nil
}

func (uc QueryUseCase) validID(id string) bool {
	if id == "" {
		return false
	}
	if uc.IDGen == nil {
		return true
	}
	return uc.IDGen.ValidID(id)
}
