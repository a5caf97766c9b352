package commands

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	application "parley/contexts/meeting-collaboration/protocol-engine/application"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/services"
	"parley/contexts/meeting-collaboration/protocol-engine/ports"
)

// CatalogUseCase loads the out-of-band records the engine depends on:
// protocol type templates and the meeting projection.
type CatalogUseCase struct {
	Repo   ports.Repository
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

// SeedProtocolTypes validates and upserts every type in one unit of work.
// Phases are stored sorted by index.
func (uc CatalogUseCase) SeedProtocolTypes(ctx context.Context, types []entities.ProtocolType) error {
	logger := application.ResolveLogger(uc.Logger)
	normalized := make([]entities.ProtocolType, 0, len(types))
	for _, protocolType := range types {
		value, err := uc.normalizeType(protocolType)
		if err != nil {
			return err
		}
		normalized = append(normalized, value)
	}

	err := uc.Repo.WithinTx(ctx, func(ctx context.Context, store ports.Store) error {
		for _, protocolType := range normalized {
			if err := store.SaveProtocolType(ctx, protocolType); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("protocol type seed failed",
			"event", "protocol_type_seed_failed",
			"module", moduleName,
			"layer", "application",
			"error", err.Error(),
		)
		return err
	}
	logger.Info("protocol types seeded",
		"event", "protocol_type_seeded",
		"module", moduleName,
		"layer", "application",
		"type_count", len(normalized),
	)
	return nil
}

// RegisterMeetings upserts meeting projections. An existing current protocol
// pointer is kept when the incoming record leaves it empty.
func (uc CatalogUseCase) RegisterMeetings(ctx context.Context, meetings []entities.Meeting) error {
	for _, meeting := range meetings {
		if !uc.validID(meeting.ID) || !uc.validID(meeting.FacilitatorID) {
			return domainerrors.ErrInvalidID
		}
	}
	return uc.Repo.WithinTx(ctx, func(ctx context.Context, store ports.Store) error {
		for _, meeting := range meetings {
			meeting.ID = strings.TrimSpace(meeting.ID)
			meeting.FacilitatorID = strings.TrimSpace(meeting.FacilitatorID)
			if meeting.CurrentProtocolID == "" {
				existing, err := store.GetMeeting(ctx, meeting.ID)
				switch {
				case err == nil:
					meeting.CurrentProtocolID = existing.CurrentProtocolID
				case !isMeetingNotFound(err):
					return err
				}
			}
			if err := store.SaveMeeting(ctx, meeting); err != nil {
				return err
			}
		}
		return nil
	})
}

func (uc CatalogUseCase) normalizeType(protocolType entities.ProtocolType) (entities.ProtocolType, error) {
	protocolType.ID = strings.TrimSpace(protocolType.ID)
	protocolType.Name = strings.TrimSpace(protocolType.Name)
	if !uc.validID(protocolType.ID) {
		return entities.ProtocolType{}, domainerrors.ErrInvalidID
	}
	if protocolType.Name == "" {
		return entities.ProtocolType{}, domainerrors.ErrInvalidRequest
	}
	strategy, known := services.ParseStrategy(string(protocolType.Strategy))
	if !known {
		return entities.ProtocolType{}, domainerrors.ErrInvalidRequest
	}
	protocolType.Strategy = strategy
	if len(protocolType.Phases) == 0 {
		return entities.ProtocolType{}, domainerrors.ErrProtocolTypeEmpty
	}

	phases := append([]entities.ProtocolPhase(nil), protocolType.Phases...)
	sort.SliceStable(phases, func(i, j int) bool {
		return phases[i].Index < phases[j].Index
	})
	for position := range phases {
		phase := &phases[position]
		if phase.Index != position+1 || !uc.validID(phase.ID) || strings.TrimSpace(phase.Name) == "" {
			return entities.ProtocolType{}, domainerrors.ErrInvalidRequest
		}
		if entities.ParsePhaseKind(string(phase.Kind)) == entities.PhaseKindUnknown {
			return entities.ProtocolType{}, domainerrors.ErrInvalidRequest
		}
		phase.Kind = entities.ParsePhaseKind(string(phase.Kind))
		phase.ProtocolTypeID = protocolType.ID
		phase.Name = strings.TrimSpace(phase.Name)
	}
	protocolType.Phases = phases
	return protocolType, nil
}

func (uc CatalogUseCase) validID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && uc.IDGen.ValidID(id)
}
