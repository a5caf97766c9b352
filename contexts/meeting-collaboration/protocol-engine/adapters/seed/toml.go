package seed

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
)

// File is the TOML layout of a catalog seed:
//
//	[[protocol_types]]
//	id = "..."
//	name = "Brainstorm"
//	strategy = "brainstorm"
//
//	  [[protocol_types.phases]]
//	  name = "Collect ideas"
//	  kind = "contribution"
//
//	[[meetings]]
//	id = "..."
//	facilitator_id = "..."
type File struct {
	ProtocolTypes []ProtocolType `toml:"protocol_types"`
	Meetings      []Meeting      `toml:"meetings"`
}

type ProtocolType struct {
	ID       string  `toml:"id"`
	Name     string  `toml:"name"`
	Strategy string  `toml:"strategy"`
	Phases   []Phase `toml:"phases"`
}

type Phase struct {
	ID          string         `toml:"id"`
	Name        string         `toml:"name"`
	Description string         `toml:"description"`
	Index       int            `toml:"index"`
	Kind        string         `toml:"kind"`
	Collective  bool           `toml:"collective"`
	Data        map[string]any `toml:"data"`
}

type Meeting struct {
	ID            string `toml:"id"`
	FacilitatorID string `toml:"facilitator_id"`
}

// Decode parses a seed. Phases without an index take their position, and
// phases without an id get one derived from the type id and index, so the
// same file always yields the same records.
func Decode(r io.Reader) ([]entities.ProtocolType, []entities.Meeting, error) {
	var file File
	if _, err := toml.NewDecoder(r).Decode(&file); err != nil {
		return nil, nil, fmt.Errorf("decode seed: %w", err)
	}

	types := make([]entities.ProtocolType, 0, len(file.ProtocolTypes))
	for _, raw := range file.ProtocolTypes {
		typeID := strings.TrimSpace(raw.ID)
		protocolType := entities.ProtocolType{
			ID:       typeID,
			Name:     raw.Name,
			Strategy: entities.ResultStrategy(raw.Strategy),
			Phases:   make([]entities.ProtocolPhase, 0, len(raw.Phases)),
		}
		for position, phase := range raw.Phases {
			index := phase.Index
			if index == 0 {
				index = position + 1
			}
			phaseID := strings.TrimSpace(phase.ID)
			if phaseID == "" {
				phaseID = derivePhaseID(typeID, index)
			}
			protocolType.Phases = append(protocolType.Phases, entities.ProtocolPhase{
				ID:             phaseID,
				ProtocolTypeID: typeID,
				Name:           phase.Name,
				Description:    phase.Description,
				Index:          index,
				Kind:           entities.PhaseKind(phase.Kind),
				IsCollective:   phase.Collective,
				Data:           phase.Data,
			})
		}
		types = append(types, protocolType)
	}

	meetings := make([]entities.Meeting, 0, len(file.Meetings))
	for _, raw := range file.Meetings {
		meetings = append(meetings, entities.Meeting{
			ID:            strings.TrimSpace(raw.ID),
			FacilitatorID: strings.TrimSpace(raw.FacilitatorID),
		})
	}
	return types, meetings, nil
}

func derivePhaseID(typeID string, index int) string {
	namespace, err := uuid.Parse(typeID)
	if err != nil {
		namespace = uuid.NameSpaceOID
	}
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("phase:%d", index))).String()
}
