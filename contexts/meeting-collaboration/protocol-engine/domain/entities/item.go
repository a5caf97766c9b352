package entities

import (
	"time"

	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
)

type ItemKind string

const (
	ItemKindItem  ItemKind = "item"
	ItemKindGroup ItemKind = "group"
)

type ProtocolItem struct {
	ID                        string
	Kind                      ItemKind
	CreatorID                 string
	ProtocolID                string
	ProtocolPhaseID           string
	Text                      string
	Tags                      []string
	Data                      map[string]any
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
	Seq                       int64
	ParentID                  string
	IsForcefullyPrioritized   bool
	IsForcefullyDeprioritized bool
}

func (i ProtocolItem) IsGroup() bool {
	return i.Kind == ItemKindGroup
}

// PriorityOverride is the facilitator's manual decision on an item.
type PriorityOverride string

const (
	OverrideNone         PriorityOverride = "none"
	OverridePrioritize   PriorityOverride = "prioritize"
	OverrideDeprioritize PriorityOverride = "deprioritize"
)

// ApplyOverride sets one override flag and clears the other.
func (i *ProtocolItem) ApplyOverride(override PriorityOverride) {
	switch override {
	case OverridePrioritize:
		i.IsForcefullyPrioritized = true
		i.IsForcefullyDeprioritized = false
	case OverrideDeprioritize:
		i.IsForcefullyPrioritized = false
		i.IsForcefullyDeprioritized = true
	default:
		i.IsForcefullyPrioritized = false
		i.IsForcefullyDeprioritized = false
	}
}

// OverrideFromFlags resolves a pair of forced flags into one override.
func OverrideFromFlags(prioritized bool, deprioritized bool) (PriorityOverride, error) {
	switch {
	case prioritized && deprioritized:
		return OverrideNone, domainerrors.ErrConflictingOverride
	case prioritized:
		return OverridePrioritize, nil
	case deprioritized:
		return OverrideDeprioritize, nil
	default:
		return OverrideNone, nil
	}
}

type ActionType string

const ActionTypeVote ActionType = "vote"

type ProtocolItemAction struct {
	ID              string
	Type            ActionType
	CreatorID       string
	ProtocolID      string
	ProtocolItemID  string
	ProtocolPhaseID string
	CreatedAt       time.Time
}
