package entities

import (
	"strings"
	"time"
)

type PhaseKind string

const (
	PhaseKindContribution   PhaseKind = "contribution"
	PhaseKindGrouping       PhaseKind = "grouping"
	PhaseKindVoting         PhaseKind = "voting"
	PhaseKindCappedVoting   PhaseKind = "capped_voting"
	PhaseKindPrioritization PhaseKind = "prioritization"
	PhaseKindReviewResults  PhaseKind = "review_results"
	PhaseKindDiscussion     PhaseKind = "discussion"
	PhaseKindUnknown        PhaseKind = "unknown"
)

// ParsePhaseKind maps a stored tag onto a known kind. Tags this build does not
// know about resolve to PhaseKindUnknown instead of an empty value.
func ParsePhaseKind(raw string) PhaseKind {
	kind := PhaseKind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case PhaseKindContribution,
		PhaseKindGrouping,
		PhaseKindVoting,
		PhaseKindCappedVoting,
		PhaseKindPrioritization,
		PhaseKindReviewResults,
		PhaseKindDiscussion:
		return kind
	default:
		return PhaseKindUnknown
	}
}

type VotePolicy int

const (
	VotingClosed VotePolicy = iota
	VotingOpen
	VotingCapped
)

// VotePolicy reports whether votes are accepted while a phase of this kind is
// current, and whether they are capped per participant.
func (k PhaseKind) VotePolicy() VotePolicy {
	switch k {
	case PhaseKindVoting:
		return VotingOpen
	case PhaseKindCappedVoting:
		return VotingCapped
	case PhaseKindContribution,
		PhaseKindGrouping,
		PhaseKindPrioritization,
		PhaseKindReviewResults,
		PhaseKindDiscussion:
		return VotingClosed
	case PhaseKindUnknown:
		return VotingClosed
	default:
		return VotingClosed
	}
}

type ResultStrategy string

const (
	StrategyDefault    ResultStrategy = "default"
	StrategyBrainstorm ResultStrategy = "brainstorm"
	StrategyPrioritize ResultStrategy = "prioritize"
)

type ProtocolPhase struct {
	ID             string
	ProtocolTypeID string
	Name           string
	Description    string
	Index          int
	Kind           PhaseKind
	IsCollective   bool
	Data           map[string]any
}

type ProtocolType struct {
	ID       string
	Name     string
	Strategy ResultStrategy
	Phases   []ProtocolPhase
}

// PhaseByIndex returns the phase with the given 1-based index.
func (t ProtocolType) PhaseByIndex(index int) (ProtocolPhase, bool) {
	for _, phase := range t.Phases {
		if phase.Index == index {
			return phase, true
		}
	}
	return ProtocolPhase{}, false
}

// FirstPhase returns the phase with the lowest index.
func (t ProtocolType) FirstPhase() (ProtocolPhase, bool) {
	if len(t.Phases) == 0 {
		return ProtocolPhase{}, false
	}
	first := t.Phases[0]
	for _, phase := range t.Phases[1:] {
		if phase.Index < first.Index {
			first = phase
		}
	}
	return first, true
}

type Protocol struct {
	ID                  string
	MeetingID           string
	TypeID              string
	CreatorID           string
	CurrentPhaseIndex   int
	Title               string
	IsCompleted         bool
	ReadyForNextPhase   bool
	LastPhaseChangeDate time.Time
	Data                map[string]any
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Meeting is the slice of the meeting record the engine reads and updates.
type Meeting struct {
	ID                string
	FacilitatorID     string
	CurrentProtocolID string
	UpdatedAt         time.Time
}

// CanFacilitate reports whether the participant drives the given protocol.
func (m Meeting) CanFacilitate(participantID string, protocol Protocol) bool {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return false
	}
	return participantID == m.FacilitatorID || participantID == protocol.CreatorID
}

type Note struct {
	ID        string
	MeetingID string
	Text      string
	IsSystem  bool
	CreatedAt time.Time
}

type SummaryItemKind string

const SummaryItemKindProtocol SummaryItemKind = "protocol"

type SummaryItem struct {
	ID         string
	MeetingID  string
	Kind       SummaryItemKind
	Text       string
	ProtocolID string
	CreatedAt  time.Time
}
