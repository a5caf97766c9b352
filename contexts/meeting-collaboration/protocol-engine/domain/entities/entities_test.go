package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
)

func TestParsePhaseKind(t *testing.T) {
	assert.Equal(t, PhaseKindCappedVoting, ParsePhaseKind(" Capped_Voting "))
	assert.Equal(t, PhaseKindDiscussion, ParsePhaseKind("discussion"))
	assert.Equal(t, PhaseKindUnknown, ParsePhaseKind("dot_voting"))
	assert.Equal(t, PhaseKindUnknown, ParsePhaseKind(""))
}

func TestVotePolicy(t *testing.T) {
	assert.Equal(t, VotingOpen, PhaseKindVoting.VotePolicy())
	assert.Equal(t, VotingCapped, PhaseKindCappedVoting.VotePolicy())
	for _, kind := range []PhaseKind{PhaseKindContribution, PhaseKindGrouping, PhaseKindPrioritization, PhaseKindReviewResults, PhaseKindDiscussion, PhaseKindUnknown} {
		assert.Equal(t, VotingClosed, kind.VotePolicy(), kind)
	}
}

func TestApplyOverrideKeepsFlagsExclusive(t *testing.T) {
	item := ProtocolItem{ID: "a"}

	item.ApplyOverride(OverridePrioritize)
	assert.True(t, item.IsForcefullyPrioritized)
	assert.False(t, item.IsForcefullyDeprioritized)

	item.ApplyOverride(OverrideDeprioritize)
	assert.False(t, item.IsForcefullyPrioritized)
	assert.True(t, item.IsForcefullyDeprioritized)

	item.ApplyOverride(OverrideNone)
	assert.False(t, item.IsForcefullyPrioritized)
	assert.False(t, item.IsForcefullyDeprioritized)
}

func TestOverrideFromFlags(t *testing.T) {
	override, err := OverrideFromFlags(true, false)
	require.NoError(t, err)
	assert.Equal(t, OverridePrioritize, override)

	override, err = OverrideFromFlags(false, true)
	require.NoError(t, err)
	assert.Equal(t, OverrideDeprioritize, override)

	override, err = OverrideFromFlags(false, false)
	require.NoError(t, err)
	assert.Equal(t, OverrideNone, override)

	_, err = OverrideFromFlags(true, true)
	assert.ErrorIs(t, err, domainerrors.ErrConflictingOverride)
}

func TestProtocolTypePhaseLookup(t *testing.T) {
	protocolType := ProtocolType{Phases: []ProtocolPhase{{ID: "b", Index: 2}, {ID: "a", Index: 1}}}

	first, ok := protocolType.FirstPhase()
	require.True(t, ok)
	assert.Equal(t, "a", first.ID)

	phase, ok := protocolType.PhaseByIndex(2)
	require.True(t, ok)
	assert.Equal(t, "b", phase.ID)

	_, ok = protocolType.PhaseByIndex(3)
	assert.False(t, ok)

	_, ok = ProtocolType{}.FirstPhase()
	assert.False(t, ok)
}

func TestCanFacilitate(t *testing.T) {
	meeting := Meeting{ID: "m-1", FacilitatorID: "host"}
	protocol := Protocol{CreatorID: "author"}

	assert.True(t, meeting.CanFacilitate("host", protocol))
	assert.True(t, meeting.CanFacilitate(" author ", protocol))
	assert.False(t, meeting.CanFacilitate("guest", protocol))
	assert.False(t, meeting.CanFacilitate("", Protocol{}))
}
