package services

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
)

func threePhaseType() entities.ProtocolType {
	return entities.ProtocolType{
		ID:       "type-1",
		Name:     "Retro",
		Strategy: entities.StrategyPrioritize,
		Phases: []entities.ProtocolPhase{
			{ID: "phase-1", Index: 1, Kind: entities.PhaseKindContribution},
			{ID: "phase-2", Index: 2, Kind: entities.PhaseKindCappedVoting, IsCollective: true},
			{ID: "phase-3", Index: 3, Kind: entities.PhaseKindDiscussion},
		},
	}
}

func TestAdvancePhaseMovesToNextPhase(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	protocol := entities.Protocol{ID: "p-1", CurrentPhaseIndex: 1, ReadyForNextPhase: true}

	next, err := AdvancePhase(protocol, threePhaseType(), false, now)

	require.NoError(t, err)
	assert.Equal(t, 2, next.CurrentPhaseIndex)
	assert.False(t, next.ReadyForNextPhase)
	assert.False(t, next.IsCompleted)
	assert.Equal(t, now, next.LastPhaseChangeDate)
}

func TestAdvancePhaseWaitsForCollectiveReadiness(t *testing.T) {
	now := time.Now().UTC()
	protocol := entities.Protocol{ID: "p-1", CurrentPhaseIndex: 2}

	_, err := AdvancePhase(protocol, threePhaseType(), false, now)
	assert.ErrorIs(t, err, domainerrors.ErrPhaseNotReady)

	forced, err := AdvancePhase(protocol, threePhaseType(), true, now)
	require.NoError(t, err)
	assert.Equal(t, 3, forced.CurrentPhaseIndex)

	protocol.ReadyForNextPhase = true
	ready, err := AdvancePhase(protocol, threePhaseType(), false, now)
	require.NoError(t, err)
	assert.Equal(t, 3, ready.CurrentPhaseIndex)
}

func TestAdvancePhaseCompletesAfterLastPhase(t *testing.T) {
	changed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	protocol := entities.Protocol{ID: "p-1", CurrentPhaseIndex: 3, LastPhaseChangeDate: changed}

	done, err := AdvancePhase(protocol, threePhaseType(), false, changed.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, done.IsCompleted)
	assert.Equal(t, 3, done.CurrentPhaseIndex)
	assert.Equal(t, changed, done.LastPhaseChangeDate)

	_, err = AdvancePhase(done, threePhaseType(), true, changed)
	assert.ErrorIs(t, err, domainerrors.ErrProtocolCompleted)
}

func TestAdvancePhaseRejectsInconsistentIndex(t *testing.T) {
	_, err := AdvancePhase(entities.Protocol{CurrentPhaseIndex: 7}, threePhaseType(), true, time.Now())
	assert.ErrorIs(t, err, domainerrors.ErrPhaseInconsistent)

	_, err = CurrentPhase(entities.Protocol{CurrentPhaseIndex: 7}, threePhaseType())
	assert.ErrorIs(t, err, domainerrors.ErrPhaseInconsistent)
}

func TestRetreatPhase(t *testing.T) {
	now := time.Now().UTC()

	back, changed, err := RetreatPhase(entities.Protocol{CurrentPhaseIndex: 2, ReadyForNextPhase: true}, threePhaseType(), now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, back.CurrentPhaseIndex)
	assert.False(t, back.ReadyForNextPhase)

	same, changed, err := RetreatPhase(back, threePhaseType(), now)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, back, same)

	_, _, err = RetreatPhase(entities.Protocol{CurrentPhaseIndex: 2, IsCompleted: true}, threePhaseType(), now)
	assert.ErrorIs(t, err, domainerrors.ErrProtocolCompleted)
}

func TestSetReadyForNextPhase(t *testing.T) {
	now := time.Now().UTC()

	ready, changed, err := SetReadyForNextPhase(entities.Protocol{CurrentPhaseIndex: 2}, true, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, ready.ReadyForNextPhase)

	_, changed, err = SetReadyForNextPhase(ready, true, now)
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = SetReadyForNextPhase(entities.Protocol{IsCompleted: true}, true, now)
	assert.ErrorIs(t, err, domainerrors.ErrProtocolCompleted)
}

func TestCurrentPhase(t *testing.T) {
	phase, err := CurrentPhase(entities.Protocol{CurrentPhaseIndex: 2}, threePhaseType())
	require.NoError(t, err)
	assert.Equal(t, "phase-2", phase.ID)
	assert.Equal(t, entities.VotingCapped, phase.Kind.VotePolicy())
}

func TestPhaseTransitionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("index stays inside the type and completion is final", prop.ForAll(
		func(ops []int) bool {
			protocolType := threePhaseType()
			protocol := entities.Protocol{CurrentPhaseIndex: 1}
			now := time.Unix(0, 0).UTC()
			for _, op := range ops {
				now = now.Add(time.Second)
				wasCompleted := protocol.IsCompleted
				var err error
				switch op {
				case 0:
					protocol, err = AdvancePhase(protocol, protocolType, false, now)
				case 1:
					protocol, err = AdvancePhase(protocol, protocolType, true, now)
				case 2:
					protocol, _, err = RetreatPhase(protocol, protocolType, now)
				default:
					protocol, _, err = SetReadyForNextPhase(protocol, true, now)
				}
				if wasCompleted && (!protocol.IsCompleted || err == nil) {
					return false
				}
				if protocol.CurrentPhaseIndex < 1 || protocol.CurrentPhaseIndex > 3 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
