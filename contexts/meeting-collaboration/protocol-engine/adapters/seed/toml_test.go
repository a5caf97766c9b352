package seed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
)

const sample = `
[[protocol_types]]
id = "7d0c3c43-3f43-4d5e-9f0c-2a4f5b0d8e11"
name = "Prioritize"
strategy = "prioritize"

  [[protocol_types.phases]]
  name = "Collect"
  kind = "contribution"

  [[protocol_types.phases]]
  name = "Vote"
  kind = "capped_voting"
  collective = true
  description = "Three votes each"

[[meetings]]
id = "4f1f5f0e-3a7b-4f4e-8c55-0e5d3f2b9a01"
facilitator_id = "b1f0c6a2-8d3e-4a51-9a4e-6f7d2c1e0b33"
`

func TestDecodeBuildsTypesAndMeetings(t *testing.T) {
	types, meetings, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, types, 1)
	require.Len(t, meetings, 1)

	protocolType := types[0]
	assert.Equal(t, entities.StrategyPrioritize, protocolType.Strategy)
	require.Len(t, protocolType.Phases, 2)
	assert.Equal(t, 1, protocolType.Phases[0].Index)
	assert.Equal(t, 2, protocolType.Phases[1].Index)
	assert.Equal(t, entities.PhaseKindCappedVoting, protocolType.Phases[1].Kind)
	assert.True(t, protocolType.Phases[1].IsCollective)
	assert.Equal(t, protocolType.ID, protocolType.Phases[1].ProtocolTypeID)
	assert.NotEqual(t, protocolType.Phases[0].ID, protocolType.Phases[1].ID)

	assert.Equal(t, "b1f0c6a2-8d3e-4a51-9a4e-6f7d2c1e0b33", meetings[0].FacilitatorID)
}

func TestDecodeDerivesStablePhaseIDs(t *testing.T) {
	first, _, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	second, _, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, first[0].Phases[0].ID, second[0].Phases[0].ID)
	assert.Equal(t, first[0].Phases[1].ID, second[0].Phases[1].ID)
}

func TestDecodeRejectsMalformedTOML(t *testing.T) {
	_, _, err := Decode(strings.NewReader(`[[protocol_types]`))
	require.Error(t, err)
}
