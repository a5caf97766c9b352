package services

import (
	"time"

	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
)

// AdvancePhase moves the protocol to the phase following the current one, or
// completes it when the current phase is the last. Collective phases refuse
// to advance until the ready flag is raised unless force is set.
func AdvancePhase(
	protocol entities.Protocol,
	protocolType entities.ProtocolType,
	force bool,
	now time.Time,
) (entities.Protocol, error) {
	if protocol.IsCompleted {
		return protocol, domainerrors.ErrProtocolCompleted
	}
	current, ok := protocolType.PhaseByIndex(protocol.CurrentPhaseIndex)
	if !ok {
		return protocol, domainerrors.ErrPhaseInconsistent
	}
	if current.IsCollective && !protocol.ReadyForNextPhase && !force {
		return protocol, domainerrors.ErrPhaseNotReady
	}

	next, ok := protocolType.PhaseByIndex(current.Index + 1)
	if !ok {
		protocol.IsCompleted = true
		protocol.UpdatedAt = now
		return protocol, nil
	}
	protocol.CurrentPhaseIndex = next.Index
	protocol.ReadyForNextPhase = false
	protocol.LastPhaseChangeDate = now
	protocol.UpdatedAt = now
	return protocol, nil
}

// RetreatPhase moves the protocol one phase back. At the first phase it is a
// no-op and reports changed=false.
func RetreatPhase(
	protocol entities.Protocol,
	protocolType entities.ProtocolType,
	now time.Time,
) (entities.Protocol, bool, error) {
	if protocol.IsCompleted {
		return protocol, false, domainerrors.ErrProtocolCompleted
	}
	current, ok := protocolType.PhaseByIndex(protocol.CurrentPhaseIndex)
	if !ok {
		return protocol, false, domainerrors.ErrPhaseInconsistent
	}
	first, _ := protocolType.FirstPhase()
	if current.Index <= first.Index {
		return protocol, false, nil
	}
	previous, ok := protocolType.PhaseByIndex(current.Index - 1)
	if !ok {
		return protocol, false, domainerrors.ErrPhaseInconsistent
	}
	protocol.CurrentPhaseIndex = previous.Index
	protocol.ReadyForNextPhase = false
	protocol.LastPhaseChangeDate = now
	protocol.UpdatedAt = now
	return protocol, true, nil
}

// SetReadyForNextPhase raises or lowers the gating flag of the current phase.
func SetReadyForNextPhase(protocol entities.Protocol, ready bool, now time.Time) (entities.Protocol, bool, error) {
	if protocol.IsCompleted {
		return protocol, false, domainerrors.ErrProtocolCompleted
	}
	if protocol.ReadyForNextPhase == ready {
		return protocol, false, nil
	}
	protocol.ReadyForNextPhase = ready
	protocol.UpdatedAt = now
	return protocol, true, nil
}

// CurrentPhase resolves the phase the protocol currently sits in.
func CurrentPhase(protocol entities.Protocol, protocolType entities.ProtocolType) (entities.ProtocolPhase, error) {
	phase, ok := protocolType.PhaseByIndex(protocol.CurrentPhaseIndex)
	if !ok {
		return entities.ProtocolPhase{}, domainerrors.ErrPhaseInconsistent
	}
	return phase, nil
}
