package realtimecoordinator

import (
	"log/slog"
	"time"

	"parley/contexts/meeting-collaboration/realtime-coordinator/adapters/system"
	"parley/contexts/meeting-collaboration/realtime-coordinator/application"
	"parley/contexts/meeting-collaboration/realtime-coordinator/ports"
)

type Module struct {
	Coordinator *application.Coordinator
}

type Dependencies struct {
	// Bus is optional; without it broadcasts stay on this node.
	Bus             ports.Bus
	Clock           ports.Clock
	IDGen           ports.IDGenerator
	Metrics         ports.Metrics
	PresenceTimeout time.Duration
	Logger          *slog.Logger
}

func NewModule(deps Dependencies) Module {
	if deps.Clock == nil {
		deps.Clock = system.Clock{}
	}
	if deps.IDGen == nil {
		deps.IDGen = system.UUIDGenerator{}
	}
	return Module{
		Coordinator: application.NewCoordinator(application.Dependencies{
			Bus:             deps.Bus,
			Clock:           deps.Clock,
			IDGen:           deps.IDGen,
			Metrics:         deps.Metrics,
			PresenceTimeout: deps.PresenceTimeout,
			Logger:          deps.Logger,
		}),
	}
}
