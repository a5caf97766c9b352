package protocolengine

import (
	"log/slog"
	"time"

	httpadapter "parley/contexts/meeting-collaboration/protocol-engine/adapters/http"
	"parley/contexts/meeting-collaboration/protocol-engine/adapters/memory"
	"parley/contexts/meeting-collaboration/protocol-engine/application/commands"
	"parley/contexts/meeting-collaboration/protocol-engine/application/queries"
	"parley/contexts/meeting-collaboration/protocol-engine/application/workers"
	"parley/contexts/meeting-collaboration/protocol-engine/ports"
)

type Module struct {
	Handler    httpadapter.Handler
	Catalog    commands.CatalogUseCase
	Relay      workers.OutboxRelay
	Repository ports.Repository
	Store      *memory.Store
}

type Dependencies struct {
	Repository  ports.Repository
	Broadcaster ports.Broadcaster
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	// RelayBatchSize and RelayGracePeriod tune the outbox relay.
	RelayBatchSize   int
	RelayGracePeriod time.Duration
	Logger           *slog.Logger
}

func NewModule(deps Dependencies) Module {
	runtime := commands.Runtime{
		Repo:        deps.Repository,
		Broadcaster: deps.Broadcaster,
		Clock:       deps.Clock,
		IDGen:       deps.IDGen,
		Logger:      deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Protocols: commands.ProtocolUseCase{Runtime: runtime},
			Items:     commands.ItemUseCase{Runtime: runtime},
			Votes:     commands.VoteUseCase{Runtime: runtime},
			Queries: queries.QueryUseCase{
				Repo:   deps.Repository,
				IDGen:  deps.IDGen,
				Logger: deps.Logger,
			},
			Logger: deps.Logger,
		},
		Catalog: commands.CatalogUseCase{
			Repo:   deps.Repository,
			IDGen:  deps.IDGen,
			Logger: deps.Logger,
		},
		Relay: workers.OutboxRelay{
			Outbox:      deps.Repository,
			Broadcaster: deps.Broadcaster,
			Clock:       deps.Clock,
			BatchSize:   deps.RelayBatchSize,
			GracePeriod: deps.RelayGracePeriod,
			Logger:      deps.Logger,
		},
		Repository: deps.Repository,
	}
}

func NewInMemoryModule(broadcaster ports.Broadcaster, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Repository:  store,
		Broadcaster: broadcaster,
		Clock:       store,
		IDGen:       store,
		Logger:      logger,
	})
	module.Store = store
	return module
}
