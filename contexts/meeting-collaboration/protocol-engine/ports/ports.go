package ports

import (
	"context"
	"time"

	eventsv1 "parley/contracts/gen/events/v1"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
)

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
	// ValidID reports whether id is a well-formed identifier.
	ValidID(id string) bool
}

type ProtocolStore interface {
	GetProtocolType(ctx context.Context, typeID string) (entities.ProtocolType, error)
	SaveProtocolType(ctx context.Context, protocolType entities.ProtocolType) error
	GetMeeting(ctx context.Context, meetingID string) (entities.Meeting, error)
	SaveMeeting(ctx context.Context, meeting entities.Meeting) error
	GetProtocol(ctx context.Context, protocolID string) (entities.Protocol, error)
	// LockProtocol reads the protocol and holds it exclusively until the
	// surrounding unit of work ends.
	LockProtocol(ctx context.Context, protocolID string) (entities.Protocol, error)
	SaveProtocol(ctx context.Context, protocol entities.Protocol) error
	CreateNote(ctx context.Context, note entities.Note) error
	ListNotes(ctx context.Context, meetingID string) ([]entities.Note, error)
	CreateSummaryItem(ctx context.Context, item entities.SummaryItem) error
	ListSummaryItems(ctx context.Context, meetingID string) ([]entities.SummaryItem, error)
}

type ItemStore interface {
	GetItem(ctx context.Context, itemID string) (entities.ProtocolItem, error)
	// CreateItem persists a new item and returns it with its insertion sequence.
	CreateItem(ctx context.Context, item entities.ProtocolItem) (entities.ProtocolItem, error)
	SaveItem(ctx context.Context, item entities.ProtocolItem) error
	DeleteItem(ctx context.Context, itemID string) error
	// ListItems returns the protocol's items ordered by creation time and
	// insertion sequence.
	ListItems(ctx context.Context, protocolID string) ([]entities.ProtocolItem, error)
}

type ActionStore interface {
	CreateAction(ctx context.Context, action entities.ProtocolItemAction) error
	GetAction(ctx context.Context, actionID string) (entities.ProtocolItemAction, error)
	DeleteAction(ctx context.Context, actionID string) error
	// DeleteActionsByItem removes every action recorded against the item and
	// returns what was removed.
	DeleteActionsByItem(ctx context.Context, itemID string) ([]entities.ProtocolItemAction, error)
	ListActions(ctx context.Context, protocolID string) ([]entities.ProtocolItemAction, error)
	FindVote(ctx context.Context, creatorID string, itemID string, phaseID string) (entities.ProtocolItemAction, bool, error)
	CountVotes(ctx context.Context, protocolID string, phaseID string, creatorID string) (int, error)
}

type OutboxMessage struct {
	OutboxID    string
	Channel     string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, channel string, envelope eventsv1.Envelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int, createdBefore time.Time) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
	// OldestPendingOutbox returns the earliest unpublished row of a channel.
	OldestPendingOutbox(ctx context.Context, channel string) (OutboxMessage, bool, error)
}

// Store is the transactional view of the repository handed to a unit of work.
type Store interface {
	ProtocolStore
	ItemStore
	ActionStore
	OutboxWriter
}

type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

type Repository interface {
	Store
	UnitOfWork
	OutboxRepository
}

// Broadcaster delivers an event to every connection bound to a meeting channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel string, event eventsv1.Envelope) error
}
