package commands

import (
	"context"
	"encoding/json"
	"time"

	eventsv1 "parley/contracts/gen/events/v1"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/services"
	"parley/contexts/meeting-collaboration/protocol-engine/ports"
)

// eventBatch collects the envelopes a command produces, in the order they
// must be observed by every client of the channel.
type eventBatch struct {
	channel   string
	traceID   string
	now       time.Time
	idGen     ports.IDGenerator
	envelopes []eventsv1.Envelope
}

func (b *eventBatch) reset(now time.Time) {
	b.now = now
	b.envelopes = b.envelopes[:0]
}

func (b *eventBatch) add(ctx context.Context, eventType string, payload any) error {
	eventID, err := b.idGen.NewID(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	traceID := b.traceID
	if traceID == "" {
		traceID = eventID
	}
	b.envelopes = append(b.envelopes, eventsv1.Envelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       b.now.UTC(),
		SourceService:    "protocol-engine",
		TraceID:          traceID,
		SchemaVersion:    1,
		PartitionKeyPath: "meeting_id",
		PartitionKey:     b.channel,
		Data:             data,
	})
	return nil
}

type ProtocolView struct {
	ID                  string         `json:"id"`
	MeetingID           string         `json:"meeting_id"`
	TypeID              string         `json:"type_id"`
	CreatorID           string         `json:"creator_id"`
	CurrentPhaseIndex   int            `json:"current_phase_index"`
	Title               string         `json:"title"`
	IsCompleted         bool           `json:"is_completed"`
	ReadyForNextPhase   bool           `json:"ready_for_next_phase"`
	LastPhaseChangeDate time.Time      `json:"last_phase_change_date"`
	Data                map[string]any `json:"data,omitempty"`
}

type ProtocolEventPayload struct {
	Created []ProtocolView `json:"created,omitempty"`
	Changed []ProtocolView `json:"changed,omitempty"`
}

type MeetingPayload struct {
	ID                string `json:"id"`
	CurrentProtocolID string `json:"current_protocol_id"`
}

type NoteView struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsSystem  bool      `json:"is_system"`
	CreatedAt time.Time `json:"created_at"`
}

type NotesPayload struct {
	MeetingID string     `json:"meeting_id"`
	Notes     []NoteView `json:"notes"`
}

type SummaryItemView struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Text       string    `json:"text"`
	ProtocolID string    `json:"protocol_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type SummaryItemsPayload struct {
	MeetingID    string            `json:"meeting_id"`
	SummaryItems []SummaryItemView `json:"summary_items"`
}

type ItemView struct {
	ID                        string         `json:"id"`
	Kind                      string         `json:"kind"`
	CreatorID                 string         `json:"creator_id"`
	ProtocolID                string         `json:"protocol_id"`
	ProtocolPhaseID           string         `json:"protocol_phase_id"`
	Text                      string         `json:"text"`
	Tags                      []string       `json:"tags"`
	Data                      map[string]any `json:"data,omitempty"`
	CreatedAt                 time.Time      `json:"created_at"`
	ParentID                  string         `json:"parent_id,omitempty"`
	IsForcefullyPrioritized   bool           `json:"is_forcefully_prioritized"`
	IsForcefullyDeprioritized bool           `json:"is_forcefully_deprioritized"`
	VoteCount                 int            `json:"vote_count"`
}

type ActionView struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	CreatorID       string    `json:"creator_id"`
	ProtocolItemID  string    `json:"protocol_item_id"`
	ProtocolPhaseID string    `json:"protocol_phase_id"`
	CreatedAt       time.Time `json:"created_at"`
}

type ItemEventPayload struct {
	ProtocolID     string       `json:"protocol_id"`
	Created        []ItemView   `json:"created,omitempty"`
	Changed        []ItemView   `json:"changed,omitempty"`
	Deleted        []string     `json:"deleted,omitempty"`
	CreatedActions []ActionView `json:"created_actions,omitempty"`
	DeletedActions []string     `json:"deleted_actions,omitempty"`
}

func NewProtocolView(protocol entities.Protocol) ProtocolView {
	return ProtocolView{
		ID:                  protocol.ID,
		MeetingID:           protocol.MeetingID,
		TypeID:              protocol.TypeID,
		CreatorID:           protocol.CreatorID,
		CurrentPhaseIndex:   protocol.CurrentPhaseIndex,
		Title:               protocol.Title,
		IsCompleted:         protocol.IsCompleted,
		ReadyForNextPhase:   protocol.ReadyForNextPhase,
		LastPhaseChangeDate: protocol.LastPhaseChangeDate.UTC(),
		Data:                protocol.Data,
	}
}

func NewItemView(item entities.ProtocolItem, votes int) ItemView {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	return ItemView{
		ID:                        item.ID,
		Kind:                      string(item.Kind),
		CreatorID:                 item.CreatorID,
		ProtocolID:                item.ProtocolID,
		ProtocolPhaseID:           item.ProtocolPhaseID,
		Text:                      item.Text,
		Tags:                      tags,
		Data:                      item.Data,
		CreatedAt:                 item.CreatedAt.UTC(),
		ParentID:                  item.ParentID,
		IsForcefullyPrioritized:   item.IsForcefullyPrioritized,
		IsForcefullyDeprioritized: item.IsForcefullyDeprioritized,
		VoteCount:                 votes,
	}
}

func NewActionView(action entities.ProtocolItemAction) ActionView {
	return ActionView{
		ID:              action.ID,
		Type:            string(action.Type),
		CreatorID:       action.CreatorID,
		ProtocolItemID:  action.ProtocolItemID,
		ProtocolPhaseID: action.ProtocolPhaseID,
		CreatedAt:       action.CreatedAt.UTC(),
	}
}

func newNotesPayload(meetingID string, notes []entities.Note) NotesPayload {
	out := NotesPayload{MeetingID: meetingID, Notes: make([]NoteView, 0, len(notes))}
	for _, note := range notes {
		out.Notes = append(out.Notes, NoteView{
			ID:        note.ID,
			Text:      note.Text,
			IsSystem:  note.IsSystem,
			CreatedAt: note.CreatedAt.UTC(),
		})
	}
	return out
}

func newSummaryItemsPayload(meetingID string, items []entities.SummaryItem) SummaryItemsPayload {
	out := SummaryItemsPayload{MeetingID: meetingID, SummaryItems: make([]SummaryItemView, 0, len(items))}
	for _, item := range items {
		out.SummaryItems = append(out.SummaryItems, SummaryItemView{
			ID:         item.ID,
			Kind:       string(item.Kind),
			Text:       item.Text,
			ProtocolID: item.ProtocolID,
			CreatedAt:  item.CreatedAt.UTC(),
		})
	}
	return out
}

// itemChanges accumulates the item-level effects of one command so they are
// broadcast as a single ProtocolItem event.
type itemChanges struct {
	protocolID     string
	created        []entities.ProtocolItem
	changed        []entities.ProtocolItem
	deleted        []string
	createdActions []entities.ProtocolItemAction
	deletedActions []string
}

func (c *itemChanges) create(item entities.ProtocolItem) {
	c.created = append(c.created, item)
}

func (c *itemChanges) change(item entities.ProtocolItem) {
	for i := range c.created {
		if c.created[i].ID == item.ID {
			c.created[i] = item
			return
		}
	}
	for i := range c.changed {
		if c.changed[i].ID == item.ID {
			c.changed[i] = item
			return
		}
	}
	c.changed = append(c.changed, item)
}

func (c *itemChanges) remove(itemID string) {
	filtered := c.changed[:0]
	for _, item := range c.changed {
		if item.ID != itemID {
			filtered = append(filtered, item)
		}
	}
	c.changed = filtered
	c.deleted = append(c.deleted, itemID)
}

func (c *itemChanges) removeActions(actions []entities.ProtocolItemAction) {
	for _, action := range actions {
		c.deletedActions = append(c.deletedActions, action.ID)
	}
}

// emit resolves current vote counts inside the unit of work and appends the
// ProtocolItem event to the batch.
func (c *itemChanges) emit(ctx context.Context, store ports.Store, batch *eventBatch) error {
	actions, err := store.ListActions(ctx, c.protocolID)
	if err != nil {
		return err
	}
	votes := services.CountVotesByItem(actions)

	payload := ItemEventPayload{ProtocolID: c.protocolID, Deleted: c.deleted, DeletedActions: c.deletedActions}
	for _, item := range c.created {
		payload.Created = append(payload.Created, NewItemView(item, votes[item.ID]))
	}
	for _, item := range c.changed {
		payload.Changed = append(payload.Changed, NewItemView(item, votes[item.ID]))
	}
	for _, action := range c.createdActions {
		payload.CreatedActions = append(payload.CreatedActions, NewActionView(action))
	}
	return batch.add(ctx, eventsv1.EventTypeProtocolItem, payload)
}
