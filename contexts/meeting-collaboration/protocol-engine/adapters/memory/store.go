package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	eventsv1 "parley/contracts/gen/events/v1"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
	"parley/contexts/meeting-collaboration/protocol-engine/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
	seq       int64
}

type state struct {
	protocolTypes map[string]entities.ProtocolType
	meetings      map[string]entities.Meeting
	protocols     map[string]entities.Protocol
	items         map[string]entities.ProtocolItem
	actions       map[string]entities.ProtocolItemAction
	actionSeq     map[string]int64
	notes         map[string][]entities.Note
	summaryItems  map[string][]entities.SummaryItem
	seq           int64
}

func newState() *state {
	return &state{
		protocolTypes: make(map[string]entities.ProtocolType),
		meetings:      make(map[string]entities.Meeting),
		protocols:     make(map[string]entities.Protocol),
		items:         make(map[string]entities.ProtocolItem),
		actions:       make(map[string]entities.ProtocolItemAction),
		actionSeq:     make(map[string]int64),
		notes:         make(map[string][]entities.Note),
		summaryItems:  make(map[string][]entities.SummaryItem),
	}
}

func (st *state) clone() *state {
	out := newState()
	for k, v := range st.protocolTypes {
		out.protocolTypes[k] = v
	}
	for k, v := range st.meetings {
		out.meetings[k] = v
	}
	for k, v := range st.protocols {
		out.protocols[k] = v
	}
	for k, v := range st.items {
		out.items[k] = v
	}
	for k, v := range st.actions {
		out.actions[k] = v
	}
	for k, v := range st.actionSeq {
		out.actionSeq[k] = v
	}
	for k, v := range st.notes {
		out.notes[k] = append([]entities.Note(nil), v...)
	}
	for k, v := range st.summaryItems {
		out.summaryItems[k] = append([]entities.SummaryItem(nil), v...)
	}
	out.seq = st.seq
	return out
}

// Store keeps protocol state in process memory. A unit of work runs against
// a private copy of the state that replaces the shared state only on commit,
// so reads outside a unit of work never observe uncommitted writes. Outbox
// rows written inside a unit of work become visible only when it commits.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	st        *state
	outbox    map[string]outboxRecord
	outboxSeq int64
}

func NewStore() *Store {
	return &Store{
		st:     newState(),
		outbox: make(map[string]outboxRecord),
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := &Store{st: s.st.clone()}
	s.mu.RUnlock()

	tx := &txStore{Store: working}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = working.st
	for _, record := range tx.outbox {
		s.appendOutboxLocked(record)
	}
	return nil
}

// lockWrite serializes a write made outside a unit of work with the units of
// work, whose commit replaces the whole state.
func (s *Store) lockWrite() func() {
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

type txStore struct {
	*Store
	outbox []ports.OutboxMessage
}

func (t *txStore) AppendOutbox(_ context.Context, channel string, envelope eventsv1.Envelope) error {
	message, err := outboxMessage(channel, envelope)
	if err != nil {
		return err
	}
	t.outbox = append(t.outbox, message)
	return nil
}

func (s *Store) GetProtocolType(_ context.Context, typeID string) (entities.ProtocolType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	protocolType, ok := s.st.protocolTypes[strings.TrimSpace(typeID)]
	if !ok {
		return entities.ProtocolType{}, domainerrors.ErrProtocolTypeNotFound
	}
	return protocolType, nil
}

func (s *Store) SaveProtocolType(_ context.Context, protocolType entities.ProtocolType) error {
	defer s.lockWrite()()
	phases := append([]entities.ProtocolPhase(nil), protocolType.Phases...)
	sort.SliceStable(phases, func(i, j int) bool {
		return phases[i].Index < phases[j].Index
	})
	protocolType.Phases = phases
	s.st.protocolTypes[strings.TrimSpace(protocolType.ID)] = protocolType
	return nil
}

func (s *Store) GetMeeting(_ context.Context, meetingID string) (entities.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meeting, ok := s.st.meetings[strings.TrimSpace(meetingID)]
	if !ok {
		return entities.Meeting{}, domainerrors.ErrMeetingNotFound
	}
	return meeting, nil
}

func (s *Store) SaveMeeting(_ context.Context, meeting entities.Meeting) error {
	defer s.lockWrite()()
	s.st.meetings[strings.TrimSpace(meeting.ID)] = meeting
	return nil
}

func (s *Store) GetProtocol(_ context.Context, protocolID string) (entities.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	protocol, ok := s.st.protocols[strings.TrimSpace(protocolID)]
	if !ok {
		return entities.Protocol{}, domainerrors.ErrProtocolNotFound
	}
	return protocol, nil
}

// LockProtocol is a plain read: units of work already run one at a time.
func (s *Store) LockProtocol(ctx context.Context, protocolID string) (entities.Protocol, error) {
	return s.GetProtocol(ctx, protocolID)
}

func (s *Store) SaveProtocol(_ context.Context, protocol entities.Protocol) error {
	defer s.lockWrite()()
	s.st.protocols[strings.TrimSpace(protocol.ID)] = protocol
	return nil
}

func (s *Store) CreateNote(_ context.Context, note entities.Note) error {
	defer s.lockWrite()()
	meetingID := strings.TrimSpace(note.MeetingID)
	s.st.notes[meetingID] = append(s.st.notes[meetingID], note)
	return nil
}

func (s *Store) ListNotes(_ context.Context, meetingID string) ([]entities.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entities.Note(nil), s.st.notes[strings.TrimSpace(meetingID)]...), nil
}

func (s *Store) CreateSummaryItem(_ context.Context, item entities.SummaryItem) error {
	defer s.lockWrite()()
	meetingID := strings.TrimSpace(item.MeetingID)
	s.st.summaryItems[meetingID] = append(s.st.summaryItems[meetingID], item)
	return nil
}

func (s *Store) ListSummaryItems(_ context.Context, meetingID string) ([]entities.SummaryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entities.SummaryItem(nil), s.st.summaryItems[strings.TrimSpace(meetingID)]...), nil
}

func (s *Store) GetItem(_ context.Context, itemID string) (entities.ProtocolItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.st.items[strings.TrimSpace(itemID)]
	if !ok {
		return entities.ProtocolItem{}, domainerrors.ErrItemNotFound
	}
	return item, nil
}

func (s *Store) CreateItem(_ context.Context, item entities.ProtocolItem) (entities.ProtocolItem, error) {
	defer s.lockWrite()()
	itemID := strings.TrimSpace(item.ID)
	if _, exists := s.st.items[itemID]; exists {
		return entities.ProtocolItem{}, domainerrors.ErrConflict
	}
	s.st.seq++
	item.Seq = s.st.seq
	s.st.items[itemID] = item
	return item, nil
}

func (s *Store) SaveItem(_ context.Context, item entities.ProtocolItem) error {
	defer s.lockWrite()()
	itemID := strings.TrimSpace(item.ID)
	existing, ok := s.st.items[itemID]
	if !ok {
		return domainerrors.ErrItemNotFound
	}
	item.Seq = existing.Seq
	s.st.items[itemID] = item
	return nil
}

func (s *Store) DeleteItem(_ context.Context, itemID string) error {
	defer s.lockWrite()()
	itemID = strings.TrimSpace(itemID)
	if _, ok := s.st.items[itemID]; !ok {
		return domainerrors.ErrItemNotFound
	}
	delete(s.st.items, itemID)
	return nil
}

func (s *Store) ListItems(_ context.Context, protocolID string) ([]entities.ProtocolItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	protocolID = strings.TrimSpace(protocolID)
	items := make([]entities.ProtocolItem, 0)
	for _, item := range s.st.items {
		if item.ProtocolID == protocolID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].Seq < items[j].Seq
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) CreateAction(_ context.Context, action entities.ProtocolItemAction) error {
	defer s.lockWrite()()
	actionID := strings.TrimSpace(action.ID)
	if _, exists := s.st.actions[actionID]; exists {
		return domainerrors.ErrConflict
	}
	if action.Type == entities.ActionTypeVote {
		for _, existing := range s.st.actions {
			if existing.Type == entities.ActionTypeVote &&
				existing.CreatorID == action.CreatorID &&
				existing.ProtocolItemID == action.ProtocolItemID &&
				existing.ProtocolPhaseID == action.ProtocolPhaseID {
				return domainerrors.ErrConflict
			}
		}
	}
	s.st.seq++
	s.st.actions[actionID] = action
	s.st.actionSeq[actionID] = s.st.seq
	return nil
}

func (s *Store) GetAction(_ context.Context, actionID string) (entities.ProtocolItemAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	action, ok := s.st.actions[strings.TrimSpace(actionID)]
	if !ok {
		return entities.ProtocolItemAction{}, domainerrors.ErrActionNotFound
	}
	return action, nil
}

func (s *Store) DeleteAction(_ context.Context, actionID string) error {
	defer s.lockWrite()()
	actionID = strings.TrimSpace(actionID)
	if _, ok := s.st.actions[actionID]; !ok {
		return domainerrors.ErrActionNotFound
	}
	delete(s.st.actions, actionID)
	delete(s.st.actionSeq, actionID)
	return nil
}

func (s *Store) DeleteActionsByItem(_ context.Context, itemID string) ([]entities.ProtocolItemAction, error) {
	defer s.lockWrite()()
	itemID = strings.TrimSpace(itemID)
	removed := make([]entities.ProtocolItemAction, 0)
	for id, action := range s.st.actions {
		if action.ProtocolItemID != itemID {
			continue
		}
		removed = append(removed, action)
		delete(s.st.actions, id)
	}
	s.sortActionsLocked(removed)
	for _, action := range removed {
		delete(s.st.actionSeq, action.ID)
	}
	return removed, nil
}

func (s *Store) ListActions(_ context.Context, protocolID string) ([]entities.ProtocolItemAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	protocolID = strings.TrimSpace(protocolID)
	actions := make([]entities.ProtocolItemAction, 0)
	for _, action := range s.st.actions {
		if action.ProtocolID == protocolID {
			actions = append(actions, action)
		}
	}
	s.sortActionsLocked(actions)
	return actions, nil
}

func (s *Store) FindVote(
	_ context.Context,
	creatorID string,
	itemID string,
	phaseID string,
) (entities.ProtocolItemAction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, action := range s.st.actions {
		if action.Type == entities.ActionTypeVote &&
			action.CreatorID == strings.TrimSpace(creatorID) &&
			action.ProtocolItemID == strings.TrimSpace(itemID) &&
			action.ProtocolPhaseID == strings.TrimSpace(phaseID) {
			return action, true, nil
		}
	}
	return entities.ProtocolItemAction{}, false, nil
}

func (s *Store) CountVotes(_ context.Context, protocolID string, phaseID string, creatorID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, action := range s.st.actions {
		if action.Type == entities.ActionTypeVote &&
			action.ProtocolID == strings.TrimSpace(protocolID) &&
			action.ProtocolPhaseID == strings.TrimSpace(phaseID) &&
			action.CreatorID == strings.TrimSpace(creatorID) {
			count++
		}
	}
	return count, nil
}

func (s *Store) AppendOutbox(_ context.Context, channel string, envelope eventsv1.Envelope) error {
	message, err := outboxMessage(channel, envelope)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendOutboxLocked(message)
	return nil
}

func (s *Store) appendOutboxLocked(message ports.OutboxMessage) {
	if _, exists := s.outbox[message.OutboxID]; exists {
		return
	}
	s.outboxSeq++
	s.outbox[message.OutboxID] = outboxRecord{message: message, seq: s.outboxSeq}
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int, createdBefore time.Time) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	records := make([]outboxRecord, 0, len(s.outbox))
	for _, record := range s.outbox {
		if record.published {
			continue
		}
		if !createdBefore.IsZero() && !record.message.CreatedAt.Before(createdBefore) {
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].seq < records[j].seq
	})
	if len(records) > limit {
		records = records[:limit]
	}
	items := make([]ports.OutboxMessage, 0, len(records))
	for _, record := range records {
		items = append(items, record.message)
	}
	return items, nil
}

func (s *Store) OldestPendingOutbox(_ context.Context, channel string) (ports.OutboxMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channel = strings.TrimSpace(channel)
	var oldest *outboxRecord
	for _, record := range s.outbox {
		if record.published || record.message.Channel != channel {
			continue
		}
		if oldest == nil || record.seq < oldest.seq {
			found := record
			oldest = &found
		}
	}
	if oldest == nil {
		return ports.OutboxMessage{}, false, nil
	}
	return oldest.message, true, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return nil
	}
	at := publishedAt.UTC()
	record.published = true
	record.message.PublishedAt = &at
	s.outbox[record.message.OutboxID] = record
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) ValidID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}

func (s *Store) sortActionsLocked(actions []entities.ProtocolItemAction) {
	sort.Slice(actions, func(i, j int) bool {
		return s.st.actionSeq[actions[i].ID] < s.st.actionSeq[actions[j].ID]
	})
}

func outboxMessage(channel string, envelope eventsv1.Envelope) (ports.OutboxMessage, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return ports.OutboxMessage{}, err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return ports.OutboxMessage{
		OutboxID:  outboxID,
		Channel:   strings.TrimSpace(channel),
		EventType: strings.TrimSpace(envelope.EventType),
		Payload:   payload,
		CreatedAt: createdAt,
	}, nil
}
