package postgresadapter

import (
	"encoding/json"
	"strings"
	"time"

	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
)

type protocolTypeModel struct {
	ID       string `gorm:"column:id;primaryKey"`
	Name     string `gorm:"column:name"`
	Strategy string `gorm:"column:strategy"`
}

func (protocolTypeModel) TableName() string {
	return "protocol_types"
}

type protocolPhaseModel struct {
	ID             string `gorm:"column:id;primaryKey"`
	ProtocolTypeID string `gorm:"column:protocol_type_id;index"`
	Name           string `gorm:"column:name"`
	Description    string `gorm:"column:description"`
	PhaseIndex     int    `gorm:"column:phase_index"`
	Kind           string `gorm:"column:kind"`
	IsCollective   bool   `gorm:"column:is_collective"`
	Data           []byte `gorm:"column:data;type:jsonb"`
}

func (protocolPhaseModel) TableName() string {
	return "protocol_phases"
}

func protocolTypeModelFromEntity(protocolType entities.ProtocolType) (protocolTypeModel, []protocolPhaseModel) {
	row := protocolTypeModel{
		ID:       strings.TrimSpace(protocolType.ID),
		Name:     strings.TrimSpace(protocolType.Name),
		Strategy: string(protocolType.Strategy),
	}
	phases := make([]protocolPhaseModel, 0, len(protocolType.Phases))
	for _, phase := range protocolType.Phases {
		phases = append(phases, protocolPhaseModel{
			ID:             strings.TrimSpace(phase.ID),
			ProtocolTypeID: row.ID,
			Name:           phase.Name,
			Description:    phase.Description,
			PhaseIndex:     phase.Index,
			Kind:           string(phase.Kind),
			IsCollective:   phase.IsCollective,
			Data:           encodeData(phase.Data),
		})
	}
	return row, phases
}

func (m protocolTypeModel) toEntity(phases []protocolPhaseModel) entities.ProtocolType {
	out := entities.ProtocolType{
		ID:       m.ID,
		Name:     m.Name,
		Strategy: entities.ResultStrategy(m.Strategy),
		Phases:   make([]entities.ProtocolPhase, 0, len(phases)),
	}
	for _, phase := range phases {
		out.Phases = append(out.Phases, entities.ProtocolPhase{
			ID:             phase.ID,
			ProtocolTypeID: phase.ProtocolTypeID,
			Name:           phase.Name,
			Description:    phase.Description,
			Index:          phase.PhaseIndex,
			Kind:           entities.ParsePhaseKind(phase.Kind),
			IsCollective:   phase.IsCollective,
			Data:           decodeData(phase.Data),
		})
	}
	return out
}

type meetingModel struct {
	ID                string    `gorm:"column:id;primaryKey"`
	FacilitatorID     string    `gorm:"column:facilitator_id"`
	CurrentProtocolID *string   `gorm:"column:current_protocol_id"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (meetingModel) TableName() string {
	return "protocol_meetings"
}

func (m meetingModel) toEntity() entities.Meeting {
	return entities.Meeting{
		ID:                m.ID,
		FacilitatorID:     m.FacilitatorID,
		CurrentProtocolID: derefString(m.CurrentProtocolID),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}

type protocolModel struct {
	ID                  string    `gorm:"column:id;primaryKey"`
	MeetingID           string    `gorm:"column:meeting_id;index"`
	TypeID              string    `gorm:"column:type_id"`
	CreatorID           string    `gorm:"column:creator_id"`
	CurrentPhaseIndex   int       `gorm:"column:current_phase_index"`
	Title               string    `gorm:"column:title"`
	IsCompleted         bool      `gorm:"column:is_completed"`
	ReadyForNextPhase   bool      `gorm:"column:ready_for_next_phase"`
	LastPhaseChangeDate time.Time `gorm:"column:last_phase_change_date"`
	Data                []byte    `gorm:"column:data;type:jsonb"`
	CreatedAt           time.Time `gorm:"column:created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at"`
}

func (protocolModel) TableName() string {
	return "protocols"
}

func protocolModelFromEntity(protocol entities.Protocol) protocolModel {
	row := protocolModel{
		ID:                  strings.TrimSpace(protocol.ID),
		MeetingID:           strings.TrimSpace(protocol.MeetingID),
		TypeID:              strings.TrimSpace(protocol.TypeID),
		CreatorID:           strings.TrimSpace(protocol.CreatorID),
		CurrentPhaseIndex:   protocol.CurrentPhaseIndex,
		Title:               protocol.Title,
		IsCompleted:         protocol.IsCompleted,
		ReadyForNextPhase:   protocol.ReadyForNextPhase,
		LastPhaseChangeDate: protocol.LastPhaseChangeDate.UTC(),
		Data:                encodeData(protocol.Data),
		CreatedAt:           protocol.CreatedAt.UTC(),
		UpdatedAt:           protocol.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m protocolModel) toEntity() entities.Protocol {
	return entities.Protocol{
		ID:                  m.ID,
		MeetingID:           m.MeetingID,
		TypeID:              m.TypeID,
		CreatorID:           m.CreatorID,
		CurrentPhaseIndex:   m.CurrentPhaseIndex,
		Title:               m.Title,
		IsCompleted:         m.IsCompleted,
		ReadyForNextPhase:   m.ReadyForNextPhase,
		LastPhaseChangeDate: m.LastPhaseChangeDate.UTC(),
		Data:                decodeData(m.Data),
		CreatedAt:           m.CreatedAt.UTC(),
		UpdatedAt:           m.UpdatedAt.UTC(),
	}
}

type itemModel struct {
	ID                        string    `gorm:"column:id;primaryKey"`
	Seq                       int64     `gorm:"column:seq;autoIncrement"`
	Kind                      string    `gorm:"column:kind"`
	CreatorID                 string    `gorm:"column:creator_id"`
	ProtocolID                string    `gorm:"column:protocol_id;index:idx_protocol_items_order,priority:1"`
	ProtocolPhaseID           string    `gorm:"column:protocol_phase_id"`
	Text                      string    `gorm:"column:text"`
	Tags                      []byte    `gorm:"column:tags;type:jsonb"`
	Data                      []byte    `gorm:"column:data;type:jsonb"`
	ParentID                  *string   `gorm:"column:parent_id;index"`
	IsForcefullyPrioritized   bool      `gorm:"column:is_forcefully_prioritized"`
	IsForcefullyDeprioritized bool      `gorm:"column:is_forcefully_deprioritized"`
	CreatedAt                 time.Time `gorm:"column:created_at;index:idx_protocol_items_order,priority:2"`
	UpdatedAt                 time.Time `gorm:"column:updated_at"`
}

func (itemModel) TableName() string {
	return "protocol_items"
}

func itemModelFromEntity(item entities.ProtocolItem) (itemModel, error) {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return itemModel{}, err
	}
	row := itemModel{
		ID:                        strings.TrimSpace(item.ID),
		Seq:                       item.Seq,
		Kind:                      string(item.Kind),
		CreatorID:                 strings.TrimSpace(item.CreatorID),
		ProtocolID:                strings.TrimSpace(item.ProtocolID),
		ProtocolPhaseID:           strings.TrimSpace(item.ProtocolPhaseID),
		Text:                      item.Text,
		Tags:                      encodedTags,
		Data:                      encodeData(item.Data),
		ParentID:                  optionalString(item.ParentID),
		IsForcefullyPrioritized:   item.IsForcefullyPrioritized,
		IsForcefullyDeprioritized: item.IsForcefullyDeprioritized,
		CreatedAt:                 item.CreatedAt.UTC(),
		UpdatedAt:                 item.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row, nil
}

// toEntity rejects rows carrying both override flags.
func (m itemModel) toEntity() (entities.ProtocolItem, error) {
	override, err := entities.OverrideFromFlags(m.IsForcefullyPrioritized, m.IsForcefullyDeprioritized)
	if err != nil {
		return entities.ProtocolItem{}, err
	}
	var tags []string
	if len(m.Tags) > 0 {
		if err := json.Unmarshal(m.Tags, &tags); err != nil {
			return entities.ProtocolItem{}, err
		}
	}
	item := entities.ProtocolItem{
		ID:              m.ID,
		Kind:            entities.ItemKind(m.Kind),
		CreatorID:       m.CreatorID,
		ProtocolID:      m.ProtocolID,
		ProtocolPhaseID: m.ProtocolPhaseID,
		Text:            m.Text,
		Tags:            tags,
		Data:            decodeData(m.Data),
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
		Seq:             m.Seq,
		ParentID:        derefString(m.ParentID),
	}
	item.ApplyOverride(override)
	return item, nil
}

type actionModel struct {
	ID              string    `gorm:"column:id;primaryKey"`
	Seq             int64     `gorm:"column:seq;autoIncrement"`
	Type            string    `gorm:"column:type;uniqueIndex:idx_protocol_item_actions_vote,priority:4"`
	CreatorID       string    `gorm:"column:creator_id;uniqueIndex:idx_protocol_item_actions_vote,priority:1"`
	ProtocolID      string    `gorm:"column:protocol_id;index"`
	ProtocolItemID  string    `gorm:"column:protocol_item_id;uniqueIndex:idx_protocol_item_actions_vote,priority:2"`
	ProtocolPhaseID string    `gorm:"column:protocol_phase_id;uniqueIndex:idx_protocol_item_actions_vote,priority:3"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (actionModel) TableName() string {
	return "protocol_item_actions"
}

func (m actionModel) toEntity() entities.ProtocolItemAction {
	return entities.ProtocolItemAction{
		ID:              m.ID,
		Type:            entities.ActionType(m.Type),
		CreatorID:       m.CreatorID,
		ProtocolID:      m.ProtocolID,
		ProtocolItemID:  m.ProtocolItemID,
		ProtocolPhaseID: m.ProtocolPhaseID,
		CreatedAt:       m.CreatedAt.UTC(),
	}
}

type noteModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Seq       int64     `gorm:"column:seq;autoIncrement"`
	MeetingID string    `gorm:"column:meeting_id;index"`
	Text      string    `gorm:"column:text"`
	IsSystem  bool      `gorm:"column:is_system"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (noteModel) TableName() string {
	return "meeting_notes"
}

type summaryItemModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	Seq        int64     `gorm:"column:seq;autoIncrement"`
	MeetingID  string    `gorm:"column:meeting_id;index"`
	Kind       string    `gorm:"column:kind"`
	Text       string    `gorm:"column:text"`
	ProtocolID *string   `gorm:"column:protocol_id"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (summaryItemModel) TableName() string {
	return "meeting_summary_items"
}

type outboxModel struct {
	OutboxID    string     `gorm:"column:outbox_id;primaryKey"`
	Seq         int64      `gorm:"column:seq;autoIncrement"`
	Channel     string     `gorm:"column:channel;index"`
	EventType   string     `gorm:"column:event_type"`
	Payload     []byte     `gorm:"column:payload"`
	Status      string     `gorm:"column:status;index"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	PublishedAt *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "protocol_outbox"
}

func encodeData(data map[string]any) []byte {
	if len(data) == 0 {
		return []byte("{}")
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return []byte("{}")
	}
	return encoded
}

func decodeData(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil || len(data) == 0 {
		return nil
	}
	return data
}
