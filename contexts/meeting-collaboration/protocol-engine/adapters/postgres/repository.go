package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	eventsv1 "parley/contracts/gen/events/v1"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
	"parley/contexts/meeting-collaboration/protocol-engine/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates or updates the protocol engine tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&protocolTypeModel{},
		&protocolPhaseModel{},
		&meetingModel{},
		&protocolModel{},
		&itemModel{},
		&actionModel{},
		&noteModel{},
		&summaryItemModel{},
		&outboxModel{},
	)
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &Repository{db: tx, logger: r.logger})
	})
}

func (r *Repository) GetProtocolType(ctx context.Context, typeID string) (entities.ProtocolType, error) {
	var row protocolTypeModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(typeID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ProtocolType{}, domainerrors.ErrProtocolTypeNotFound
		}
		return entities.ProtocolType{}, r.logError("protocol_repo_get_type_failed", err, "protocol_type_id", strings.TrimSpace(typeID))
	}
	var phases []protocolPhaseModel
	if err := r.db.WithContext(ctx).
		Where("protocol_type_id = ?", row.ID).
		Order("phase_index ASC").
		Find(&phases).Error; err != nil {
		return entities.ProtocolType{}, r.logError("protocol_repo_list_phases_failed", err, "protocol_type_id", row.ID)
	}
	return row.toEntity(phases), nil
}

func (r *Repository) SaveProtocolType(ctx context.Context, protocolType entities.ProtocolType) error {
	row, phases := protocolTypeModelFromEntity(protocolType)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "strategy"}),
		}).Create(&row).Error; err != nil {
			return err
		}
		if len(phases) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "phase_index", "kind", "is_collective", "data",
			}),
		}).Create(&phases).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("protocol_repo_save_type_failed", err, "protocol_type_id", row.ID)
	}
	return nil
}

func (r *Repository) GetMeeting(ctx context.Context, meetingID string) (entities.Meeting, error) {
	var row meetingModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(meetingID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Meeting{}, domainerrors.ErrMeetingNotFound
		}
		return entities.Meeting{}, r.logError("protocol_repo_get_meeting_failed", err, "meeting_id", strings.TrimSpace(meetingID))
	}
	return row.toEntity(), nil
}

func (r *Repository) SaveMeeting(ctx context.Context, meeting entities.Meeting) error {
	row := meetingModel{
		ID:                strings.TrimSpace(meeting.ID),
		FacilitatorID:     strings.TrimSpace(meeting.FacilitatorID),
		CurrentProtocolID: optionalString(meeting.CurrentProtocolID),
		UpdatedAt:         meeting.UpdatedAt.UTC(),
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"facilitator_id", "current_protocol_id", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return r.logError("protocol_repo_save_meeting_failed", err, "meeting_id", row.ID)
	}
	return nil
}

func (r *Repository) GetProtocol(ctx context.Context, protocolID string) (entities.Protocol, error) {
	return r.getProtocol(ctx, r.db.WithContext(ctx), protocolID)
}

func (r *Repository) LockProtocol(ctx context.Context, protocolID string) (entities.Protocol, error) {
	return r.getProtocol(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), protocolID)
}

func (r *Repository) getProtocol(_ context.Context, query *gorm.DB, protocolID string) (entities.Protocol, error) {
	var row protocolModel
	err := query.Where("id = ?", strings.TrimSpace(protocolID)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Protocol{}, domainerrors.ErrProtocolNotFound
		}
		return entities.Protocol{}, r.logError("protocol_repo_get_protocol_failed", err, "protocol_id", strings.TrimSpace(protocolID))
	}
	return row.toEntity(), nil
}

func (r *Repository) SaveProtocol(ctx context.Context, protocol entities.Protocol) error {
	row := protocolModelFromEntity(protocol)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_phase_index",
			"title",
			"is_completed",
			"ready_for_next_phase",
			"last_phase_change_date",
			"data",
			"updated_at",
		}),
	}).Create(&row).Error; err != nil {
		return r.logError("protocol_repo_save_protocol_failed", err, "protocol_id", row.ID)
	}
	return nil
}

func (r *Repository) CreateNote(ctx context.Context, note entities.Note) error {
	row := noteModel{
		ID:        strings.TrimSpace(note.ID),
		MeetingID: strings.TrimSpace(note.MeetingID),
		Text:      note.Text,
		IsSystem:  note.IsSystem,
		CreatedAt: note.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("protocol_repo_create_note_failed", err, "meeting_id", row.MeetingID)
	}
	return nil
}

func (r *Repository) ListNotes(ctx context.Context, meetingID string) ([]entities.Note, error) {
	var rows []noteModel
	if err := r.db.WithContext(ctx).
		Where("meeting_id = ?", strings.TrimSpace(meetingID)).
		Order("created_at ASC, seq ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("protocol_repo_list_notes_failed", err, "meeting_id", strings.TrimSpace(meetingID))
	}
	out := make([]entities.Note, 0, len(rows))
	for _, row := range rows {
		out = append(out, entities.Note{
			ID:        row.ID,
			MeetingID: row.MeetingID,
			Text:      row.Text,
			IsSystem:  row.IsSystem,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (r *Repository) CreateSummaryItem(ctx context.Context, item entities.SummaryItem) error {
	row := summaryItemModel{
		ID:         strings.TrimSpace(item.ID),
		MeetingID:  strings.TrimSpace(item.MeetingID),
		Kind:       string(item.Kind),
		Text:       item.Text,
		ProtocolID: optionalString(item.ProtocolID),
		CreatedAt:  item.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("protocol_repo_create_summary_item_failed", err, "meeting_id", row.MeetingID)
	}
	return nil
}

func (r *Repository) ListSummaryItems(ctx context.Context, meetingID string) ([]entities.SummaryItem, error) {
	var rows []summaryItemModel
	if err := r.db.WithContext(ctx).
		Where("meeting_id = ?", strings.TrimSpace(meetingID)).
		Order("created_at ASC, seq ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("protocol_repo_list_summary_items_failed", err, "meeting_id", strings.TrimSpace(meetingID))
	}
	out := make([]entities.SummaryItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, entities.SummaryItem{
			ID:         row.ID,
			MeetingID:  row.MeetingID,
			Kind:       entities.SummaryItemKind(row.Kind),
			Text:       row.Text,
			ProtocolID: derefString(row.ProtocolID),
			CreatedAt:  row.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (r *Repository) GetItem(ctx context.Context, itemID string) (entities.ProtocolItem, error) {
	var row itemModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(itemID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ProtocolItem{}, domainerrors.ErrItemNotFound
		}
		return entities.ProtocolItem{}, r.logError("protocol_repo_get_item_failed", err, "item_id", strings.TrimSpace(itemID))
	}
	return row.toEntity()
}

func (r *Repository) CreateItem(ctx context.Context, item entities.ProtocolItem) (entities.ProtocolItem, error) {
	row, err := itemModelFromEntity(item)
	if err != nil {
		return entities.ProtocolItem{}, err
	}
	row.Seq = 0
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return entities.ProtocolItem{}, domainerrors.ErrConflict
		}
		return entities.ProtocolItem{}, r.logError("protocol_repo_create_item_failed", err,
			"item_id", row.ID,
			"protocol_id", row.ProtocolID,
		)
	}
	return row.toEntity()
}

func (r *Repository) SaveItem(ctx context.Context, item entities.ProtocolItem) error {
	row, err := itemModelFromEntity(item)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&itemModel{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"text":                        row.Text,
			"tags":                        row.Tags,
			"data":                        row.Data,
			"parent_id":                   row.ParentID,
			"is_forcefully_prioritized":   row.IsForcefullyPrioritized,
			"is_forcefully_deprioritized": row.IsForcefullyDeprioritized,
			"updated_at":                  row.UpdatedAt,
		})
	if result.Error != nil {
		return r.logError("protocol_repo_save_item_failed", result.Error, "item_id", row.ID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrItemNotFound
	}
	return nil
}

func (r *Repository) DeleteItem(ctx context.Context, itemID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(itemID)).
		Delete(&itemModel{})
	if result.Error != nil {
		return r.logError("protocol_repo_delete_item_failed", result.Error, "item_id", strings.TrimSpace(itemID))
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrItemNotFound
	}
	return nil
}

func (r *Repository) ListItems(ctx context.Context, protocolID string) ([]entities.ProtocolItem, error) {
	var rows []itemModel
	if err := r.db.WithContext(ctx).
		Where("protocol_id = ?", strings.TrimSpace(protocolID)).
		Order("created_at ASC, seq ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("protocol_repo_list_items_failed", err, "protocol_id", strings.TrimSpace(protocolID))
	}
	out := make([]entities.ProtocolItem, 0, len(rows))
	for _, row := range rows {
		item, err := row.toEntity()
		if err != nil {
			return nil, r.logError("protocol_repo_decode_item_failed", err, "item_id", row.ID)
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *Repository) CreateAction(ctx context.Context, action entities.ProtocolItemAction) error {
	row := actionModel{
		ID:              strings.TrimSpace(action.ID),
		Type:            string(action.Type),
		CreatorID:       strings.TrimSpace(action.CreatorID),
		ProtocolID:      strings.TrimSpace(action.ProtocolID),
		ProtocolItemID:  strings.TrimSpace(action.ProtocolItemID),
		ProtocolPhaseID: strings.TrimSpace(action.ProtocolPhaseID),
		CreatedAt:       action.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("protocol_repo_create_action_failed", err,
			"action_id", row.ID,
			"item_id", row.ProtocolItemID,
		)
	}
	return nil
}

func (r *Repository) GetAction(ctx context.Context, actionID string) (entities.ProtocolItemAction, error) {
	var row actionModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(actionID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ProtocolItemAction{}, domainerrors.ErrActionNotFound
		}
		return entities.ProtocolItemAction{}, r.logError("protocol_repo_get_action_failed", err, "action_id", strings.TrimSpace(actionID))
	}
	return row.toEntity(), nil
}

func (r *Repository) DeleteAction(ctx context.Context, actionID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(actionID)).
		Delete(&actionModel{})
	if result.Error != nil {
		return r.logError("protocol_repo_delete_action_failed", result.Error, "action_id", strings.TrimSpace(actionID))
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrActionNotFound
	}
	return nil
}

func (r *Repository) DeleteActionsByItem(ctx context.Context, itemID string) ([]entities.ProtocolItemAction, error) {
	itemID = strings.TrimSpace(itemID)
	var rows []actionModel
	if err := r.db.WithContext(ctx).
		Where("protocol_item_id = ?", itemID).
		Order("created_at ASC, seq ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("protocol_repo_list_item_actions_failed", err, "item_id", itemID)
	}
	if len(rows) == 0 {
		return []entities.ProtocolItemAction{}, nil
	}
	if err := r.db.WithContext(ctx).
		Where("protocol_item_id = ?", itemID).
		Delete(&actionModel{}).Error; err != nil {
		return nil, r.logError("protocol_repo_delete_item_actions_failed", err, "item_id", itemID)
	}
	out := make([]entities.ProtocolItemAction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

func (r *Repository) ListActions(ctx context.Context, protocolID string) ([]entities.ProtocolItemAction, error) {
	var rows []actionModel
	if err := r.db.WithContext(ctx).
		Where("protocol_id = ?", strings.TrimSpace(protocolID)).
		Order("created_at ASC, seq ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("protocol_repo_list_actions_failed", err, "protocol_id", strings.TrimSpace(protocolID))
	}
	out := make([]entities.ProtocolItemAction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

func (r *Repository) FindVote(
	ctx context.Context,
	creatorID string,
	itemID string,
	phaseID string,
) (entities.ProtocolItemAction, bool, error) {
	var row actionModel
	err := r.db.WithContext(ctx).
		Where("type = ?", string(entities.ActionTypeVote)).
		Where("creator_id = ?", strings.TrimSpace(creatorID)).
		Where("protocol_item_id = ?", strings.TrimSpace(itemID)).
		Where("protocol_phase_id = ?", strings.TrimSpace(phaseID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ProtocolItemAction{}, false, nil
		}
		return entities.ProtocolItemAction{}, false, r.logError("protocol_repo_find_vote_failed", err,
			"creator_id", strings.TrimSpace(creatorID),
			"item_id", strings.TrimSpace(itemID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) CountVotes(ctx context.Context, protocolID string, phaseID string, creatorID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&actionModel{}).
		Where("type = ?", string(entities.ActionTypeVote)).
		Where("protocol_id = ?", strings.TrimSpace(protocolID)).
		Where("protocol_phase_id = ?", strings.TrimSpace(phaseID)).
		Where("creator_id = ?", strings.TrimSpace(creatorID)).
		Count(&count).Error; err != nil {
		return 0, r.logError("protocol_repo_count_votes_failed", err,
			"protocol_id", strings.TrimSpace(protocolID),
			"creator_id", strings.TrimSpace(creatorID),
		)
	}
	return int(count), nil
}

func (r *Repository) AppendOutbox(ctx context.Context, channel string, envelope eventsv1.Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("protocol_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:  strings.TrimSpace(envelope.EventID),
		Channel:   strings.TrimSpace(channel),
		EventType: strings.TrimSpace(envelope.EventType),
		Payload:   payload,
		Status:    outboxStatusPending,
		CreatedAt: envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return r.logError("protocol_repo_append_outbox_insert_failed", err, "outbox_id", row.OutboxID)
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int, createdBefore time.Time) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Where("status = ?", outboxStatusPending)
	if !createdBefore.IsZero() {
		query = query.Where("created_at < ?", createdBefore.UTC())
	}
	var rows []outboxModel
	if err := query.
		Order("created_at ASC, seq ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("protocol_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:  row.OutboxID,
			Channel:   row.Channel,
			EventType: row.EventType,
			Payload:   append([]byte(nil), row.Payload...),
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) OldestPendingOutbox(ctx context.Context, channel string) (ports.OutboxMessage, bool, error) {
	var row outboxModel
	err := r.db.WithContext(ctx).
		Where("channel = ? AND status = ?", strings.TrimSpace(channel), outboxStatusPending).
		Order("created_at ASC, seq ASC").
		Limit(1).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ports.OutboxMessage{}, false, nil
	}
	if err != nil {
		return ports.OutboxMessage{}, false, r.logError("protocol_repo_oldest_pending_outbox_failed", err,
			"meeting_id", strings.TrimSpace(channel),
		)
	}
	return ports.OutboxMessage{
		OutboxID:  row.OutboxID,
		Channel:   row.Channel,
		EventType: row.EventType,
		Payload:   append([]byte(nil), row.Payload...),
		CreatedAt: row.CreatedAt.UTC(),
	}, true, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("protocol_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "meeting-collaboration/protocol-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("protocol repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
