package commands

import (
	"context"
	"strings"

	application "parley/contexts/meeting-collaboration/protocol-engine/application"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/services"
	"parley/contexts/meeting-collaboration/protocol-engine/ports"
)

type CreateItemCommand struct {
	ProtocolID string
	Text       string
	Tags       []string
	Data       map[string]any
	ParentID   string
}

type CreateGroupCommand struct {
	ProtocolID string
	Text       string
	Tags       []string
	Data       map[string]any
	// MemberIDs are existing items moved into the new group.
	MemberIDs []string
}

type UpdateItemCommand struct {
	ItemID string
	Text   string
	// Tags replaces the item's tags when non-nil.
	Tags []string
}

type SetItemsParentCommand struct {
	ItemIDs []string
	// ParentID is the target group; empty removes the items from their group.
	ParentID string
}

type PrioritizeItemCommand struct {
	ItemID   string
	Override entities.PriorityOverride
}

// ItemUseCase maintains the items and groups of a protocol. Every mutation
// locks the owning protocol and re-evaluates group dissolution before it
// commits, so a group is never observed with a single member.
type ItemUseCase struct {
	Runtime
}

func (uc ItemUseCase) CreateItem(ctx context.Context, actor Actor, cmd CreateItemCommand) (entities.ProtocolItem, error) {
	if err := uc.validateActor(actor); err != nil {
		return entities.ProtocolItem{}, err
	}
	if !uc.validID(cmd.ProtocolID) {
		return entities.ProtocolItem{}, domainerrors.ErrInvalidID
	}
	parentID := strings.TrimSpace(cmd.ParentID)
	if parentID != "" && !uc.validID(parentID) {
		return entities.ProtocolItem{}, domainerrors.ErrInvalidID
	}
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return entities.ProtocolItem{}, domainerrors.ErrInvalidRequest
	}

	var created entities.ProtocolItem
	err := uc.commit(ctx, actor, "item_create", func(ctx context.Context, store ports.Store, batch *eventBatch) error {
		protocol, phase, err := lockActivePhase(ctx, store, actor, cmd.ProtocolID)
		if err != nil {
			return err
		}
		if parentID != "" {
			if _, err := loadParentGroup(ctx, store, protocol.ID, parentID); err != nil {
				return err
			}
		}
		item, err := uc.newItem(ctx, actor, protocol, phase, entities.ItemKindItem, text, cmd.Tags, cmd.Data, batch)
		if err != nil {
			return err
		}
		item.ParentID = parentID
		created, err = store.CreateItem(ctx, item)
		if err != nil {
			return err
		}
		changes := &itemChanges{protocolID: protocol.ID}
		changes.create(created)
		return changes.emit(ctx, store, batch)
	})
	if err != nil {
		return entities.ProtocolItem{}, err
	}
	uc.logItem("protocol item created", "protocol_item_created", created)
	return created, nil
}

// CreateGroup creates a group and moves the given items into it. Groups that
// lose all but one member in the move are dissolved.
func (uc ItemUseCase) CreateGroup(ctx context.Context, actor Actor, cmd CreateGroupCommand) (entities.ProtocolItem, error) {
	if err := uc.validateActor(actor); err != nil {
		return entities.ProtocolItem{}, err
	}
	if !uc.validID(cmd.ProtocolID) {
		return entities.ProtocolItem{}, domainerrors.ErrInvalidID
	}
	members := make(map[string]bool, len(cmd.MemberIDs))
	for _, memberID := range cmd.MemberIDs {
		if !uc.validID(memberID) {
			return entities.ProtocolItem{}, domainerrors.ErrInvalidID
		}
		members[strings.TrimSpace(memberID)] = true
	}
	// A group seeded with a single member would dissolve immediately.
	if len(members) == 1 {
		return entities.ProtocolItem{}, domainerrors.ErrInvalidRequest
	}
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return entities.ProtocolItem{}, domainerrors.ErrInvalidRequest
	}

	var created entities.ProtocolItem
	err := uc.commit(ctx, actor, "group_create", func(ctx context.Context, store ports.Store, batch *eventBatch) error {
		protocol, phase, err := lockActivePhase(ctx, store, actor, cmd.ProtocolID)
		if err != nil {
			return err
		}
		group, err := uc.newItem(ctx, actor, protocol, phase, entities.ItemKindGroup, text, cmd.Tags, cmd.Data, batch)
		if err != nil {
			return err
		}
		created, err = store.CreateItem(ctx, group)
		if err != nil {
			return err
		}
		changes := &itemChanges{protocolID: protocol.ID}
		changes.create(created)
		if err := uc.moveItems(ctx, store, protocol, cmd.MemberIDs, created.ID, batch, changes); err != nil {
			return err
		}
		return changes.emit(ctx, store, batch)
	})
	if err != nil {
		return entities.ProtocolItem{}, err
	}
	uc.logItem("protocol item group created", "protocol_group_created", created)
	return created, nil
}

func (uc ItemUseCase) UpdateItem(ctx context.Context, actor Actor, cmd UpdateItemCommand) (entities.ProtocolItem, error) {
	if err := uc.validateActor(actor); err != nil {
		return entities.ProtocolItem{}, err
	}
	if !uc.validID(cmd.ItemID) {
		return entities.ProtocolItem{}, domainerrors.ErrInvalidID
	}
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return entities.ProtocolItem{}, domainerrors.ErrInvalidRequest
	}

	var updated entities.ProtocolItem
	err := uc.commit(ctx, actor, "item_update", func(ctx context.Context, store ports.Store, batch *eventBatch) error {
		item, protocol, err := lockItem(ctx, store, actor, cmd.ItemID)
		if err != nil {
			return err
		}
		if protocol.IsCompleted {
			return domainerrors.ErrProtocolCompleted
		}
		item.Text = text
		if cmd.Tags != nil {
			item.Tags = normalizeTags(cmd.Tags)
		}
		item.UpdatedAt = batch.now
		if err := store.SaveItem(ctx, item); err != nil {
			return err
		}
		updated = item
		changes := &itemChanges{protocolID: protocol.ID}
		changes.change(item)
		return changes.emit(ctx, store, batch)
	})
	if err != nil {
		return entities.ProtocolItem{}, err
	}
	uc.logItem("protocol item updated", "protocol_item_updated", updated)
	return updated, nil
}

// SetItemParent moves one item into a group, or out of its group when
// parentID is empty.
func (uc ItemUseCase) SetItemParent(ctx context.Context, actor Actor, itemID string, parentID string) error {
	return uc.SetItemsParent(ctx, actor, SetItemsParentCommand{ItemIDs: []string{itemID}, ParentID: parentID})
}

// SetItemsParent moves many items at once. All items must belong to the same
// protocol; the whole move is applied or rejected as one unit.
func (uc ItemUseCase) SetItemsParent(ctx context.Context, actor Actor, cmd SetItemsParentCommand) error {
	if err := uc.validateActor(actor); err != nil {
		return err
	}
	if len(cmd.ItemIDs) == 0 {
		return domainerrors.ErrInvalidRequest
	}
	for _, itemID := range cmd.ItemIDs {
		if !uc.validID(itemID) {
			return domainerrors.ErrInvalidID
		}
	}
	parentID := strings.TrimSpace(cmd.ParentID)
	if parentID != "" && !uc.validID(parentID) {
		return domainerrors.ErrInvalidID
	}

	err := uc.commit(ctx, actor, "item_set_parent", func(ctx context.Context, store ports.Store, batch *eventBatch) error {
		first, protocol, err := lockItem(ctx, store, actor, cmd.ItemIDs[0])
		if err != nil {
			return err
		}
		if protocol.IsCompleted {
			return domainerrors.ErrProtocolCompleted
		}
		if first.IsGroup() {
			return domainerrors.ErrGroupNesting
		}
		changes := &itemChanges{protocolID: protocol.ID}
		if err := uc.moveItems(ctx, store, protocol, cmd.ItemIDs, parentID, batch, changes); err != nil {
			return err
		}
		return changes.emit(ctx, store, batch)
	})
	if err != nil {
		return err
	}

	logger := application.ResolveLogger(uc.Logger)
	logger.Info("protocol items regrouped",
		"event", "protocol_items_regrouped",
		"module", moduleName,
		"layer", "application",
		"meeting_id", strings.TrimSpace(actor.MeetingID),
		"parent_id", parentID,
		"item_count", len(cmd.ItemIDs),
	)
	return nil
}

// DeleteItem removes an item and its votes. Deleting a group id behaves like
// DeleteGroup.
func (uc ItemUseCase) DeleteItem(ctx context.Context, actor Actor, itemID string) error {
	return uc.delete(ctx, actor, "item_delete", itemID)
}

// DeleteGroup removes a group and its votes and leaves its members ungrouped.
func (uc ItemUseCase) DeleteGroup(ctx context.Context, actor Actor, groupID string) error {
	return uc.delete(ctx, actor, "group_delete", groupID)
}

func (uc ItemUseCase) delete(ctx context.Context, actor Actor, operation string, itemID string) error {
	if err := uc.validateActor(actor); err != nil {
		return err
	}
	if !uc.validID(itemID) {
		return domainerrors.ErrInvalidID
	}

	err := uc.commit(ctx, actor, operation, func(ctx context.Context, store ports.Store, batch *eventBatch) error {
		item, protocol, err := lockItem(ctx, store, actor, itemID)
		if err != nil {
			return err
		}
		if protocol.IsCompleted {
			return domainerrors.ErrProtocolCompleted
		}
		changes := &itemChanges{protocolID: protocol.ID}
		if item.IsGroup() {
			if err := removeGroup(ctx, store, protocol.ID, item, batch, changes); err != nil {
				return err
			}
			return changes.emit(ctx, store, batch)
		}

		removed, err := store.DeleteActionsByItem(ctx, item.ID)
		if err != nil {
			return err
		}
		if err := store.DeleteItem(ctx, item.ID); err != nil {
			return err
		}
		changes.removeActions(removed)
		changes.remove(item.ID)
		if item.ParentID != "" {
			if err := dissolveGroups(ctx, store, protocol.ID, []string{item.ParentID}, batch, changes); err != nil {
				return err
			}
		}
		return changes.emit(ctx, store, batch)
	})
	if err != nil {
		return err
	}

	logger := application.ResolveLogger(uc.Logger)
	logger.Info("protocol item deleted",
		"event", "protocol_"+operation+"d",
		"module", moduleName,
		"layer", "application",
		"meeting_id", strings.TrimSpace(actor.MeetingID),
		"item_id", strings.TrimSpace(itemID),
	)
	return nil
}

// PrioritizeItem applies the facilitator's override to an item or group.
func (uc ItemUseCase) PrioritizeItem(ctx context.Context, actor Actor, cmd PrioritizeItemCommand) (entities.ProtocolItem, error) {
	if err := uc.validateActor(actor); err != nil {
		return entities.ProtocolItem{}, err
	}
	if !uc.validID(cmd.ItemID) {
		return entities.ProtocolItem{}, domainerrors.ErrInvalidID
	}
	switch cmd.Override {
	case entities.OverrideNone, entities.OverridePrioritize, entities.OverrideDeprioritize:
	default:
		return entities.ProtocolItem{}, domainerrors.ErrInvalidRequest
	}

	var updated entities.ProtocolItem
	err := uc.commit(ctx, actor, "item_prioritize", func(ctx context.Context, store ports.Store, batch *eventBatch) error {
		item, protocol, err := lockItem(ctx, store, actor, cmd.ItemID)
		if err != nil {
			return err
		}
		if err := requireFacilitator(ctx, store, actor, protocol); err != nil {
			return err
		}
		item.ApplyOverride(cmd.Override)
		item.UpdatedAt = batch.now
		if err := store.SaveItem(ctx, item); err != nil {
			return err
		}
		updated = item
		changes := &itemChanges{protocolID: protocol.ID}
		changes.change(item)
		return changes.emit(ctx, store, batch)
	})
	if err != nil {
		return entities.ProtocolItem{}, err
	}

	logger := application.ResolveLogger(uc.Logger)
	logger.Info("protocol item override applied",
		"event", "protocol_item_override_applied",
		"module", moduleName,
		"layer", "application",
		"item_id", updated.ID,
		"protocol_id", updated.ProtocolID,
		"override", string(cmd.Override),
	)
	return updated, nil
}

func (uc ItemUseCase) newItem(
	ctx context.Context,
	actor Actor,
	protocol entities.Protocol,
	phase entities.ProtocolPhase,
	kind entities.ItemKind,
	text string,
	tags []string,
	data map[string]any,
	batch *eventBatch,
) (entities.ProtocolItem, error) {
	itemID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.ProtocolItem{}, err
	}
	return entities.ProtocolItem{
		ID:              itemID,
		Kind:            kind,
		CreatorID:       strings.TrimSpace(actor.ParticipantID),
		ProtocolID:      protocol.ID,
		ProtocolPhaseID: phase.ID,
		Text:            text,
		Tags:            normalizeTags(tags),
		Data:            data,
		CreatedAt:       batch.now,
		UpdatedAt:       batch.now,
	}, nil
}

// moveItems reparents items of the protocol and dissolves the groups they
// left. The receiving group never dissolves.
func (uc ItemUseCase) moveItems(
	ctx context.Context,
	store ports.Store,
	protocol entities.Protocol,
	itemIDs []string,
	parentID string,
	batch *eventBatch,
	changes *itemChanges,
) error {
	if parentID != "" {
		if _, err := loadParentGroup(ctx, store, protocol.ID, parentID); err != nil {
			return err
		}
	}
	var left []string
	seen := make(map[string]bool, len(itemIDs))
	for _, rawID := range itemIDs {
		itemID := strings.TrimSpace(rawID)
		if seen[itemID] {
			continue
		}
		seen[itemID] = true
		item, err := store.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.ProtocolID != protocol.ID {
			return domainerrors.ErrItemNotFound
		}
		if item.IsGroup() {
			return domainerrors.ErrGroupNesting
		}
		if item.ParentID == parentID {
			continue
		}
		if item.ParentID != "" && item.ParentID != parentID {
			left = append(left, item.ParentID)
		}
		item.ParentID = parentID
		item.UpdatedAt = batch.now
		if err := store.SaveItem(ctx, item); err != nil {
			return err
		}
		changes.change(item)
	}
	return dissolveGroups(ctx, store, protocol.ID, left, batch, changes)
}

// dissolveGroups deletes every candidate group that is left with one member or
// none, clearing the remaining member's parent.
func dissolveGroups(
	ctx context.Context,
	store ports.Store,
	protocolID string,
	candidateIDs []string,
	batch *eventBatch,
	changes *itemChanges,
) error {
	if len(candidateIDs) == 0 {
		return nil
	}
	items, err := store.ListItems(ctx, protocolID)
	if err != nil {
		return err
	}
	for _, groupID := range services.GroupsToDissolve(items, candidateIDs) {
		for _, item := range items {
			if item.ID == groupID {
				if err := removeGroup(ctx, store, protocolID, item, batch, changes); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

// removeGroup orphans the group's members and deletes the group with its votes.
func removeGroup(
	ctx context.Context,
	store ports.Store,
	protocolID string,
	group entities.ProtocolItem,
	batch *eventBatch,
	changes *itemChanges,
) error {
	items, err := store.ListItems(ctx, protocolID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.ParentID != group.ID {
			continue
		}
		item.ParentID = ""
		item.UpdatedAt = batch.now
		if err := store.SaveItem(ctx, item); err != nil {
			return err
		}
		changes.change(item)
	}
	removed, err := store.DeleteActionsByItem(ctx, group.ID)
	if err != nil {
		return err
	}
	if err := store.DeleteItem(ctx, group.ID); err != nil {
		return err
	}
	changes.removeActions(removed)
	changes.remove(group.ID)
	return nil
}

// lockActivePhase locks a protocol that still accepts contributions and
// resolves its current phase.
func lockActivePhase(
	ctx context.Context,
	store ports.Store,
	actor Actor,
	protocolID string,
) (entities.Protocol, entities.ProtocolPhase, error) {
	protocol, err := lockProtocol(ctx, store, actor, protocolID)
	if err != nil {
		return entities.Protocol{}, entities.ProtocolPhase{}, err
	}
	if protocol.IsCompleted {
		return entities.Protocol{}, entities.ProtocolPhase{}, domainerrors.ErrProtocolCompleted
	}
	protocolType, err := store.GetProtocolType(ctx, protocol.TypeID)
	if err != nil {
		return entities.Protocol{}, entities.ProtocolPhase{}, err
	}
	phase, err := services.CurrentPhase(protocol, protocolType)
	if err != nil {
		return entities.Protocol{}, entities.ProtocolPhase{}, err
	}
	return protocol, phase, nil
}

// loadParentGroup resolves a prospective parent. Anything but a group of the
// same protocol is rejected as a validation error.
func loadParentGroup(ctx context.Context, store ports.Store, protocolID string, parentID string) (entities.ProtocolItem, error) {
	parent, err := store.GetItem(ctx, parentID)
	if err != nil {
		if isNotFound(err) {
			return entities.ProtocolItem{}, domainerrors.ErrInvalidRequest
		}
		return entities.ProtocolItem{}, err
	}
	if parent.ProtocolID != protocolID {
		return entities.ProtocolItem{}, domainerrors.ErrInvalidRequest
	}
	if !parent.IsGroup() {
		return entities.ProtocolItem{}, domainerrors.ErrGroupNesting
	}
	return parent, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func (uc ItemUseCase) logItem(message string, event string, item entities.ProtocolItem) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info(message,
		"event", event,
		"module", moduleName,
		"layer", "application",
		"item_id", item.ID,
		"protocol_id", item.ProtocolID,
		"kind", string(item.Kind),
		"parent_id", item.ParentID,
	)
}
