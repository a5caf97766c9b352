package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
)

func TestGroupsToDissolve(t *testing.T) {
	items := []entities.ProtocolItem{
		{ID: "g1", Kind: entities.ItemKindGroup},
		{ID: "g2", Kind: entities.ItemKindGroup},
		{ID: "g3", Kind: entities.ItemKindGroup},
		{ID: "a", Kind: entities.ItemKindItem, ParentID: "g1"},
		{ID: "b", Kind: entities.ItemKindItem, ParentID: "g2"},
		{ID: "c", Kind: entities.ItemKindItem, ParentID: "g2"},
		{ID: "d", Kind: entities.ItemKindItem, ParentID: "g3"},
		{ID: "e", Kind: entities.ItemKindItem},
	}

	got := GroupsToDissolve(items, []string{"g3", "g1", "g2", "g1", "", "a", "missing"})
	assert.Equal(t, []string{"g3", "g1"}, got)
	assert.Empty(t, GroupsToDissolve(items, nil))
}

func TestGroupsToDissolveIncludesEmptiedGroups(t *testing.T) {
	items := []entities.ProtocolItem{
		{ID: "g1", Kind: entities.ItemKindGroup},
		{ID: "g2", Kind: entities.ItemKindGroup},
		{ID: "a", Kind: entities.ItemKindItem, ParentID: "g2"},
		{ID: "b", Kind: entities.ItemKindItem, ParentID: "g2"},
	}

	assert.Equal(t, []string{"g1"}, GroupsToDissolve(items, []string{"g1", "g2"}))
	// A group that never lost a member is not a candidate.
	assert.Empty(t, GroupsToDissolve(items, []string{"g2"}))
}

func TestItemCount(t *testing.T) {
	items := []entities.ProtocolItem{
		{ID: "g1", Kind: entities.ItemKindGroup},
		{ID: "g2", Kind: entities.ItemKindGroup},
		{ID: "a", Kind: entities.ItemKindItem, ParentID: "g1"},
		{ID: "b", Kind: entities.ItemKindItem, ParentID: "g1"},
		{ID: "c", Kind: entities.ItemKindItem, ParentID: "g2"},
		{ID: "d", Kind: entities.ItemKindItem},
	}
	assert.Equal(t, 4, ItemCount(items))
	assert.Equal(t, 0, ItemCount(nil))
	assert.Equal(t, 0, ItemCount(items[:2]))
}
