package services

import "parley/contexts/meeting-collaboration/protocol-engine/domain/entities"

// GroupsToDissolve returns the candidate groups that are left with at most one
// member in the given item set, in candidate order. Candidates are groups that
// just lost a member, so an emptied group dissolves as well.
func GroupsToDissolve(items []entities.ProtocolItem, candidateGroupIDs []string) []string {
	members := make(map[string]int)
	groups := make(map[string]bool)
	for _, item := range items {
		if item.IsGroup() {
			groups[item.ID] = true
			continue
		}
		if item.ParentID != "" {
			members[item.ParentID]++
		}
	}

	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, groupID := range candidateGroupIDs {
		if groupID == "" || seen[groupID] || !groups[groupID] {
			continue
		}
		seen[groupID] = true
		if members[groupID] <= 1 {
			out = append(out, groupID)
		}
	}
	return out
}

// ItemCount counts the Item-kind entries of a protocol. Groups are not counted
// and grouped items still count once each.
func ItemCount(items []entities.ProtocolItem) int {
	count := 0
	for _, item := range items {
		if !item.IsGroup() {
			count++
		}
	}
	return count
}
