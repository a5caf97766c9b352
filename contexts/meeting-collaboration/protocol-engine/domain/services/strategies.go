package services

import (
	"strings"

	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
)

// ParseStrategy resolves a protocol type's strategy name. Unknown names fall
// back to the default strategy and report known=false so callers can log it.
func ParseStrategy(raw string) (entities.ResultStrategy, bool) {
	strategy := entities.ResultStrategy(strings.ToLower(strings.TrimSpace(raw)))
	switch strategy {
	case entities.StrategyDefault, entities.StrategyBrainstorm, entities.StrategyPrioritize:
		return strategy, true
	case "":
		return entities.StrategyDefault, true
	default:
		return entities.StrategyDefault, false
	}
}

// ApplyStrategy filters and orders candidates (given in display order) for the
// review results of a protocol.
func ApplyStrategy(strategy entities.ResultStrategy, candidates []Candidate) []Assignment {
	switch strategy {
	case entities.StrategyBrainstorm:
		return brainstormResults(candidates)
	case entities.StrategyPrioritize:
		return prioritizeResults(candidates)
	case entities.StrategyDefault:
		return passThrough(candidates)
	default:
		return passThrough(candidates)
	}
}

func passThrough(candidates []Candidate) []Assignment {
	out := make([]Assignment, 0, len(candidates))
	for _, candidate := range candidates {
		out = append(out, Assignment{Item: candidate.Item, Votes: candidate.Votes})
	}
	return out
}

// brainstormResults keeps entries with at least one vote, plus grouped items
// whose group received at least one vote.
func brainstormResults(candidates []Candidate) []Assignment {
	groupVotes := make(map[string]int)
	for _, candidate := range candidates {
		if candidate.Item.IsGroup() {
			groupVotes[candidate.Item.ID] = candidate.Votes
		}
	}
	out := make([]Assignment, 0, len(candidates))
	for _, candidate := range candidates {
		keep := candidate.Votes >= 1 ||
			(candidate.Item.ParentID != "" && groupVotes[candidate.Item.ParentID] >= 1)
		if keep {
			out = append(out, Assignment{Item: candidate.Item, Votes: candidate.Votes})
		}
	}
	return out
}

// prioritizeResults ranks top-level entries (groups and ungrouped items) and
// keeps the prioritized ones. Members of a kept group follow their group.
func prioritizeResults(candidates []Candidate) []Assignment {
	topLevel := make([]Candidate, 0, len(candidates))
	children := make(map[string][]Candidate)
	for _, candidate := range candidates {
		if candidate.Item.ParentID != "" {
			children[candidate.Item.ParentID] = append(children[candidate.Item.ParentID], candidate)
			continue
		}
		topLevel = append(topLevel, candidate)
	}

	out := make([]Assignment, 0, len(candidates))
	for _, assignment := range Prioritize(topLevel) {
		if !assignment.IsPrioritized {
			continue
		}
		out = append(out, assignment)
		for _, child := range children[assignment.Item.ID] {
			inherited := assignment
			inherited.Item = child.Item
			inherited.Votes = child.Votes
			out = append(out, inherited)
		}
	}
	return out
}
