package services

import (
	"sort"

	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
)

type Bucket string

const (
	BucketNone      Bucket = ""
	BucketAutoIn    Bucket = "auto_in"
	BucketForcedIn  Bucket = "forced_in"
	BucketAutoOut   Bucket = "auto_out"
	BucketForcedOut Bucket = "forced_out"
)

// Candidate is an item together with the number of votes cast for it.
type Candidate struct {
	Item  entities.ProtocolItem
	Votes int
}

type Assignment struct {
	Item            entities.ProtocolItem
	Votes           int
	IsPrioritized   bool
	IsReprioritized bool
	IsDeprioritized bool
	Bucket          Bucket
}

// CountVotesByItem counts vote actions per item id. Other action types are
// ignored.
func CountVotesByItem(actions []entities.ProtocolItemAction) map[string]int {
	votes := make(map[string]int)
	for _, action := range actions {
		if action.Type == entities.ActionTypeVote {
			votes[action.ProtocolItemID]++
		}
	}
	return votes
}

// Candidates pairs every item with its vote count, in item order.
func Candidates(items []entities.ProtocolItem, actions []entities.ProtocolItemAction) []Candidate {
	votes := CountVotesByItem(actions)
	out := make([]Candidate, 0, len(items))
	for _, item := range items {
		out = append(out, Candidate{Item: item, Votes: votes[item.ID]})
	}
	return out
}

// PrioritizationThreshold is ceil(totalVotes * 2/3).
func PrioritizationThreshold(totalVotes int) int {
	if totalVotes <= 0 {
		return 0
	}
	return (2*totalVotes + 2) / 3
}

// VoteBudget is the number of votes one participant may cast in a capped
// voting phase with the given number of candidates: ceil(candidates/3).
func VoteBudget(candidates int) int {
	if candidates <= 0 {
		return 0
	}
	return (candidates + 2) / 3
}

// Prioritize decides which candidates make the cut. Candidates are ranked by
// votes (stable), funded from a budget of two thirds of all votes, and a tie
// at the funding boundary is included as a block. Facilitator overrides are
// applied last. The result is ordered auto-in, forced-in, auto-out, forced-out.
func Prioritize(candidates []Candidate) []Assignment {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Votes > sorted[j].Votes
	})

	totalVotes := 0
	for _, candidate := range sorted {
		totalVotes += candidate.Votes
	}
	remaining := PrioritizationThreshold(totalVotes)

	var autoIn, forcedIn, autoOut, forcedOut []Assignment
	previousIncluded := false
	previousVotes := 0
	for i, candidate := range sorted {
		hadRemaining := remaining > 0
		remaining -= candidate.Votes
		included := remaining > 0 || hadRemaining ||
			(i > 0 && previousIncluded && previousVotes == candidate.Votes)
		previousIncluded = included
		previousVotes = candidate.Votes

		assignment := Assignment{Item: candidate.Item, Votes: candidate.Votes}
		switch {
		case included && candidate.Item.IsForcefullyDeprioritized:
			assignment.IsReprioritized = true
			assignment.IsDeprioritized = true
			assignment.Bucket = BucketForcedOut
			forcedOut = append(forcedOut, assignment)
		case !included && candidate.Item.IsForcefullyPrioritized:
			assignment.IsPrioritized = true
			assignment.IsReprioritized = true
			assignment.Bucket = BucketForcedIn
			forcedIn = append(forcedIn, assignment)
		case included:
			assignment.IsPrioritized = true
			assignment.Bucket = BucketAutoIn
			autoIn = append(autoIn, assignment)
		default:
			assignment.Bucket = BucketAutoOut
			autoOut = append(autoOut, assignment)
		}
	}

	out := make([]Assignment, 0, len(sorted))
	out = append(out, autoIn...)
	out = append(out, forcedIn...)
	out = append(out, autoOut...)
	out = append(out, forcedOut...)
	return out
}
