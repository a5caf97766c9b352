package commands_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventsv1 "parley/contracts/gen/events/v1"
	"parley/contexts/meeting-collaboration/protocol-engine/adapters/memory"
	"parley/contexts/meeting-collaboration/protocol-engine/application/commands"
	"parley/contexts/meeting-collaboration/protocol-engine/application/workers"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
)

type recordedEvent struct {
	channel  string
	envelope eventsv1.Envelope
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
	fail   error
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, channel string, event eventsv1.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.events = append(b.events, recordedEvent{channel: channel, envelope: event})
	return nil
}

func (b *recordingBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, event := range b.events {
		out = append(out, event.envelope.EventType)
	}
	return out
}

func (b *recordingBroadcaster) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

func (b *recordingBroadcaster) last() recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[len(b.events)-1]
}

type fixture struct {
	store       *memory.Store
	broadcaster *recordingBroadcaster
	protocols   commands.ProtocolUseCase
	items       commands.ItemUseCase
	votes       commands.VoteUseCase
	typeID      string
	facilitator commands.Actor
	participant commands.Actor
}

// newFixture seeds a meeting and a four phase type:
// contribution, capped_voting, voting, discussion.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	broadcaster := &recordingBroadcaster{}
	runtime := commands.Runtime{Repo: store, Broadcaster: broadcaster, Clock: store, IDGen: store}

	ctx := context.Background()
	meetingID := uuid.NewString()
	facilitatorID := uuid.NewString()
	typeID := uuid.NewString()
	require.NoError(t, store.SaveMeeting(ctx, entities.Meeting{ID: meetingID, FacilitatorID: facilitatorID}))
	require.NoError(t, store.SaveProtocolType(ctx, entities.ProtocolType{
		ID:       typeID,
		Name:     "Retrospective",
		Strategy: entities.StrategyPrioritize,
		Phases: []entities.ProtocolPhase{
			{ID: uuid.NewString(), ProtocolTypeID: typeID, Index: 1, Kind: entities.PhaseKindContribution},
			{ID: uuid.NewString(), ProtocolTypeID: typeID, Index: 2, Kind: entities.PhaseKindCappedVoting},
			{ID: uuid.NewString(), ProtocolTypeID: typeID, Index: 3, Kind: entities.PhaseKindVoting, IsCollective: true},
			{ID: uuid.NewString(), ProtocolTypeID: typeID, Index: 4, Kind: entities.PhaseKindDiscussion},
		},
	}))

	return &fixture{
		store:       store,
		broadcaster: broadcaster,
		protocols:   commands.ProtocolUseCase{Runtime: runtime},
		items:       commands.ItemUseCase{Runtime: runtime},
		votes:       commands.VoteUseCase{Runtime: runtime},
		typeID:      typeID,
		facilitator: commands.Actor{ParticipantID: facilitatorID, MeetingID: meetingID},
		participant: commands.Actor{ParticipantID: uuid.NewString(), MeetingID: meetingID},
	}
}

func (f *fixture) createProtocol(t *testing.T) entities.Protocol {
	t.Helper()
	protocol, err := f.protocols.CreateProtocol(context.Background(), f.facilitator, commands.CreateProtocolCommand{
		ProtocolTypeID: f.typeID,
		Title:          "Sprint 12",
	})
	require.NoError(t, err)
	return protocol
}

func (f *fixture) createItems(t *testing.T, protocolID string, count int) []entities.ProtocolItem {
	t.Helper()
	out := make([]entities.ProtocolItem, 0, count)
	for i := 0; i < count; i++ {
		item, err := f.items.CreateItem(context.Background(), f.participant, commands.CreateItemCommand{
			ProtocolID: protocolID,
			Text:       "idea",
		})
		require.NoError(t, err)
		out = append(out, item)
	}
	return out
}

func (f *fixture) advance(t *testing.T, protocolID string) entities.Protocol {
	t.Helper()
	protocol, err := f.protocols.AdvancePhase(context.Background(), f.facilitator, commands.AdvancePhaseCommand{ProtocolID: protocolID})
	require.NoError(t, err)
	return protocol
}

func (f *fixture) pendingOutbox(t *testing.T) int {
	t.Helper()
	pending, err := f.store.ListPendingOutbox(context.Background(), 100, time.Time{})
	require.NoError(t, err)
	return len(pending)
}

func TestCreateProtocolBroadcastsEffectsInOrder(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)

	assert.Equal(t, 1, protocol.CurrentPhaseIndex)
	assert.Equal(t, f.facilitator.ParticipantID, protocol.CreatorID)
	assert.Equal(t, []string{
		eventsv1.EventTypeProtocol,
		eventsv1.EventTypeMeeting,
		eventsv1.EventTypeUpdatedNotes,
		eventsv1.EventTypeUpdatedSummaryItems,
	}, f.broadcaster.types())
	for _, event := range f.broadcaster.events {
		assert.Equal(t, f.facilitator.MeetingID, event.channel)
	}

	meeting, err := f.store.GetMeeting(context.Background(), f.facilitator.MeetingID)
	require.NoError(t, err)
	assert.Equal(t, protocol.ID, meeting.CurrentProtocolID)

	notes, err := f.store.ListNotes(context.Background(), meeting.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.True(t, notes[0].IsSystem)
	assert.Zero(t, f.pendingOutbox(t))
}

func TestCreateProtocolValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.protocols.CreateProtocol(ctx, f.facilitator, commands.CreateProtocolCommand{ProtocolTypeID: "nope", Title: "x"})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidID)

	_, err = f.protocols.CreateProtocol(ctx, f.facilitator, commands.CreateProtocolCommand{ProtocolTypeID: f.typeID, Title: "  "})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidRequest)

	_, err = f.protocols.CreateProtocol(ctx, f.facilitator, commands.CreateProtocolCommand{ProtocolTypeID: uuid.NewString(), Title: "x"})
	assert.ErrorIs(t, err, domainerrors.ErrProtocolTypeNotFound)
	assert.Empty(t, f.broadcaster.types())
}

func TestPhaseTransitionsRequireFacilitator(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)
	ctx := context.Background()

	_, err := f.protocols.AdvancePhase(ctx, f.participant, commands.AdvancePhaseCommand{ProtocolID: protocol.ID})
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)
	_, err = f.protocols.SetReadyForNextPhase(ctx, f.participant, commands.SetReadyCommand{ProtocolID: protocol.ID, Ready: true})
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)

	foreign := commands.Actor{ParticipantID: f.facilitator.ParticipantID, MeetingID: uuid.NewString()}
	_, err = f.protocols.AdvancePhase(ctx, foreign, commands.AdvancePhaseCommand{ProtocolID: protocol.ID})
	assert.ErrorIs(t, err, domainerrors.ErrProtocolNotFound)
}

func TestPhaseLifecycle(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)
	ctx := context.Background()

	unchanged, err := f.protocols.RetreatPhase(ctx, f.facilitator, protocol.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unchanged.CurrentPhaseIndex)

	f.broadcaster.reset()
	f.advance(t, protocol.ID)
	third := f.advance(t, protocol.ID)
	assert.Equal(t, 3, third.CurrentPhaseIndex)
	assert.Equal(t, []string{eventsv1.EventTypeProtocol, eventsv1.EventTypeProtocol}, f.broadcaster.types())

	_, err = f.protocols.AdvancePhase(ctx, f.facilitator, commands.AdvancePhaseCommand{ProtocolID: protocol.ID})
	assert.ErrorIs(t, err, domainerrors.ErrPhaseNotReady)

	ready, err := f.protocols.SetReadyForNextPhase(ctx, f.facilitator, commands.SetReadyCommand{ProtocolID: protocol.ID, Ready: true})
	require.NoError(t, err)
	assert.True(t, ready.ReadyForNextPhase)

	fourth := f.advance(t, protocol.ID)
	assert.Equal(t, 4, fourth.CurrentPhaseIndex)
	assert.False(t, fourth.ReadyForNextPhase)

	done := f.advance(t, protocol.ID)
	assert.True(t, done.IsCompleted)

	var payload commands.ProtocolEventPayload
	require.NoError(t, json.Unmarshal(f.broadcaster.last().envelope.Data, &payload))
	require.Len(t, payload.Changed, 1)
	assert.True(t, payload.Changed[0].IsCompleted)

	_, err = f.items.CreateItem(ctx, f.participant, commands.CreateItemCommand{ProtocolID: protocol.ID, Text: "late"})
	assert.ErrorIs(t, err, domainerrors.ErrProtocolCompleted)
}

func TestCappedVotingBudget(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)
	items := f.createItems(t, protocol.ID, 9)
	ctx := context.Background()

	_, err := f.votes.CastVote(ctx, f.participant, commands.CastVoteCommand{ItemID: items[0].ID})
	assert.ErrorIs(t, err, domainerrors.ErrPhaseDisallowsVoting)

	f.advance(t, protocol.ID)

	var cast []entities.ProtocolItemAction
	for i := 0; i < 3; i++ {
		action, err := f.votes.CastVote(ctx, f.participant, commands.CastVoteCommand{ItemID: items[i].ID})
		require.NoError(t, err)
		cast = append(cast, action)
	}
	_, err = f.votes.CastVote(ctx, f.participant, commands.CastVoteCommand{ItemID: items[3].ID})
	assert.ErrorIs(t, err, domainerrors.ErrVoteBudgetExceeded)

	// The budget is per participant.
	_, err = f.votes.CastVote(ctx, f.facilitator, commands.CastVoteCommand{ItemID: items[3].ID})
	require.NoError(t, err)

	require.NoError(t, f.votes.RetractVote(ctx, f.participant, cast[0].ID))
	_, err = f.votes.CastVote(ctx, f.participant, commands.CastVoteCommand{ItemID: items[3].ID})
	require.NoError(t, err)
}

func TestCappedVotingBudgetCountsGroupedItems(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)
	items := f.createItems(t, protocol.ID, 9)
	ctx := context.Background()

	for i := 0; i < 9; i += 3 {
		_, err := f.items.CreateGroup(ctx, f.participant, commands.CreateGroupCommand{
			ProtocolID: protocol.ID,
			Text:       "cluster",
			MemberIDs:  []string{items[i].ID, items[i+1].ID, items[i+2].ID},
		})
		require.NoError(t, err)
	}
	f.advance(t, protocol.ID)

	// Nine items in three groups still allow three votes each.
	for _, i := range []int{0, 3, 6} {
		_, err := f.votes.CastVote(ctx, f.participant, commands.CastVoteCommand{ItemID: items[i].ID})
		require.NoError(t, err)
	}
	_, err := f.votes.CastVote(ctx, f.participant, commands.CastVoteCommand{ItemID: items[1].ID})
	assert.ErrorIs(t, err, domainerrors.ErrVoteBudgetExceeded)
}

func TestDuplicateVoteIsRejected(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)
	items := f.createItems(t, protocol.ID, 3)
	f.advance(t, protocol.ID)
	f.advance(t, protocol.ID)
	ctx := context.Background()

	action, err := f.votes.CastVote(ctx, f.participant, commands.CastVoteCommand{ItemID: items[0].ID})
	require.NoError(t, err)
	assert.Equal(t, entities.ActionTypeVote, action.Type)

	var payload commands.ItemEventPayload
	require.NoError(t, json.Unmarshal(f.broadcaster.last().envelope.Data, &payload))
	require.Len(t, payload.Changed, 1)
	assert.Equal(t, 1, payload.Changed[0].VoteCount)
	require.Len(t, payload.CreatedActions, 1)

	_, err = f.votes.CastVote(ctx, f.participant, commands.CastVoteCommand{ItemID: items[0].ID})
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyVoted)
}

func TestRetractVoteOwnerOnly(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)
	items := f.createItems(t, protocol.ID, 3)
	f.advance(t, protocol.ID)
	ctx := context.Background()

	action, err := f.votes.CastVote(ctx, f.participant, commands.CastVoteCommand{ItemID: items[0].ID})
	require.NoError(t, err)

	err = f.votes.RetractVote(ctx, f.facilitator, action.ID)
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)

	require.NoError(t, f.votes.RetractVote(ctx, f.participant, action.ID))
	err = f.votes.RetractVote(ctx, f.participant, action.ID)
	assert.ErrorIs(t, err, domainerrors.ErrActionNotFound)
}

func TestGroupDissolvesWhenLeftWithOneMember(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)
	items := f.createItems(t, protocol.ID, 3)
	ctx := context.Background()

	group, err := f.items.CreateGroup(ctx, f.participant, commands.CreateGroupCommand{
		ProtocolID: protocol.ID,
		Text:       "Tooling",
		MemberIDs:  []string{items[0].ID, items[1].ID},
	})
	require.NoError(t, err)

	member, err := f.store.GetItem(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, group.ID, member.ParentID)

	f.broadcaster.reset()
	require.NoError(t, f.items.SetItemParent(ctx, f.participant, items[1].ID, ""))

	_, err = f.store.GetItem(ctx, group.ID)
	assert.ErrorIs(t, err, domainerrors.ErrItemNotFound)
	orphan, err := f.store.GetItem(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Empty(t, orphan.ParentID)

	require.Equal(t, []string{eventsv1.EventTypeProtocolItem}, f.broadcaster.types())
	var payload commands.ItemEventPayload
	require.NoError(t, json.Unmarshal(f.broadcaster.last().envelope.Data, &payload))
	assert.Equal(t, []string{group.ID}, payload.Deleted)
	assert.Len(t, payload.Changed, 2)
}

func TestBulkMoveDissolvesEmptiedGroup(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)
	items := f.createItems(t, protocol.ID, 5)
	ctx := context.Background()

	source, err := f.items.CreateGroup(ctx, f.participant, commands.CreateGroupCommand{
		ProtocolID: protocol.ID,
		Text:       "Source",
		MemberIDs:  []string{items[0].ID, items[1].ID, items[2].ID},
	})
	require.NoError(t, err)
	target, err := f.items.CreateGroup(ctx, f.participant, commands.CreateGroupCommand{
		ProtocolID: protocol.ID,
		Text:       "Target",
		MemberIDs:  []string{items[3].ID, items[4].ID},
	})
	require.NoError(t, err)

	f.broadcaster.reset()
	require.NoError(t, f.items.SetItemsParent(ctx, f.participant, commands.SetItemsParentCommand{
		ItemIDs:  []string{items[0].ID, items[1].ID, items[2].ID},
		ParentID: target.ID,
	}))

	_, err = f.store.GetItem(ctx, source.ID)
	assert.ErrorIs(t, err, domainerrors.ErrItemNotFound)
	for _, item := range items {
		moved, err := f.store.GetItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, target.ID, moved.ParentID)
	}

	var payload commands.ItemEventPayload
	require.NoError(t, json.Unmarshal(f.broadcaster.last().envelope.Data, &payload))
	assert.Equal(t, []string{source.ID}, payload.Deleted)

	// Moving every member out to the top level empties the group too.
	require.NoError(t, f.items.SetItemsParent(ctx, f.participant, commands.SetItemsParentCommand{
		ItemIDs: []string{items[0].ID, items[1].ID, items[2].ID, items[3].ID, items[4].ID},
	}))
	_, err = f.store.GetItem(ctx, target.ID)
	assert.ErrorIs(t, err, domainerrors.ErrItemNotFound)
}

func TestDeletingGroupKeepsMembers(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)
	items := f.createItems(t, protocol.ID, 3)
	ctx := context.Background()

	group, err := f.items.CreateGroup(ctx, f.participant, commands.CreateGroupCommand{
		ProtocolID: protocol.ID,
		Text:       "Process",
		MemberIDs:  []string{items[0].ID, items[1].ID, items[2].ID},
	})
	require.NoError(t, err)
	require.NoError(t, f.items.DeleteGroup(ctx, f.participant, group.ID))

	listed, err := f.store.ListItems(ctx, protocol.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for _, item := range listed {
		assert.Empty(t, item.ParentID)
	}
}

func TestGroupingRules(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)
	items := f.createItems(t, protocol.ID, 4)
	ctx := context.Background()

	_, err := f.items.CreateGroup(ctx, f.participant, commands.CreateGroupCommand{
		ProtocolID: protocol.ID,
		Text:       "Solo",
		MemberIDs:  []string{items[0].ID},
	})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidRequest)

	group, err := f.items.CreateGroup(ctx, f.participant, commands.CreateGroupCommand{
		ProtocolID: protocol.ID,
		Text:       "Pair",
		MemberIDs:  []string{items[0].ID, items[1].ID},
	})
	require.NoError(t, err)

	err = f.items.SetItemParent(ctx, f.participant, items[2].ID, items[3].ID)
	assert.ErrorIs(t, err, domainerrors.ErrGroupNesting)

	other, err := f.items.CreateGroup(ctx, f.participant, commands.CreateGroupCommand{ProtocolID: protocol.ID, Text: "Empty"})
	require.NoError(t, err)
	err = f.items.SetItemParent(ctx, f.participant, other.ID, group.ID)
	assert.ErrorIs(t, err, domainerrors.ErrGroupNesting)

	err = f.items.SetItemParent(ctx, f.participant, items[2].ID, uuid.NewString())
	assert.ErrorIs(t, err, domainerrors.ErrInvalidRequest)

	_, err = f.items.CreateItem(ctx, f.participant, commands.CreateItemCommand{
		ProtocolID: protocol.ID,
		Text:       "child",
		ParentID:   group.ID,
	})
	require.NoError(t, err)
}

func TestFailedCommandLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)
	items := f.createItems(t, protocol.ID, 1)
	ctx := context.Background()
	before, err := f.store.ListItems(ctx, protocol.ID)
	require.NoError(t, err)
	f.broadcaster.reset()

	_, err = f.items.CreateGroup(ctx, f.participant, commands.CreateGroupCommand{
		ProtocolID: protocol.ID,
		Text:       "Broken",
		MemberIDs:  []string{items[0].ID, uuid.NewString()},
	})
	assert.ErrorIs(t, err, domainerrors.ErrItemNotFound)

	after, err := f.store.ListItems(ctx, protocol.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, f.broadcaster.types())
	assert.Zero(t, f.pendingOutbox(t))
}

func TestPrioritizeItemOverride(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)
	items := f.createItems(t, protocol.ID, 2)
	ctx := context.Background()

	_, err := f.items.PrioritizeItem(ctx, f.participant, commands.PrioritizeItemCommand{
		ItemID:   items[0].ID,
		Override: entities.OverridePrioritize,
	})
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)

	item, err := f.items.PrioritizeItem(ctx, f.facilitator, commands.PrioritizeItemCommand{
		ItemID:   items[0].ID,
		Override: entities.OverridePrioritize,
	})
	require.NoError(t, err)
	assert.True(t, item.IsForcefullyPrioritized)

	item, err = f.items.PrioritizeItem(ctx, f.facilitator, commands.PrioritizeItemCommand{
		ItemID:   items[0].ID,
		Override: entities.OverrideDeprioritize,
	})
	require.NoError(t, err)
	assert.False(t, item.IsForcefullyPrioritized)
	assert.True(t, item.IsForcefullyDeprioritized)

	_, err = f.items.PrioritizeItem(ctx, f.facilitator, commands.PrioritizeItemCommand{
		ItemID:   items[0].ID,
		Override: entities.PriorityOverride("sideways"),
	})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidRequest)
}

func TestUpdateAndDeleteItem(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)
	items := f.createItems(t, protocol.ID, 1)
	ctx := context.Background()

	updated, err := f.items.UpdateItem(ctx, f.participant, commands.UpdateItemCommand{
		ItemID: items[0].ID,
		Text:   "better idea",
		Tags:   []string{" ops ", "ops", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "better idea", updated.Text)

	require.NoError(t, f.items.DeleteItem(ctx, f.participant, items[0].ID))
	err = f.items.DeleteItem(ctx, f.participant, items[0].ID)
	assert.ErrorIs(t, err, domainerrors.ErrItemNotFound)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

func TestOutboxRelayRedeliversFailedBroadcasts(t *testing.T) {
	f := newFixture(t)
	f.broadcaster.fail = errors.New("bus unavailable")
	protocol := f.createProtocol(t)
	assert.Equal(t, 4, f.pendingOutbox(t))

	f.broadcaster.fail = nil
	relay := workers.OutboxRelay{
		Outbox:      f.store,
		Broadcaster: f.broadcaster,
		Clock:       fixedClock{now: time.Now().UTC().Add(time.Hour)},
	}
	require.NoError(t, relay.RunOnce(context.Background()))

	assert.Equal(t, []string{
		eventsv1.EventTypeProtocol,
		eventsv1.EventTypeMeeting,
		eventsv1.EventTypeUpdatedNotes,
		eventsv1.EventTypeUpdatedSummaryItems,
	}, f.broadcaster.types())
	assert.Zero(t, f.pendingOutbox(t))

	var payload commands.ProtocolEventPayload
	require.NoError(t, json.Unmarshal(f.broadcaster.events[0].envelope.Data, &payload))
	require.Len(t, payload.Created, 1)
	assert.Equal(t, protocol.ID, payload.Created[0].ID)
}

func TestOutboxKeepsChannelOrderAfterFailedBroadcast(t *testing.T) {
	f := newFixture(t)
	protocol := f.createProtocol(t)
	items := f.createItems(t, protocol.ID, 1)
	ctx := context.Background()
	f.broadcaster.reset()

	f.broadcaster.fail = errors.New("bus unavailable")
	_, err := f.items.UpdateItem(ctx, f.participant, commands.UpdateItemCommand{ItemID: items[0].ID, Text: "v1"})
	require.NoError(t, err)

	f.broadcaster.fail = nil
	_, err = f.items.UpdateItem(ctx, f.participant, commands.UpdateItemCommand{ItemID: items[0].ID, Text: "v2"})
	require.NoError(t, err)

	// v2 waits behind the undelivered v1.
	assert.Empty(t, f.broadcaster.types())
	assert.Equal(t, 2, f.pendingOutbox(t))

	relay := workers.OutboxRelay{
		Outbox:      f.store,
		Broadcaster: f.broadcaster,
		Clock:       fixedClock{now: time.Now().UTC().Add(time.Hour)},
	}
	require.NoError(t, relay.RunOnce(ctx))
	assert.Zero(t, f.pendingOutbox(t))

	var texts []string
	for _, event := range f.broadcaster.events {
		var payload commands.ItemEventPayload
		require.NoError(t, json.Unmarshal(event.envelope.Data, &payload))
		require.Len(t, payload.Changed, 1)
		texts = append(texts, payload.Changed[0].Text)
	}
	assert.Equal(t, []string{"v1", "v2"}, texts)

	stored, err := f.store.GetItem(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", stored.Text)

	// Once the backlog is drained, commits broadcast directly again.
	_, err = f.items.UpdateItem(ctx, f.participant, commands.UpdateItemCommand{ItemID: items[0].ID, Text: "v3"})
	require.NoError(t, err)
	assert.Len(t, f.broadcaster.types(), 3)
	assert.Zero(t, f.pendingOutbox(t))
}
