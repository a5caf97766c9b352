package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventsv1 "parley/contracts/gen/events/v1"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
	"parley/contexts/meeting-collaboration/protocol-engine/ports"
)

func TestReadsOutsideUnitOfWorkSkipUncommittedWrites(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	written := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- store.WithinTx(ctx, func(ctx context.Context, tx ports.Store) error {
			if err := tx.SaveProtocol(ctx, entities.Protocol{ID: "p1", MeetingID: "m1"}); err != nil {
				return err
			}
			if err := tx.AppendOutbox(ctx, "m1", eventsv1.Envelope{EventID: "e1", EventType: eventsv1.EventTypeProtocol}); err != nil {
				return err
			}
			close(written)
			<-release
			return domainerrors.ErrForbidden
		})
	}()

	<-written
	_, err := store.GetProtocol(ctx, "p1")
	assert.ErrorIs(t, err, domainerrors.ErrProtocolNotFound)
	_, found, err := store.OldestPendingOutbox(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, found)

	close(release)
	assert.ErrorIs(t, <-done, domainerrors.ErrForbidden)

	_, err = store.GetProtocol(ctx, "p1")
	assert.ErrorIs(t, err, domainerrors.ErrProtocolNotFound)
	pending, err := store.ListPendingOutbox(ctx, 10, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCommittedUnitOfWorkBecomesVisible(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx ports.Store) error {
		if err := tx.SaveProtocol(ctx, entities.Protocol{ID: "p1", MeetingID: "m1"}); err != nil {
			return err
		}
		return tx.AppendOutbox(ctx, "m1", eventsv1.Envelope{EventID: "e1", EventType: eventsv1.EventTypeProtocol})
	}))

	protocol, err := store.GetProtocol(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "m1", protocol.MeetingID)

	oldest, found, err := store.OldestPendingOutbox(ctx, "m1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "e1", oldest.OutboxID)

	require.NoError(t, store.MarkOutboxPublished(ctx, "e1", time.Now()))
	_, found, err = store.OldestPendingOutbox(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDirectWriteIsNotLostToConcurrentCommit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- store.WithinTx(ctx, func(ctx context.Context, tx ports.Store) error {
			close(started)
			<-release
			return tx.SaveProtocol(ctx, entities.Protocol{ID: "p1", MeetingID: "m1"})
		})
	}()

	<-started
	written := make(chan error, 1)
	go func() {
		written <- store.SaveMeeting(ctx, entities.Meeting{ID: "m1", FacilitatorID: "host"})
	}()
	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-written)

	_, err := store.GetProtocol(ctx, "p1")
	require.NoError(t, err)
	meeting, err := store.GetMeeting(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "host", meeting.FacilitatorID)
}

func TestOldestPendingOutboxFollowsAppendOrderPerChannel(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	for _, row := range []struct{ channel, id string }{{"m1", "a"}, {"m2", "b"}, {"m1", "c"}} {
		require.NoError(t, store.AppendOutbox(ctx, row.channel, eventsv1.Envelope{EventID: row.id, EventType: eventsv1.EventTypeProtocolItem}))
	}

	oldest, found, err := store.OldestPendingOutbox(ctx, "m1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "a", oldest.OutboxID)

	require.NoError(t, store.MarkOutboxPublished(ctx, "a", time.Now()))
	oldest, _, err = store.OldestPendingOutbox(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "c", oldest.OutboxID)

	_, found, err = store.OldestPendingOutbox(ctx, "m3")
	require.NoError(t, err)
	assert.False(t, found)
}
