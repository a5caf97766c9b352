package postgresadapter

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/protocol-engine/domain/errors"
	"parley/contexts/meeting-collaboration/protocol-engine/ports"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewRepository(gdb, nil), mock
}

func TestGetProtocolMapsMissingRow(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT \* FROM "protocols" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetProtocol(context.Background(), "protocol-1")
	assert.ErrorIs(t, err, domainerrors.ErrProtocolNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockProtocolTakesRowLock(t *testing.T) {
	repo, mock := newMockRepository(t)
	changed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "protocols" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "meeting_id", "type_id", "creator_id", "current_phase_index", "title",
			"is_completed", "ready_for_next_phase", "last_phase_change_date", "data", "created_at", "updated_at",
		}).AddRow(
			"protocol-1", "meeting-1", "type-1", "host", 2, "Retro",
			false, true, changed, []byte(`{"color":"blue"}`), changed, changed,
		))

	protocol, err := repo.LockProtocol(context.Background(), " protocol-1 ")
	require.NoError(t, err)
	assert.Equal(t, "meeting-1", protocol.MeetingID)
	assert.Equal(t, 2, protocol.CurrentPhaseIndex)
	assert.True(t, protocol.ReadyForNextPhase)
	assert.Equal(t, changed, protocol.LastPhaseChangeDate)
	assert.Equal(t, "blue", protocol.Data["color"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountVotesFiltersByParticipantAndPhase(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "protocol_item_actions" WHERE type = \$1 AND protocol_id = \$2 AND protocol_phase_id = \$3 AND creator_id = \$4`).
		WithArgs("vote", "protocol-1", "phase-2", "participant-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountVotes(context.Background(), "protocol-1", "phase-2", "participant-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateActionMapsUniqueViolation(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`INSERT INTO "protocol_item_actions"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := repo.CreateAction(context.Background(), entities.ProtocolItemAction{
		ID:              "action-1",
		Type:            entities.ActionTypeVote,
		CreatorID:       "participant-1",
		ProtocolID:      "protocol-1",
		ProtocolItemID:  "item-1",
		ProtocolPhaseID: "phase-2",
		CreatedAt:       time.Now().UTC(),
	})
	assert.ErrorIs(t, err, domainerrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkOutboxPublishedWithoutRowIsConflict(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`UPDATE "protocol_outbox" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkOutboxPublished(context.Background(), "event-1", time.Now())
	assert.ErrorIs(t, err, domainerrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPendingOutboxHonorsGraceCutoff(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "protocol_outbox" WHERE status = \$1 AND created_at < \$2 ORDER BY created_at ASC, seq ASC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{
			"outbox_id", "seq", "channel", "event_type", "payload", "status", "created_at", "published_at",
		}).AddRow("event-1", 1, "meeting-1", "Protocol", []byte(`{}`), "pending", created, nil))

	pending, err := repo.ListPendingOutbox(context.Background(), 10, created.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "meeting-1", pending[0].Channel)
	assert.Equal(t, "Protocol", pending[0].EventType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOldestPendingOutboxScopesToChannel(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	columns := []string{"outbox_id", "seq", "channel", "event_type", "payload", "status", "created_at", "published_at"}

	mock.ExpectQuery(`SELECT \* FROM "protocol_outbox" WHERE channel = \$1 AND status = \$2 ORDER BY created_at ASC, seq ASC LIMIT`).
		WithArgs("meeting-1", "pending", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("event-7", 7, "meeting-1", "ProtocolItem", []byte(`{}`), "pending", created, nil))
	mock.ExpectQuery(`SELECT \* FROM "protocol_outbox" WHERE channel = \$1 AND status = \$2`).
		WithArgs("meeting-2", "pending", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(columns))

	oldest, found, err := repo.OldestPendingOutbox(context.Background(), " meeting-1 ")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "event-7", oldest.OutboxID)
	assert.Equal(t, "ProtocolItem", oldest.EventType)

	_, found, err = repo.OldestPendingOutbox(context.Background(), "meeting-2")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.WithinTx(context.Background(), func(ctx context.Context, store ports.Store) error {
		return domainerrors.ErrForbidden
	})
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)
	assert.NoError(t, mock.ExpectationsWereMet())
}
