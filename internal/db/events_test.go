package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taylordash/taylordash/internal/models"
)

func TestInsertEventMirror_AssignsSequence(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	database := OpenForTesting(sqlDB)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO events_mirror").
		WithArgs("tracker/events/test/hello", "test.hello", sqlmock.AnyArg(), sqlmock.AnyArg(), "trace-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(int64(1)))
	mock.ExpectCommit()

	err = database.Transaction(ctx, func(tx *sql.Tx) error {
		inserted, insertErr := database.InsertEventMirror(ctx, tx, models.EventMirror{
			Topic:      "tracker/events/test/hello",
			Kind:       "test.hello",
			Payload:    models.JSONMap{"x": 1},
			ReceivedAt: time.Now(),
			TraceID:    "trace-1",
		})
		assert.NoError(t, insertErr)
		assert.True(t, inserted)
		return insertErr
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventMirror_DuplicateMessageIDSkipsSilently(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	database := OpenForTesting(sqlDB)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO events_mirror").
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}))
	mock.ExpectCommit()

	var inserted bool
	err = database.Transaction(ctx, func(tx *sql.Tx) error {
		var insertErr error
		inserted, insertErr = database.InsertEventMirror(ctx, tx, models.EventMirror{
			Topic:     "tracker/events/test/hello",
			MessageID: strPtr("dup-1"),
		})
		return insertErr
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDLQEvent(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	database := OpenForTesting(sqlDB)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO dlq_events").
		WithArgs(sqlmock.AnyArg(), "tracker/events/bad", "unparseable payload", "not-json").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = database.InsertDLQEvent(ctx, "tracker/events/bad", "unparseable payload", "not-json")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEventMirror_FiltersByTopicAndKind(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	database := OpenForTesting(sqlDB)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"sequence", "topic", "kind", "payload", "received_at", "trace_id", "message_id"}).
		AddRow(int64(2), "tracker/events/test/hello", "test.hello", []byte(`{}`), time.Now(), "trace-2", nil)

	mock.ExpectQuery("SELECT sequence, topic, kind, payload, received_at, trace_id, message_id").
		WithArgs("tracker/events/test/hello", "test.hello", 50, 0).
		WillReturnRows(rows)

	out, err := database.ListEventMirror(ctx, "tracker/events/test/hello", "test.hello", 50, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0].Sequence)
	assert.Nil(t, out[0].MessageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func strPtr(s string) *string { return &s }
