package dbx

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

func newMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithPool(mock), mock
}

func TestUnparsedMessages(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Now()
	rows := pgxmock.NewRows([]string{"id", "channel_id", "message_id", "timestamp", "text", "author"}).
		AddRow(int64(1), "chan-1", "msg-1", now, "buy $BTC", "alice")
	mock.ExpectQuery("SELECT id, channel_id, message_id, timestamp, text, author").
		WithArgs(50).
		WillReturnRows(rows)

	got, err := db.UnparsedMessages(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Author)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkMessageProcessed(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("UPDATE raw_messages SET is_processed = true, parse_success").
		WithArgs(int64(7), true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := db.MarkMessageProcessed(context.Background(), 7, true)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsensusSignalExists(t *testing.T) {
	db, mock := newMockDB(t)

	rows := pgxmock.NewRows([]string{"exists"}).AddRow(true)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("sig-1").
		WillReturnRows(rows)

	exists, err := db.ConsensusSignalExists(context.Background(), "sig-1")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveConsensusEvent_DuplicateIsNoopSuccess(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(pgxmock.NewResult("SELECT", 0))
	existsRows := pgxmock.NewRows([]string{"exists"}).AddRow(true)
	mock.ExpectQuery("SELECT EXISTS").WithArgs("sig-trigger").WillReturnRows(existsRows)
	mock.ExpectRollback()

	event := &types.ConsensusEvent{
		ID:     "evt-1",
		Ticker: "BTC",
		Metadata: types.ConsensusEventMetadata{
			TriggerSignalID: "sig-trigger",
		},
	}

	err := db.SaveConsensusEvent(context.Background(), event, nil)
	require.NoError(t, err) // duplicate consensus is a no-op success
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInstrumentByTicker_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT figi, ticker, name, type, currency, lot, is_active").
		WithArgs("ZZZ").
		WillReturnError(pgx.ErrNoRows)

	_, err := db.InstrumentByTicker(context.Background(), "ZZZ")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindNotFound))
}
