package repositories

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "sqlmock"), mock
}

func TestAssignAndInsertUsesNextSeq(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE chats SET max_seq").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"max_seq"}).AddRow(int64(6)))
	mock.ExpectQuery("INSERT INTO messages").
		WithArgs(int64(7), int64(6), int64(1), "hi").
		WillReturnRows(sqlmock.NewRows([]string{"chat_id", "message_id", "sender_id", "content", "created_at"}).
			AddRow(int64(7), int64(6), int64(1), "hi", now))

	msg, err := NewMessageRepo().AssignAndInsert(context.Background(), db, 7, 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, int64(6), msg.ID)
	assert.Equal(t, int64(7), msg.ChatID)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, now, msg.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignAndInsertTakesSeqFromUpdateReturning(t *testing.T) {
	var statements []string
	matcher := sqlmock.QueryMatcherFunc(func(expectedSQL, actualSQL string) error {
		statements = append(statements, actualSQL)
		return sqlmock.QueryMatcherRegexp.Match(expectedSQL, actualSQL)
	})
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	db := sqlx.NewDb(raw, "sqlmock")

	mock.ExpectQuery(`^UPDATE chats SET max_seq = max_seq \+ 1, last_message_id = max_seq \+ 1\s+WHERE id=\$1 RETURNING max_seq$`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"max_seq"}).AddRow(int64(42)))
	mock.ExpectQuery("^INSERT INTO messages").
		WithArgs(int64(7), int64(42), int64(1), "hi").
		WillReturnRows(sqlmock.NewRows([]string{"chat_id", "message_id", "sender_id", "content", "created_at"}).
			AddRow(int64(7), int64(42), int64(1), "hi", time.Now()))

	msg, err := NewMessageRepo().AssignAndInsert(context.Background(), db, 7, 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, int64(42), msg.ID)
	require.NoError(t, mock.ExpectationsWereMet())

	require.NotEmpty(t, statements)
	assert.True(t, strings.HasPrefix(statements[0], "UPDATE chats"))
	for _, stmt := range statements {
		assert.NotContains(t, strings.ToUpper(stmt), "MAX(")
		assert.False(t, strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "SELECT"), stmt)
	}
}

func TestAssignAndInsertMissingChat(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("UPDATE chats SET max_seq").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"max_seq"}))

	_, err := NewMessageRepo().AssignAndInsert(context.Background(), db, 7, 1, "hi")
	assert.ErrorIs(t, err, ErrChatNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteLastMessageRecomputes(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT last_message_id FROM chats").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"last_message_id"}).AddRow(int64(5)))
	mock.ExpectQuery("DELETE FROM messages").
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"message_id"}).AddRow(int64(5)).AddRow(int64(3)))
	mock.ExpectQuery("UPDATE chats").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"last_message_id"}).AddRow(int64(4)))

	result, err := NewMessageRepo().Delete(context.Background(), db, 7, []int64{5, 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5}, result.Deleted)
	require.NotNil(t, result.LastMessageID)
	assert.Equal(t, int64(4), *result.LastMessageID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteEverythingLeavesNoLastMessage(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT last_message_id FROM chats").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"last_message_id"}).AddRow(int64(1)))
	mock.ExpectQuery("DELETE FROM messages").
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"message_id"}).AddRow(int64(1)))
	mock.ExpectQuery("UPDATE chats").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"last_message_id"}).AddRow(nil))

	result, err := NewMessageRepo().Delete(context.Background(), db, 7, []int64{1})
	require.NoError(t, err)
	assert.Nil(t, result.LastMessageID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOlderMessageKeepsLast(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT last_message_id FROM chats").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"last_message_id"}).AddRow(int64(5)))
	mock.ExpectQuery("DELETE FROM messages").
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"message_id"}).AddRow(int64(2)))

	result, err := NewMessageRepo().Delete(context.Background(), db, 7, []int64{2})
	require.NoError(t, err)
	require.NotNil(t, result.LastMessageID)
	assert.Equal(t, int64(5), *result.LastMessageID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteNothingMatched(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT last_message_id FROM chats").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"last_message_id"}).AddRow(int64(5)))
	mock.ExpectQuery("DELETE FROM messages").
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"message_id"}))

	_, err := NewMessageRepo().Delete(context.Background(), db, 7, []int64{99})
	assert.ErrorIs(t, err, ErrMessageNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryFromNewest(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	mock.ExpectQuery("SELECT chat_id, message_id, sender_id, content, created_at FROM messages .* ORDER BY message_id DESC LIMIT").
		WithArgs(int64(7), int64(0), 2).
		WillReturnRows(sqlmock.NewRows([]string{"chat_id", "message_id", "sender_id", "content", "created_at"}).
			AddRow(int64(7), int64(9), int64(1), "c", now).
			AddRow(int64(7), int64(8), int64(2), "b", now))

	messages, err := NewMessageRepo().History(context.Background(), db, 7, 0, 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, int64(9), messages[0].ID)
	assert.Equal(t, int64(8), messages[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryBeforeOffsetEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("FROM messages").
		WithArgs(int64(7), int64(1), 50).
		WillReturnRows(sqlmock.NewRows([]string{"chat_id", "message_id", "sender_id", "content", "created_at"}))

	messages, err := NewMessageRepo().History(context.Background(), db, 7, 1, 50)
	require.NoError(t, err)
	assert.NotNil(t, messages)
	assert.Empty(t, messages)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnreadCalculatorClampsNegative(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(7), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := NewUnreadCalculator(NewMessageRepo()).Count(context.Background(), db, 7, -4)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
