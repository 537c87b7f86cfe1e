package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var conversationCols = []string{"id", "phone_number", "from_number", "company_id", "contact_name",
	"last_message", "last_message_time", "unread_count", "created_at", "updated_at"}

var messageCols = []string{"id", "conversation_id", "message_id", "from_number", "direction", "message_type",
	"content", "status", "timestamp", "created_at", "reply_to_message_id", "context"}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newWithQuerier(mock, zap.NewNop()), mock
}

func TestUpsertConversation(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM upsert_conversation").
		WithArgs("+15550001", "+18005550000", "co-1", "Ana", "Hi", now).
		WillReturnRows(pgxmock.NewRows(conversationCols).
			AddRow("conv-1", "+15550001", "+18005550000", "co-1", "Ana", "Hi", now, 0, now, now))

	conv, err := store.UpsertConversation(context.Background(), domain.ConversationUpsert{
		CustomerNumber:  "+15550001",
		BusinessNumber:  "+18005550000",
		CompanyID:       "co-1",
		ContactName:     "Ana",
		LastMessage:     "Hi",
		LastMessageTime: now,
	})
	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)
	assert.Equal(t, 0, conv.UnreadCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementUnread(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("SET unread_count = unread_count \\+ 1").
		WithArgs("conv-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.IncrementUnread(context.Background(), "conv-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindConversation_Missing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM conversations").
		WithArgs("+15550001", "+18005550000").
		WillReturnError(pgx.ErrNoRows)

	conv, err := store.FindConversation(context.Background(), "+15550001", "+18005550000")
	require.NoError(t, err)
	assert.Nil(t, conv)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMessage(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO messages").
		WithArgs("conv-1", "wamid.1", "+15550001", "inbound", "text",
			pgxmock.AnyArg(), "read", now, "wamid.0", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(messageCols).
			AddRow("m-1", "conv-1", "wamid.1", "+15550001", "inbound", "text",
				[]byte(`{"text":"Hi"}`), "read", now, now, "wamid.0", []byte(`{"id":"wamid.0"}`)))

	stored, err := store.InsertMessage(context.Background(), &domain.Message{
		ConversationID:   "conv-1",
		MessageID:        "wamid.1",
		FromNumber:       "+15550001",
		Direction:        domain.Inbound,
		Type:             domain.TypeText,
		Content:          domain.TextContent{Text: "Hi"},
		Status:           domain.StatusRead,
		Timestamp:        now,
		ReplyToMessageID: "wamid.0",
		Context:          &domain.MessageContext{ID: "wamid.0"},
	})
	require.NoError(t, err)
	assert.Equal(t, "m-1", stored.ID)
	assert.Equal(t, domain.TextContent{Text: "Hi"}, stored.Content)
	require.NotNil(t, stored.Context)
	assert.Equal(t, "wamid.0", stored.Context.Ref())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMessage_UniqueViolationIsDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO messages").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_messages_message_id"})

	_, err := store.InsertMessage(context.Background(), &domain.Message{
		ConversationID: "conv-1",
		MessageID:      "wamid.1",
		Direction:      domain.Inbound,
		Type:           domain.TypeText,
		Content:        domain.TextContent{Text: "Hi"},
		Status:         domain.StatusRead,
		Timestamp:      time.Now(),
	})

	var dup *domain.ErrDuplicate
	require.True(t, errors.As(err, &dup), "expected ErrDuplicate, got %v", err)
	assert.Equal(t, "wamid.1", dup.Key)
}

func TestListMessages_NewestPage(t *testing.T) {
	store, mock := newMockStore(t)
	t0 := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`ORDER BY "timestamp" DESC\s+LIMIT \$2`).
		WithArgs("conv-1", 2).
		WillReturnRows(pgxmock.NewRows(messageCols).
			AddRow("m-2", "conv-1", "wamid.2", "+15550001", "inbound", "text",
				[]byte(`{"text":"b"}`), "read", t0, t0, "", []byte(nil)).
			AddRow("m-3", "conv-1", "wamid.3", "+18005550000", "outbound", "text",
				[]byte(`{"text":"c"}`), "sent", t0.Add(time.Hour), t0.Add(time.Hour), "", []byte(nil)))

	msgs, err := store.ListMessages(context.Background(), "conv-1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "wamid.2", msgs[0].MessageID)
	assert.Equal(t, "wamid.3", msgs[1].MessageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMessageStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE messages SET status").
		WithArgs("wamid.1", "delivered").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE messages SET status").
		WithArgs("wamid.unknown", "read").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	matched, err := store.UpdateMessageStatus(context.Background(), "wamid.1", "delivered")
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = store.UpdateMessageStatus(context.Background(), "wamid.unknown", "read")
	require.NoError(t, err)
	assert.False(t, matched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetDefaultBusinessNumber_ClearsOthersFirst(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET is_default = false").WithArgs("co-1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("SET is_default = true").WithArgs("bn-2").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, store.SetDefaultBusinessNumber(context.Background(), "co-1", "bn-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAPISettings(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM api_settings").
		WithArgs("co-1", "u-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "company_id", "user_id", "ycloud_api_key", "webhook_secret", "updated_at"}).
			AddRow("s-1", "co-1", "", "key-1", "", now))

	s, err := store.GetAPISettings(context.Background(), "co-1", "u-1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "key-1", s.YCloudAPIKey)
}
