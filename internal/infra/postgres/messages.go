package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"github.com/jackc/pgx/v5"
)

const messageColumns = `id::text, conversation_id::text, COALESCE(message_id, ''), COALESCE(from_number, ''),
	direction, message_type, content, status, "timestamp", created_at, COALESCE(reply_to_message_id, ''), context`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		m         domain.Message
		direction string
		msgType   string
		content   []byte
		msgCtx    []byte
	)
	err := row.Scan(&m.ID, &m.ConversationID, &m.MessageID, &m.FromNumber,
		&direction, &msgType, &content, &m.Status, &m.Timestamp, &m.CreatedAt, &m.ReplyToMessageID, &msgCtx)
	if err != nil {
		return nil, err
	}
	m.Direction = domain.Direction(direction)
	m.Type = domain.MessageType(msgType)
	m.Content = domain.DecodeContent(m.Type, content)
	if len(msgCtx) > 0 && string(msgCtx) != "null" {
		var c domain.MessageContext
		if err := json.Unmarshal(msgCtx, &c); err == nil {
			m.Context = &c
		}
	}
	return &m, nil
}

// InsertMessage inserts m; a unique violation on message_id is *domain.ErrDuplicate.
func (s *Store) InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Postgres.InsertMessage")
	defer span.End()

	content, err := domain.MarshalContent(m.Content)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode content: %w", err)
	}
	var msgCtx []byte
	if m.Context != nil {
		if msgCtx, err = json.Marshal(m.Context); err != nil {
			return nil, fmt.Errorf("postgres: encode context: %w", err)
		}
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, message_id, from_number, direction, message_type,
			content, status, "timestamp", reply_to_message_id, context)
		VALUES ($1::uuid, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
		RETURNING `+messageColumns,
		m.ConversationID, m.MessageID, m.FromNumber, string(m.Direction), string(m.Type),
		[]byte(content), m.Status, m.Timestamp, m.ReplyToMessageID, msgCtx)

	stored, err := scanMessage(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ErrDuplicate{Key: m.MessageID}
		}
		return nil, fmt.Errorf("postgres: insert message: %w", err)
	}
	return stored, nil
}

// GetMessageByProviderID returns the message with the provider id, or nil.
func (s *Store) GetMessageByProviderID(ctx context.Context, providerID string) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetMessageByProviderID")
	defer span.End()

	m, err := scanMessage(s.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE message_id = $1`, providerID))
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get message: %w", err)
	}
	return m, nil
}

// UpdateMessageStatus sets the status and reports whether a row matched.
func (s *Store) UpdateMessageStatus(ctx context.Context, providerID, status string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateMessageStatus")
	defer span.End()

	tag, err := s.db.Exec(ctx, `UPDATE messages SET status = $2 WHERE message_id = $1`, providerID, status)
	if err != nil {
		return false, fmt.Errorf("postgres: update message status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListMessages returns the newest limit messages of a conversation, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListMessages")
	defer span.End()

	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id IN (
			SELECT id FROM messages
			WHERE conversation_id::text = $1
			ORDER BY "timestamp" DESC
			LIMIT $2
		)
		ORDER BY "timestamp" ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list messages: %w", err)
	}
	return messages, nil
}

// LatestInboundMessage returns the newest inbound message, or nil.
func (s *Store) LatestInboundMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Postgres.LatestInboundMessage")
	defer span.End()

	m, err := scanMessage(s.db.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id::text = $1 AND direction = 'inbound'
		ORDER BY "timestamp" DESC
		LIMIT 1`, conversationID))
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: latest inbound message: %w", err)
	}
	return m, nil
}
