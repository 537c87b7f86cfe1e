package postgres

import (
	"context"
	"fmt"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"github.com/jackc/pgx/v5"
)

const conversationColumns = `id::text, phone_number, COALESCE(from_number, ''), COALESCE(company_id::text, ''),
	contact_name, COALESCE(last_message, ''), COALESCE(last_message_time, created_at), unread_count, created_at, updated_at`

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var c domain.Conversation
	err := row.Scan(&c.ID, &c.PhoneNumber, &c.FromNumber, &c.CompanyID,
		&c.ContactName, &c.LastMessage, &c.LastMessageTime, &c.UnreadCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertConversation runs the atomic upsert_conversation function.
func (s *Store) UpsertConversation(ctx context.Context, in domain.ConversationUpsert) (*domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpsertConversation")
	defer span.End()

	row := s.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM upsert_conversation($1, NULLIF($2, ''), NULLIF($3, '')::uuid, $4, $5, $6)`,
		in.CustomerNumber, in.BusinessNumber, in.CompanyID, in.ContactName,
		in.LastMessage, in.LastMessageTime)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: upsert conversation: %w", err)
	}
	return conv, nil
}

// IncrementUnread adds one to unread_count in a single UPDATE.
func (s *Store) IncrementUnread(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Postgres.IncrementUnread")
	defer span.End()

	if _, err := s.db.Exec(ctx,
		`UPDATE conversations SET unread_count = unread_count + 1, updated_at = now() WHERE id::text = $1`, id); err != nil {
		return fmt.Errorf("postgres: increment unread: %w", err)
	}
	return nil
}

// FindConversation returns the conversation of a pair, or nil.
func (s *Store) FindConversation(ctx context.Context, customerNumber, businessNumber string) (*domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Postgres.FindConversation")
	defer span.End()

	conv, err := scanConversation(s.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE phone_number = $1 AND from_number IS NOT DISTINCT FROM NULLIF($2, '')`,
		customerNumber, businessNumber))
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: find conversation: %w", err)
	}
	return conv, nil
}

// GetConversation fetches a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetConversation")
	defer span.End()

	conv, err := scanConversation(s.db.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id::text = $1`, id))
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns conversations, latest activity first.
func (s *Store) ListConversations(ctx context.Context, f domain.ConversationFilter) ([]domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListConversations")
	defer span.End()

	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE ($1 = '' OR company_id::text = $1)
		  AND ($2 = '' OR from_number = $2)
		ORDER BY last_message_time DESC NULLS LAST
		LIMIT $3`, f.CompanyID, f.BusinessNumber, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list conversations: %w", err)
	}
	defer rows.Close()

	convs := []domain.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan conversation: %w", err)
		}
		convs = append(convs, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list conversations: %w", err)
	}
	return convs, nil
}

// MarkConversationRead resets unread_count to zero.
func (s *Store) MarkConversationRead(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Postgres.MarkConversationRead")
	defer span.End()

	if _, err := s.db.Exec(ctx,
		`UPDATE conversations SET unread_count = 0, updated_at = now() WHERE id::text = $1`, id); err != nil {
		return fmt.Errorf("postgres: mark conversation read: %w", err)
	}
	return nil
}
