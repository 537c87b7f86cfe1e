package postgres

import (
	"context"
	"fmt"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"github.com/jackc/pgx/v5"
)

const quickReplyColumns = `id::text, company_id::text, COALESCE(user_id::text, ''), shortcut, COALESCE(message, ''), message_type, COALESCE(media_url, ''), COALESCE(caption, ''), created_at`

func scanQuickReply(row pgx.Row) (*domain.QuickReply, error) {
	var q domain.QuickReply
	var messageType string
	err := row.Scan(&q.ID, &q.CompanyID, &q.UserID, &q.Shortcut, &q.Message, &messageType, &q.MediaURL, &q.Caption, &q.CreatedAt)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: scan quick reply: %w", err)
	}
	q.MessageType = domain.MessageType(messageType)
	return &q, nil
}

// ListQuickReplies returns the company's replies ordered by shortcut.
func (s *Store) ListQuickReplies(ctx context.Context, companyID string) ([]domain.QuickReply, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListQuickReplies")
	defer span.End()

	rows, err := s.db.Query(ctx, `
		SELECT `+quickReplyColumns+`
		FROM quick_replies
		WHERE company_id::text = $1
		ORDER BY shortcut ASC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list quick replies: %w", err)
	}
	defer rows.Close()

	replies := []domain.QuickReply{}
	for rows.Next() {
		q, err := scanQuickReply(rows)
		if err != nil {
			return nil, err
		}
		replies = append(replies, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list quick replies: %w", err)
	}
	return replies, nil
}

// GetQuickReply fetches a reply by id.
func (s *Store) GetQuickReply(ctx context.Context, id string) (*domain.QuickReply, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetQuickReply")
	defer span.End()

	return scanQuickReply(s.db.QueryRow(ctx,
		`SELECT `+quickReplyColumns+` FROM quick_replies WHERE id::text = $1`, id))
}

// CreateQuickReply inserts a reply.
func (s *Store) CreateQuickReply(ctx context.Context, q *domain.QuickReply) (*domain.QuickReply, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateQuickReply")
	defer span.End()

	row := s.db.QueryRow(ctx, `
		INSERT INTO quick_replies (company_id, user_id, shortcut, message, message_type, media_url, caption)
		VALUES ($1::uuid, NULLIF($2, '')::uuid, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''))
		RETURNING `+quickReplyColumns,
		q.CompanyID, q.UserID, q.Shortcut, q.Message, string(q.MessageType), q.MediaURL, q.Caption)

	created, err := scanQuickReply(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: insert quick reply: %w", err)
	}
	return created, nil
}

// UpdateQuickReply rewrites message and caption.
func (s *Store) UpdateQuickReply(ctx context.Context, q *domain.QuickReply) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateQuickReply")
	defer span.End()

	if _, err := s.db.Exec(ctx,
		`UPDATE quick_replies SET message = NULLIF($2, ''), caption = NULLIF($3, '') WHERE id::text = $1`,
		q.ID, q.Message, q.Caption); err != nil {
		return fmt.Errorf("postgres: update quick reply: %w", err)
	}
	return nil
}

// DeleteQuickReply removes a reply.
func (s *Store) DeleteQuickReply(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Postgres.DeleteQuickReply")
	defer span.End()

	if _, err := s.db.Exec(ctx, `DELETE FROM quick_replies WHERE id::text = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete quick reply: %w", err)
	}
	return nil
}
