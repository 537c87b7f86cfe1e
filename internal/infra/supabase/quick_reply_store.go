package supabase

import (
	"context"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Quick replies
// ============================================================

// ListQuickReplies returns the company's replies ordered by shortcut.
func (c *Client) ListQuickReplies(ctx context.Context, companyID string) ([]domain.QuickReply, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListQuickReplies")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", companyID))

	return listRows[domain.QuickReply](ctx, c, "quick_replies?"+eq("company_id", companyID)+"&order=shortcut.asc")
}

// GetQuickReply fetches a reply by id.
func (c *Client) GetQuickReply(ctx context.Context, id string) (*domain.QuickReply, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetQuickReply")
	defer span.End()

	return getOne[domain.QuickReply](ctx, c, "quick_replies", eq("id", id))
}

// CreateQuickReply inserts a reply.
func (c *Client) CreateQuickReply(ctx context.Context, q *domain.QuickReply) (*domain.QuickReply, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateQuickReply")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", q.CompanyID), attribute.String("quick_reply.shortcut", q.Shortcut))

	return insertRow[domain.QuickReply](ctx, c, "quick_replies", map[string]any{
		"company_id":   q.CompanyID,
		"user_id":      nullable(q.UserID),
		"shortcut":     q.Shortcut,
		"message":      nullable(q.Message),
		"message_type": q.MessageType,
		"media_url":    nullable(q.MediaURL),
		"caption":      nullable(q.Caption),
	}, q.Shortcut)
}

// UpdateQuickReply rewrites message and caption.
func (c *Client) UpdateQuickReply(ctx context.Context, q *domain.QuickReply) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateQuickReply")
	defer span.End()

	return c.write(func() error {
		_, err := c.doPatch(ctx, "quick_replies?"+eq("id", q.ID), map[string]any{
			"message": nullable(q.Message),
			"caption": nullable(q.Caption),
		}, false)
		return err
	})
}

// DeleteQuickReply removes a reply.
func (c *Client) DeleteQuickReply(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteQuickReply")
	defer span.End()

	return c.write(func() error {
		return c.doDelete(ctx, "quick_replies?"+eq("id", id))
	})
}
