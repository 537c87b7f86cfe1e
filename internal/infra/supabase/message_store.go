package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Messages
// ============================================================

const uniqueViolation = "23505"

// InsertMessage inserts m. A unique violation on message_id is reported as
// *domain.ErrDuplicate.
func (c *Client) InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.InsertMessage")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", m.MessageID))

	content, err := domain.MarshalContent(m.Content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}

	row := map[string]any{
		"conversation_id":     m.ConversationID,
		"message_id":          nullable(m.MessageID),
		"from_number":         nullable(m.FromNumber),
		"direction":           m.Direction,
		"message_type":        m.Type,
		"content":             content,
		"status":              m.Status,
		"timestamp":           m.Timestamp.UTC().Format(time.RFC3339Nano),
		"reply_to_message_id": nullable(m.ReplyToMessageID),
	}
	if m.Context != nil {
		row["context"] = m.Context
	}

	var stored domain.Message
	err = c.write(func() error {
		body, err := c.doPost(ctx, "messages", row, "return=representation")
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Code == uniqueViolation {
				return &domain.ErrDuplicate{Key: m.MessageID}
			}
			return err
		}
		found, err := decodeFirst(body, &stored)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("insert returned no row")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetMessageByProviderID returns the message with the provider id, or nil.
func (c *Client) GetMessageByProviderID(ctx context.Context, providerID string) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetMessageByProviderID")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", providerID))

	return getOne[domain.Message](ctx, c, "messages", eq("message_id", providerID))
}

// UpdateMessageStatus sets the status of the message with the provider id and
// reports whether a row matched.
func (c *Client) UpdateMessageStatus(ctx context.Context, providerID, status string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateMessageStatus")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", providerID), attribute.String("message.status", status))

	var matched bool
	err := c.write(func() error {
		body, err := c.doPatch(ctx, "messages?"+eq("message_id", providerID)+"&select=id", map[string]any{
			"status": status,
		}, true)
		if err != nil {
			return err
		}
		var rows []json.RawMessage
		if len(body) > 0 {
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("decode rows: %w", err)
			}
		}
		matched = len(rows) > 0
		return nil
	})
	return matched, err
}

// ListMessages returns the newest limit messages of a conversation, oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMessages")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	path := "messages?" + eq("conversation_id", conversationID) + "&order=timestamp.desc"
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}

	messages := []domain.Message{}
	err := c.read(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil || len(body) == 0 {
			return err
		}
		return json.Unmarshal(body, &messages)
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

// LatestInboundMessage returns the most recent inbound message, or nil.
func (c *Client) LatestInboundMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.LatestInboundMessage")
	defer span.End()

	return getOne[domain.Message](ctx, c, "messages",
		eq("conversation_id", conversationID)+"&direction=eq.inbound&order=timestamp.desc")
}
