package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Conversations
// ============================================================

// UpsertConversation calls the upsert_conversation function, the single
// atomic insert-on-conflict-update of a (phone_number, from_number) pair.
func (c *Client) UpsertConversation(ctx context.Context, in domain.ConversationUpsert) (*domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertConversation")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.customer", in.CustomerNumber),
		attribute.String("conversation.business", in.BusinessNumber),
	)

	args := map[string]any{
		"p_phone_number":      in.CustomerNumber,
		"p_from_number":       nullable(in.BusinessNumber),
		"p_company_id":        nullable(in.CompanyID),
		"p_contact_name":      in.ContactName,
		"p_last_message":      in.LastMessage,
		"p_last_message_time": in.LastMessageTime.UTC().Format(time.RFC3339Nano),
	}

	var conv domain.Conversation
	err := c.write(func() error {
		body, err := c.doRPC(ctx, "upsert_conversation", args)
		if err != nil {
			return err
		}
		found, err := decodeFirst(body, &conv)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("upsert_conversation returned no row")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// IncrementUnread calls the increment_unread function. PostgREST has no
// column arithmetic, so the increment runs server-side.
func (c *Client) IncrementUnread(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.IncrementUnread")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", id))

	return c.write(func() error {
		_, err := c.doRPC(ctx, "increment_unread", map[string]any{"p_conversation_id": id})
		return err
	})
}

// FindConversation returns the conversation of a pair, or nil.
func (c *Client) FindConversation(ctx context.Context, customerNumber, businessNumber string) (*domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FindConversation")
	defer span.End()

	filter := eq("phone_number", customerNumber)
	if businessNumber == "" {
		filter += "&from_number=is.null"
	} else {
		filter += "&" + eq("from_number", businessNumber)
	}
	return getOne[domain.Conversation](ctx, c, "conversations", filter)
}

// GetConversation fetches a conversation by id.
func (c *Client) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetConversation")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", id))

	return getOne[domain.Conversation](ctx, c, "conversations", eq("id", id))
}

// ListConversations returns conversations ordered by latest activity.
func (c *Client) ListConversations(ctx context.Context, f domain.ConversationFilter) ([]domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListConversations")
	defer span.End()

	path := "conversations?order=last_message_time.desc.nullslast"
	if f.CompanyID != "" {
		path += "&" + eq("company_id", f.CompanyID)
	}
	if f.BusinessNumber != "" {
		path += "&" + eq("from_number", f.BusinessNumber)
	}
	if f.Limit > 0 {
		path += "&limit=" + strconv.Itoa(f.Limit)
	}

	convs := []domain.Conversation{}
	err := c.read(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil || len(body) == 0 {
			return err
		}
		return json.Unmarshal(body, &convs)
	})
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// MarkConversationRead resets unread_count to zero.
func (c *Client) MarkConversationRead(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.MarkConversationRead")
	defer span.End()

	return c.write(func() error {
		_, err := c.doPatch(ctx, "conversations?"+eq("id", id), map[string]any{
			"unread_count": 0,
			"updated_at":   time.Now().UTC().Format(time.RFC3339Nano),
		}, false)
		return err
	})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
