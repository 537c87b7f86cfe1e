package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/infra/observability"
	"github.com/boddenberg/whatsapp-console/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// WebhookOutcome reports what the router did with one delivery.
type WebhookOutcome string

const (
	OutcomeProcessed WebhookOutcome = "processed"
	OutcomeDuplicate WebhookOutcome = "duplicate"
	OutcomeIgnored   WebhookOutcome = "ignored"
	OutcomeFailed    WebhookOutcome = "failed"
)

type eventHandler func(ctx context.Context, evt *domain.WebhookEvent) error

// WebhookRouter classifies YCloud webhook events and applies them to the
// conversation and message stores.
type WebhookRouter struct {
	conversations *ConversationService
	messages      *MessageService
	tenants       port.TenantStore
	tracker       port.DeliveryTracker
	now           port.Clock
	metrics       *observability.Metrics
	logger        *zap.Logger

	handlers map[string]eventHandler
}

// NewWebhookRouter wires the router. tracker may be nil, in which case
// redeliveries are only caught by the message id uniqueness.
func NewWebhookRouter(
	conversations *ConversationService,
	messages *MessageService,
	tenants port.TenantStore,
	tracker port.DeliveryTracker,
	now port.Clock,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *WebhookRouter {
	if now == nil {
		now = time.Now
	}
	r := &WebhookRouter{
		conversations: conversations,
		messages:      messages,
		tenants:       tenants,
		tracker:       tracker,
		now:           now,
		metrics:       metrics,
		logger:        logger,
	}
	r.handlers = map[string]eventHandler{
		domain.EventInboundReceived: r.handleInbound,
		domain.EventMessageUpdated:  r.handleStatus,
		domain.EventSMBEchoes:       r.handleEcho,
		domain.EventMessageSent:     r.handleEcho,
		domain.EventOutboundSent:    r.handleEcho,
	}
	return r
}

// Route applies one event. Unknown event types are acknowledged and ignored.
func (r *WebhookRouter) Route(ctx context.Context, evt *domain.WebhookEvent) (WebhookOutcome, error) {
	ctx, span := tracer.Start(ctx, "WebhookRouter.Route")
	defer span.End()

	eventType := evt.EventType()
	span.SetAttributes(
		attribute.String("webhook.event_id", evt.ID),
		attribute.String("webhook.event_type", eventType),
	)

	handle, ok := r.handlers[eventType]
	if !ok {
		r.logger.Info("webhook event ignored", zap.String("event_type", evt.Type), zap.String("event_id", evt.ID))
		r.metrics.IncrWebhookEvent(eventType, string(OutcomeIgnored))
		return OutcomeIgnored, nil
	}

	key := deliveryKey(evt)
	if r.tracker != nil && key != "" {
		first, err := r.tracker.MarkSeen(ctx, key)
		if err != nil {
			// Fall through: the message id constraint still protects the store.
			r.logger.Warn("delivery tracker unavailable", zap.String("event_id", key), zap.Error(err))
		} else if !first {
			r.metrics.IncrWebhookEvent(eventType, string(OutcomeDuplicate))
			return OutcomeDuplicate, nil
		}
	}

	start := time.Now()
	err := handle(ctx, evt)
	r.metrics.RecordRequestDuration("webhook_"+eventType, time.Since(start))

	var dup *domain.ErrDuplicate
	switch {
	case errors.As(err, &dup):
		r.metrics.IncrWebhookEvent(eventType, string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	case err != nil:
		span.RecordError(err)
		if r.tracker != nil && key != "" {
			if ferr := r.tracker.Forget(ctx, key); ferr != nil {
				r.logger.Warn("delivery tracker forget failed", zap.String("event_id", key), zap.Error(ferr))
			}
		}
		r.logger.Error("webhook event failed",
			zap.String("event_type", eventType),
			zap.String("event_id", evt.ID),
			zap.Error(err),
		)
		r.metrics.IncrWebhookEvent(eventType, string(OutcomeFailed))
		return OutcomeFailed, err
	}

	r.metrics.IncrWebhookEvent(eventType, string(OutcomeProcessed))
	return OutcomeProcessed, nil
}

func deliveryKey(evt *domain.WebhookEvent) string {
	if evt.ID != "" {
		return evt.ID
	}
	if m := evt.Payload(); m != nil && m.ProviderID() != "" {
		return evt.EventType() + ":" + m.ProviderID() + ":" + m.Status
	}
	return ""
}

func (r *WebhookRouter) handleInbound(ctx context.Context, evt *domain.WebhookEvent) error {
	msg := evt.InboundMessage
	if msg == nil {
		return &domain.ErrValidation{Field: "whatsappInboundMessage", Message: "is required"}
	}
	contact := ""
	if msg.CustomerProfile != nil {
		contact = msg.CustomerProfile.Name
	}
	return r.recordMessage(ctx, msg, recordInput{
		direction: domain.Inbound,
		customer:  msg.From,
		business:  msg.To,
		contact:   contact,
		status:    domain.StatusRead,
	})
}

// handleEcho records messages the business sent from another client (the
// WhatsApp Business app) or the provider confirms as sent.
func (r *WebhookRouter) handleEcho(ctx context.Context, evt *domain.WebhookEvent) error {
	msg := evt.Message
	if msg == nil {
		return &domain.ErrValidation{Field: "whatsappMessage", Message: "is required"}
	}
	status, ok := domain.ParseStatus(msg.Status)
	if !ok {
		status = domain.StatusSent
	}
	return r.recordMessage(ctx, msg, recordInput{
		direction: domain.Outbound,
		customer:  msg.To,
		business:  msg.From,
		status:    status,
	})
}

func (r *WebhookRouter) handleStatus(ctx context.Context, evt *domain.WebhookEvent) error {
	msg := evt.Message
	if msg == nil {
		return &domain.ErrValidation{Field: "whatsappMessage", Message: "is required"}
	}
	return r.messages.UpdateStatus(ctx, msg.ProviderID(), msg.Status)
}

type recordInput struct {
	direction domain.Direction
	customer  string
	business  string
	contact   string
	status    string
}

func (r *WebhookRouter) recordMessage(ctx context.Context, msg *domain.ProviderMessage, in recordInput) error {
	providerID := msg.ProviderID()
	if providerID == "" {
		return &domain.ErrValidation{Field: "id", Message: "provider message id is required"}
	}
	if in.customer == "" {
		return &domain.ErrValidation{Field: "customer_number", Message: "is required"}
	}

	// Sequential redeliveries stop here without touching the conversation.
	// Concurrent copies are settled by the message insert below.
	exists, err := r.messages.Exists(ctx, providerID)
	if err != nil {
		return err
	}
	if exists {
		return &domain.ErrDuplicate{Key: providerID}
	}

	ts := parseSendTime(msg.SendTime, r.now())
	norm := Normalize(msg, in.direction)

	var conv *domain.Conversation
	if norm.Type == domain.TypeReaction {
		// Reactions attach to an existing thread and never move it.
		conv, err = r.conversations.FindExisting(ctx, in.customer, in.business)
		if err != nil {
			return err
		}
	} else {
		tenantID, err := r.tenantOf(ctx, in.business)
		if err != nil {
			return err
		}
		conv, err = r.conversations.Resolve(ctx, ResolveInput{
			CustomerNumber: in.customer,
			BusinessNumber: in.business,
			TenantID:       tenantID,
			ContactName:    in.contact,
			Preview:        norm.Preview,
			Timestamp:      ts,
			Direction:      in.direction,
		})
		if err != nil {
			return err
		}
	}

	m := &domain.Message{
		ConversationID: conv.ID,
		MessageID:      providerID,
		FromNumber:     msg.From,
		Direction:      in.direction,
		Type:           norm.Type,
		Content:        norm.Content,
		Status:         in.status,
		Timestamp:      ts,
		Context:        msg.Context,
	}
	if ref := msg.Context.Ref(); ref != "" {
		m.ReplyToMessageID = ref
	}
	if rc, ok := norm.Content.(domain.ReactionContent); ok {
		m.ReplyToMessageID = rc.MessageID
	}

	outcome, err := r.messages.Store(ctx, m)
	if err != nil {
		return err
	}
	if outcome.DuplicateSkipped {
		return &domain.ErrDuplicate{Key: providerID}
	}

	// Only the delivery that inserted the message counts toward unread.
	if in.direction == domain.Inbound && norm.Type != domain.TypeReaction {
		if err := r.conversations.CountUnread(ctx, conv.ID); err != nil {
			return err
		}
	}
	return nil
}

// tenantOf returns the company owning a business number, or "" when the
// number is not registered.
func (r *WebhookRouter) tenantOf(ctx context.Context, business string) (string, error) {
	if business == "" {
		return "", nil
	}
	bn, err := r.tenants.GetBusinessNumberByPhone(ctx, business)
	if err != nil {
		return "", storeFailure("get business number", err)
	}
	if bn == nil {
		r.logger.Warn("webhook for unregistered business number", zap.String("business_number", business))
		return "", nil
	}
	return bn.CompanyID, nil
}

// parseSendTime accepts RFC 3339 or unix seconds and falls back to now.
func parseSendTime(s string, now time.Time) time.Time {
	if s == "" {
		return now
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	return now
}
