package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/infra/observability"
	"github.com/boddenberg/whatsapp-console/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Dispatcher is the outbound send gateway: it authorizes a send, enforces the
// messaging window, calls the provider and records what was sent.
type Dispatcher struct {
	tenants       port.TenantStore
	gate          *Gate
	conversations *ConversationService
	messages      *MessageService
	provider      port.MessageProvider
	now           port.Clock
	enforceWindow bool
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// DispatcherOptions tunes the dispatcher.
type DispatcherOptions struct {
	EnforceWindow bool
	Now           port.Clock
}

// NewDispatcher creates the dispatch gateway.
func NewDispatcher(
	tenants port.TenantStore,
	gate *Gate,
	conversations *ConversationService,
	messages *MessageService,
	provider port.MessageProvider,
	opts DispatcherOptions,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Dispatcher {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		tenants:       tenants,
		gate:          gate,
		conversations: conversations,
		messages:      messages,
		provider:      provider,
		now:           now,
		enforceWindow: opts.EnforceWindow,
		metrics:       metrics,
		logger:        logger,
	}
}

// Send delivers req on behalf of the token's user. Nothing is stored unless
// the provider accepted the message.
func (d *Dispatcher) Send(ctx context.Context, token string, req *domain.SendRequest) (*domain.SendResponse, error) {
	ctx, span := tracer.Start(ctx, "Dispatcher.Send")
	defer span.End()
	span.SetAttributes(
		attribute.String("send.action", string(req.Action)),
		attribute.String("send.from", req.From),
		attribute.String("send.to", req.To),
	)

	start := time.Now()
	resp, err := d.send(ctx, token, req)
	d.metrics.RecordRequestDuration("send", time.Since(start))

	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		d.logger.Warn("send failed",
			zap.String("action", string(req.Action)),
			zap.String("from", req.From),
			zap.String("to", req.To),
			zap.Error(err),
		)
	}
	d.metrics.IncrSend(string(req.Action), outcome)
	return resp, err
}

func (d *Dispatcher) send(ctx context.Context, token string, req *domain.SendRequest) (*domain.SendResponse, error) {
	if req.From == "" {
		return nil, &domain.ErrValidation{Field: "from", Message: "from_number is required"}
	}
	if req.To == "" {
		return nil, &domain.ErrValidation{Field: "to", Message: "to is required"}
	}

	number, err := d.tenants.GetBusinessNumberByPhone(ctx, req.From)
	if err != nil {
		return nil, storeFailure("get business number", err)
	}
	if number == nil {
		return nil, &domain.ErrNotFound{Resource: "business number", ID: req.From}
	}

	if _, err := d.gate.Authorize(ctx, token, ActionSend, Resource{CompanyID: number.CompanyID, OwnerUserID: number.UserID}); err != nil {
		return nil, err
	}

	settings, err := d.tenants.GetAPISettings(ctx, number.CompanyID, number.UserID)
	if err != nil {
		return nil, storeFailure("get api settings", err)
	}
	if settings == nil || settings.YCloudAPIKey == "" {
		return nil, &domain.ErrNotFound{Resource: "api settings", ID: req.From}
	}

	payload, err := BuildProviderMessage(req)
	if err != nil {
		return nil, err
	}

	var conv *domain.Conversation
	if req.Action == domain.ActionSendReaction {
		conv, err = d.conversations.FindExisting(ctx, req.To, req.From)
		if err != nil {
			return nil, err
		}
	}

	if d.enforceWindow && req.Action != domain.ActionSendTemplate {
		if err := d.checkWindow(ctx, conv, req); err != nil {
			return nil, err
		}
	}

	result, err := d.provider.SendMessage(ctx, settings.YCloudAPIKey, payload)
	if err != nil {
		d.metrics.IncrExternalError("ycloud")
		var dispatch *domain.ErrDispatchFailed
		var circuit *domain.ErrCircuitOpen
		if errors.As(err, &dispatch) || errors.As(err, &circuit) {
			return nil, err
		}
		return nil, &domain.ErrDispatchFailed{Err: err}
	}

	now := d.now()
	norm := Normalize(payload, domain.Outbound)
	if conv == nil {
		conv, err = d.conversations.Resolve(ctx, ResolveInput{
			CustomerNumber: req.To,
			BusinessNumber: req.From,
			TenantID:       number.CompanyID,
			Preview:        norm.Preview,
			Timestamp:      now,
			Direction:      domain.Outbound,
		})
		if err != nil {
			return nil, err
		}
	}

	msg := &domain.Message{
		ConversationID: conv.ID,
		MessageID:      result.ProviderID(),
		FromNumber:     req.From,
		Direction:      domain.Outbound,
		Type:           norm.Type,
		Content:        norm.Content,
		Status:         domain.StatusSent,
		Timestamp:      now,
		Context:        payload.Context,
	}
	if ref := payload.Context.Ref(); ref != "" {
		msg.ReplyToMessageID = ref
	}
	if r, ok := norm.Content.(domain.ReactionContent); ok {
		msg.ReplyToMessageID = r.MessageID
	}

	outcome, err := d.messages.Store(ctx, msg)
	if err != nil {
		d.logger.Error("message sent but not recorded",
			zap.String("message_id", msg.MessageID),
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return nil, err
	}
	stored := outcome.Message
	if outcome.DuplicateSkipped {
		// A sent-confirmation webhook recorded it first.
		if stored, err = d.messages.Get(ctx, msg.MessageID); err != nil || stored == nil {
			stored = msg
		}
	}

	return &domain.SendResponse{
		Success:          true,
		Message:          stored,
		ProviderResponse: result.Raw,
	}, nil
}

func (d *Dispatcher) checkWindow(ctx context.Context, conv *domain.Conversation, req *domain.SendRequest) error {
	if conv == nil {
		c, err := d.conversations.store.FindConversation(ctx, req.To, req.From)
		if err != nil {
			return storeFailure("find conversation", err)
		}
		if c == nil {
			return &domain.ErrWindowClosed{}
		}
		conv = c
	}

	last, err := d.messages.store.LatestInboundMessage(ctx, conv.ID)
	if err != nil {
		return storeFailure("latest inbound message", err)
	}
	if !WindowAfter(last, d.now()).Open {
		var at *time.Time
		if last != nil {
			at = &last.Timestamp
		}
		return &domain.ErrWindowClosed{LastInbound: at}
	}
	return nil
}

// BuildProviderMessage translates a send request into YCloud's wire schema.
func BuildProviderMessage(req *domain.SendRequest) (*domain.ProviderMessage, error) {
	msg := &domain.ProviderMessage{From: req.From, To: req.To}

	switch req.Action {
	case domain.ActionSendText:
		var data domain.TextData
		if err := decodeData(req.Data, &data); err != nil {
			return nil, err
		}
		if data.Text == "" {
			return nil, &domain.ErrValidation{Field: "data.text", Message: "is required"}
		}
		msg.Type = "text"
		msg.Text = &domain.ProviderText{Body: data.Text, PreviewURL: data.PreviewURL}
		msg.Context = data.Context

	case domain.ActionSendMedia:
		var data domain.MediaData
		if err := decodeData(req.Data, &data); err != nil {
			return nil, err
		}
		if data.Link == "" {
			return nil, &domain.ErrValidation{Field: "data.link", Message: "is required"}
		}
		media := &domain.MediaContent{Link: data.Link}
		switch data.Type {
		case "image":
			media.Caption = data.Caption
			msg.Image = media
		case "video":
			media.Caption = data.Caption
			msg.Video = media
		case "document":
			media.Caption = data.Caption
			msg.Document = media
		case "audio":
			msg.Audio = media
		default:
			return nil, &domain.ErrValidation{Field: "data.type", Message: "must be image, video, audio or document"}
		}
		msg.Type = data.Type

	case domain.ActionSendTemplate:
		var data domain.TemplateData
		if err := decodeData(req.Data, &data); err != nil {
			return nil, err
		}
		if data.Name == "" {
			return nil, &domain.ErrValidation{Field: "data.name", Message: "is required"}
		}
		lang := data.Language
		if lang == "" {
			lang = "en"
		}
		components := data.Components
		if len(bytes.TrimSpace(components)) == 0 || string(components) == "null" {
			components = json.RawMessage("[]")
		}
		msg.Type = "template"
		msg.Template = &domain.TemplateContent{
			Name:       data.Name,
			Language:   &domain.TemplateLanguage{Code: lang},
			Components: components,
		}

	case domain.ActionSendInteractive:
		var data domain.InteractiveData
		if err := decodeData(req.Data, &data); err != nil {
			return nil, err
		}
		if data.InteractiveType == "" {
			return nil, &domain.ErrValidation{Field: "data.interactive_type", Message: "is required"}
		}
		ic := &domain.InteractiveContent{
			Type:   data.InteractiveType,
			Body:   &domain.TextBody{Text: data.BodyText},
			Action: data.Action,
		}
		if len(data.Header) > 0 && string(data.Header) != "null" {
			ic.Header = data.Header
		}
		if data.Footer != "" {
			ic.Footer = &domain.TextBody{Text: data.Footer}
		}
		msg.Type = "interactive"
		msg.Interactive = ic

	case domain.ActionSendLocation:
		var data domain.LocationData
		if err := decodeData(req.Data, &data); err != nil {
			return nil, err
		}
		msg.Type = "location"
		msg.Location = &domain.LocationContent{
			Latitude:  data.Latitude,
			Longitude: data.Longitude,
			Name:      data.Name,
			Address:   data.Address,
		}

	case domain.ActionSendContact:
		var data domain.ContactData
		if err := decodeData(req.Data, &data); err != nil {
			return nil, err
		}
		if len(data.Contacts) == 0 || data.Contacts[0] != '[' {
			return nil, &domain.ErrValidation{Field: "data.contacts", Message: "must be a list"}
		}
		msg.Type = "contacts"
		msg.Contacts = data.Contacts

	case domain.ActionSendReaction:
		var data domain.ReactionData
		if err := decodeData(req.Data, &data); err != nil {
			return nil, err
		}
		if !strings.HasPrefix(data.MessageID, domain.WAMIDPrefix) {
			return nil, &domain.ErrInvalidReference{Reference: data.MessageID}
		}
		msg.Type = "reaction"
		msg.Reaction = &domain.ReactionContent{MessageID: data.MessageID, Emoji: data.Emoji}

	default:
		return nil, &domain.ErrValidation{Field: "action", Message: "invalid action " + string(req.Action)}
	}

	return msg, nil
}

func decodeData(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &domain.ErrValidation{Field: "data", Message: err.Error()}
	}
	return nil
}
