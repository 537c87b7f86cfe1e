package domain

import (
	"encoding/json"
	"strings"
)

// ============================================================
// YCloud webhook envelope
// ============================================================

// Webhook event types, without the "whatsapp." prefix.
const (
	EventInboundReceived = "inbound_message.received"
	EventMessageUpdated  = "message.updated"
	EventSMBEchoes       = "smb.message.echoes"
	EventMessageSent     = "message.sent"
	EventOutboundSent    = "outbound_message.sent"
)

// WebhookEvent is the envelope YCloud posts to the webhook endpoint.
type WebhookEvent struct {
	ID             string           `json:"id"`
	Type           string           `json:"type"`
	APIVersion     string           `json:"apiVersion,omitempty"`
	CreateTime     string           `json:"createTime,omitempty"`
	InboundMessage *ProviderMessage `json:"whatsappInboundMessage,omitempty"`
	Message        *ProviderMessage `json:"whatsappMessage,omitempty"`
}

// EventType returns the type with the optional "whatsapp." prefix removed.
func (e *WebhookEvent) EventType() string {
	return strings.TrimPrefix(e.Type, "whatsapp.")
}

// Payload returns whichever message object the event carries.
func (e *WebhookEvent) Payload() *ProviderMessage {
	if e.InboundMessage != nil {
		return e.InboundMessage
	}
	return e.Message
}

// ProviderText is the wire shape of a text payload.
type ProviderText struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

// CustomerProfile is the WhatsApp profile attached to inbound messages.
type CustomerProfile struct {
	Name string `json:"name"`
}

// ProviderMessage is a WhatsApp message as YCloud sends and receives it.
// Decoding is lenient: a malformed sub-object is dropped instead of failing
// the whole delivery.
type ProviderMessage struct {
	ID              string              `json:"id,omitempty"`
	WAMID           string              `json:"wamid,omitempty"`
	WABAID          string              `json:"wabaId,omitempty"`
	From            string              `json:"from"`
	To              string              `json:"to"`
	Type            string              `json:"type"`
	Status          string              `json:"status,omitempty"`
	SendTime        string              `json:"sendTime,omitempty"`
	Text            *ProviderText       `json:"text,omitempty"`
	Image           *MediaContent       `json:"image,omitempty"`
	Video           *MediaContent       `json:"video,omitempty"`
	Audio           *MediaContent       `json:"audio,omitempty"`
	Document        *MediaContent       `json:"document,omitempty"`
	Sticker         *MediaContent       `json:"sticker,omitempty"`
	Location        *LocationContent    `json:"location,omitempty"`
	Contacts        json.RawMessage     `json:"contacts,omitempty"`
	Interactive     *InteractiveContent `json:"interactive,omitempty"`
	Template        *TemplateContent    `json:"template,omitempty"`
	Reaction        *ReactionContent    `json:"reaction,omitempty"`
	Context         *MessageContext     `json:"context,omitempty"`
	CustomerProfile *CustomerProfile    `json:"customerProfile,omitempty"`

	fields map[string]json.RawMessage
}

// ProviderID is the id status updates and reactions refer to.
func (m *ProviderMessage) ProviderID() string {
	if m.WAMID != "" {
		return m.WAMID
	}
	return m.ID
}

// Field returns the raw JSON of a top-level field as received.
func (m *ProviderMessage) Field(key string) json.RawMessage {
	return m.fields[key]
}

// UnmarshalJSON decodes field by field so that one bad sub-object does not
// lose the rest of the message.
func (m *ProviderMessage) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		*m = ProviderMessage{}
		return nil
	}

	str := func(key string) string {
		var s string
		_ = json.Unmarshal(fields[key], &s)
		return s
	}

	*m = ProviderMessage{
		ID:              str("id"),
		WAMID:           str("wamid"),
		WABAID:          str("wabaId"),
		From:            str("from"),
		To:              str("to"),
		Type:            str("type"),
		Status:          str("status"),
		SendTime:        str("sendTime"),
		Text:            decodeLenient[ProviderText](fields["text"]),
		Image:           decodeLenient[MediaContent](fields["image"]),
		Video:           decodeLenient[MediaContent](fields["video"]),
		Audio:           decodeLenient[MediaContent](fields["audio"]),
		Document:        decodeLenient[MediaContent](fields["document"]),
		Sticker:         decodeLenient[MediaContent](fields["sticker"]),
		Location:        decodeLenient[LocationContent](fields["location"]),
		Interactive:     decodeLenient[InteractiveContent](fields["interactive"]),
		Template:        decodeLenient[TemplateContent](fields["template"]),
		Reaction:        decodeLenient[ReactionContent](fields["reaction"]),
		Context:         decodeLenient[MessageContext](fields["context"]),
		CustomerProfile: decodeLenient[CustomerProfile](fields["customerProfile"]),
		fields:          fields,
	}
	if raw, ok := fields["contacts"]; ok && len(raw) > 0 && raw[0] == '[' {
		m.Contacts = raw
	}
	return nil
}

func decodeLenient[T any](raw json.RawMessage) *T {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

// SendResult is YCloud's answer to a successful send.
type SendResult struct {
	ID     string          `json:"id"`
	WAMID  string          `json:"wamid,omitempty"`
	Status string          `json:"status,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// ProviderID is the id webhooks will use for this message.
func (r *SendResult) ProviderID() string {
	if r.WAMID != "" {
		return r.WAMID
	}
	return r.ID
}

// ============================================================
// Webhook endpoint management
// ============================================================

// WebhookEndpointRequest is the body of the webhook-management create/update calls.
type WebhookEndpointRequest struct {
	ID            string   `json:"id,omitempty"`
	URL           string   `json:"url,omitempty"`
	EnabledEvents []string `json:"enabledEvents,omitempty"`
	Description   string   `json:"description,omitempty"`
	Status        string   `json:"status,omitempty"`
}

// DefaultWebhookEvents are subscribed when a create request names none.
var DefaultWebhookEvents = []string{
	"whatsapp." + EventInboundReceived,
	"whatsapp." + EventMessageUpdated,
	"whatsapp." + EventSMBEchoes,
}
