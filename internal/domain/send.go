package domain

import "encoding/json"

// ============================================================
// Outbound send: POST /v1/messages/send
// ============================================================

// SendAction names an outbound send kind.
type SendAction string

const (
	ActionSendText        SendAction = "send_text"
	ActionSendMedia       SendAction = "send_media"
	ActionSendTemplate    SendAction = "send_template"
	ActionSendInteractive SendAction = "send_interactive"
	ActionSendLocation    SendAction = "send_location"
	ActionSendContact     SendAction = "send_contact"
	ActionSendReaction    SendAction = "send_reaction"
)

// SendRequest is the canonical outbound send request.
type SendRequest struct {
	Action SendAction      `json:"action"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Data   json.RawMessage `json:"data"`
}

// TextData is the data of send_text.
type TextData struct {
	Text       string          `json:"text"`
	PreviewURL bool            `json:"preview_url"`
	Context    *MessageContext `json:"context,omitempty"`
}

// MediaData is the data of send_media.
type MediaData struct {
	Type    string `json:"type"`
	Link    string `json:"link"`
	Caption string `json:"caption"`
}

// TemplateData is the data of send_template.
type TemplateData struct {
	Name       string          `json:"name"`
	Language   string          `json:"language"`
	Components json.RawMessage `json:"components"`
}

// InteractiveData is the data of send_interactive.
type InteractiveData struct {
	InteractiveType string          `json:"interactive_type"`
	BodyText        string          `json:"body_text"`
	Action          json.RawMessage `json:"action"`
	Header          json.RawMessage `json:"header,omitempty"`
	Footer          string          `json:"footer,omitempty"`
}

// LocationData is the data of send_location.
type LocationData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
}

// ContactData is the data of send_contact.
type ContactData struct {
	Contacts json.RawMessage `json:"contacts"`
}

// ReactionData is the data of send_reaction.
type ReactionData struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// SendResponse is returned on a successful send.
type SendResponse struct {
	Success          bool            `json:"success"`
	Message          *Message        `json:"message"`
	ProviderResponse json.RawMessage `json:"provider_response,omitempty"`
}

// Principal is the authenticated caller after the authorization gate.
type Principal struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id,omitempty"`
	Role     string `json:"role"`
}

// IsSuperadmin reports whether the principal bypasses tenant scoping.
func (p *Principal) IsSuperadmin() bool { return p.Role == RoleSuperadmin }
