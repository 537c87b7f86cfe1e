package domain

import (
	"bytes"
	"encoding/json"
)

// MessageType discriminates the Content variants.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeImage       MessageType = "image"
	TypeVideo       MessageType = "video"
	TypeAudio       MessageType = "audio"
	TypeDocument    MessageType = "document"
	TypeSticker     MessageType = "sticker"
	TypeTemplate    MessageType = "template"
	TypeInteractive MessageType = "interactive"
	TypeLocation    MessageType = "location"
	TypeContact     MessageType = "contact"
	TypeReaction    MessageType = "reaction"
)

// Content is the type-specific payload of a message. Each variant reports
// its MessageType; RawContent carries payloads of types the console does
// not know yet.
type Content interface {
	Kind() MessageType
}

// TextContent is a plain text message.
type TextContent struct {
	Text       string `json:"text"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

func (TextContent) Kind() MessageType { return TypeText }

// MediaContent covers image, video, audio, sticker and document payloads.
// The same shape is used on the provider wire.
type MediaContent struct {
	Type     MessageType `json:"-"`
	Link     string      `json:"link,omitempty"`
	ID       string      `json:"id,omitempty"`
	MimeType string      `json:"mime_type,omitempty"`
	Caption  string      `json:"caption,omitempty"`
	Filename string      `json:"filename,omitempty"`
}

func (c MediaContent) Kind() MessageType { return c.Type }

// LocationContent is a shared or requested location.
type LocationContent struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
}

func (LocationContent) Kind() MessageType { return TypeLocation }

// ContactsContent keeps the provider's contact cards verbatim.
type ContactsContent struct {
	Contacts json.RawMessage `json:"contacts"`
}

func (ContactsContent) Kind() MessageType { return TypeContact }

// TextBody is the {"text": ...} object used by interactive bodies and footers.
type TextBody struct {
	Text string `json:"text"`
}

// InteractiveReply is the option a customer picked.
type InteractiveReply struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// InteractiveContent is an interactive message or the reply to one.
type InteractiveContent struct {
	Type        string            `json:"type"`
	Body        *TextBody         `json:"body,omitempty"`
	Header      json.RawMessage   `json:"header,omitempty"`
	Footer      *TextBody         `json:"footer,omitempty"`
	Action      json.RawMessage   `json:"action,omitempty"`
	ButtonReply *InteractiveReply `json:"button_reply,omitempty"`
	ListReply   *InteractiveReply `json:"list_reply,omitempty"`
}

func (InteractiveContent) Kind() MessageType { return TypeInteractive }

// Reply returns the selected option, if any.
func (c InteractiveContent) Reply() *InteractiveReply {
	if c.ListReply != nil {
		return c.ListReply
	}
	return c.ButtonReply
}

// TemplateLanguage selects the template translation.
type TemplateLanguage struct {
	Code   string `json:"code"`
	Policy string `json:"policy,omitempty"`
}

// TemplateContent references a pre-approved template.
type TemplateContent struct {
	Name       string            `json:"name"`
	Language   *TemplateLanguage `json:"language,omitempty"`
	Components json.RawMessage   `json:"components,omitempty"`
}

func (TemplateContent) Kind() MessageType { return TypeTemplate }

// ReactionContent is an emoji reaction to an earlier message.
type ReactionContent struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

func (ReactionContent) Kind() MessageType { return TypeReaction }

// RawContent is the unknown variant: the provider payload kept verbatim.
type RawContent struct {
	Type    MessageType
	Payload json.RawMessage
}

func (c RawContent) Kind() MessageType { return c.Type }

func (c RawContent) MarshalJSON() ([]byte, error) {
	if len(c.Payload) == 0 {
		return []byte("{}"), nil
	}
	return c.Payload, nil
}

// MarshalContent encodes content for storage. Nil content encodes as {}.
func MarshalContent(c Content) (json.RawMessage, error) {
	if c == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(c)
}

// DecodeContent rebuilds the variant for a stored message. It never fails:
// anything it cannot decode comes back as RawContent.
func DecodeContent(t MessageType, raw json.RawMessage) Content {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = json.RawMessage("{}")
	}

	var (
		c   Content
		err error
	)
	switch t {
	case TypeText:
		var v TextContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeImage, TypeVideo, TypeAudio, TypeDocument, TypeSticker:
		var v MediaContent
		err = json.Unmarshal(raw, &v)
		v.Type = t
		c = v
	case TypeLocation:
		var v LocationContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeContact:
		var v ContactsContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeInteractive:
		var v InteractiveContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeTemplate:
		var v TemplateContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeReaction:
		var v ReactionContent
		err = json.Unmarshal(raw, &v)
		c = v
	default:
		return RawContent{Type: t, Payload: raw}
	}
	if err != nil {
		return RawContent{Type: t, Payload: raw}
	}
	return c
}

// MarshalJSON writes the message with its content inlined.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias Message
	content, err := MarshalContent(m.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Content json.RawMessage `json:"content"`
	}{alias: alias(m), Content: content})
}

// UnmarshalJSON reads a stored message row and decodes its content variant.
func (m *Message) UnmarshalJSON(b []byte) error {
	type alias Message
	aux := struct {
		*alias
		Content json.RawMessage `json:"content"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	m.Content = DecodeContent(m.Type, aux.Content)
	return nil
}
