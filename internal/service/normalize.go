package service

import (
	"encoding/json"

	"github.com/boddenberg/whatsapp-console/internal/domain"
)

// Normalized is the canonical form of a provider message.
type Normalized struct {
	Type    domain.MessageType
	Content domain.Content
	Preview string // conversation-list text
}

// Normalize maps a provider message to its canonical type, content and
// preview. It is pure and total: missing or malformed payloads produce empty
// content and a generic label, and unknown types pass through verbatim.
func Normalize(msg *domain.ProviderMessage, dir domain.Direction) Normalized {
	if msg == nil {
		msg = &domain.ProviderMessage{}
	}
	fallback := "New message"
	if dir == domain.Outbound {
		fallback = "Message sent"
	}

	switch msg.Type {
	case "text":
		var c domain.TextContent
		if msg.Text != nil {
			c = domain.TextContent{Text: msg.Text.Body, PreviewURL: msg.Text.PreviewURL}
		}
		return Normalized{Type: domain.TypeText, Content: c, Preview: orDefault(c.Text, fallback)}

	case "image", "video", "audio", "document", "sticker":
		t := domain.MessageType(msg.Type)
		c := mediaOf(msg, t)
		return Normalized{Type: t, Content: c, Preview: mediaPreview(c)}

	case "location":
		var c domain.LocationContent
		if msg.Location != nil {
			c = *msg.Location
		}
		return Normalized{Type: domain.TypeLocation, Content: c, Preview: "Location"}

	case "contacts", "contact":
		contacts := msg.Contacts
		if len(contacts) == 0 {
			contacts = json.RawMessage("[]")
		}
		return Normalized{Type: domain.TypeContact, Content: domain.ContactsContent{Contacts: contacts}, Preview: "Contact"}

	case "interactive":
		var c domain.InteractiveContent
		if msg.Interactive != nil {
			c = *msg.Interactive
		}
		return Normalized{Type: domain.TypeInteractive, Content: c, Preview: interactivePreview(c, dir)}

	case "template":
		var c domain.TemplateContent
		if msg.Template != nil {
			c = *msg.Template
		}
		return Normalized{Type: domain.TypeTemplate, Content: c, Preview: "Template message"}

	case "reaction":
		var c domain.ReactionContent
		if msg.Reaction != nil {
			c = *msg.Reaction
		}
		return Normalized{Type: domain.TypeReaction, Content: c, Preview: orDefault(c.Emoji, "Reaction")}
	}

	t := domain.MessageType(msg.Type)
	payload := msg.Field(msg.Type)
	if msg.Type == "" || len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return Normalized{Type: t, Content: domain.RawContent{Type: t, Payload: payload}, Preview: fallback}
}

func mediaOf(msg *domain.ProviderMessage, t domain.MessageType) domain.MediaContent {
	var src *domain.MediaContent
	switch t {
	case domain.TypeImage:
		src = msg.Image
	case domain.TypeVideo:
		src = msg.Video
	case domain.TypeAudio:
		src = msg.Audio
	case domain.TypeDocument:
		src = msg.Document
	case domain.TypeSticker:
		src = msg.Sticker
	}
	var c domain.MediaContent
	if src != nil {
		c = *src
	}
	c.Type = t
	return c
}

func mediaPreview(c domain.MediaContent) string {
	switch c.Type {
	case domain.TypeImage:
		return orDefault(c.Caption, "Image")
	case domain.TypeVideo:
		return orDefault(c.Caption, "Video")
	case domain.TypeAudio:
		return "Audio"
	case domain.TypeDocument:
		return orDefault(c.Filename, "Document")
	default:
		return "Sticker"
	}
}

func interactivePreview(c domain.InteractiveContent, dir domain.Direction) string {
	if r := c.Reply(); r != nil && r.Title != "" {
		return r.Title
	}
	if c.Type == "location_request_message" {
		return "Location request"
	}
	if c.Body != nil && c.Body.Text != "" {
		return c.Body.Text
	}
	if dir == domain.Inbound {
		return "Interactive response"
	}
	return "Interactive message"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
