// Package domain defines the core entities of the WhatsApp console.
// These models are independent of the datastore and the provider, and
// represent the canonical data structures used throughout the service.
package domain

import "time"

// MessagingWindow is the customer-care window opened by an inbound message.
const MessagingWindow = 24 * time.Hour

// WAMIDPrefix is the prefix every WhatsApp message id carries.
const WAMIDPrefix = "wamid."

// ============================================================
// Tenancy
// ============================================================

// Subscription states of a company.
const (
	SubscriptionActive  = "active"
	SubscriptionLocked  = "locked"
	SubscriptionPastDue = "past_due"
)

// Company is the tenant boundary.
type Company struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	SubscriptionStatus string    `json:"subscription_status"`
	CreatedAt          time.Time `json:"created_at"`
}

// SendBlocked reports whether the subscription forbids outbound sends.
func (c *Company) SendBlocked() bool {
	return c.SubscriptionStatus == SubscriptionLocked || c.SubscriptionStatus == SubscriptionPastDue
}

// Roles of a console user.
const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
	RoleWorker     = "worker"
)

// User states.
const (
	UserActive   = "active"
	UserInactive = "inactive"
)

// UserProfile is a console user. ID equals the auth identity id.
type UserProfile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	CompanyID   string    `json:"company_id,omitempty"` // empty for superadmin
	CreatedAt   time.Time `json:"created_at"`
}

// IsSuperadmin reports whether the user bypasses tenant scoping.
func (u *UserProfile) IsSuperadmin() bool { return u.Role == RoleSuperadmin }

// CanManage reports whether the user may manage tenant settings and webhooks.
func (u *UserProfile) CanManage() bool {
	return u.Role == RoleSuperadmin || u.Role == RoleAdmin
}

// Business number approval states.
const (
	NumberPending  = "pending"
	NumberActive   = "active"
	NumberRejected = "rejected"
)

// BusinessNumber is a WhatsApp sender owned by a tenant.
type BusinessNumber struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	DisplayName string    `json:"display_name"`
	IsDefault   bool      `json:"is_default"`
	CompanyID   string    `json:"company_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"` // legacy per-user ownership
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// BusinessNumberFilter narrows a business number listing.
type BusinessNumberFilter struct {
	CompanyID string // empty means every tenant (superadmin)
	Status    string
}

// APISettings holds the provider credential of a tenant (or legacy user).
type APISettings struct {
	ID            string    `json:"id,omitempty"`
	CompanyID     string    `json:"company_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	YCloudAPIKey  string    `json:"ycloud_api_key"`
	WebhookSecret string    `json:"webhook_secret,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// QuickReply is a canned message of a tenant, picked by its shortcut in the
// composer. Media replies carry a media URL and an optional caption instead
// of text.
type QuickReply struct {
	ID          string      `json:"id"`
	CompanyID   string      `json:"company_id"`
	UserID      string      `json:"user_id,omitempty"` // creator
	Shortcut    string      `json:"shortcut"`
	Message     string      `json:"message,omitempty"`
	MessageType MessageType `json:"message_type"`
	MediaURL    string      `json:"media_url,omitempty"`
	Caption     string      `json:"caption,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ============================================================
// Conversations & messages
// ============================================================

// Conversation is the thread between one customer and one business number.
type Conversation struct {
	ID              string    `json:"id"`
	PhoneNumber     string    `json:"phone_number"`          // customer
	FromNumber      string    `json:"from_number,omitempty"` // business; empty on legacy rows
	CompanyID       string    `json:"company_id,omitempty"`
	ContactName     string    `json:"contact_name"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ConversationUpsert is the input of the atomic find-or-create-and-bump.
type ConversationUpsert struct {
	CustomerNumber  string
	BusinessNumber  string
	CompanyID       string
	ContactName     string
	LastMessage     string
	LastMessageTime time.Time
}

// ConversationFilter narrows a conversation listing.
type ConversationFilter struct {
	CompanyID      string // empty means every tenant (superadmin)
	BusinessNumber string
	Limit          int
}

// Direction of a message relative to the business.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Message delivery states.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// ParseStatus maps a provider status onto the stored status set.
func ParseStatus(s string) (string, bool) {
	switch s {
	case StatusPending, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return s, true
	case "accepted":
		return StatusSent, true
	}
	return "", false
}

// MessageContext is the reply metadata of a message.
type MessageContext struct {
	From      string `json:"from,omitempty"`
	ID        string `json:"id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Ref returns the referenced provider message id.
func (c *MessageContext) Ref() string {
	if c == nil {
		return ""
	}
	if c.ID != "" {
		return c.ID
	}
	return c.MessageID
}

// Message is one stored WhatsApp message. Content is immutable after insert;
// only Status changes.
type Message struct {
	ID               string          `json:"id"`
	ConversationID   string          `json:"conversation_id"`
	MessageID        string          `json:"message_id,omitempty"` // provider id
	FromNumber       string          `json:"from_number,omitempty"`
	Direction        Direction       `json:"direction"`
	Type             MessageType     `json:"message_type"`
	Content          Content         `json:"-"`
	Status           string          `json:"status"`
	Timestamp        time.Time       `json:"timestamp"`
	CreatedAt        time.Time       `json:"created_at"`
	ReplyToMessageID string          `json:"reply_to_message_id,omitempty"`
	Context          *MessageContext `json:"context,omitempty"`
}
