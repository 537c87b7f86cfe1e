// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"encoding/json"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"
)

// TenantStore reads and mutates tenants, users, business numbers and credentials.
// Lookups return (nil, nil) when the row does not exist.
type TenantStore interface {
	GetCompany(ctx context.Context, id string) (*domain.Company, error)
	SetCompanyStatus(ctx context.Context, id, status string) error

	GetUserProfile(ctx context.Context, id string) (*domain.UserProfile, error)
	// ListUserProfiles returns users newest first; an empty companyID lists every tenant.
	ListUserProfiles(ctx context.Context, companyID string) ([]domain.UserProfile, error)
	SetUserStatus(ctx context.Context, id, status string) error

	GetBusinessNumber(ctx context.Context, id string) (*domain.BusinessNumber, error)
	GetBusinessNumberByPhone(ctx context.Context, phone string) (*domain.BusinessNumber, error)
	// CreateBusinessNumber returns *domain.ErrDuplicate when the phone number is taken.
	CreateBusinessNumber(ctx context.Context, b *domain.BusinessNumber) (*domain.BusinessNumber, error)
	// ListBusinessNumbers returns numbers newest first.
	ListBusinessNumbers(ctx context.Context, f domain.BusinessNumberFilter) ([]domain.BusinessNumber, error)
	DeleteBusinessNumber(ctx context.Context, id string) error
	SetBusinessNumberStatus(ctx context.Context, id, status string) error
	// SetDefaultBusinessNumber clears every other default of the company, then sets id.
	SetDefaultBusinessNumber(ctx context.Context, companyID, id string) error

	// GetAPISettings looks up by company first, then by legacy user id.
	GetAPISettings(ctx context.Context, companyID, userID string) (*domain.APISettings, error)
	UpsertAPISettings(ctx context.Context, s *domain.APISettings) error
}

// ConversationStore persists conversations. UpsertConversation is the single
// atomic insert-or-bump every write path goes through; it never touches
// unread_count.
type ConversationStore interface {
	UpsertConversation(ctx context.Context, in domain.ConversationUpsert) (*domain.Conversation, error)
	// IncrementUnread atomically adds one to unread_count.
	IncrementUnread(ctx context.Context, id string) error
	FindConversation(ctx context.Context, customerNumber, businessNumber string) (*domain.Conversation, error)
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, f domain.ConversationFilter) ([]domain.Conversation, error)
	MarkConversationRead(ctx context.Context, id string) error
}

// MessageStore persists messages.
type MessageStore interface {
	// InsertMessage returns *domain.ErrDuplicate when message_id already exists.
	InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error)
	GetMessageByProviderID(ctx context.Context, providerID string) (*domain.Message, error)
	// UpdateMessageStatus reports whether a row matched.
	UpdateMessageStatus(ctx context.Context, providerID, status string) (bool, error)
	// ListMessages returns the newest limit messages of the conversation,
	// ordered by timestamp ascending.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	LatestInboundMessage(ctx context.Context, conversationID string) (*domain.Message, error)
}

// QuickReplyStore persists a tenant's canned replies.
type QuickReplyStore interface {
	// ListQuickReplies returns the company's replies ordered by shortcut.
	ListQuickReplies(ctx context.Context, companyID string) ([]domain.QuickReply, error)
	GetQuickReply(ctx context.Context, id string) (*domain.QuickReply, error)
	CreateQuickReply(ctx context.Context, q *domain.QuickReply) (*domain.QuickReply, error)
	// UpdateQuickReply rewrites the message and caption of an existing reply.
	UpdateQuickReply(ctx context.Context, q *domain.QuickReply) error
	DeleteQuickReply(ctx context.Context, id string) error
}

// Store is the full persistence port.
type Store interface {
	TenantStore
	ConversationStore
	MessageStore
	QuickReplyStore
	Ping(ctx context.Context) error
}

// IdentityResolver turns a bearer token into the auth identity id.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (string, error)
}

// MessageProvider delivers messages through the BSP.
type MessageProvider interface {
	SendMessage(ctx context.Context, apiKey string, msg *domain.ProviderMessage) (*domain.SendResult, error)
}

// ProxyResponse is a provider answer relayed as-is.
type ProxyResponse struct {
	StatusCode int
	Body       json.RawMessage
}

// WebhookEndpointAPI is the BSP's webhook-endpoint CRUD API.
type WebhookEndpointAPI interface {
	ListWebhookEndpoints(ctx context.Context, apiKey string) (*ProxyResponse, error)
	CreateWebhookEndpoint(ctx context.Context, apiKey string, req *domain.WebhookEndpointRequest) (*ProxyResponse, error)
	UpdateWebhookEndpoint(ctx context.Context, apiKey, id string, fields map[string]any) (*ProxyResponse, error)
	DeleteWebhookEndpoint(ctx context.Context, apiKey, id string) (*ProxyResponse, error)
}

// DeliveryTracker remembers webhook deliveries already accepted.
type DeliveryTracker interface {
	// MarkSeen records id and reports whether this is its first delivery.
	MarkSeen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// Clock returns the current time.
type Clock func() time.Time
