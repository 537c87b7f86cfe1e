package service

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/infra/observability"
	"github.com/boddenberg/whatsapp-console/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StoreOutcome is the result of an idempotent message insert.
type StoreOutcome struct {
	Message          *domain.Message
	DuplicateSkipped bool
}

// MessageService is the idempotent message store: inserts keyed by provider
// message id, and status-only updates.
type MessageService struct {
	store   port.MessageStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewMessageService creates the message service.
func NewMessageService(store port.MessageStore, metrics *observability.Metrics, logger *zap.Logger) *MessageService {
	return &MessageService{store: store, metrics: metrics, logger: logger}
}

// Store inserts m. A second insert with the same provider message id is a
// no-op reported as DuplicateSkipped, never as an error.
func (s *MessageService) Store(ctx context.Context, m *domain.Message) (StoreOutcome, error) {
	ctx, span := tracer.Start(ctx, "MessageService.Store")
	defer span.End()
	span.SetAttributes(
		attribute.String("message.id", m.MessageID),
		attribute.String("message.type", string(m.Type)),
		attribute.String("message.direction", string(m.Direction)),
	)

	if m.ConversationID == "" {
		return StoreOutcome{}, &domain.ErrValidation{Field: "conversation_id", Message: "is required"}
	}
	if m.Status == "" {
		m.Status = domain.StatusPending
	}

	start := time.Now()
	stored, err := s.store.InsertMessage(ctx, m)
	s.metrics.RecordRequestDuration("message_insert", time.Since(start))

	var dup *domain.ErrDuplicate
	switch {
	case errors.As(err, &dup):
		s.metrics.IncrDuplicate(string(m.Direction))
		s.logger.Info("duplicate message skipped",
			zap.String("message_id", m.MessageID),
			zap.String("direction", string(m.Direction)),
		)
		return StoreOutcome{DuplicateSkipped: true}, nil
	case err != nil:
		s.metrics.IncrExternalError("store")
		return StoreOutcome{}, storeFailure("insert message", err)
	}
	return StoreOutcome{Message: stored}, nil
}

// Exists reports whether a message with the provider id is already stored.
func (s *MessageService) Exists(ctx context.Context, providerID string) (bool, error) {
	if providerID == "" {
		return false, nil
	}
	m, err := s.store.GetMessageByProviderID(ctx, providerID)
	if err != nil {
		return false, storeFailure("get message", err)
	}
	return m != nil, nil
}

// Get returns the stored message with the provider id, or nil.
func (s *MessageService) Get(ctx context.Context, providerID string) (*domain.Message, error) {
	m, err := s.store.GetMessageByProviderID(ctx, providerID)
	if err != nil {
		return nil, storeFailure("get message", err)
	}
	return m, nil
}

// UpdateStatus applies a provider status unconditionally (last writer wins).
// Unknown statuses and unknown message ids are logged no-ops.
func (s *MessageService) UpdateStatus(ctx context.Context, providerID, status string) error {
	ctx, span := tracer.Start(ctx, "MessageService.UpdateStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("message.id", providerID),
		attribute.String("message.status", status),
	)

	if providerID == "" {
		return &domain.ErrValidation{Field: "message_id", Message: "is required"}
	}
	mapped, ok := domain.ParseStatus(status)
	if !ok {
		s.logger.Info("status update ignored: unknown status",
			zap.String("message_id", providerID),
			zap.String("status", status),
		)
		return nil
	}

	matched, err := s.store.UpdateMessageStatus(ctx, providerID, mapped)
	if err != nil {
		s.metrics.IncrExternalError("store")
		return storeFailure("update message status", err)
	}
	if !matched {
		s.logger.Info("status update for unknown message",
			zap.String("message_id", providerID),
			zap.String("status", mapped),
		)
	}
	return nil
}
