package service

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/infra/observability"
	"github.com/boddenberg/whatsapp-console/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service")

const threadMessageLimit = 500

// ResolveInput describes the event a conversation is resolved for.
type ResolveInput struct {
	CustomerNumber string
	BusinessNumber string
	TenantID       string
	ContactName    string // provider profile name, if any
	Preview        string
	Timestamp      time.Time
	Direction      domain.Direction
}

// ConversationService owns conversation state: resolution on every event,
// and the tenant-scoped read paths of the console.
type ConversationService struct {
	store    port.ConversationStore
	messages port.MessageStore
	tenants  port.TenantStore
	gate     *Gate
	now      port.Clock
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewConversationService wires the conversation service. gate may be nil when
// only the resolver is needed (webhook path).
func NewConversationService(
	store port.ConversationStore,
	messages port.MessageStore,
	tenants port.TenantStore,
	gate *Gate,
	now port.Clock,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ConversationService {
	if now == nil {
		now = time.Now
	}
	return &ConversationService{
		store:    store,
		messages: messages,
		tenants:  tenants,
		gate:     gate,
		now:      now,
		metrics:  metrics,
		logger:   logger,
	}
}

// Resolve finds or creates the conversation of a (customer, business) pair and
// bumps its preview in one atomic upsert. Unread counting is separate, see
// CountUnread.
func (s *ConversationService) Resolve(ctx context.Context, in ResolveInput) (*domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "ConversationService.Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.customer", in.CustomerNumber),
		attribute.String("conversation.business", in.BusinessNumber),
		attribute.String("message.direction", string(in.Direction)),
	)

	if in.CustomerNumber == "" {
		return nil, &domain.ErrValidation{Field: "customer_number", Message: "is required"}
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	contact := in.ContactName
	if contact == "" {
		contact = in.CustomerNumber
	}

	start := time.Now()
	conv, err := s.store.UpsertConversation(ctx, domain.ConversationUpsert{
		CustomerNumber:  in.CustomerNumber,
		BusinessNumber:  in.BusinessNumber,
		CompanyID:       in.TenantID,
		ContactName:     contact,
		LastMessage:     in.Preview,
		LastMessageTime: ts,
	})
	s.metrics.RecordRequestDuration("conversation_upsert", time.Since(start))
	if err != nil {
		s.metrics.IncrExternalError("store")
		return nil, storeFailure("upsert conversation", err)
	}
	return conv, nil
}

// CountUnread adds one to the conversation's unread_count. Callers invoke it
// only after the inbound message itself was inserted.
func (s *ConversationService) CountUnread(ctx context.Context, conversationID string) error {
	ctx, span := tracer.Start(ctx, "ConversationService.CountUnread")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	if err := s.store.IncrementUnread(ctx, conversationID); err != nil {
		s.metrics.IncrExternalError("store")
		return storeFailure("increment unread", err)
	}
	return nil
}

// FindExisting returns the conversation of a pair without creating or touching it.
func (s *ConversationService) FindExisting(ctx context.Context, customerNumber, businessNumber string) (*domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "ConversationService.FindExisting")
	defer span.End()

	conv, err := s.store.FindConversation(ctx, customerNumber, businessNumber)
	if err != nil {
		return nil, storeFailure("find conversation", err)
	}
	if conv == nil {
		return nil, &domain.ErrNotFound{Resource: "conversation", ID: customerNumber + "/" + businessNumber}
	}
	return conv, nil
}

// List returns the caller's conversations, newest activity first.
func (s *ConversationService) List(ctx context.Context, token, businessNumber string) ([]domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "ConversationService.List")
	defer span.End()

	p, _, err := s.gate.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	f := domain.ConversationFilter{BusinessNumber: businessNumber, Limit: 200}
	if !p.IsSuperadmin() {
		if p.TenantID == "" {
			return nil, &domain.ErrPermissionDenied{Action: "list conversations", Reason: "user has no company"}
		}
		f.CompanyID = p.TenantID
	}

	convs, err := s.store.ListConversations(ctx, f)
	if err != nil {
		return nil, storeFailure("list conversations", err)
	}
	return convs, nil
}

// Thread loads a conversation with its newest messages (oldest first) and the
// messaging-window state.
func (s *ConversationService) Thread(ctx context.Context, token, conversationID string) (*domain.Thread, error) {
	ctx, span := tracer.Start(ctx, "ConversationService.Thread")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	p, _, err := s.gate.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	var (
		conv        *domain.Conversation
		messages    []domain.Message
		lastInbound *domain.Message
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c, err := s.store.GetConversation(gCtx, conversationID)
		if err != nil {
			return storeFailure("get conversation", err)
		}
		if c == nil {
			return &domain.ErrNotFound{Resource: "conversation", ID: conversationID}
		}
		conv = c
		return nil
	})

	g.Go(func() error {
		m, err := s.messages.ListMessages(gCtx, conversationID, threadMessageLimit)
		if err != nil {
			return storeFailure("list messages", err)
		}
		messages = m
		return nil
	})

	// The page may not reach back to the last inbound message, so the window
	// is computed from its own lookup.
	g.Go(func() error {
		m, err := s.messages.LatestInboundMessage(gCtx, conversationID)
		if err != nil {
			return storeFailure("latest inbound message", err)
		}
		lastInbound = m
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := s.checkTenant(ctx, p, conv, "read conversation"); err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	return &domain.Thread{
		Conversation: conv,
		Messages:     messages,
		Window:       WindowAfter(lastInbound, s.now()),
	}, nil
}

// MarkRead resets the unread counter of a conversation.
func (s *ConversationService) MarkRead(ctx context.Context, token, conversationID string) error {
	ctx, span := tracer.Start(ctx, "ConversationService.MarkRead")
	defer span.End()

	p, _, err := s.gate.Authenticate(ctx, token)
	if err != nil {
		return err
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return storeFailure("get conversation", err)
	}
	if conv == nil {
		return &domain.ErrNotFound{Resource: "conversation", ID: conversationID}
	}
	if err := s.checkTenant(ctx, p, conv, "mark conversation read"); err != nil {
		return err
	}

	if err := s.store.MarkConversationRead(ctx, conversationID); err != nil {
		return storeFailure("mark conversation read", err)
	}
	return nil
}

// checkTenant allows superadmins and members of the owning company. Legacy
// rows without company_id are attributed through their business number.
func (s *ConversationService) checkTenant(ctx context.Context, p *domain.Principal, conv *domain.Conversation, action string) error {
	if p.IsSuperadmin() {
		return nil
	}
	owner := conv.CompanyID
	if owner == "" && conv.FromNumber != "" {
		bn, err := s.tenants.GetBusinessNumberByPhone(ctx, conv.FromNumber)
		if err != nil {
			return storeFailure("get business number", err)
		}
		if bn != nil {
			owner = bn.CompanyID
		}
	}
	if owner == "" || owner != p.TenantID {
		return &domain.ErrPermissionDenied{Action: action, Reason: "conversation belongs to another company"}
	}
	return nil
}

// storeFailure wraps unexpected datastore errors, leaving typed domain errors intact.
func storeFailure(op string, err error) error {
	var (
		notFound  *domain.ErrNotFound
		duplicate *domain.ErrDuplicate
		store     *domain.ErrStoreFailure
		circuit   *domain.ErrCircuitOpen
	)
	if errors.As(err, &notFound) || errors.As(err, &duplicate) || errors.As(err, &store) || errors.As(err, &circuit) {
		return err
	}
	return &domain.ErrStoreFailure{Op: op, Err: err}
}
