package service

import (
	"context"
	"strings"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/port"

	"go.uber.org/zap"
)

// QuickReplyService manages the canned replies shared by a tenant.
type QuickReplyService struct {
	gate    *Gate
	replies port.QuickReplyStore
	logger  *zap.Logger
}

// NewQuickReplyService creates the quick reply service.
func NewQuickReplyService(gate *Gate, replies port.QuickReplyStore, logger *zap.Logger) *QuickReplyService {
	return &QuickReplyService{gate: gate, replies: replies, logger: logger}
}

// tenantOf resolves the company a tenant-scoped call targets and checks the
// caller belongs to it. Superadmins must name the company.
func (s *QuickReplyService) tenantOf(ctx context.Context, token, companyID string) (*domain.Principal, string, error) {
	p, _, err := s.gate.Authenticate(ctx, token)
	if err != nil {
		return nil, "", err
	}
	if companyID == "" {
		companyID = p.TenantID
	}
	if companyID == "" {
		return nil, "", &domain.ErrValidation{Field: "company_id", Message: "is required"}
	}
	if _, err := s.gate.Authorize(ctx, token, ActionUseTenant, Resource{CompanyID: companyID}); err != nil {
		return nil, "", err
	}
	return p, companyID, nil
}

// List returns the tenant's quick replies ordered by shortcut.
func (s *QuickReplyService) List(ctx context.Context, token, companyID string) ([]domain.QuickReply, error) {
	ctx, span := tracer.Start(ctx, "QuickReplyService.List")
	defer span.End()

	_, companyID, err := s.tenantOf(ctx, token, companyID)
	if err != nil {
		return nil, err
	}
	replies, err := s.replies.ListQuickReplies(ctx, companyID)
	if err != nil {
		return nil, storeFailure("list quick replies", err)
	}
	return replies, nil
}

// Create adds a quick reply. Shortcuts are stored lowercase without spaces;
// text replies need a message and media replies need a media URL.
func (s *QuickReplyService) Create(ctx context.Context, token string, in *domain.QuickReply) (*domain.QuickReply, error) {
	ctx, span := tracer.Start(ctx, "QuickReplyService.Create")
	defer span.End()

	p, companyID, err := s.tenantOf(ctx, token, in.CompanyID)
	if err != nil {
		return nil, err
	}

	reply := &domain.QuickReply{
		CompanyID:   companyID,
		UserID:      p.UserID,
		Shortcut:    strings.ToLower(strings.TrimSpace(in.Shortcut)),
		Message:     strings.TrimSpace(in.Message),
		MessageType: in.MessageType,
		MediaURL:    strings.TrimSpace(in.MediaURL),
		Caption:     strings.TrimSpace(in.Caption),
	}
	if reply.MessageType == "" {
		reply.MessageType = domain.TypeText
	}
	if err := validateQuickReply(reply); err != nil {
		return nil, err
	}

	created, err := s.replies.CreateQuickReply(ctx, reply)
	if err != nil {
		return nil, storeFailure("create quick reply", err)
	}
	s.logger.Info("quick reply created",
		zap.String("quick_reply_id", created.ID),
		zap.String("shortcut", created.Shortcut),
		zap.String("company_id", companyID),
	)
	return created, nil
}

// Update rewrites the message and caption of a quick reply.
func (s *QuickReplyService) Update(ctx context.Context, token, id, message, caption string) (*domain.QuickReply, error) {
	ctx, span := tracer.Start(ctx, "QuickReplyService.Update")
	defer span.End()

	reply, err := s.owned(ctx, token, id)
	if err != nil {
		return nil, err
	}
	reply.Message = strings.TrimSpace(message)
	reply.Caption = strings.TrimSpace(caption)
	if err := validateQuickReply(reply); err != nil {
		return nil, err
	}
	if err := s.replies.UpdateQuickReply(ctx, reply); err != nil {
		return nil, storeFailure("update quick reply", err)
	}
	return reply, nil
}

// Delete removes a quick reply.
func (s *QuickReplyService) Delete(ctx context.Context, token, id string) error {
	ctx, span := tracer.Start(ctx, "QuickReplyService.Delete")
	defer span.End()

	if _, err := s.owned(ctx, token, id); err != nil {
		return err
	}
	if err := s.replies.DeleteQuickReply(ctx, id); err != nil {
		return storeFailure("delete quick reply", err)
	}
	return nil
}

func (s *QuickReplyService) owned(ctx context.Context, token, id string) (*domain.QuickReply, error) {
	reply, err := s.replies.GetQuickReply(ctx, id)
	if err != nil {
		return nil, storeFailure("get quick reply", err)
	}
	if reply == nil {
		return nil, &domain.ErrNotFound{Resource: "quick reply", ID: id}
	}
	if _, err := s.gate.Authorize(ctx, token, ActionUseTenant, Resource{CompanyID: reply.CompanyID}); err != nil {
		return nil, err
	}
	return reply, nil
}

func validateQuickReply(q *domain.QuickReply) error {
	if q.Shortcut == "" || strings.ContainsAny(q.Shortcut, " \t\n") {
		return &domain.ErrValidation{Field: "shortcut", Message: "is required and cannot contain spaces"}
	}
	switch q.MessageType {
	case domain.TypeText:
		if q.Message == "" {
			return &domain.ErrValidation{Field: "message", Message: "is required for text replies"}
		}
	case domain.TypeImage, domain.TypeVideo, domain.TypeAudio, domain.TypeDocument:
		if q.MediaURL == "" {
			return &domain.ErrValidation{Field: "media_url", Message: "is required for media replies"}
		}
	default:
		return &domain.ErrValidation{Field: "message_type", Message: "must be text, image, video, audio or document"}
	}
	return nil
}
