package service

import (
	"context"
	"strings"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/port"

	"go.uber.org/zap"
)

// AdminService covers tenant administration: subscription locks, number
// approvals, default numbers and provider credentials.
type AdminService struct {
	gate    *Gate
	tenants port.TenantStore
	now     port.Clock
	logger  *zap.Logger
}

// NewAdminService creates the admin service.
func NewAdminService(gate *Gate, tenants port.TenantStore, now port.Clock, logger *zap.Logger) *AdminService {
	if now == nil {
		now = time.Now
	}
	return &AdminService{gate: gate, tenants: tenants, now: now, logger: logger}
}

// SetCompanyStatus locks, unlocks or flags a tenant's subscription. Superadmin only.
func (s *AdminService) SetCompanyStatus(ctx context.Context, token, companyID, status string) (*domain.Company, error) {
	ctx, span := tracer.Start(ctx, "AdminService.SetCompanyStatus")
	defer span.End()

	p, err := s.gate.Authorize(ctx, token, ActionAdminister, Resource{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	switch status {
	case domain.SubscriptionActive, domain.SubscriptionLocked, domain.SubscriptionPastDue:
	default:
		return nil, &domain.ErrValidation{Field: "subscription_status", Message: "must be active, locked or past_due"}
	}

	company, err := s.tenants.GetCompany(ctx, companyID)
	if err != nil {
		return nil, storeFailure("get company", err)
	}
	if company == nil {
		return nil, &domain.ErrNotFound{Resource: "company", ID: companyID}
	}
	if err := s.tenants.SetCompanyStatus(ctx, companyID, status); err != nil {
		return nil, storeFailure("set company status", err)
	}

	s.logger.Info("company subscription changed",
		zap.String("company_id", companyID),
		zap.String("from", company.SubscriptionStatus),
		zap.String("to", status),
		zap.String("by", p.UserID),
	)
	company.SubscriptionStatus = status
	return company, nil
}

// ReviewNumber approves or rejects a pending business number. Superadmin only.
func (s *AdminService) ReviewNumber(ctx context.Context, token, numberID string, approve bool) (*domain.BusinessNumber, error) {
	ctx, span := tracer.Start(ctx, "AdminService.ReviewNumber")
	defer span.End()

	p, err := s.gate.Authorize(ctx, token, ActionAdminister, Resource{})
	if err != nil {
		return nil, err
	}

	number, err := s.tenants.GetBusinessNumber(ctx, numberID)
	if err != nil {
		return nil, storeFailure("get business number", err)
	}
	if number == nil {
		return nil, &domain.ErrNotFound{Resource: "business number", ID: numberID}
	}
	if number.Status != domain.NumberPending {
		return nil, &domain.ErrValidation{Field: "status", Message: "business number is " + number.Status + ", not pending"}
	}

	status := domain.NumberRejected
	if approve {
		status = domain.NumberActive
	}
	if err := s.tenants.SetBusinessNumberStatus(ctx, numberID, status); err != nil {
		return nil, storeFailure("set business number status", err)
	}

	s.logger.Info("business number reviewed",
		zap.String("number_id", numberID),
		zap.String("phone_number", number.PhoneNumber),
		zap.String("status", status),
		zap.String("by", p.UserID),
	)
	number.Status = status
	return number, nil
}

// SetDefaultNumber makes a number the tenant's default sender.
func (s *AdminService) SetDefaultNumber(ctx context.Context, token, numberID string) (*domain.BusinessNumber, error) {
	ctx, span := tracer.Start(ctx, "AdminService.SetDefaultNumber")
	defer span.End()

	number, err := s.tenants.GetBusinessNumber(ctx, numberID)
	if err != nil {
		return nil, storeFailure("get business number", err)
	}
	if number == nil {
		return nil, &domain.ErrNotFound{Resource: "business number", ID: numberID}
	}
	if _, err := s.gate.Authorize(ctx, token, ActionManageTenant, Resource{CompanyID: number.CompanyID, OwnerUserID: number.UserID}); err != nil {
		return nil, err
	}
	if number.Status != domain.NumberActive {
		return nil, &domain.ErrValidation{Field: "status", Message: "only active numbers can be the default"}
	}

	if err := s.tenants.SetDefaultBusinessNumber(ctx, number.CompanyID, numberID); err != nil {
		return nil, storeFailure("set default business number", err)
	}
	number.IsDefault = true
	return number, nil
}

// SaveAPISettings stores the tenant's YCloud credential.
func (s *AdminService) SaveAPISettings(ctx context.Context, token string, in *domain.APISettings) (*domain.APISettings, error) {
	ctx, span := tracer.Start(ctx, "AdminService.SaveAPISettings")
	defer span.End()

	p, _, err := s.gate.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	companyID := in.CompanyID
	if companyID == "" {
		companyID = p.TenantID
	}
	if _, err := s.gate.Authorize(ctx, token, ActionManageTenant, Resource{CompanyID: companyID, OwnerUserID: p.UserID}); err != nil {
		return nil, err
	}

	key := strings.TrimSpace(in.YCloudAPIKey)
	if key == "" {
		return nil, &domain.ErrValidation{Field: "ycloud_api_key", Message: "is required"}
	}

	settings := &domain.APISettings{
		CompanyID:     companyID,
		YCloudAPIKey:  key,
		WebhookSecret: strings.TrimSpace(in.WebhookSecret),
		UpdatedAt:     s.now(),
	}
	if companyID == "" {
		settings.UserID = p.UserID
	}
	if err := s.tenants.UpsertAPISettings(ctx, settings); err != nil {
		return nil, storeFailure("upsert api settings", err)
	}

	s.logger.Info("api settings saved", zap.String("company_id", companyID), zap.String("by", p.UserID))
	return settings, nil
}
