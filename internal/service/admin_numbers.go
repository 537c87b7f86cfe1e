package service

import (
	"context"
	"strings"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"go.uber.org/zap"
)

// RegisterNumber adds a business number to the caller's tenant. It stays
// pending until a superadmin reviews it, and becomes the tenant's default
// when it is the first number the tenant registers.
func (s *AdminService) RegisterNumber(ctx context.Context, token string, in *domain.BusinessNumber) (*domain.BusinessNumber, error) {
	ctx, span := tracer.Start(ctx, "AdminService.RegisterNumber")
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

	phone := strings.TrimSpace(in.PhoneNumber)
	if !isE164(phone) {
		return nil, &domain.ErrValidation{Field: "phone_number", Message: "must be E.164, e.g. +14155550100"}
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "display_name", Message: "is required"}
	}

	number := &domain.BusinessNumber{
		PhoneNumber: phone,
		DisplayName: name,
		CompanyID:   companyID,
		UserID:      p.UserID,
		Status:      domain.NumberPending,
	}
	if companyID != "" {
		company, err := s.tenants.GetCompany(ctx, companyID)
		if err != nil {
			return nil, storeFailure("get company", err)
		}
		if company == nil {
			return nil, &domain.ErrNotFound{Resource: "company", ID: companyID}
		}
		existing, err := s.tenants.ListBusinessNumbers(ctx, domain.BusinessNumberFilter{CompanyID: companyID})
		if err != nil {
			return nil, storeFailure("list business numbers", err)
		}
		number.IsDefault = len(existing) == 0
	}

	created, err := s.tenants.CreateBusinessNumber(ctx, number)
	if err != nil {
		return nil, storeFailure("create business number", err)
	}

	s.logger.Info("business number registered",
		zap.String("number_id", created.ID),
		zap.String("phone_number", created.PhoneNumber),
		zap.String("company_id", companyID),
		zap.String("by", p.UserID),
	)
	return created, nil
}

// ListNumbers lists the business numbers of a tenant, newest first.
// Superadmins may list every tenant by leaving the company empty.
func (s *AdminService) ListNumbers(ctx context.Context, token string, filter domain.BusinessNumberFilter) ([]domain.BusinessNumber, error) {
	ctx, span := tracer.Start(ctx, "AdminService.ListNumbers")
	defer span.End()

	p, _, err := s.gate.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if !p.IsSuperadmin() && filter.CompanyID == "" {
		filter.CompanyID = p.TenantID
	}
	if _, err := s.gate.Authorize(ctx, token, ActionUseTenant, Resource{CompanyID: filter.CompanyID}); err != nil {
		return nil, err
	}

	numbers, err := s.tenants.ListBusinessNumbers(ctx, filter)
	if err != nil {
		return nil, storeFailure("list business numbers", err)
	}
	return numbers, nil
}

// ListPendingNumbers lists numbers awaiting review across every tenant. Superadmin only.
func (s *AdminService) ListPendingNumbers(ctx context.Context, token string) ([]domain.BusinessNumber, error) {
	ctx, span := tracer.Start(ctx, "AdminService.ListPendingNumbers")
	defer span.End()

	if _, err := s.gate.Authorize(ctx, token, ActionAdminister, Resource{}); err != nil {
		return nil, err
	}
	numbers, err := s.tenants.ListBusinessNumbers(ctx, domain.BusinessNumberFilter{Status: domain.NumberPending})
	if err != nil {
		return nil, storeFailure("list pending business numbers", err)
	}
	return numbers, nil
}

// DeleteNumber removes a business number of the caller's tenant.
func (s *AdminService) DeleteNumber(ctx context.Context, token, numberID string) error {
	ctx, span := tracer.Start(ctx, "AdminService.DeleteNumber")
	defer span.End()

	number, err := s.tenants.GetBusinessNumber(ctx, numberID)
	if err != nil {
		return storeFailure("get business number", err)
	}
	if number == nil {
		return &domain.ErrNotFound{Resource: "business number", ID: numberID}
	}
	p, err := s.gate.Authorize(ctx, token, ActionManageTenant, Resource{CompanyID: number.CompanyID, OwnerUserID: number.UserID})
	if err != nil {
		return err
	}

	if err := s.tenants.DeleteBusinessNumber(ctx, numberID); err != nil {
		return storeFailure("delete business number", err)
	}

	s.logger.Info("business number deleted",
		zap.String("number_id", numberID),
		zap.String("phone_number", number.PhoneNumber),
		zap.String("by", p.UserID),
	)
	return nil
}

func isE164(phone string) bool {
	if len(phone) < 8 || len(phone) > 16 || phone[0] != '+' || phone[1] == '0' {
		return false
	}
	for _, r := range phone[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
