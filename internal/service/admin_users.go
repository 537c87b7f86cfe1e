package service

import (
	"context"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"go.uber.org/zap"
)

// ListUsers lists the users of a tenant, newest first. Admins see their own
// company; superadmins see every user unless a company is given.
func (s *AdminService) ListUsers(ctx context.Context, token, companyID string) ([]domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "AdminService.ListUsers")
	defer span.End()

	p, _, err := s.gate.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if !p.IsSuperadmin() && companyID == "" {
		companyID = p.TenantID
	}
	if _, err := s.gate.Authorize(ctx, token, ActionManageTenant, Resource{CompanyID: companyID}); err != nil {
		return nil, err
	}

	users, err := s.tenants.ListUserProfiles(ctx, companyID)
	if err != nil {
		return nil, storeFailure("list user profiles", err)
	}
	return users, nil
}

// SetUserStatus activates or deactivates a user. Admins manage the
// non-superadmin users of their company; nobody changes their own status.
func (s *AdminService) SetUserStatus(ctx context.Context, token, userID, status string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "AdminService.SetUserStatus")
	defer span.End()

	if status != domain.UserActive && status != domain.UserInactive {
		return nil, &domain.ErrValidation{Field: "status", Message: "must be active or inactive"}
	}

	p, _, err := s.gate.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if p.UserID == userID {
		return nil, &domain.ErrPermissionDenied{Action: string(ActionManageTenant), Reason: "cannot change your own status"}
	}

	user, err := s.tenants.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, storeFailure("get user profile", err)
	}
	if user == nil {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	if user.IsSuperadmin() && !p.IsSuperadmin() {
		return nil, &domain.ErrPermissionDenied{Action: string(ActionManageTenant), Reason: "superadmins are managed by superadmins"}
	}
	if _, err := s.gate.Authorize(ctx, token, ActionManageTenant, Resource{CompanyID: user.CompanyID}); err != nil {
		return nil, err
	}

	if err := s.tenants.SetUserStatus(ctx, userID, status); err != nil {
		return nil, storeFailure("set user status", err)
	}

	s.logger.Info("user status changed",
		zap.String("user_id", userID),
		zap.String("from", user.Status),
		zap.String("to", status),
		zap.String("by", p.UserID),
	)
	user.Status = status
	return user, nil
}
