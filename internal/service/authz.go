package service

import (
	"context"
	"errors"
	"strings"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Action is what a caller asks the gate to allow.
type Action string

const (
	// ActionSend sends a message through a business number.
	ActionSend Action = "send"
	// ActionManageWebhooks manages provider webhook endpoints (admin, superadmin).
	ActionManageWebhooks Action = "manage_webhooks"
	// ActionManageTenant changes tenant settings (admin of the tenant, superadmin).
	ActionManageTenant Action = "manage_tenant"
	// ActionUseTenant reads or edits shared tenant data (any member of the tenant).
	ActionUseTenant Action = "use_tenant"
	// ActionAdminister is reserved to superadmins (lock/unlock, approvals).
	ActionAdminister Action = "administer"
)

// Resource identifies the tenant-owned object an action targets.
type Resource struct {
	CompanyID   string
	OwnerUserID string // legacy per-user ownership
}

// Gate resolves callers and decides what they may do.
type Gate struct {
	identity port.IdentityResolver
	tenants  port.TenantStore
	logger   *zap.Logger
}

// NewGate creates the authorization gate.
func NewGate(identity port.IdentityResolver, tenants port.TenantStore, logger *zap.Logger) *Gate {
	return &Gate{identity: identity, tenants: tenants, logger: logger}
}

// Authenticate resolves the bearer token into an active user profile.
func (g *Gate) Authenticate(ctx context.Context, token string) (*domain.Principal, *domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Gate.Authenticate")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, &domain.ErrUnauthorized{Message: "missing bearer token"}
	}

	userID, err := g.identity.ResolveIdentity(ctx, token)
	if err != nil {
		var unauthorized *domain.ErrUnauthorized
		if errors.As(err, &unauthorized) {
			return nil, nil, err
		}
		return nil, nil, &domain.ErrUnauthorized{Message: "could not verify token"}
	}
	span.SetAttributes(attribute.String("user.id", userID))

	profile, err := g.tenants.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, nil, storeFailure("get user profile", err)
	}
	if profile == nil {
		return nil, nil, &domain.ErrPermissionDenied{Action: "access", Reason: "user profile not found"}
	}
	if profile.Status == domain.UserInactive {
		return nil, nil, &domain.ErrPermissionDenied{Action: "access", Reason: "user is inactive"}
	}

	return &domain.Principal{
		UserID:   profile.ID,
		TenantID: profile.CompanyID,
		Role:     profile.Role,
	}, profile, nil
}

// Authorize authenticates the caller and checks action against resource.
// Superadmins bypass tenant scoping. For sends, a locked or past-due
// subscription is rejected before ownership is checked.
func (g *Gate) Authorize(ctx context.Context, token string, action Action, res Resource) (*domain.Principal, error) {
	ctx, span := tracer.Start(ctx, "Gate.Authorize")
	defer span.End()
	span.SetAttributes(attribute.String("authz.action", string(action)))

	p, profile, err := g.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionManageWebhooks:
		if !profile.CanManage() {
			return nil, g.deny(p, action, "requires admin or superadmin role")
		}
		return p, nil
	case ActionAdminister:
		if !p.IsSuperadmin() {
			return nil, g.deny(p, action, "requires superadmin role")
		}
		return p, nil
	}

	if p.IsSuperadmin() {
		return p, nil
	}

	if action == ActionSend && p.TenantID != "" {
		company, err := g.tenants.GetCompany(ctx, p.TenantID)
		if err != nil {
			return nil, storeFailure("get company", err)
		}
		if company != nil && company.SendBlocked() {
			g.logger.Warn("authz: send blocked by subscription",
				zap.String("user_id", p.UserID),
				zap.String("company_id", company.ID),
				zap.String("subscription_status", company.SubscriptionStatus),
			)
			return nil, &domain.ErrSubscriptionLocked{CompanyID: company.ID, Status: company.SubscriptionStatus}
		}
	}

	if action == ActionManageTenant && !profile.CanManage() {
		return nil, g.deny(p, action, "requires admin role")
	}

	if !owns(p, res) {
		return nil, g.deny(p, action, "resource belongs to another company")
	}
	return p, nil
}

func owns(p *domain.Principal, res Resource) bool {
	if res.CompanyID != "" {
		return p.TenantID != "" && res.CompanyID == p.TenantID
	}
	return res.OwnerUserID != "" && res.OwnerUserID == p.UserID
}

func (g *Gate) deny(p *domain.Principal, action Action, reason string) error {
	g.logger.Warn("authz: permission denied",
		zap.String("user_id", p.UserID),
		zap.String("role", p.Role),
		zap.String("action", string(action)),
		zap.String("reason", reason),
	)
	return &domain.ErrPermissionDenied{Action: string(action), Reason: reason}
}
