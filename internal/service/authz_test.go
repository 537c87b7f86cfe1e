package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/service"
)

func TestGate_Authenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		_, _, err := f.gate.Authenticate(ctx, "  ")
		var unauthorized *domain.ErrUnauthorized
		if !errors.As(err, &unauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		_, _, err := f.gate.Authenticate(ctx, "tok-nobody")
		var unauthorized *domain.ErrUnauthorized
		if !errors.As(err, &unauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("inactive user", func(t *testing.T) {
		_, _, err := f.gate.Authenticate(ctx, tokenInactive)
		var denied *domain.ErrPermissionDenied
		if !errors.As(err, &denied) {
			t.Fatalf("expected ErrPermissionDenied, got %v", err)
		}
	})

	t.Run("worker", func(t *testing.T) {
		p, profile, err := f.gate.Authenticate(ctx, tokenWorker)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.UserID != "u-worker" || p.TenantID != "co-a" || p.Role != domain.RoleWorker {
			t.Errorf("unexpected principal %+v", p)
		}
		if profile.ID != "u-worker" {
			t.Errorf("unexpected profile %+v", profile)
		}
	})
}

func TestGate_Authorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coA := service.Resource{CompanyID: "co-a"}

	tests := []struct {
		name    string
		token   string
		action  service.Action
		res     service.Resource
		wantErr any
	}{
		{"worker sends for own company", tokenWorker, service.ActionSend, coA, nil},
		{"worker of another company", tokenOther, service.ActionSend, coA, &domain.ErrPermissionDenied{}},
		{"superadmin bypasses tenant", tokenRoot, service.ActionSend, coA, nil},
		{"legacy owner", tokenWorker, service.ActionSend, service.Resource{OwnerUserID: "u-worker"}, nil},
		{"legacy other owner", tokenWorker, service.ActionSend, service.Resource{OwnerUserID: "u-admin"}, &domain.ErrPermissionDenied{}},
		{"unowned resource", tokenWorker, service.ActionSend, service.Resource{}, &domain.ErrPermissionDenied{}},
		{"worker manages webhooks", tokenWorker, service.ActionManageWebhooks, service.Resource{}, &domain.ErrPermissionDenied{}},
		{"admin manages webhooks", tokenAdmin, service.ActionManageWebhooks, service.Resource{}, nil},
		{"worker manages tenant", tokenWorker, service.ActionManageTenant, coA, &domain.ErrPermissionDenied{}},
		{"admin manages own tenant", tokenAdmin, service.ActionManageTenant, coA, nil},
		{"admin manages other tenant", tokenOtherAdm, service.ActionManageTenant, coA, &domain.ErrPermissionDenied{}},
		{"admin administers", tokenAdmin, service.ActionAdminister, coA, &domain.ErrPermissionDenied{}},
		{"superadmin administers", tokenRoot, service.ActionAdminister, coA, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.gate.Authorize(ctx, tt.token, tt.action, tt.res)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p == nil {
					t.Fatal("expected a principal")
				}
				return
			}
			var denied *domain.ErrPermissionDenied
			if !errors.As(err, &denied) {
				t.Fatalf("expected ErrPermissionDenied, got %v", err)
			}
		})
	}
}

func TestGate_LockedSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, status := range []string{domain.SubscriptionLocked, domain.SubscriptionPastDue} {
		t.Run(status, func(t *testing.T) {
			if err := f.store.SetCompanyStatus(ctx, "co-a", status); err != nil {
				t.Fatal(err)
			}

			_, err := f.gate.Authorize(ctx, tokenWorker, service.ActionSend, service.Resource{CompanyID: "co-a"})
			var locked *domain.ErrSubscriptionLocked
			if !errors.As(err, &locked) {
				t.Fatalf("expected ErrSubscriptionLocked, got %v", err)
			}
			if locked.Status != status {
				t.Errorf("expected status %q, got %q", status, locked.Status)
			}

			// Locked tenants are rejected before ownership is looked at.
			_, err = f.gate.Authorize(ctx, tokenWorker, service.ActionSend, service.Resource{CompanyID: "co-b"})
			if !errors.As(err, &locked) {
				t.Fatalf("expected ErrSubscriptionLocked for foreign resource, got %v", err)
			}

			if _, err := f.gate.Authorize(ctx, tokenRoot, service.ActionSend, service.Resource{CompanyID: "co-a"}); err != nil {
				t.Fatalf("superadmin must not be locked out: %v", err)
			}
		})
	}
}
