package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/service"

	"go.uber.org/zap"
)

func TestWebhookManager(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := &fakeEndpointAPI{}
	m := service.NewWebhookManager(f.gate, f.store, api, zap.NewNop())

	t.Run("workers are denied", func(t *testing.T) {
		_, err := m.List(ctx, tokenWorker, "")
		var denied *domain.ErrPermissionDenied
		if !errors.As(err, &denied) {
			t.Fatalf("expected ErrPermissionDenied, got %v", err)
		}
	})

	t.Run("stored key", func(t *testing.T) {
		resp, err := m.List(ctx, tokenAdmin, "")
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != 200 || api.key != "key-co-a" {
			t.Errorf("unexpected relay %d with key %q", resp.StatusCode, api.key)
		}
	})

	t.Run("header key wins", func(t *testing.T) {
		if _, err := m.List(ctx, tokenAdmin, "header-key"); err != nil {
			t.Fatal(err)
		}
		if api.key != "header-key" {
			t.Errorf("expected header key, got %q", api.key)
		}
	})

	t.Run("no credential", func(t *testing.T) {
		_, err := m.List(ctx, tokenOtherAdm, "")
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("create applies defaults", func(t *testing.T) {
		resp, err := m.Create(ctx, tokenAdmin, "", &domain.WebhookEndpointRequest{ID: "ignored", URL: "https://console.example/webhook"})
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != 201 {
			t.Errorf("expected relayed 201, got %d", resp.StatusCode)
		}
		if api.create.ID != "" || api.create.Status != "enabled" || api.create.Description == "" {
			t.Errorf("unexpected create body %+v", api.create)
		}
		if len(api.create.EnabledEvents) != len(domain.DefaultWebhookEvents) {
			t.Errorf("expected default events, got %v", api.create.EnabledEvents)
		}
	})

	t.Run("create requires url", func(t *testing.T) {
		_, err := m.Create(ctx, tokenAdmin, "", &domain.WebhookEndpointRequest{})
		var validation *domain.ErrValidation
		if !errors.As(err, &validation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("update sends only set fields", func(t *testing.T) {
		if _, err := m.Update(ctx, tokenAdmin, "", &domain.WebhookEndpointRequest{ID: "we-1", Status: "disabled"}); err != nil {
			t.Fatal(err)
		}
		if api.id != "we-1" || len(api.fields) != 1 || api.fields["status"] != "disabled" {
			t.Errorf("unexpected update %s %v", api.id, api.fields)
		}
		if _, err := m.Update(ctx, tokenAdmin, "", &domain.WebhookEndpointRequest{Status: "disabled"}); err == nil {
			t.Error("expected id to be required")
		}
	})

	t.Run("delete", func(t *testing.T) {
		if _, err := m.Delete(ctx, tokenRoot, "root-key", "we-1"); err != nil {
			t.Fatal(err)
		}
		if api.id != "we-1" || api.key != "root-key" {
			t.Errorf("unexpected delete %s with %q", api.id, api.key)
		}
		if _, err := m.Delete(ctx, tokenAdmin, "", ""); err == nil {
			t.Error("expected id to be required")
		}
	})
}
