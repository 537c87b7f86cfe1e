package service

import (
	"context"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/port"

	"go.uber.org/zap"
)

// WebhookManager relays webhook-endpoint CRUD to YCloud. The credential is the
// X-API-Key the caller supplied, else the tenant's stored one. Provider answers
// are passed through unchanged.
type WebhookManager struct {
	gate    *Gate
	tenants port.TenantStore
	api     port.WebhookEndpointAPI
	logger  *zap.Logger
}

// NewWebhookManager creates the webhook manager.
func NewWebhookManager(gate *Gate, tenants port.TenantStore, api port.WebhookEndpointAPI, logger *zap.Logger) *WebhookManager {
	return &WebhookManager{gate: gate, tenants: tenants, api: api, logger: logger}
}

// List returns the tenant's endpoints.
func (m *WebhookManager) List(ctx context.Context, token, headerKey string) (*port.ProxyResponse, error) {
	ctx, span := tracer.Start(ctx, "WebhookManager.List")
	defer span.End()

	key, err := m.apiKey(ctx, token, headerKey)
	if err != nil {
		return nil, err
	}
	return m.api.ListWebhookEndpoints(ctx, key)
}

// Create registers an endpoint. Events, description and status default to
// the console's subscription when omitted.
func (m *WebhookManager) Create(ctx context.Context, token, headerKey string, req *domain.WebhookEndpointRequest) (*port.ProxyResponse, error) {
	ctx, span := tracer.Start(ctx, "WebhookManager.Create")
	defer span.End()

	key, err := m.apiKey(ctx, token, headerKey)
	if err != nil {
		return nil, err
	}
	if req.URL == "" {
		return nil, &domain.ErrValidation{Field: "url", Message: "is required"}
	}

	body := *req
	body.ID = ""
	if len(body.EnabledEvents) == 0 {
		body.EnabledEvents = append([]string(nil), domain.DefaultWebhookEvents...)
	}
	if body.Description == "" {
		body.Description = "WhatsApp webhook endpoint"
	}
	if body.Status == "" {
		body.Status = "enabled"
	}

	resp, err := m.api.CreateWebhookEndpoint(ctx, key, &body)
	if err == nil {
		m.logger.Info("webhook endpoint created", zap.String("url", body.URL), zap.Int("status_code", resp.StatusCode))
	}
	return resp, err
}

// Update patches an endpoint with the non-empty fields of req.
func (m *WebhookManager) Update(ctx context.Context, token, headerKey string, req *domain.WebhookEndpointRequest) (*port.ProxyResponse, error) {
	ctx, span := tracer.Start(ctx, "WebhookManager.Update")
	defer span.End()

	key, err := m.apiKey(ctx, token, headerKey)
	if err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, &domain.ErrValidation{Field: "id", Message: "is required"}
	}

	fields := map[string]any{}
	if req.URL != "" {
		fields["url"] = req.URL
	}
	if len(req.EnabledEvents) > 0 {
		fields["enabledEvents"] = req.EnabledEvents
	}
	if req.Description != "" {
		fields["description"] = req.Description
	}
	if req.Status != "" {
		fields["status"] = req.Status
	}
	return m.api.UpdateWebhookEndpoint(ctx, key, req.ID, fields)
}

// Delete removes an endpoint.
func (m *WebhookManager) Delete(ctx context.Context, token, headerKey, id string) (*port.ProxyResponse, error) {
	ctx, span := tracer.Start(ctx, "WebhookManager.Delete")
	defer span.End()

	key, err := m.apiKey(ctx, token, headerKey)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, &domain.ErrValidation{Field: "id", Message: "is required"}
	}

	resp, err := m.api.DeleteWebhookEndpoint(ctx, key, id)
	if err == nil {
		m.logger.Info("webhook endpoint deleted", zap.String("endpoint_id", id), zap.Int("status_code", resp.StatusCode))
	}
	return resp, err
}

func (m *WebhookManager) apiKey(ctx context.Context, token, headerKey string) (string, error) {
	p, err := m.gate.Authorize(ctx, token, ActionManageWebhooks, Resource{})
	if err != nil {
		return "", err
	}
	if headerKey != "" {
		return headerKey, nil
	}
	settings, err := m.tenants.GetAPISettings(ctx, p.TenantID, p.UserID)
	if err != nil {
		return "", storeFailure("get api settings", err)
	}
	if settings == nil || settings.YCloudAPIKey == "" {
		return "", &domain.ErrNotFound{Resource: "api settings", ID: p.UserID}
	}
	return settings.YCloudAPIKey, nil
}
