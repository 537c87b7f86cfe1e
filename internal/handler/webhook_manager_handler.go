package handler

import (
	"net/http"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/port"
	"github.com/boddenberg/whatsapp-console/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// /v1/webhooks/manage: proxy to YCloud webhook endpoints
// ============================================================

const apiKeyHeader = "X-API-Key"

func relay(w http.ResponseWriter, resp *port.ProxyResponse, err error, logger *zap.Logger) {
	if err != nil {
		handleServiceError(w, err, logger)
		return
	}
	writeRaw(w, resp.StatusCode, resp.Body)
}

func listWebhookEndpointsHandler(m *service.WebhookManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resp, err := m.List(ctx, TokenFromContext(ctx), r.Header.Get(apiKeyHeader))
		relay(w, resp, err, logger)
	}
}

func createWebhookEndpointHandler(m *service.WebhookManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req domain.WebhookEndpointRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
			return
		}
		resp, err := m.Create(ctx, TokenFromContext(ctx), r.Header.Get(apiKeyHeader), &req)
		relay(w, resp, err, logger)
	}
}

func updateWebhookEndpointHandler(m *service.WebhookManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req domain.WebhookEndpointRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
			return
		}
		resp, err := m.Update(ctx, TokenFromContext(ctx), r.Header.Get(apiKeyHeader), &req)
		relay(w, resp, err, logger)
	}
}

func deleteWebhookEndpointHandler(m *service.WebhookManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
			return
		}
		resp, err := m.Delete(ctx, TokenFromContext(ctx), r.Header.Get(apiKeyHeader), req.ID)
		relay(w, resp, err, logger)
	}
}
