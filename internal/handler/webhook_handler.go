package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/infra/client"
	"github.com/boddenberg/whatsapp-console/internal/infra/observability"
	"github.com/boddenberg/whatsapp-console/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// WebhookAck is the body answered to every webhook delivery.
type WebhookAck struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WebhookIngress verifies, decodes and routes one provider delivery. It is
// shared by the HTTP server and the Lambda entry point.
type WebhookIngress struct {
	router  *service.WebhookRouter
	secret  string
	maxSkew time.Duration
	now     func() time.Time
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewWebhookIngress creates the ingress. An empty secret disables signature checks.
func NewWebhookIngress(router *service.WebhookRouter, secret string, metrics *observability.Metrics, logger *zap.Logger) *WebhookIngress {
	return &WebhookIngress{
		router:  router,
		secret:  secret,
		maxSkew: client.DefaultSignatureSkew,
		now:     time.Now,
		metrics: metrics,
		logger:  logger,
	}
}

// Ingest handles one delivery. The answer is always a success: the provider
// retries anything else, and failures are logged here instead.
func (in *WebhookIngress) Ingest(ctx context.Context, signature string, body []byte) WebhookAck {
	ctx, span := tracer.Start(ctx, "WebhookIngress.Ingest")
	defer span.End()

	if in.secret != "" {
		if err := client.VerifySignature(in.secret, signature, body, in.now(), in.maxSkew); err != nil {
			in.logger.Warn("webhook rejected: bad signature", zap.Error(err))
			in.metrics.IncrWebhookEvent("unknown", "rejected")
			return WebhookAck{Success: true, Message: "Webhook received"}
		}
	}

	var evt domain.WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		in.logger.Warn("webhook rejected: invalid JSON", zap.Error(err), zap.Int("body_bytes", len(body)))
		in.metrics.IncrWebhookEvent("unknown", "rejected")
		return WebhookAck{Success: true, Message: "Webhook received"}
	}
	span.SetAttributes(
		attribute.String("webhook.id", evt.ID),
		attribute.String("webhook.type", evt.Type),
	)

	outcome, err := in.router.Route(ctx, &evt)
	if err != nil {
		// Already logged by the router.
		return WebhookAck{Success: true, Message: "Webhook received"}
	}

	switch outcome {
	case service.OutcomeDuplicate:
		return WebhookAck{Success: true, Message: "Duplicate event skipped"}
	case service.OutcomeIgnored:
		return WebhookAck{Success: true, Message: "Event type not handled"}
	}
	return WebhookAck{Success: true, Message: "Webhook processed"}
}

// ============================================================
// POST /v1/webhooks/ycloud
// ============================================================

func webhookHandler(in *WebhookIngress, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			logger.Warn("webhook: failed to read body", zap.Error(err))
			writeJSON(w, http.StatusOK, WebhookAck{Success: true, Message: "Webhook received"})
			return
		}

		ack := in.Ingest(r.Context(), r.Header.Get(client.SignatureHeader), body)
		writeJSON(w, http.StatusOK, ack)
	}
}
