package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/infra/observability"
	"github.com/boddenberg/whatsapp-console/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// Deps are the services behind the HTTP API. Nil services leave their
// routes unregistered.
type Deps struct {
	Dispatcher     *service.Dispatcher
	Webhooks       *WebhookIngress
	WebhookManager *service.WebhookManager
	Conversations  *service.ConversationService
	Admin          *service.AdminService
	QuickReplies   *service.QuickReplyService
	Checks         map[string]HealthCheck
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(deps Deps, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(deps.Checks, logger))
	r.Get("/readyz", readyzHandler(deps.Checks))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- Provider webhooks (always 200, no bearer token) ---
	if deps.Webhooks != nil {
		r.Post("/v1/webhooks/ycloud", webhookHandler(deps.Webhooks, logger))
		r.Post("/functions/v1/whatsapp-webhook", webhookHandler(deps.Webhooks, logger))
	}

	// --- Console API ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(logger))

		r.Get("/metrics/pipeline", pipelineMetricsHandler(metrics))

		if deps.Dispatcher != nil {
			r.Post("/messages/send", sendHandler(deps.Dispatcher, logger))
		}

		if deps.WebhookManager != nil {
			r.Route("/webhooks/manage", func(r chi.Router) {
				r.Get("/list", listWebhookEndpointsHandler(deps.WebhookManager, logger))
				r.Post("/create", createWebhookEndpointHandler(deps.WebhookManager, logger))
				r.Post("/update", updateWebhookEndpointHandler(deps.WebhookManager, logger))
				r.Post("/delete", deleteWebhookEndpointHandler(deps.WebhookManager, logger))
			})
		}

		if deps.Conversations != nil {
			r.Get("/conversations", listConversationsHandler(deps.Conversations, logger))
			r.Get("/conversations/{conversationId}/messages", threadHandler(deps.Conversations, logger))
			r.Post("/conversations/{conversationId}/read", markReadHandler(deps.Conversations, logger))
		}

		if deps.Admin != nil {
			r.Put("/admin/companies/{companyId}/status", companyStatusHandler(deps.Admin, logger))
			r.Get("/admin/business-numbers/pending", listPendingNumbersHandler(deps.Admin, logger))
			r.Get("/business-numbers", listNumbersHandler(deps.Admin, logger))
			r.Post("/business-numbers", registerNumberHandler(deps.Admin, logger))
			r.Delete("/business-numbers/{numberId}", deleteNumberHandler(deps.Admin, logger))
			r.Post("/business-numbers/{numberId}/approve", reviewNumberHandler(deps.Admin, true, logger))
			r.Post("/business-numbers/{numberId}/reject", reviewNumberHandler(deps.Admin, false, logger))
			r.Post("/business-numbers/{numberId}/default", defaultNumberHandler(deps.Admin, logger))
			r.Put("/settings/api", saveAPISettingsHandler(deps.Admin, logger))
			r.Get("/users", listUsersHandler(deps.Admin, logger))
			r.Put("/users/{userId}/status", userStatusHandler(deps.Admin, logger))
		}

		if deps.QuickReplies != nil {
			r.Route("/quick-replies", func(r chi.Router) {
				r.Get("/", listQuickRepliesHandler(deps.QuickReplies, logger))
				r.Post("/", createQuickReplyHandler(deps.QuickReplies, logger))
				r.Put("/{quickReplyId}", updateQuickReplyHandler(deps.QuickReplies, logger))
				r.Delete("/{quickReplyId}", deleteQuickReplyHandler(deps.QuickReplies, logger))
			})
		}
	})

	return r
}

// ============================================================
// Health & metrics
// ============================================================

func healthzHandler(checks map[string]HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "console-api", Status: "healthy", LastChecked: now},
		}

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)

		overall := "healthy"
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			start := time.Now()
			err := checks[name](ctx)
			cancel()

			status := "healthy"
			if err != nil {
				status = "degraded"
				overall = "degraded"
				logger.Warn("health check failed", zap.String("service", name), zap.Error(err))
			}
			services = append(services, domain.ServiceHealth{
				Name:        name,
				Status:      status,
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			})
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overall,
			Services: services,
		})
	}
}

func readyzHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for name, check := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			err := check(ctx)
			cancel()
			if err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "service": name})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func pipelineMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
