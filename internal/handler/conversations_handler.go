package handler

import (
	"net/http"

	"github.com/boddenberg/whatsapp-console/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Conversations
// ============================================================

func listConversationsHandler(svc *service.ConversationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		convs, err := svc.List(ctx, TokenFromContext(ctx), r.URL.Query().Get("business_number"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
	}
}

func threadHandler(svc *service.ConversationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/conversations/{conversationId}/messages")
		defer span.End()

		id := chi.URLParam(r, "conversationId")
		span.SetAttributes(attribute.String("conversation.id", id))

		thread, err := svc.Thread(ctx, TokenFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, thread)
	}
}

func markReadHandler(svc *service.ConversationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := svc.MarkRead(ctx, TokenFromContext(ctx), chi.URLParam(r, "conversationId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
