package handler

import (
	"net/http"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Quick replies
// ============================================================

func listQuickRepliesHandler(svc *service.QuickReplyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		replies, err := svc.List(ctx, TokenFromContext(ctx), r.URL.Query().Get("company_id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"quick_replies": replies})
	}
}

func createQuickReplyHandler(svc *service.QuickReplyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req domain.QuickReply
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
			return
		}

		reply, err := svc.Create(ctx, TokenFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, reply)
	}
}

func updateQuickReplyHandler(svc *service.QuickReplyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			Message string `json:"message"`
			Caption string `json:"caption"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
			return
		}

		reply, err := svc.Update(ctx, TokenFromContext(ctx), chi.URLParam(r, "quickReplyId"), req.Message, req.Caption)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func deleteQuickReplyHandler(svc *service.QuickReplyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := svc.Delete(ctx, TokenFromContext(ctx), chi.URLParam(r, "quickReplyId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
