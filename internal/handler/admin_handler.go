package handler

import (
	"net/http"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Tenant administration
// ============================================================

func companyStatusHandler(svc *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			Status string `json:"status"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
			return
		}

		company, err := svc.SetCompanyStatus(ctx, TokenFromContext(ctx), chi.URLParam(r, "companyId"), req.Status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, company)
	}
}

func reviewNumberHandler(svc *service.AdminService, approve bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		number, err := svc.ReviewNumber(ctx, TokenFromContext(ctx), chi.URLParam(r, "numberId"), approve)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, number)
	}
}

func defaultNumberHandler(svc *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		number, err := svc.SetDefaultNumber(ctx, TokenFromContext(ctx), chi.URLParam(r, "numberId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, number)
	}
}

func saveAPISettingsHandler(svc *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req domain.APISettings
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
			return
		}

		saved, err := svc.SaveAPISettings(ctx, TokenFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		// The key is write-only.
		saved.YCloudAPIKey = ""
		saved.WebhookSecret = ""
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "settings": saved})
	}
}

// ============================================================
// Business numbers & users
// ============================================================

func registerNumberHandler(svc *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req domain.BusinessNumber
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
			return
		}

		number, err := svc.RegisterNumber(ctx, TokenFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, number)
	}
}

func listNumbersHandler(svc *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := r.URL.Query()
		numbers, err := svc.ListNumbers(ctx, TokenFromContext(ctx), domain.BusinessNumberFilter{
			CompanyID: q.Get("company_id"),
			Status:    q.Get("status"),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"business_numbers": numbers})
	}
}

func listPendingNumbersHandler(svc *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		numbers, err := svc.ListPendingNumbers(ctx, TokenFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"business_numbers": numbers})
	}
}

func deleteNumberHandler(svc *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := svc.DeleteNumber(ctx, TokenFromContext(ctx), chi.URLParam(r, "numberId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func listUsersHandler(svc *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		users, err := svc.ListUsers(ctx, TokenFromContext(ctx), r.URL.Query().Get("company_id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	}
}

func userStatusHandler(svc *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			Status string `json:"status"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
			return
		}

		user, err := svc.SetUserStatus(ctx, TokenFromContext(ctx), chi.URLParam(r, "userId"), req.Status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
