package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeRaw relays a provider body unchanged.
func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, code, msg := mapServiceError(err, logger)
	writeError(w, status, code, msg)
}

// mapServiceError logs err and returns its HTTP status, error code and
// client-facing message.
func mapServiceError(err error, logger *zap.Logger) (int, string, string) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var validation *domain.ErrValidation
	var invalidRef *domain.ErrInvalidReference
	var windowClosed *domain.ErrWindowClosed
	var dispatch *domain.ErrDispatchFailed
	var unauthorized *domain.ErrUnauthorized
	var denied *domain.ErrPermissionDenied
	var locked *domain.ErrSubscriptionLocked
	var duplicate *domain.ErrDuplicate
	var storeFailure *domain.ErrStoreFailure

	switch {
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		return http.StatusUnauthorized, "unauthorized", err.Error()
	case errors.As(err, &locked):
		logger.Warn("subscription locked", zap.String("company_id", locked.CompanyID), zap.String("status", locked.Status))
		return http.StatusForbidden, "subscription_locked", err.Error()
	case errors.As(err, &denied):
		logger.Warn("permission denied", zap.String("error", err.Error()))
		return http.StatusForbidden, "permission_denied", err.Error()
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		return http.StatusNotFound, "not_found", err.Error()
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		return http.StatusBadRequest, "validation_error", err.Error()
	case errors.As(err, &invalidRef):
		logger.Debug("invalid reference", zap.String("reference", invalidRef.Reference))
		return http.StatusBadRequest, "invalid_reference", err.Error()
	case errors.As(err, &windowClosed):
		logger.Debug("messaging window closed")
		return http.StatusBadRequest, "window_closed", err.Error()
	case errors.As(err, &duplicate):
		logger.Debug("duplicate", zap.String("key", duplicate.Key))
		return http.StatusConflict, "duplicate", err.Error()
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		return http.StatusServiceUnavailable, "circuit_open", err.Error()
	case errors.As(err, &dispatch):
		logger.Warn("dispatch failed", zap.Int("provider_status", dispatch.StatusCode), zap.Error(err))
		return http.StatusBadRequest, "dispatch_failed", err.Error()
	case errors.As(err, &storeFailure):
		logger.Error("store failure", zap.String("op", storeFailure.Op), zap.Error(storeFailure.Err))
		return http.StatusInternalServerError, "store_failure", "internal server error"
	default:
		logger.Error("unhandled error", zap.Error(err))
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}
