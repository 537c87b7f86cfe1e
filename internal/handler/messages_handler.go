package handler

import (
	"net/http"

	"github.com/boddenberg/whatsapp-console/internal/domain"
	"github.com/boddenberg/whatsapp-console/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// POST /v1/messages/send
// ============================================================

func sendHandler(d *service.Dispatcher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/messages/send")
		defer span.End()

		var req domain.SendRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
			return
		}
		span.SetAttributes(
			attribute.String("send.action", string(req.Action)),
			attribute.String("send.from", req.From),
		)

		resp, err := d.Send(ctx, TokenFromContext(ctx), &req)
		if err != nil {
			writeSendError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// writeSendError answers business-rule failures of a send with 400; the code
// field tells them apart. Token, breaker and store failures keep their status.
func writeSendError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, code, msg := mapServiceError(err, logger)
	if status == http.StatusForbidden || status == http.StatusNotFound {
		status = http.StatusBadRequest
	}
	writeError(w, status, code, msg)
}
