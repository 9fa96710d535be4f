// Package httptransport is the thin HTTP layer over the screening service.
// Handlers decode, delegate, and encode; no screening logic lives here.
package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"velos/internal/platform/middleware"
	dErrors "velos/pkg/domain-errors"
)

// NewRouter wires the full API surface plus health and metrics endpoints.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	r.Post("/candidates", h.handleSubmit)
	r.Get("/candidates/{id}", h.handleGetStatus)
	r.Delete("/candidates/{id}", h.handleAbort)
	r.Post("/candidates/{id}/answers", h.handleSubmitAnswer)
	r.Get("/candidates/{id}/packet", h.handleGetTrustPacket)
	r.Post("/candidates/{id}/packet/verify", h.handleVerifyCandidatePacket)

	r.Post("/packets/verify", h.handleVerifyIntegrity)

	r.Get("/credentials/{id}/export", h.handleExportCredential)
	r.Post("/credentials/{id}/revoke", h.handleRevokeCredential)

	r.Get("/pipeline/stats", h.handleStats)
	r.Get("/audit", h.handleAuditTrail)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates domain errors into the JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	message := "internal error"
	var de *dErrors.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	writeJSON(w, dErrors.ToHTTPStatus(code), map[string]string{
		"error":   string(code),
		"message": message,
	})
}
