package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"velos/internal/audit"
	"velos/internal/packet"
	"velos/internal/pipeline"
	"velos/internal/registry"
	dErrors "velos/pkg/domain-errors"
)

// Service is the screening API the handlers delegate to.
type Service interface {
	Submit(ctx context.Context, req pipeline.SubmitRequest) (pipeline.Status, error)
	GetStatus(ctx context.Context, id string) (pipeline.Status, error)
	SubmitAnswer(ctx context.Context, id, answer string) error
	Abort(ctx context.Context, id string) error
	GetTrustPacket(ctx context.Context, id string) (packet.Packet, error)
	VerifyIntegrity(ctx context.Context, p packet.Packet) (packet.VerificationReport, error)
	VerifyCandidatePacket(ctx context.Context, id string) (packet.VerificationReport, error)
	ExportCredential(ctx context.Context, credentialID string, format registry.ExportFormat) (registry.Export, error)
	RevokeCredential(ctx context.Context, credentialID, reason string) (registry.RevocationRecord, error)
	Stats(ctx context.Context) (pipeline.Stats, error)
	AuditTrail(ctx context.Context, subject string, limit int) ([]audit.Entry, error)
}

// Handler handles all screening endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req pipeline.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	status, err := h.service.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleAbort(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Abort(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	if err := h.service.SubmitAnswer(r.Context(), chi.URLParam(r, "id"), req.Answer); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleGetTrustPacket(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetTrustPacket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	var p packet.Packet
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid packet body"))
		return
	}

	report, err := h.service.VerifyIntegrity(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleVerifyCandidatePacket(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.VerifyCandidatePacket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleExportCredential(w http.ResponseWriter, r *http.Request) {
	format := registry.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = registry.FormatJSONLD
	}

	export, err := h.service.ExportCredential(r.Context(), chi.URLParam(r, "id"), format)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Body)
}

func (h *Handler) handleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	rec, err := h.service.RevokeCredential(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	entries, err := h.service.AuditTrail(r.Context(), r.URL.Query().Get("subject"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
