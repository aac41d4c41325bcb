package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"medihub/internal/audit"
	"medihub/internal/platform/middleware"
	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
)

type auditEntryResponse struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Patient   string    `json:"patient"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	PrevHash  string    `json:"prev_hash"`
	CurrHash  string    `json:"curr_hash"`
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if middleware.GetActor(r.Context()).Role != domain.RoleAdmin {
		writeError(w, dErrors.New(dErrors.CodeForbidden, "admin role required"))
		return false
	}
	return true
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.ledger.List(ctx, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := h.ledger.Count(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": toAuditResponses(entries),
		"total":   total,
	})
}

func (h *Handler) handleListAuditByPatient(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	ctx := r.Context()

	patientID, err := domain.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.ledger.ListByPatient(ctx, patientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": toAuditResponses(entries)})
}

// handleVerifyAudit recomputes the whole chain. broken_seq zero means intact.
func (h *Handler) handleVerifyAudit(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	brokenSeq, err := h.ledger.Verify(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"intact":     brokenSeq == 0,
		"broken_seq": brokenSeq,
	})
}

func toAuditResponses(entries []audit.Entry) []auditEntryResponse {
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			Seq:       e.Seq,
			Timestamp: e.Timestamp,
			Actor:     e.Actor.String(),
			Patient:   e.Patient.String(),
			Action:    string(e.Action),
			Details:   e.Details,
			PrevHash:  e.PrevHash,
			CurrHash:  e.CurrHash,
		})
	}
	return out
}
