package httptransport

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"medihub/internal/platform/middleware"
	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
)

type startDeletionResponse struct {
	JobID        string `json:"job_id"`
	ReceiptToken string `json:"receipt_token"`
}

type receiptResponse struct {
	JobID         string    `json:"job_id"`
	PatientID     string    `json:"patient_id"`
	DeletedAt     string    `json:"deleted_at"`
	RecordsPurged int64     `json:"records_purged"`
	DocsPurged    int64     `json:"docs_purged"`
	AuditLastHash string    `json:"audit_last_hash"`
	Steps         []string  `json:"steps"`
	ReceiptHash   string    `json:"receipt_hash"`
	CompletedAt   time.Time `json:"completed_at"`
}

// handleStartDeletion runs the purge synchronously. The receipt token in the
// response is the caller's only way back to the receipt: their session dies
// with the account.
func (h *Handler) handleStartDeletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	patientID, err := domain.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, err)
		return
	}

	jobID, receiptToken, err := h.workflow.Start(ctx, actor, patientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, startDeletionResponse{
		JobID:        jobID.String(),
		ReceiptToken: receiptToken,
	})
}

// handleGetReceipt is unauthenticated by session: the bearer receipt token
// issued at Start is the credential.
func (h *Handler) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	patientID, err := domain.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, err)
		return
	}

	receiptToken, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || receiptToken == "" {
		writeError(w, dErrors.New(dErrors.CodeUnauthorized, "receipt token required"))
		return
	}

	result, err := h.workflow.GetReceipt(ctx, patientID, receiptToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResponse{
		JobID:         result.JobID.String(),
		PatientID:     result.Receipt.PatientID,
		DeletedAt:     result.Receipt.DeletedAt,
		RecordsPurged: result.Receipt.RecordsPurged,
		DocsPurged:    result.Receipt.DocsPurged,
		AuditLastHash: result.Receipt.AuditLastHash,
		Steps:         result.Receipt.Steps,
		ReceiptHash:   result.ReceiptHash,
		CompletedAt:   result.CompletedAt,
	})
}

type jobStatusResponse struct {
	JobID       string     `json:"job_id"`
	PatientID   string     `json:"patient_id"`
	Status      string     `json:"status"`
	Steps       []string   `json:"steps"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	ctx := r.Context()

	jobID, err := domain.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	job, err := h.workflow.Status(ctx, jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobStatusResponse{
		JobID:       job.ID.String(),
		PatientID:   job.PatientID.String(),
		Status:      string(job.Status),
		Steps:       job.Steps,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	})
}
