package httptransport

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"medihub/internal/platform/middleware"
	"medihub/internal/record"
	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
)

// maxDocumentBytes bounds uploaded document size.
const maxDocumentBytes = 25 << 20

type createRecordRequest struct {
	Type    string         `json:"type"`
	Content map[string]any `json:"content"`
}

type updateRecordRequest struct {
	Content map[string]any `json:"content"`
}

type recordResponse struct {
	ID          string         `json:"id"`
	PatientID   string         `json:"patient_id"`
	Type        string         `json:"type"`
	Content     map[string]any `json:"content"`
	ContentHash string         `json:"content_hash"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type documentResponse struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patient_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

type assignmentResponse struct {
	ID       string `json:"id"`
	RecordID string `json:"record_id"`
	DoctorID string `json:"doctor_id"`
	Status   string `json:"status"`
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	patientID, err := domain.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req createRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.records.Create(ctx, actor, patientID, req.Type, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordResponse(*rec))
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	patientID, err := domain.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var scopes domain.ScopeSet
	if raw := r.URL.Query().Get("scopes"); raw != "" {
		scopes, err = domain.ParseScopeSet(strings.Split(raw, ","))
		if err != nil {
			writeError(w, err)
			return
		}
	}

	records, err := h.records.List(ctx, actor, patientID, scopes)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	recordID, err := domain.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.records.Get(ctx, actor, recordID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(*rec))
}

func (h *Handler) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	recordID, err := domain.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.records.Update(ctx, actor, recordID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(*rec))
}

func (h *Handler) handleSoftDeleteRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	recordID, err := domain.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.records.SoftDelete(ctx, actor, recordID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRecordRequest struct {
	DoctorID string `json:"doctor_id"`
}

func (h *Handler) handleAssignRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	recordID, err := domain.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req assignRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	doctorID, err := domain.ParseDoctorID(req.DoctorID)
	if err != nil {
		writeError(w, err)
		return
	}

	assignment, err := h.gate.Assign(ctx, actor, recordID, doctorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, assignmentResponse{
		ID:       assignment.ID.String(),
		RecordID: assignment.RecordID.String(),
		DoctorID: assignment.DoctorID.String(),
		Status:   string(assignment.Status),
	})
}

func (h *Handler) handleRevokeAssignment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	assignmentID, err := domain.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.gate.RevokeAssignment(ctx, actor, assignmentID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAttachDocument accepts a multipart upload under the "file" field.
func (h *Handler) handleAttachDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	patientID, err := domain.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "multipart upload with a 'file' field is required"))
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read uploaded file"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc, err := h.records.AttachDocument(ctx, actor, patientID, header.Filename, contentType, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(*doc))
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	patientID, err := domain.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	docs, err := h.records.ListDocuments(ctx, actor, patientID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDocumentResponse(doc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

// handleGetDocument streams the stored bytes with the original content type.
func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	documentID, err := domain.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	doc, data, err := h.records.GetDocument(ctx, actor, documentID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func toRecordResponse(rec record.Record) recordResponse {
	return recordResponse{
		ID:          rec.ID.String(),
		PatientID:   rec.PatientID.String(),
		Type:        string(rec.Type),
		Content:     rec.Content,
		ContentHash: rec.ContentHash,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func toDocumentResponse(doc record.Document) documentResponse {
	return documentResponse{
		ID:          doc.ID.String(),
		PatientID:   doc.PatientID.String(),
		FileName:    doc.FileName,
		ContentType: doc.ContentType,
		Size:        doc.Size,
		CreatedAt:   doc.CreatedAt,
	}
}
