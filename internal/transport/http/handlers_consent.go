package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medihub/internal/consent"
	"medihub/internal/platform/middleware"
	"medihub/pkg/domain"
)

type grantConsentRequest struct {
	DoctorID    string    `json:"doctor_id"`
	Scopes      []string  `json:"scopes"`
	Purpose     string    `json:"purpose"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	MaxViews    *int      `json:"max_views,omitempty"`
}

type consentResponse struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patient_id"`
	DoctorID    string    `json:"doctor_id"`
	Scopes      []string  `json:"scopes"`
	Purpose     string    `json:"purpose"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	MaxViews    *int      `json:"max_views,omitempty"`
	UsedViews   int       `json:"used_views"`
	Status      string    `json:"status"`
}

type linkResponse struct {
	ID        string `json:"id"`
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Status    string `json:"status"`
}

func (h *Handler) handleGrantConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req grantConsentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	doctorID, err := domain.ParseDoctorID(req.DoctorID)
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := h.engine.Grant(ctx, actor, consent.GrantRequest{
		DoctorID:    doctorID,
		Scopes:      req.Scopes,
		Purpose:     req.Purpose,
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		MaxViews:    req.MaxViews,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConsentResponse(*c))
}

func (h *Handler) handleRevokeConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	consentID, err := domain.ParseConsentID(chi.URLParam(r, "consentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.engine.Revoke(ctx, actor, consentID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListConsents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	patientID, err := domain.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	consents, err := h.engine.ListForPatient(ctx, actor, patientID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]consentResponse, 0, len(consents))
	for _, c := range consents {
		out = append(out, toConsentResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"consents": out})
}

type requestLinkRequest struct {
	PatientID string `json:"patient_id"`
}

type respondLinkRequest struct {
	Approve bool `json:"approve"`
}

func (h *Handler) handleRequestLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req requestLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	patientID, err := domain.ParsePatientID(req.PatientID)
	if err != nil {
		writeError(w, err)
		return
	}

	link, err := h.engine.RequestLink(ctx, actor, patientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLinkResponse(*link))
}

func (h *Handler) handleRespondLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	linkID, err := domain.ParseLinkID(chi.URLParam(r, "linkID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req respondLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	link, err := h.engine.RespondLink(ctx, actor, linkID, req.Approve)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLinkResponse(*link))
}

func (h *Handler) handleListLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	links, err := h.engine.ListLinks(ctx, actor)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]linkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, toLinkResponse(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": out})
}

func toConsentResponse(c consent.Consent) consentResponse {
	return consentResponse{
		ID:          c.ID.String(),
		PatientID:   c.PatientID.String(),
		DoctorID:    c.DoctorID.String(),
		Scopes:      c.Scopes.Strings(),
		Purpose:     string(c.Purpose),
		WindowStart: c.WindowStart,
		WindowEnd:   c.WindowEnd,
		MaxViews:    c.MaxViews,
		UsedViews:   c.UsedViews,
		Status:      string(c.Status),
	}
}

func toLinkResponse(l consent.Link) linkResponse {
	return linkResponse{
		ID:        l.ID.String(),
		PatientID: l.PatientID.String(),
		DoctorID:  l.DoctorID.String(),
		Status:    string(l.Status),
	}
}
