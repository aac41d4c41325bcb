package httptransport

import (
	"net/http"
	"time"

	"medihub/internal/directory"
	"medihub/internal/platform/middleware"
	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
)

type registerPatientRequest struct {
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth"`
	Sex         string `json:"sex"`
}

type registerDoctorRequest struct {
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	RegistrationNo string `json:"registration_no"`
	Organization   string `json:"organization"`
}

type patientResponse struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	DateOfBirth string `json:"date_of_birth"`
	Sex         string `json:"sex"`
}

type doctorResponse struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	RegistrationNo string `json:"registration_no"`
	Organization   string `json:"organization"`
}

func (h *Handler) handleRegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req registerPatientRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "date_of_birth must be YYYY-MM-DD"))
		return
	}

	patient, err := h.directory.RegisterPatient(r.Context(), req.Email, req.FullName, dob, req.Sex)
	if err != nil {
		writeError(w, err)
		return
	}

	accessToken, err := h.tokens.GenerateAccessToken(patient.UserID, domain.RolePatient, h.accessTokenTTL)
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token"))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"patient":      toPatientResponse(patient),
		"access_token": accessToken,
	})
}

func (h *Handler) handleRegisterDoctor(w http.ResponseWriter, r *http.Request) {
	var req registerDoctorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	doctor, err := h.directory.RegisterDoctor(r.Context(), req.Email, req.FullName, req.RegistrationNo, req.Organization)
	if err != nil {
		writeError(w, err)
		return
	}

	accessToken, err := h.tokens.GenerateAccessToken(doctor.UserID, domain.RoleDoctor, h.accessTokenTTL)
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token"))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"doctor":       toDoctorResponse(doctor),
		"access_token": accessToken,
	})
}

// handleMe returns the caller's profile for their role.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	switch actor.Role {
	case domain.RolePatient:
		patient, err := h.directory.PatientForActor(ctx, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"role": string(actor.Role), "patient": toPatientResponse(patient)})
	case domain.RoleDoctor:
		doctor, err := h.directory.DoctorForActor(ctx, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"role": string(actor.Role), "doctor": toDoctorResponse(doctor)})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"role": string(actor.Role), "user_id": actor.UserID.String()})
	}
}

func toPatientResponse(p *directory.Patient) patientResponse {
	return patientResponse{
		ID:          p.ID.String(),
		UserID:      p.UserID.String(),
		DateOfBirth: p.DateOfBirth.Format("2006-01-02"),
		Sex:         p.Sex,
	}
}

func toDoctorResponse(d *directory.Doctor) doctorResponse {
	return doctorResponse{
		ID:             d.ID.String(),
		UserID:         d.UserID.String(),
		RegistrationNo: d.RegistrationNo,
		Organization:   d.Organization,
	}
}
