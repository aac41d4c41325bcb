package directory

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
	"medihub/pkg/platform/sentinel"
	"medihub/pkg/requestcontext"
)

// Service manages user accounts and their role profiles, and resolves the
// authenticated actor to the profile other services authorize against.
type Service struct {
	store  Store
	logger *slog.Logger
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterPatient creates a PATIENT user and its patient profile.
func (s *Service) RegisterPatient(ctx context.Context, email, fullName string, dateOfBirth time.Time, sex string) (*Patient, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeBadRequest, "a valid email is required")
	}
	if strings.TrimSpace(fullName) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "full name is required")
	}

	now := requestcontext.Now(ctx)
	user := User{
		ID:        domain.NewUserID(),
		Email:     email,
		FullName:  fullName,
		Role:      domain.RolePatient,
		CreatedAt: now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	patient := Patient{
		ID:          domain.NewPatientID(),
		UserID:      user.ID,
		DateOfBirth: dateOfBirth,
		Sex:         sex,
		CreatedAt:   now,
	}
	if err := s.store.CreatePatient(ctx, patient); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create patient profile")
	}

	s.logger.InfoContext(ctx, "patient registered",
		"user_id", user.ID.String(),
		"patient_id", patient.ID.String(),
	)
	return &patient, nil
}

// RegisterDoctor creates a DOCTOR user and its practitioner profile.
func (s *Service) RegisterDoctor(ctx context.Context, email, fullName, registrationNo, organization string) (*Doctor, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeBadRequest, "a valid email is required")
	}
	if strings.TrimSpace(fullName) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "full name is required")
	}
	if strings.TrimSpace(registrationNo) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "registration number is required")
	}

	now := requestcontext.Now(ctx)
	user := User{
		ID:        domain.NewUserID(),
		Email:     email,
		FullName:  fullName,
		Role:      domain.RoleDoctor,
		CreatedAt: now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	doctor := Doctor{
		ID:             domain.NewDoctorID(),
		UserID:         user.ID,
		RegistrationNo: registrationNo,
		Organization:   organization,
		CreatedAt:      now,
	}
	if err := s.store.CreateDoctor(ctx, doctor); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create doctor profile")
	}

	s.logger.InfoContext(ctx, "doctor registered",
		"user_id", user.ID.String(),
		"doctor_id", doctor.ID.String(),
	)
	return &doctor, nil
}

// PatientForActor resolves a PATIENT actor to its patient profile.
func (s *Service) PatientForActor(ctx context.Context, actor domain.Actor) (*Patient, error) {
	if actor.Role != domain.RolePatient {
		return nil, dErrors.New(dErrors.CodeForbidden, "actor is not a patient")
	}
	patient, err := s.store.FindPatientByUser(ctx, actor.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "patient profile not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve patient")
	}
	return patient, nil
}

// DoctorForActor resolves a DOCTOR actor to its practitioner profile.
func (s *Service) DoctorForActor(ctx context.Context, actor domain.Actor) (*Doctor, error) {
	if actor.Role != domain.RoleDoctor {
		return nil, dErrors.New(dErrors.CodeForbidden, "actor is not a doctor")
	}
	doctor, err := s.store.FindDoctorByUser(ctx, actor.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "doctor profile not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve doctor")
	}
	return doctor, nil
}

// GetPatient looks up a patient profile by ID.
func (s *Service) GetPatient(ctx context.Context, id domain.PatientID) (*Patient, error) {
	patient, err := s.store.FindPatient(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "patient not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load patient")
	}
	return patient, nil
}

// GetDoctor looks up a doctor profile by ID.
func (s *Service) GetDoctor(ctx context.Context, id domain.DoctorID) (*Doctor, error) {
	doctor, err := s.store.FindDoctor(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "doctor not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load doctor")
	}
	return doctor, nil
}

// OwnsPatient reports whether the actor's user account owns the given patient
// profile.
func (s *Service) OwnsPatient(ctx context.Context, actor domain.Actor, patientID domain.PatientID) (bool, error) {
	if actor.Role != domain.RolePatient {
		return false, nil
	}
	patient, err := s.store.FindPatient(ctx, patientID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load patient")
	}
	return patient.UserID == actor.UserID, nil
}

// RemoveUser deletes a user account row. Profile rows are removed by the
// caller first; this is the last directory step of account deletion.
func (s *Service) RemoveUser(ctx context.Context, id domain.UserID) error {
	err := s.store.DeleteUser(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete user")
	}
	return nil
}

// RemovePatient deletes a patient profile row.
func (s *Service) RemovePatient(ctx context.Context, id domain.PatientID) error {
	err := s.store.DeletePatient(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "patient not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete patient")
	}
	return nil
}
