package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	store   *MemoryStore
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.service = NewService(s.store)
}

func (s *ServiceSuite) TestRegisterPatient() {
	ctx := context.Background()
	dob := time.Date(1984, 6, 2, 0, 0, 0, 0, time.UTC)

	s.Run("creates user and profile", func() {
		patient, err := s.service.RegisterPatient(ctx, "ana@example.com", "Ana Moraes", dob, "F")
		s.Require().NoError(err)
		s.False(patient.ID.IsNil())

		user, err := s.store.FindUser(ctx, patient.UserID)
		s.Require().NoError(err)
		s.Equal(domain.RolePatient, user.Role)
		s.Equal("ana@example.com", user.Email)
	})

	s.Run("duplicate email returns conflict", func() {
		_, err := s.service.RegisterPatient(ctx, "ana@example.com", "Other Person", dob, "M")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("invalid email returns bad request", func() {
		_, err := s.service.RegisterPatient(ctx, "not-an-email", "Someone", dob, "F")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestRegisterDoctor() {
	ctx := context.Background()

	s.Run("creates user and profile", func() {
		doctor, err := s.service.RegisterDoctor(ctx, "dr@example.com", "Dr. Silva", "CRM-12345", "General Hospital")
		s.Require().NoError(err)
		s.False(doctor.ID.IsNil())

		user, err := s.store.FindUser(ctx, doctor.UserID)
		s.Require().NoError(err)
		s.Equal(domain.RoleDoctor, user.Role)
	})

	s.Run("missing registration number returns bad request", func() {
		_, err := s.service.RegisterDoctor(ctx, "dr2@example.com", "Dr. Costa", "", "Clinic")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestActorResolution() {
	ctx := context.Background()
	dob := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

	patient, err := s.service.RegisterPatient(ctx, "p@example.com", "Patient P", dob, "M")
	s.Require().NoError(err)
	doctor, err := s.service.RegisterDoctor(ctx, "d@example.com", "Doctor D", "CRM-1", "Org")
	s.Require().NoError(err)

	s.Run("patient actor resolves to profile", func() {
		got, err := s.service.PatientForActor(ctx, domain.Actor{UserID: patient.UserID, Role: domain.RolePatient})
		s.Require().NoError(err)
		s.Equal(patient.ID, got.ID)
	})

	s.Run("doctor actor resolves to profile", func() {
		got, err := s.service.DoctorForActor(ctx, domain.Actor{UserID: doctor.UserID, Role: domain.RoleDoctor})
		s.Require().NoError(err)
		s.Equal(doctor.ID, got.ID)
	})

	s.Run("wrong role is forbidden", func() {
		_, err := s.service.PatientForActor(ctx, domain.Actor{UserID: doctor.UserID, Role: domain.RoleDoctor})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("missing profile is not found", func() {
		_, err := s.service.PatientForActor(ctx, domain.Actor{UserID: domain.NewUserID(), Role: domain.RolePatient})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestOwnsPatient() {
	ctx := context.Background()
	dob := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

	patient, err := s.service.RegisterPatient(ctx, "own@example.com", "Owner", dob, "F")
	s.Require().NoError(err)
	other, err := s.service.RegisterPatient(ctx, "other@example.com", "Other", dob, "F")
	s.Require().NoError(err)

	owner := domain.Actor{UserID: patient.UserID, Role: domain.RolePatient}

	owns, err := s.service.OwnsPatient(ctx, owner, patient.ID)
	s.Require().NoError(err)
	s.True(owns)

	owns, err = s.service.OwnsPatient(ctx, owner, other.ID)
	s.Require().NoError(err)
	s.False(owns)

	owns, err = s.service.OwnsPatient(ctx, domain.Actor{UserID: patient.UserID, Role: domain.RoleDoctor}, patient.ID)
	s.Require().NoError(err)
	s.False(owns)
}

func (s *ServiceSuite) TestRemoveUserAndPatient() {
	ctx := context.Background()
	dob := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

	patient, err := s.service.RegisterPatient(ctx, "gone@example.com", "Leaving", dob, "M")
	s.Require().NoError(err)

	s.Require().NoError(s.service.RemovePatient(ctx, patient.ID))
	s.Require().NoError(s.service.RemoveUser(ctx, patient.UserID))

	_, err = s.service.GetPatient(ctx, patient.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.service.RemoveUser(ctx, patient.UserID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
