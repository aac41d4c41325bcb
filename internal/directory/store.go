package directory

import (
	"context"

	"medihub/pkg/domain"
)

// Store persists users and their role profiles. Implementations return
// sentinel.ErrNotFound for missing rows and sentinel.ErrConflict for
// duplicate emails.
type Store interface {
	CreateUser(ctx context.Context, user User) error
	FindUser(ctx context.Context, id domain.UserID) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	DeleteUser(ctx context.Context, id domain.UserID) error

	CreatePatient(ctx context.Context, patient Patient) error
	FindPatient(ctx context.Context, id domain.PatientID) (*Patient, error)
	FindPatientByUser(ctx context.Context, userID domain.UserID) (*Patient, error)
	DeletePatient(ctx context.Context, id domain.PatientID) error

	CreateDoctor(ctx context.Context, doctor Doctor) error
	FindDoctor(ctx context.Context, id domain.DoctorID) (*Doctor, error)
	FindDoctorByUser(ctx context.Context, userID domain.UserID) (*Doctor, error)
}
