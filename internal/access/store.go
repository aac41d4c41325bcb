package access

import (
	"context"

	"medihub/pkg/domain"
)

// AssignmentStore persists record assignments. Create returns
// sentinel.ErrConflict when an ACTIVE assignment already exists for the same
// record and doctor.
type AssignmentStore interface {
	Create(ctx context.Context, a Assignment) error
	Find(ctx context.Context, id domain.AssignmentID) (*Assignment, error)
	FindActive(ctx context.Context, recordID domain.RecordID, doctorID domain.DoctorID) (*Assignment, error)
	ListByDoctor(ctx context.Context, doctorID domain.DoctorID) ([]Assignment, error)
	UpdateStatus(ctx context.Context, id domain.AssignmentID, status AssignmentStatus) error
	DeleteByPatient(ctx context.Context, patientID domain.PatientID) (int64, error)
}
