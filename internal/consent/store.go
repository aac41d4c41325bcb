package consent

import (
	"context"

	"medihub/pkg/domain"
)

// ConsentStore persists consents. ConsumeView must be conditional on the
// view cap: implementations increment used_views only while it is below
// max_views, atomically, so concurrent evaluations can never overspend the
// budget. It returns sentinel.ErrExhausted when the cap is already reached.
type ConsentStore interface {
	Create(ctx context.Context, c Consent) error
	Find(ctx context.Context, id domain.ConsentID) (*Consent, error)
	ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Consent, error)
	ListByParties(ctx context.Context, patientID domain.PatientID, doctorID domain.DoctorID) ([]Consent, error)
	UpdateStatus(ctx context.Context, id domain.ConsentID, status ConsentStatus) error
	ConsumeView(ctx context.Context, id domain.ConsentID) error
	DeleteByPatient(ctx context.Context, patientID domain.PatientID) (int64, error)
}

// LinkStore persists doctor-patient links.
type LinkStore interface {
	Create(ctx context.Context, l Link) error
	Find(ctx context.Context, id domain.LinkID) (*Link, error)
	FindByParties(ctx context.Context, patientID domain.PatientID, doctorID domain.DoctorID) (*Link, error)
	ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Link, error)
	ListByDoctor(ctx context.Context, doctorID domain.DoctorID) ([]Link, error)
	UpdateStatus(ctx context.Context, id domain.LinkID, status LinkStatus) error
	DeleteByPatient(ctx context.Context, patientID domain.PatientID) (int64, error)
}
