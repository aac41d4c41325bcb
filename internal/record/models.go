package record

import (
	"time"

	"medihub/pkg/domain"
)

// Record is one clinical entry in a patient's chart. Content is the typed
// payload validated against the record type's schema; ContentHash is the
// digest of the content at last write, used to detect drift between what was
// authorized and what is stored.
type Record struct {
	ID          domain.RecordID
	PatientID   domain.PatientID
	Type        domain.RecordType
	Content     map[string]any
	ContentHash string
	CreatedBy   domain.UserID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Deleted reports whether the record was soft-deleted. Soft-deleted records
// stay out of reads but remain until the owning patient's account is purged.
func (r Record) Deleted() bool { return r.DeletedAt != nil }

// Document is an uploaded file attached to a patient's chart. The bytes live
// in blob storage under BlobKey; this row is the metadata.
type Document struct {
	ID          domain.DocumentID
	PatientID   domain.PatientID
	FileName    string
	ContentType string
	Size        int64
	BlobKey     string
	UploadedBy  domain.UserID
	CreatedAt   time.Time
}

// ScopeFor maps a record type to the consent scope that governs it.
func ScopeFor(t domain.RecordType) domain.Scope {
	switch t {
	case domain.RecordLab:
		return domain.ScopeLabs
	case domain.RecordPrescription:
		return domain.ScopePrescriptions
	case domain.RecordNote:
		return domain.ScopeNotes
	case domain.RecordImaging:
		return domain.ScopeDocuments
	default:
		// ENCOUNTER, VITAL and ALLERGY ride on the encounter scope.
		return domain.ScopeEncounters
	}
}
