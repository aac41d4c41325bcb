package domain

import (
	"github.com/google/uuid"

	dErrors "medihub/pkg/domain-errors"
)

// Typed UUID identifiers. Distinct types keep patient profile IDs, doctor
// profile IDs and account IDs from being swapped at compile time.
//
// Usage: construct via the Parse helpers at trust boundaries to enforce the
// "valid, non-empty, non-nil UUID" invariant; direct casting bypasses it.
type (
	UserID       uuid.UUID
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	RecordID     uuid.UUID
	DocumentID   uuid.UUID
	ConsentID    uuid.UUID
	LinkID       uuid.UUID
	AssignmentID uuid.UUID
	JobID        uuid.UUID
)

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid id format")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "id cannot be the nil uuid")
	}
	return u, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	return UserID(u), err
}

func ParsePatientID(s string) (PatientID, error) {
	u, err := parseUUID(s)
	return PatientID(u), err
}

func ParseDoctorID(s string) (DoctorID, error) {
	u, err := parseUUID(s)
	return DoctorID(u), err
}

func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s)
	return RecordID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s)
	return DocumentID(u), err
}

func ParseAssignmentID(s string) (AssignmentID, error) {
	u, err := parseUUID(s)
	return AssignmentID(u), err
}

func ParseConsentID(s string) (ConsentID, error) {
	u, err := parseUUID(s)
	return ConsentID(u), err
}

func ParseLinkID(s string) (LinkID, error) {
	u, err := parseUUID(s)
	return LinkID(u), err
}

func ParseJobID(s string) (JobID, error) {
	u, err := parseUUID(s)
	return JobID(u), err
}

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id PatientID) String() string    { return uuid.UUID(id).String() }
func (id DoctorID) String() string     { return uuid.UUID(id).String() }
func (id RecordID) String() string     { return uuid.UUID(id).String() }
func (id DocumentID) String() string   { return uuid.UUID(id).String() }
func (id ConsentID) String() string    { return uuid.UUID(id).String() }
func (id LinkID) String() string       { return uuid.UUID(id).String() }
func (id AssignmentID) String() string { return uuid.UUID(id).String() }
func (id JobID) String() string        { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id PatientID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id DoctorID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ConsentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id LinkID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id AssignmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id JobID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

func NewUserID() UserID             { return UserID(uuid.New()) }
func NewPatientID() PatientID       { return PatientID(uuid.New()) }
func NewDoctorID() DoctorID         { return DoctorID(uuid.New()) }
func NewRecordID() RecordID         { return RecordID(uuid.New()) }
func NewDocumentID() DocumentID     { return DocumentID(uuid.New()) }
func NewConsentID() ConsentID       { return ConsentID(uuid.New()) }
func NewLinkID() LinkID             { return LinkID(uuid.New()) }
func NewAssignmentID() AssignmentID { return AssignmentID(uuid.New()) }
func NewJobID() JobID               { return JobID(uuid.New()) }
