package access

import (
	"time"

	"medihub/pkg/domain"
)

// Action is what the caller wants to do with the target.
type Action string

const (
	ActionView   Action = "VIEW"
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionView, ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Target is what the action applies to: a patient's data as a whole, or one
// record of it. Record targets carry the owning patient so policy never has
// to guess.
type Target struct {
	Patient domain.PatientID
	Record  *domain.RecordID
}

// Decision is the gate's verdict. AuditHash is set only on Allow: the hash
// of the ledger entry that recorded the access.
type Decision struct {
	Allowed   bool
	Reason    string
	AuditHash string
}

// AssignmentStatus is the stored state of a record assignment.
type AssignmentStatus string

const (
	AssignmentActive  AssignmentStatus = "ACTIVE"
	AssignmentRevoked AssignmentStatus = "REVOKED"
)

// Assignment pins read access for one doctor to one exact record, granted by
// the owning patient. It bypasses scope checks but never extends to other
// records or to writes.
type Assignment struct {
	ID        domain.AssignmentID
	RecordID  domain.RecordID
	PatientID domain.PatientID
	DoctorID  domain.DoctorID
	Status    AssignmentStatus
	CreatedAt time.Time
	RevokedAt *time.Time
}
