package audit

import (
	"time"

	"medihub/pkg/domain"
)

// Entry is one row of the tamper-evident ledger. Entries are immutable once
// written and ordered by a monotonic sequence; each embeds its predecessor's
// hash so retroactive edits break the chain.
type Entry struct {
	Seq       int64
	Timestamp time.Time
	Actor     domain.UserID
	Patient   domain.PatientID
	Action    Action
	Details   string
	PrevHash  string
	CurrHash  string
}

// Action names a privacy-relevant event. The set mirrors the operations the
// access gate and lifecycle services can perform.
type Action string

const (
	ActionAccessRequest  Action = "ACCESS_REQUEST"
	ActionAccessResponse Action = "ACCESS_RESPONSE"
	ActionConsentCreated Action = "CONSENT_CREATED"
	ActionConsentRevoked Action = "CONSENT_REVOKED"
	ActionRecordCreate   Action = "EHR_CREATE"
	ActionRecordView     Action = "EHR_VIEW"
	ActionRecordUpdate   Action = "EHR_UPDATE"
	ActionRecordDelete   Action = "EHR_DELETE"
	ActionRecordAssigned Action = "RECORD_ASSIGNED"
	ActionAssignRevoked  Action = "RECORD_ASSIGNMENT_REVOKED"
	ActionPatientDelete  Action = "PATIENT_DELETE"
	ActionDeleteFailed   Action = "PATIENT_DELETE_FAILED"
)

// payload is the canonical form that gets hashed. Field order is fixed by
// the struct declaration, which encoding/json preserves, so the digest is
// deterministic for a given entry.
type payload struct {
	Actor   string `json:"actor"`
	Patient string `json:"patient"`
	Action  string `json:"action"`
	TS      int64  `json:"ts"`
	Details string `json:"details"`
	Prev    string `json:"prev"`
}
