package deletion

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"medihub/pkg/domain"
)

// JobStatus is the deletion job lifecycle. COMPLETE and FAILED are terminal;
// a FAILED job is never retried automatically, and unlike the other
// statuses it does not block starting a fresh job for the patient.
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusInProgress JobStatus = "IN_PROGRESS"
	StatusComplete   JobStatus = "COMPLETE"
	StatusFailed     JobStatus = "FAILED"
)

// Blocks reports whether a job in this status prevents starting another for
// the same patient.
func (s JobStatus) Blocks() bool {
	return s == StatusPending || s == StatusInProgress || s == StatusComplete
}

// Terminal reports whether the status is final. A terminal job is never
// updated again.
func (s JobStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job is one account deletion run. Steps is the checkpointed narrative of
// what the saga did, persisted as it happens so a crashed run still shows
// how far it got.
type Job struct {
	ID          domain.JobID
	PatientID   domain.PatientID
	RequestedBy domain.UserID
	Status      JobStatus
	Steps       []string
	ReceiptJSON []byte
	ReceiptHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Receipt is the verifiable summary of a completed deletion. Its hash is
// the SHA-256 of the canonical JSON encoding below; anyone holding the
// receipt can recompute and compare.
type Receipt struct {
	PatientID     string   `json:"patientId"`
	DeletedAt     string   `json:"deletedAt"`
	RecordsPurged int64    `json:"recordsPurged"`
	DocsPurged    int64    `json:"docsPurged"`
	AuditLastHash string   `json:"auditLastHash"`
	Steps         []string `json:"steps"`
}

// Encode returns the canonical JSON and its hex SHA-256. Field order is
// fixed by the struct declaration, so the digest is reproducible.
func (r Receipt) Encode() ([]byte, string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, "", fmt.Errorf("marshal receipt: %w", err)
	}
	sum := sha256.Sum256(raw)
	return raw, hex.EncodeToString(sum[:]), nil
}
