package deletion

import (
	"context"

	"medihub/pkg/domain"
)

// Store persists deletion jobs. CreateIfNone must atomically reject a new
// job when the patient already has one in a blocking status (PENDING,
// IN_PROGRESS or COMPLETE), returning sentinel.ErrConflict. Jobs for
// different patients never contend.
type Store interface {
	CreateIfNone(ctx context.Context, job Job) error
	Find(ctx context.Context, id domain.JobID) (*Job, error)
	FindLatestByPatient(ctx context.Context, patientID domain.PatientID) (*Job, error)
	SetStatus(ctx context.Context, id domain.JobID, status JobStatus) error
	AppendStep(ctx context.Context, id domain.JobID, step string) error
	Complete(ctx context.Context, id domain.JobID, receiptJSON []byte, receiptHash string) error
}
