package record

import (
	"context"

	"medihub/pkg/domain"
)

// Store persists clinical records. Find and ListByPatient exclude
// soft-deleted rows; HardDeleteByPatient removes everything including them
// and returns the count, for the deletion workflow's receipt.
type Store interface {
	Create(ctx context.Context, r Record) error
	Find(ctx context.Context, id domain.RecordID) (*Record, error)
	ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Record, error)
	Update(ctx context.Context, r Record) error
	SoftDelete(ctx context.Context, id domain.RecordID) error
	CountByPatient(ctx context.Context, patientID domain.PatientID) (int64, error)
	HardDeleteByPatient(ctx context.Context, patientID domain.PatientID) (int64, error)
}

// DocumentStore persists document metadata. The bytes live in a BlobStore.
type DocumentStore interface {
	Create(ctx context.Context, d Document) error
	Find(ctx context.Context, id domain.DocumentID) (*Document, error)
	ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Document, error)
	CountByPatient(ctx context.Context, patientID domain.PatientID) (int64, error)
	DeleteByPatient(ctx context.Context, patientID domain.PatientID) ([]Document, error)
}

// BlobStore holds document bytes by key.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
