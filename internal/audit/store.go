package audit

import (
	"context"

	"medihub/pkg/domain"
)

// Store persists ledger entries. Append takes a build callback that receives
// the current tail hash and returns the finished entry: implementations MUST
// serialize the tail read and the insert as one unit (mutex, advisory lock,
// serialized transaction) so two concurrent appends can never observe the
// same tail and fork the chain.
type Store interface {
	Append(ctx context.Context, build func(prevHash string) (Entry, error)) (Entry, error)
	TailHash(ctx context.Context) (string, error)
	List(ctx context.Context, limit, offset int) ([]Entry, error)
	ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Entry, error)
	Count(ctx context.Context) (int64, error)
}
