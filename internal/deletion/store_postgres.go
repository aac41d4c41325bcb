package deletion

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"medihub/pkg/domain"
	"medihub/pkg/platform/sentinel"
	"medihub/pkg/requestcontext"
)

// PostgresStore persists jobs in the deletion_jobs table. Steps are a JSONB
// array appended in place. The insert guard runs in a transaction holding a
// per-patient advisory lock so racing starts serialize.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const jobColumns = `id, patient_id, requested_by, status, steps, receipt, receipt_hash, created_at, updated_at, completed_at`

func (s *PostgresStore) CreateIfNone(ctx context.Context, job Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin job tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Per-patient lock: same-patient starts serialize, others proceed.
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, job.PatientID.String()); err != nil {
		return fmt.Errorf("acquire job lock: %w", err)
	}

	var blocked bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM deletion_jobs
			WHERE patient_id = $1 AND status IN ('PENDING', 'IN_PROGRESS', 'COMPLETE')
		)
	`, uuid.UUID(job.PatientID)).Scan(&blocked)
	if err != nil {
		return fmt.Errorf("check existing job: %w", err)
	}
	if blocked {
		return sentinel.ErrConflict
	}

	steps, err := json.Marshal(job.Steps)
	if err != nil {
		return fmt.Errorf("marshal job steps: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO deletion_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.UUID(job.ID), uuid.UUID(job.PatientID), uuid.UUID(job.RequestedBy), string(job.Status),
		steps, job.ReceiptJSON, job.ReceiptHash, job.CreatedAt, job.UpdatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit job insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, id domain.JobID) (*Job, error) {
	return scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM deletion_jobs WHERE id = $1`, uuid.UUID(id)))
}

func (s *PostgresStore) FindLatestByPatient(ctx context.Context, patientID domain.PatientID) (*Job, error) {
	return scanJob(s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM deletion_jobs
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, uuid.UUID(patientID)))
}

func (s *PostgresStore) SetStatus(ctx context.Context, id domain.JobID, status JobStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deletion_jobs SET status = $2, updated_at = $3
		WHERE id = $1 AND status NOT IN ('COMPLETE', 'FAILED')
	`, uuid.UUID(id), string(status), requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.updateGuardError(ctx, id)
	}
	return nil
}

// updateGuardError tells a missing job apart from a terminal one after a
// guarded update matched no rows.
func (s *PostgresStore) updateGuardError(ctx context.Context, id domain.JobID) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM deletion_jobs WHERE id = $1)`,
		uuid.UUID(id)).Scan(&exists); err != nil {
		return fmt.Errorf("check job existence: %w", err)
	}
	if exists {
		return sentinel.ErrInvalidState
	}
	return sentinel.ErrNotFound
}

func (s *PostgresStore) AppendStep(ctx context.Context, id domain.JobID, step string) error {
	stepJSON, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("marshal job step: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE deletion_jobs
		SET steps = steps || $2::jsonb, updated_at = $3
		WHERE id = $1
	`, uuid.UUID(id), stepJSON, requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("append job step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Complete(ctx context.Context, id domain.JobID, receiptJSON []byte, receiptHash string) error {
	now := requestcontext.Now(ctx)
	res, err := s.db.ExecContext(ctx, `
		UPDATE deletion_jobs
		SET status = 'COMPLETE', receipt = $2, receipt_hash = $3, updated_at = $4, completed_at = $4
		WHERE id = $1 AND status NOT IN ('COMPLETE', 'FAILED')
	`, uuid.UUID(id), receiptJSON, receiptHash, now)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.updateGuardError(ctx, id)
	}
	return nil
}

func scanJob(row *sql.Row) (*Job, error) {
	var (
		job         Job
		id          uuid.UUID
		patientID   uuid.UUID
		requestedBy uuid.UUID
		status      string
		steps       []byte
		receipt     []byte
		receiptHash sql.NullString
	)
	err := row.Scan(&id, &patientID, &requestedBy, &status, &steps, &receipt, &receiptHash,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if err := json.Unmarshal(steps, &job.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal job steps: %w", err)
	}
	job.ID = domain.JobID(id)
	job.PatientID = domain.PatientID(patientID)
	job.RequestedBy = domain.UserID(requestedBy)
	job.Status = JobStatus(status)
	job.ReceiptJSON = receipt
	job.ReceiptHash = receiptHash.String
	return &job, nil
}
