package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"medihub/pkg/domain"
	"medihub/pkg/platform/sentinel"
	"medihub/pkg/requestcontext"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// PostgresAssignmentStore persists assignments in the record_assignments
// table. A partial unique index on (record_id, doctor_id) WHERE status =
// 'ACTIVE' backs the duplicate check.
type PostgresAssignmentStore struct {
	db *sql.DB
}

func NewPostgresAssignmentStore(db *sql.DB) *PostgresAssignmentStore {
	return &PostgresAssignmentStore{db: db}
}

const assignmentColumns = `id, record_id, patient_id, doctor_id, status, created_at, revoked_at`

func (s *PostgresAssignmentStore) Create(ctx context.Context, a Assignment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO record_assignments (`+assignmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(a.ID), uuid.UUID(a.RecordID), uuid.UUID(a.PatientID), uuid.UUID(a.DoctorID),
		string(a.Status), a.CreatedAt, a.RevokedAt)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (s *PostgresAssignmentStore) Find(ctx context.Context, id domain.AssignmentID) (*Assignment, error) {
	return scanAssignment(s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM record_assignments WHERE id = $1`, uuid.UUID(id)))
}

func (s *PostgresAssignmentStore) FindActive(ctx context.Context, recordID domain.RecordID, doctorID domain.DoctorID) (*Assignment, error) {
	return scanAssignment(s.db.QueryRowContext(ctx, `
		SELECT `+assignmentColumns+` FROM record_assignments
		WHERE record_id = $1 AND doctor_id = $2 AND status = 'ACTIVE'
	`, uuid.UUID(recordID), uuid.UUID(doctorID)))
}

func (s *PostgresAssignmentStore) ListByDoctor(ctx context.Context, doctorID domain.DoctorID) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM record_assignments WHERE doctor_id = $1 ORDER BY created_at`,
		uuid.UUID(doctorID))
	if err != nil {
		return nil, fmt.Errorf("query assignments by doctor: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignmentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return out, nil
}

func (s *PostgresAssignmentStore) UpdateStatus(ctx context.Context, id domain.AssignmentID, status AssignmentStatus) error {
	var revokedAt any
	if status == AssignmentRevoked {
		revokedAt = requestcontext.Now(ctx)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE record_assignments SET status = $2, revoked_at = COALESCE($3, revoked_at) WHERE id = $1
	`, uuid.UUID(id), string(status), revokedAt)
	if err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresAssignmentStore) DeleteByPatient(ctx context.Context, patientID domain.PatientID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM record_assignments WHERE patient_id = $1`, uuid.UUID(patientID))
	if err != nil {
		return 0, fmt.Errorf("delete assignments by patient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete assignments by patient: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row *sql.Row) (*Assignment, error) {
	a, err := scanAssignmentRow(row)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	return a, err
}

func scanAssignmentRow(row rowScanner) (*Assignment, error) {
	var (
		a         Assignment
		id        uuid.UUID
		recordID  uuid.UUID
		patientID uuid.UUID
		doctorID  uuid.UUID
		status    string
	)
	err := row.Scan(&id, &recordID, &patientID, &doctorID, &status, &a.CreatedAt, &a.RevokedAt)
	if err != nil {
		return nil, err
	}
	a.ID = domain.AssignmentID(id)
	a.RecordID = domain.RecordID(recordID)
	a.PatientID = domain.PatientID(patientID)
	a.DoctorID = domain.DoctorID(doctorID)
	a.Status = AssignmentStatus(status)
	return &a, nil
}
