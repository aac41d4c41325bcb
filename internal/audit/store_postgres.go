package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"medihub/pkg/domain"
)

// ledgerLockKey is the advisory lock ID that serializes appends. Any single
// well-known value works; it only has to be the same for every writer.
const ledgerLockKey = 0x4d48_4c45 // "MHLE"

// PostgresStore persists the ledger in the audit_ledger table. Appends take
// a transaction-scoped advisory lock so the tail read and the insert are one
// atomic unit even across processes.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, build func(prevHash string) (Entry, error)) (Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
		return Entry{}, fmt.Errorf("acquire ledger lock: %w", err)
	}

	var prev string
	err = tx.QueryRowContext(ctx,
		`SELECT curr_hash FROM audit_ledger ORDER BY seq DESC LIMIT 1`,
	).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return Entry{}, fmt.Errorf("read ledger tail: %w", err)
	}

	entry, err := build(prev)
	if err != nil {
		return Entry{}, err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO audit_ledger (timestamp, actor_id, patient_id, action, details, prev_hash, curr_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq
	`,
		entry.Timestamp,
		uuid.UUID(entry.Actor),
		uuid.UUID(entry.Patient),
		string(entry.Action),
		entry.Details,
		entry.PrevHash,
		entry.CurrHash,
	).Scan(&entry.Seq)
	if err != nil {
		return Entry{}, fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("commit ledger append: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) TailHash(ctx context.Context) (string, error) {
	var tail string
	err := s.db.QueryRowContext(ctx,
		`SELECT curr_hash FROM audit_ledger ORDER BY seq DESC LIMIT 1`,
	).Scan(&tail)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read ledger tail: %w", err)
	}
	return tail, nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, timestamp, actor_id, patient_id, action, details, prev_hash, curr_hash
		FROM audit_ledger
		ORDER BY seq ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, timestamp, actor_id, patient_id, action, details, prev_hash, curr_hash
		FROM audit_ledger
		WHERE patient_id = $1
		ORDER BY seq ASC
	`, uuid.UUID(patientID))
	if err != nil {
		return nil, fmt.Errorf("query ledger by patient: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_ledger`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return count, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			actor   uuid.UUID
			patient uuid.UUID
			action  string
		)
		err := rows.Scan(&e.Seq, &e.Timestamp, &actor, &patient, &action, &e.Details, &e.PrevHash, &e.CurrHash)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Actor = domain.UserID(actor)
		e.Patient = domain.PatientID(patient)
		e.Action = Action(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}
