package record

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

// PostgresStore persists records in the records table. Content is a JSONB
// column.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, patient_id, type, content, content_hash, created_by, created_at, updated_at, deleted_at`

func (s *PostgresStore) Create(ctx context.Context, r Record) error {
	content, err := json.Marshal(r.Content)
	if err != nil {
		return fmt.Errorf("marshal record content: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.UUID(r.ID), uuid.UUID(r.PatientID), string(r.Type), content, r.ContentHash,
		uuid.UUID(r.CreatedBy), r.CreatedAt, r.UpdatedAt, r.DeletedAt)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, id domain.RecordID) (*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records WHERE id = $1 AND deleted_at IS NULL
	`, uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &records[0], nil
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE patient_id = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`, uuid.UUID(patientID))
	if err != nil {
		return nil, fmt.Errorf("query records by patient: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) Update(ctx context.Context, r Record) error {
	content, err := json.Marshal(r.Content)
	if err != nil {
		return fmt.Errorf("marshal record content: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET content = $2, content_hash = $3, updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
	`, uuid.UUID(r.ID), content, r.ContentHash, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SoftDelete(ctx context.Context, id domain.RecordID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL
	`, uuid.UUID(id), requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("soft delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountByPatient(ctx context.Context, patientID domain.PatientID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE patient_id = $1`, uuid.UUID(patientID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) HardDeleteByPatient(ctx context.Context, patientID domain.PatientID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE patient_id = $1`, uuid.UUID(patientID))
	if err != nil {
		return 0, fmt.Errorf("hard delete records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("hard delete records: %w", err)
	}
	return n, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			r         Record
			id        uuid.UUID
			patientID uuid.UUID
			typ       string
			content   []byte
			createdBy uuid.UUID
		)
		err := rows.Scan(&id, &patientID, &typ, &content, &r.ContentHash, &createdBy,
			&r.CreatedAt, &r.UpdatedAt, &r.DeletedAt)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal(content, &r.Content); err != nil {
			return nil, fmt.Errorf("unmarshal record content: %w", err)
		}
		r.ID = domain.RecordID(id)
		r.PatientID = domain.PatientID(patientID)
		r.Type = domain.RecordType(typ)
		r.CreatedBy = domain.UserID(createdBy)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// PostgresDocumentStore persists document metadata in the documents table.
type PostgresDocumentStore struct {
	db *sql.DB
}

func NewPostgresDocumentStore(db *sql.DB) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db}
}

const documentColumns = `id, patient_id, file_name, content_type, size_bytes, blob_key, uploaded_by, created_at`

func (s *PostgresDocumentStore) Create(ctx context.Context, d Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.UUID(d.ID), uuid.UUID(d.PatientID), d.FileName, d.ContentType, d.Size,
		d.BlobKey, uuid.UUID(d.UploadedBy), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresDocumentStore) Find(ctx context.Context, id domain.DocumentID) (*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &docs[0], nil
}

func (s *PostgresDocumentStore) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE patient_id = $1 ORDER BY created_at`,
		uuid.UUID(patientID))
	if err != nil {
		return nil, fmt.Errorf("query documents by patient: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *PostgresDocumentStore) CountByPatient(ctx context.Context, patientID domain.PatientID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE patient_id = $1`, uuid.UUID(patientID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func (s *PostgresDocumentStore) DeleteByPatient(ctx context.Context, patientID domain.PatientID) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM documents WHERE patient_id = $1 RETURNING `+documentColumns+`
	`, uuid.UUID(patientID))
	if err != nil {
		return nil, fmt.Errorf("delete documents by patient: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		var (
			d          Document
			id         uuid.UUID
			patientID  uuid.UUID
			uploadedBy uuid.UUID
		)
		err := rows.Scan(&id, &patientID, &d.FileName, &d.ContentType, &d.Size, &d.BlobKey, &uploadedBy, &d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.ID = domain.DocumentID(id)
		d.PatientID = domain.PatientID(patientID)
		d.UploadedBy = domain.UserID(uploadedBy)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}
