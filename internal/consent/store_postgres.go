package consent

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"medihub/pkg/domain"
	"medihub/pkg/platform/sentinel"
	"medihub/pkg/requestcontext"
)

// PostgresConsentStore persists consents in the consents table. Scopes are
// stored as a text array.
type PostgresConsentStore struct {
	db *sql.DB
}

func NewPostgresConsentStore(db *sql.DB) *PostgresConsentStore {
	return &PostgresConsentStore{db: db}
}

const consentColumns = `id, patient_id, doctor_id, scopes, purpose, window_start, window_end, max_views, used_views, status, created_at, revoked_at`

func (s *PostgresConsentStore) Create(ctx context.Context, c Consent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consents (`+consentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		uuid.UUID(c.ID),
		uuid.UUID(c.PatientID),
		uuid.UUID(c.DoctorID),
		pq.Array(c.Scopes.Strings()),
		string(c.Purpose),
		c.WindowStart,
		c.WindowEnd,
		c.MaxViews,
		c.UsedViews,
		string(c.Status),
		c.CreatedAt,
		c.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

func (s *PostgresConsentStore) Find(ctx context.Context, id domain.ConsentID) (*Consent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+consentColumns+` FROM consents WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("query consent: %w", err)
	}
	defer rows.Close()

	consents, err := scanConsents(rows)
	if err != nil {
		return nil, err
	}
	if len(consents) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &consents[0], nil
}

func (s *PostgresConsentStore) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Consent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+consentColumns+` FROM consents WHERE patient_id = $1 ORDER BY created_at`, uuid.UUID(patientID))
	if err != nil {
		return nil, fmt.Errorf("query consents by patient: %w", err)
	}
	defer rows.Close()
	return scanConsents(rows)
}

func (s *PostgresConsentStore) ListByParties(ctx context.Context, patientID domain.PatientID, doctorID domain.DoctorID) ([]Consent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+consentColumns+` FROM consents WHERE patient_id = $1 AND doctor_id = $2 ORDER BY created_at`,
		uuid.UUID(patientID), uuid.UUID(doctorID))
	if err != nil {
		return nil, fmt.Errorf("query consents by parties: %w", err)
	}
	defer rows.Close()
	return scanConsents(rows)
}

func (s *PostgresConsentStore) UpdateStatus(ctx context.Context, id domain.ConsentID, status ConsentStatus) error {
	var revokedAt any
	if status == StatusRevoked {
		revokedAt = requestcontext.Now(ctx)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE consents SET status = $2, revoked_at = COALESCE($3, revoked_at) WHERE id = $1
	`, uuid.UUID(id), string(status), revokedAt)
	if err != nil {
		return fmt.Errorf("update consent status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// ConsumeView spends one view atomically. The WHERE clause is the guard:
// a capped consent only matches while used_views is below max_views, so two
// racing updates can never take the last view twice.
func (s *PostgresConsentStore) ConsumeView(ctx context.Context, id domain.ConsentID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE consents
		SET used_views = used_views + 1
		WHERE id = $1 AND (max_views IS NULL OR used_views < max_views)
	`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("consume consent view: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume consent view: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM consents WHERE id = $1)`, uuid.UUID(id)).Scan(&exists); err != nil {
			return fmt.Errorf("check consent exists: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrExhausted
	}
	return nil
}

func (s *PostgresConsentStore) DeleteByPatient(ctx context.Context, patientID domain.PatientID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM consents WHERE patient_id = $1`, uuid.UUID(patientID))
	if err != nil {
		return 0, fmt.Errorf("delete consents by patient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete consents by patient: %w", err)
	}
	return n, nil
}

func scanConsents(rows *sql.Rows) ([]Consent, error) {
	var consents []Consent
	for rows.Next() {
		var (
			c         Consent
			id        uuid.UUID
			patientID uuid.UUID
			doctorID  uuid.UUID
			scopes    []string
			purpose   string
			status    string
		)
		err := rows.Scan(&id, &patientID, &doctorID, pq.Array(&scopes), &purpose,
			&c.WindowStart, &c.WindowEnd, &c.MaxViews, &c.UsedViews, &status, &c.CreatedAt, &c.RevokedAt)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		c.ID = domain.ConsentID(id)
		c.PatientID = domain.PatientID(patientID)
		c.DoctorID = domain.DoctorID(doctorID)
		c.Purpose = domain.ConsentPurpose(purpose)
		c.Status = ConsentStatus(status)
		parsed, err := domain.ParseScopeSet(scopes)
		if err != nil {
			return nil, fmt.Errorf("stored scopes invalid: %w", err)
		}
		c.Scopes = parsed
		consents = append(consents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return consents, nil
}

// PostgresLinkStore persists doctor-patient links in the links table.
type PostgresLinkStore struct {
	db *sql.DB
}

func NewPostgresLinkStore(db *sql.DB) *PostgresLinkStore {
	return &PostgresLinkStore{db: db}
}

const linkColumns = `id, patient_id, doctor_id, status, requested_at, responded_at`

func (s *PostgresLinkStore) Create(ctx context.Context, l Link) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM links WHERE patient_id = $1 AND doctor_id = $2 AND status <> 'REVOKED'
		)
	`, uuid.UUID(l.PatientID), uuid.UUID(l.DoctorID)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check existing link: %w", err)
	}
	if exists {
		return sentinel.ErrConflict
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO links (`+linkColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(l.ID), uuid.UUID(l.PatientID), uuid.UUID(l.DoctorID), string(l.Status), l.RequestedAt, l.RespondedAt)
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

func (s *PostgresLinkStore) Find(ctx context.Context, id domain.LinkID) (*Link, error) {
	return scanLink(s.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE id = $1`, uuid.UUID(id)))
}

func (s *PostgresLinkStore) FindByParties(ctx context.Context, patientID domain.PatientID, doctorID domain.DoctorID) (*Link, error) {
	return scanLink(s.db.QueryRowContext(ctx, `
		SELECT `+linkColumns+` FROM links
		WHERE patient_id = $1 AND doctor_id = $2
		ORDER BY CASE status WHEN 'APPROVED' THEN 2 WHEN 'REQUESTED' THEN 1 ELSE 0 END DESC
		LIMIT 1
	`, uuid.UUID(patientID), uuid.UUID(doctorID)))
}

func (s *PostgresLinkStore) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE patient_id = $1 ORDER BY requested_at`, uuid.UUID(patientID))
	if err != nil {
		return nil, fmt.Errorf("query links by patient: %w", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

func (s *PostgresLinkStore) ListByDoctor(ctx context.Context, doctorID domain.DoctorID) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE doctor_id = $1 ORDER BY requested_at`, uuid.UUID(doctorID))
	if err != nil {
		return nil, fmt.Errorf("query links by doctor: %w", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

func (s *PostgresLinkStore) UpdateStatus(ctx context.Context, id domain.LinkID, status LinkStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE links SET status = $2, responded_at = $3 WHERE id = $1
	`, uuid.UUID(id), string(status), requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("update link status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresLinkStore) DeleteByPatient(ctx context.Context, patientID domain.PatientID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE patient_id = $1`, uuid.UUID(patientID))
	if err != nil {
		return 0, fmt.Errorf("delete links by patient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete links by patient: %w", err)
	}
	return n, nil
}

func scanLink(row *sql.Row) (*Link, error) {
	var (
		l         Link
		id        uuid.UUID
		patientID uuid.UUID
		doctorID  uuid.UUID
		status    string
	)
	err := row.Scan(&id, &patientID, &doctorID, &status, &l.RequestedAt, &l.RespondedAt)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan link: %w", err)
	}
	l.ID = domain.LinkID(id)
	l.PatientID = domain.PatientID(patientID)
	l.DoctorID = domain.DoctorID(doctorID)
	l.Status = LinkStatus(status)
	return &l, nil
}

func scanLinks(rows *sql.Rows) ([]Link, error) {
	var links []Link
	for rows.Next() {
		var (
			l         Link
			id        uuid.UUID
			patientID uuid.UUID
			doctorID  uuid.UUID
			status    string
		)
		if err := rows.Scan(&id, &patientID, &doctorID, &status, &l.RequestedAt, &l.RespondedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.ID = domain.LinkID(id)
		l.PatientID = domain.PatientID(patientID)
		l.DoctorID = domain.DoctorID(doctorID)
		l.Status = LinkStatus(status)
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}
