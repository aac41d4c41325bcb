package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"medihub/pkg/domain"
	"medihub/pkg/platform/sentinel"
)

// PostgresStore persists the directory in the users, patients and doctors
// tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, full_name, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(user.ID), user.Email, user.FullName, string(user.Role), user.CreatedAt)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindUser(ctx context.Context, id domain.UserID) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, role, created_at FROM users WHERE id = $1
	`, uuid.UUID(id)))
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, role, created_at FROM users WHERE lower(email) = lower($1)
	`, email))
}

func (s *PostgresStore) scanUser(row *sql.Row) (*User, error) {
	var (
		user User
		id   uuid.UUID
		role string
	)
	err := row.Scan(&id, &user.Email, &user.FullName, &role, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.ID = domain.UserID(id)
	user.Role = domain.Role(role)
	return &user, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id domain.UserID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreatePatient(ctx context.Context, patient Patient) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patients (id, user_id, date_of_birth, sex, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(patient.ID), uuid.UUID(patient.UserID), patient.DateOfBirth, patient.Sex, patient.CreatedAt)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindPatient(ctx context.Context, id domain.PatientID) (*Patient, error) {
	return s.scanPatient(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, date_of_birth, sex, created_at FROM patients WHERE id = $1
	`, uuid.UUID(id)))
}

func (s *PostgresStore) FindPatientByUser(ctx context.Context, userID domain.UserID) (*Patient, error) {
	return s.scanPatient(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, date_of_birth, sex, created_at FROM patients WHERE user_id = $1
	`, uuid.UUID(userID)))
}

func (s *PostgresStore) scanPatient(row *sql.Row) (*Patient, error) {
	var (
		patient Patient
		id      uuid.UUID
		userID  uuid.UUID
	)
	err := row.Scan(&id, &userID, &patient.DateOfBirth, &patient.Sex, &patient.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	patient.ID = domain.PatientID(id)
	patient.UserID = domain.UserID(userID)
	return &patient, nil
}

func (s *PostgresStore) DeletePatient(ctx context.Context, id domain.PatientID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateDoctor(ctx context.Context, doctor Doctor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO doctors (id, user_id, registration_no, organization, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(doctor.ID), uuid.UUID(doctor.UserID), doctor.RegistrationNo, doctor.Organization, doctor.CreatedAt)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindDoctor(ctx context.Context, id domain.DoctorID) (*Doctor, error) {
	return s.scanDoctor(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, registration_no, organization, created_at FROM doctors WHERE id = $1
	`, uuid.UUID(id)))
}

func (s *PostgresStore) FindDoctorByUser(ctx context.Context, userID domain.UserID) (*Doctor, error) {
	return s.scanDoctor(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, registration_no, organization, created_at FROM doctors WHERE user_id = $1
	`, uuid.UUID(userID)))
}

func (s *PostgresStore) scanDoctor(row *sql.Row) (*Doctor, error) {
	var (
		doctor Doctor
		id     uuid.UUID
		userID uuid.UUID
	)
	err := row.Scan(&id, &userID, &doctor.RegistrationNo, &doctor.Organization, &doctor.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan doctor: %w", err)
	}
	doctor.ID = domain.DoctorID(id)
	doctor.UserID = domain.UserID(userID)
	return &doctor, nil
}
