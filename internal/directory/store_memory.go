package directory

import (
	"context"
	"strings"
	"sync"

	"medihub/pkg/domain"
	"medihub/pkg/platform/sentinel"
)

// MemoryStore is an in-memory directory store for tests and local use.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[domain.UserID]User
	patients map[domain.PatientID]Patient
	doctors  map[domain.DoctorID]Doctor
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[domain.UserID]User),
		patients: make(map[domain.PatientID]Patient),
		doctors:  make(map[domain.DoctorID]Doctor),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return sentinel.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *MemoryStore) FindUser(ctx context.Context, id domain.UserID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &user, nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			user := u
			return &user, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) CreatePatient(ctx context.Context, patient Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.patients[patient.ID]; exists {
		return sentinel.ErrConflict
	}
	s.patients[patient.ID] = patient
	return nil
}

func (s *MemoryStore) FindPatient(ctx context.Context, id domain.PatientID) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	patient, ok := s.patients[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &patient, nil
}

func (s *MemoryStore) FindPatientByUser(ctx context.Context, userID domain.UserID) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.patients {
		if p.UserID == userID {
			patient := p
			return &patient, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) DeletePatient(ctx context.Context, id domain.PatientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patients[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.patients, id)
	return nil
}

func (s *MemoryStore) CreateDoctor(ctx context.Context, doctor Doctor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.doctors[doctor.ID]; exists {
		return sentinel.ErrConflict
	}
	s.doctors[doctor.ID] = doctor
	return nil
}

func (s *MemoryStore) FindDoctor(ctx context.Context, id domain.DoctorID) (*Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doctor, ok := s.doctors[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &doctor, nil
}

func (s *MemoryStore) FindDoctorByUser(ctx context.Context, userID domain.UserID) (*Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.doctors {
		if d.UserID == userID {
			doctor := d
			return &doctor, nil
		}
	}
	return nil, sentinel.ErrNotFound
}
