package access

import (
	"context"
	"sync"

	"medihub/pkg/domain"
	"medihub/pkg/platform/sentinel"
	"medihub/pkg/requestcontext"
)

// MemoryAssignmentStore is an in-memory assignment store for tests and local
// use.
type MemoryAssignmentStore struct {
	mu          sync.Mutex
	assignments map[domain.AssignmentID]Assignment
}

func NewMemoryAssignmentStore() *MemoryAssignmentStore {
	return &MemoryAssignmentStore{assignments: make(map[domain.AssignmentID]Assignment)}
}

func (s *MemoryAssignmentStore) Create(ctx context.Context, a Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.assignments {
		if existing.RecordID == a.RecordID && existing.DoctorID == a.DoctorID && existing.Status == AssignmentActive {
			return sentinel.ErrConflict
		}
	}
	s.assignments[a.ID] = a
	return nil
}

func (s *MemoryAssignmentStore) Find(ctx context.Context, id domain.AssignmentID) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignments[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &a, nil
}

func (s *MemoryAssignmentStore) FindActive(ctx context.Context, recordID domain.RecordID, doctorID domain.DoctorID) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.assignments {
		if a.RecordID == recordID && a.DoctorID == doctorID && a.Status == AssignmentActive {
			found := a
			return &found, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryAssignmentStore) ListByDoctor(ctx context.Context, doctorID domain.DoctorID) ([]Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Assignment
	for _, a := range s.assignments {
		if a.DoctorID == doctorID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryAssignmentStore) UpdateStatus(ctx context.Context, id domain.AssignmentID, status AssignmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignments[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	a.Status = status
	if status == AssignmentRevoked {
		now := requestcontext.Now(ctx)
		a.RevokedAt = &now
	}
	s.assignments[id] = a
	return nil
}

func (s *MemoryAssignmentStore) DeleteByPatient(ctx context.Context, patientID domain.PatientID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, a := range s.assignments {
		if a.PatientID == patientID {
			delete(s.assignments, id)
			n++
		}
	}
	return n, nil
}
