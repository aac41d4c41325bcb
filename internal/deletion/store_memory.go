package deletion

import (
	"context"
	"sync"

	"medihub/pkg/domain"
	"medihub/pkg/platform/sentinel"
	"medihub/pkg/requestcontext"
)

// MemoryStore is an in-memory job store for tests and local use. One mutex
// serializes the blocking-status check and the insert so two racing starts
// for the same patient cannot both pass the guard.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[domain.JobID]Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[domain.JobID]Job)}
}

func (s *MemoryStore) CreateIfNone(ctx context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jobs {
		if existing.PatientID == job.PatientID && existing.Status.Blocks() {
			return sentinel.ErrConflict
		}
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, id domain.JobID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := cloneJob(job)
	return &out, nil
}

func (s *MemoryStore) FindLatestByPatient(ctx context.Context, patientID domain.PatientID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *Job
	for _, job := range s.jobs {
		if job.PatientID != patientID {
			continue
		}
		candidate := cloneJob(job)
		if latest == nil || candidate.CreatedAt.After(latest.CreatedAt) {
			latest = &candidate
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id domain.JobID, status JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if job.Status.Terminal() {
		return sentinel.ErrInvalidState
	}
	job.Status = status
	job.UpdatedAt = requestcontext.Now(ctx)
	s.jobs[id] = job
	return nil
}

func (s *MemoryStore) AppendStep(ctx context.Context, id domain.JobID, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	job.Steps = append(job.Steps, step)
	job.UpdatedAt = requestcontext.Now(ctx)
	s.jobs[id] = job
	return nil
}

func (s *MemoryStore) Complete(ctx context.Context, id domain.JobID, receiptJSON []byte, receiptHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if job.Status.Terminal() {
		return sentinel.ErrInvalidState
	}
	now := requestcontext.Now(ctx)
	job.Status = StatusComplete
	job.ReceiptJSON = append([]byte(nil), receiptJSON...)
	job.ReceiptHash = receiptHash
	job.UpdatedAt = now
	job.CompletedAt = &now
	s.jobs[id] = job
	return nil
}

func cloneJob(job Job) Job {
	job.Steps = append([]string(nil), job.Steps...)
	job.ReceiptJSON = append([]byte(nil), job.ReceiptJSON...)
	return job
}
