package record

import (
	"context"
	"sync"

	"medihub/pkg/domain"
	"medihub/pkg/platform/sentinel"
	"medihub/pkg/requestcontext"
)

// MemoryStore is an in-memory record store for tests and local use.
type MemoryStore struct {
	mu      sync.Mutex
	records map[domain.RecordID]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[domain.RecordID]Record)}
}

func (s *MemoryStore) Create(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[r.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[r.ID] = cloneRecord(r)
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, id domain.RecordID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok || r.Deleted() {
		return nil, sentinel.ErrNotFound
	}
	out := cloneRecord(r)
	return &out, nil
}

func (s *MemoryStore) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, r := range s.records {
		if r.PatientID == patientID && !r.Deleted() {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[r.ID]
	if !ok || existing.Deleted() {
		return sentinel.ErrNotFound
	}
	s.records[r.ID] = cloneRecord(r)
	return nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, id domain.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok || r.Deleted() {
		return sentinel.ErrNotFound
	}
	now := requestcontext.Now(ctx)
	r.DeletedAt = &now
	s.records[id] = r
	return nil
}

// CountByPatient counts every row including soft-deleted ones: the deletion
// receipt reports what was physically purged.
func (s *MemoryStore) CountByPatient(ctx context.Context, patientID domain.PatientID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.records {
		if r.PatientID == patientID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) HardDeleteByPatient(ctx context.Context, patientID domain.PatientID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.records {
		if r.PatientID == patientID {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func cloneRecord(r Record) Record {
	content := make(map[string]any, len(r.Content))
	for k, v := range r.Content {
		content[k] = v
	}
	r.Content = content
	return r
}

// MemoryDocumentStore is an in-memory document metadata store.
type MemoryDocumentStore struct {
	mu        sync.Mutex
	documents map[domain.DocumentID]Document
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{documents: make(map[domain.DocumentID]Document)}
}

func (s *MemoryDocumentStore) Create(ctx context.Context, d Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[d.ID]; exists {
		return sentinel.ErrConflict
	}
	s.documents[d.ID] = d
	return nil
}

func (s *MemoryDocumentStore) Find(ctx context.Context, id domain.DocumentID) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.documents[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &d, nil
}

func (s *MemoryDocumentStore) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Document
	for _, d := range s.documents {
		if d.PatientID == patientID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryDocumentStore) CountByPatient(ctx context.Context, patientID domain.PatientID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, d := range s.documents {
		if d.PatientID == patientID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryDocumentStore) DeleteByPatient(ctx context.Context, patientID domain.PatientID) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []Document
	for id, d := range s.documents {
		if d.PatientID == patientID {
			deleted = append(deleted, d)
			delete(s.documents, id)
		}
	}
	return deleted, nil
}
