package audit

import (
	"context"
	"sync"

	"medihub/pkg/domain"
)

// MemoryStore is an in-memory ledger store for tests and local development.
// A single mutex covers the tail read and the insert, so concurrent appends
// always see the tail they chain onto.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, build func(prevHash string) (Entry, error)) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := ""
	if n := len(s.entries); n > 0 {
		prev = s.entries[n-1].CurrHash
	}

	entry, err := build(prev)
	if err != nil {
		return Entry{}, err
	}
	entry.Seq = int64(len(s.entries)) + 1
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *MemoryStore) TailHash(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.entries); n > 0 {
		return s.entries[n-1].CurrHash, nil
	}
	return "", nil
}

func (s *MemoryStore) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset >= len(s.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.entries) {
		end = len(s.entries)
	}
	out := make([]Entry, end-offset)
	copy(out, s.entries[offset:end])
	return out, nil
}

func (s *MemoryStore) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for _, e := range s.entries {
		if e.Patient == patientID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.entries)), nil
}

// Tamper overwrites a stored entry in place. Only for tests that exercise
// chain verification; there is no production path that mutates the ledger.
func (s *MemoryStore) Tamper(seq int64, mutate func(*Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < 1 || seq > int64(len(s.entries)) {
		return
	}
	mutate(&s.entries[seq-1])
}
