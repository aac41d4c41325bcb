package consent

import (
	"context"
	"sync"

	"medihub/pkg/domain"
	"medihub/pkg/platform/sentinel"
	"medihub/pkg/requestcontext"
)

// MemoryConsentStore is an in-memory consent store for tests and local use.
type MemoryConsentStore struct {
	mu       sync.Mutex
	consents map[domain.ConsentID]Consent
}

func NewMemoryConsentStore() *MemoryConsentStore {
	return &MemoryConsentStore{consents: make(map[domain.ConsentID]Consent)}
}

func (s *MemoryConsentStore) Create(ctx context.Context, c Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.consents[c.ID]; exists {
		return sentinel.ErrConflict
	}
	s.consents[c.ID] = c
	return nil
}

func (s *MemoryConsentStore) Find(ctx context.Context, id domain.ConsentID) (*Consent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.consents[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *MemoryConsentStore) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Consent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Consent
	for _, c := range s.consents {
		if c.PatientID == patientID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryConsentStore) ListByParties(ctx context.Context, patientID domain.PatientID, doctorID domain.DoctorID) ([]Consent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Consent
	for _, c := range s.consents {
		if c.PatientID == patientID && c.DoctorID == doctorID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryConsentStore) UpdateStatus(ctx context.Context, id domain.ConsentID, status ConsentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.consents[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	c.Status = status
	if status == StatusRevoked {
		now := requestcontext.Now(ctx)
		c.RevokedAt = &now
	}
	s.consents[id] = c
	return nil
}

// ConsumeView increments used_views only while it is below the cap. The
// mutex makes the check-and-increment atomic.
func (s *MemoryConsentStore) ConsumeView(ctx context.Context, id domain.ConsentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.consents[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if c.MaxViews != nil && c.UsedViews >= *c.MaxViews {
		return sentinel.ErrExhausted
	}
	c.UsedViews++
	s.consents[id] = c
	return nil
}

func (s *MemoryConsentStore) DeleteByPatient(ctx context.Context, patientID domain.PatientID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, c := range s.consents {
		if c.PatientID == patientID {
			delete(s.consents, id)
			n++
		}
	}
	return n, nil
}

// MemoryLinkStore is an in-memory link store for tests and local use.
type MemoryLinkStore struct {
	mu    sync.Mutex
	links map[domain.LinkID]Link
}

func NewMemoryLinkStore() *MemoryLinkStore {
	return &MemoryLinkStore{links: make(map[domain.LinkID]Link)}
}

func (s *MemoryLinkStore) Create(ctx context.Context, l Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.links {
		if existing.PatientID == l.PatientID && existing.DoctorID == l.DoctorID && existing.Status != LinkRevoked {
			return sentinel.ErrConflict
		}
	}
	s.links[l.ID] = l
	return nil
}

func (s *MemoryLinkStore) Find(ctx context.Context, id domain.LinkID) (*Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &l, nil
}

// FindByParties returns the most relevant link between the parties: an
// APPROVED one wins, then REQUESTED, then REVOKED.
func (s *MemoryLinkStore) FindByParties(ctx context.Context, patientID domain.PatientID, doctorID domain.DoctorID) (*Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Link
	rank := func(status LinkStatus) int {
		switch status {
		case LinkApproved:
			return 2
		case LinkRequested:
			return 1
		default:
			return 0
		}
	}
	for _, l := range s.links {
		if l.PatientID != patientID || l.DoctorID != doctorID {
			continue
		}
		candidate := l
		if best == nil || rank(candidate.Status) > rank(best.Status) {
			best = &candidate
		}
	}
	if best == nil {
		return nil, sentinel.ErrNotFound
	}
	return best, nil
}

func (s *MemoryLinkStore) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Link
	for _, l := range s.links {
		if l.PatientID == patientID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *MemoryLinkStore) ListByDoctor(ctx context.Context, doctorID domain.DoctorID) ([]Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Link
	for _, l := range s.links {
		if l.DoctorID == doctorID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *MemoryLinkStore) UpdateStatus(ctx context.Context, id domain.LinkID, status LinkStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	l.Status = status
	now := requestcontext.Now(ctx)
	l.RespondedAt = &now
	s.links[id] = l
	return nil
}

func (s *MemoryLinkStore) DeleteByPatient(ctx context.Context, patientID domain.PatientID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, l := range s.links {
		if l.PatientID == patientID {
			delete(s.links, id)
			n++
		}
	}
	return n, nil
}
