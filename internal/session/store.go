// Package session tracks account-level session revocation. The deletion
// workflow revokes the deleted user's sessions here; the auth middleware
// rejects any surviving token on its next request.
package session

import (
	"context"
	"sync"
	"time"

	"medihub/pkg/domain"
)

// RevocationStore marks whole accounts as revoked for a bounded time (long
// enough to outlive any issued access token).
type RevocationStore interface {
	Revoke(ctx context.Context, userID domain.UserID, ttl time.Duration) error
	IsRevoked(ctx context.Context, userID domain.UserID) (bool, error)
}

// MemoryRevocationStore is an in-memory revocation list for tests and local
// use. Expired marks are dropped lazily on read.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	revoked map[domain.UserID]time.Time
	clock   func() time.Time
}

type MemoryOption func(*MemoryRevocationStore)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryRevocationStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewMemoryRevocationStore(opts ...MemoryOption) *MemoryRevocationStore {
	s := &MemoryRevocationStore{
		revoked: make(map[domain.UserID]time.Time),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryRevocationStore) Revoke(ctx context.Context, userID domain.UserID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[userID] = s.clock().Add(ttl)
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(ctx context.Context, userID domain.UserID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.revoked[userID]
	if !ok {
		return false, nil
	}
	if s.clock().After(expiresAt) {
		delete(s.revoked, userID)
		return false, nil
	}
	return true, nil
}
