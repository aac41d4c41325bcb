package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"medihub/pkg/domain"
)

// Redis key prefix for revoked accounts.
const revokedUserKeyPrefix = "session:revoked:"

// RedisRevocationStore is the production implementation: revocation state is
// shared across instances and expires via key TTL.
type RedisRevocationStore struct {
	client *redis.Client
}

func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, userID domain.UserID, ttl time.Duration) error {
	key := revokedUserKeyPrefix + userID.String()
	// The key's existence is what matters; "1" is just a marker.
	return s.client.Set(ctx, key, "1", ttl).Err()
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, userID domain.UserID) (bool, error) {
	key := revokedUserKeyPrefix + userID.String()
	err := s.client.Get(ctx, key).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var _ RevocationStore = (*RedisRevocationStore)(nil)
