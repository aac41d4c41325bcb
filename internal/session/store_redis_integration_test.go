//go:build integration

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medihub/pkg/domain"
	"medihub/pkg/testutil/containers"
)

type RedisRevocationSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisRevocationStore
}

func TestRedisRevocationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisRevocationSuite))
}

func (s *RedisRevocationSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = NewRedisRevocationStore(s.redis.Client)
}

func (s *RedisRevocationSuite) TearDownSuite() {
	_ = s.redis.Client.Close()
	_ = s.redis.Container.Terminate(context.Background())
}

func (s *RedisRevocationSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisRevocationSuite) TestRevokeAndCheck() {
	ctx := context.Background()
	userID := domain.NewUserID()

	revoked, err := s.store.IsRevoked(ctx, userID)
	s.Require().NoError(err)
	s.False(revoked)

	s.Require().NoError(s.store.Revoke(ctx, userID, time.Hour))

	revoked, err = s.store.IsRevoked(ctx, userID)
	s.Require().NoError(err)
	s.True(revoked)

	s.Run("other users are unaffected", func() {
		revoked, err := s.store.IsRevoked(ctx, domain.NewUserID())
		s.Require().NoError(err)
		s.False(revoked)
	})
}

func (s *RedisRevocationSuite) TestRevocationExpires() {
	ctx := context.Background()
	userID := domain.NewUserID()

	s.Require().NoError(s.store.Revoke(ctx, userID, 100*time.Millisecond))

	revoked, err := s.store.IsRevoked(ctx, userID)
	s.Require().NoError(err)
	s.True(revoked)

	s.Require().Eventually(func() bool {
		revoked, err := s.store.IsRevoked(ctx, userID)
		return err == nil && !revoked
	}, 5*time.Second, 50*time.Millisecond, "marker key should expire with its TTL")
}
