package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medihub/pkg/domain"
)

func TestMemoryRevocationStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 20, 10, 0, 0, 0, time.UTC)
	store := NewMemoryRevocationStore(WithClock(func() time.Time { return now }))

	userID := domain.NewUserID()

	revoked, err := store.IsRevoked(ctx, userID)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, userID, time.Hour))

	revoked, err = store.IsRevoked(ctx, userID)
	require.NoError(t, err)
	assert.True(t, revoked)

	t.Run("mark expires with its ttl", func(t *testing.T) {
		now = now.Add(time.Hour + time.Second)
		revoked, err := store.IsRevoked(ctx, userID)
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("re-revocation extends the mark", func(t *testing.T) {
		require.NoError(t, store.Revoke(ctx, userID, 24*time.Hour))
		now = now.Add(23 * time.Hour)
		revoked, err := store.IsRevoked(ctx, userID)
		require.NoError(t, err)
		assert.True(t, revoked)
	})
}
