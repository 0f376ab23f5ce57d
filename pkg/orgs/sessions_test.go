package orgs

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSessionRegistry(t *testing.T) (*SessionRegistry, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewSessionRegistry(client, time.Minute, nil), mr
}

func TestSessionRegistryLoginAndGet(t *testing.T) {
	registry, mr := setupSessionRegistry(t)
	ctx := context.Background()

	session := &Session{UserID: "user-1", TenantID: "tenant-1", Edition: "cloud"}
	require.NoError(t, registry.Login(ctx, session))
	assert.False(t, session.LoginAt.IsZero())

	got, err := registry.Get(ctx, "tenant-1", "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "cloud", got.Edition)

	// The stored entry expires with the registry TTL.
	ttl := mr.TTL("gatehouse:session:tenant-1:user-1")
	assert.Equal(t, time.Minute, ttl)
}

func TestSessionRegistryGetMissing(t *testing.T) {
	registry, _ := setupSessionRegistry(t)

	got, err := registry.Get(context.Background(), "tenant-1", "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionRegistryTouch(t *testing.T) {
	registry, mr := setupSessionRegistry(t)
	ctx := context.Background()

	t.Run("MissingSessionIsNotAnError", func(t *testing.T) {
		alive, err := registry.Touch(ctx, "tenant-1", "ghost")
		require.NoError(t, err)
		assert.False(t, alive)
	})

	t.Run("RefreshesTTLAndLastSeen", func(t *testing.T) {
		session := &Session{UserID: "user-1", TenantID: "tenant-1", Edition: "cloud"}
		require.NoError(t, registry.Login(ctx, session))

		mr.FastForward(30 * time.Second)

		alive, err := registry.Touch(ctx, "tenant-1", "user-1")
		require.NoError(t, err)
		assert.True(t, alive)
		assert.Equal(t, time.Minute, mr.TTL("gatehouse:session:tenant-1:user-1"))
	})

	t.Run("CorruptEntryIsDropped", func(t *testing.T) {
		mr.Set("gatehouse:session:tenant-1:broken", "not json")

		alive, err := registry.Touch(ctx, "tenant-1", "broken")
		require.NoError(t, err)
		assert.False(t, alive)
		assert.False(t, mr.Exists("gatehouse:session:tenant-1:broken"))
	})
}

func TestSessionRegistryLogout(t *testing.T) {
	registry, mr := setupSessionRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Login(ctx, &Session{UserID: "user-1", TenantID: "tenant-1"}))
	require.NoError(t, registry.Logout(ctx, "tenant-1", "user-1"))
	assert.False(t, mr.Exists("gatehouse:session:tenant-1:user-1"))

	// Logging out an absent session is harmless.
	assert.NoError(t, registry.Logout(ctx, "tenant-1", "user-1"))
}

func TestSessionRegistryActiveUsers(t *testing.T) {
	registry, _ := setupSessionRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Login(ctx, &Session{UserID: "user-1", TenantID: "tenant-1"}))
	require.NoError(t, registry.Login(ctx, &Session{UserID: "user-2", TenantID: "tenant-1"}))
	require.NoError(t, registry.Login(ctx, &Session{UserID: "user-3", TenantID: "tenant-2"}))

	users, err := registry.ActiveUsers(ctx, "tenant-1")
	require.NoError(t, err)
	sort.Strings(users)
	assert.Equal(t, []string{"user-1", "user-2"}, users)

	count, err := registry.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestSessionRegistryExpiry(t *testing.T) {
	registry, mr := setupSessionRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Login(ctx, &Session{UserID: "user-1", TenantID: "tenant-1"}))
	mr.FastForward(2 * time.Minute)

	got, err := registry.Get(ctx, "tenant-1", "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
