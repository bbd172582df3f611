package queue

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	l := NewMemoryLocker()
	l.now = func() time.Time { return now }

	unlock, err := l.Lock(ctx, "acc", time.Minute)
	require.NoError(t, err)

	_, err = l.Lock(ctx, "acc", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	_, err = l.Lock(ctx, "other", time.Minute)
	assert.NoError(t, err)

	// после ttl блокировку можно перехватить; старый unlock её не снимает
	now = now.Add(2 * time.Minute)
	_, err = l.Lock(ctx, "acc", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))

	_, err = l.Lock(ctx, "acc", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLocker(client)

	unlock, err := l.Lock(ctx, "acc", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("herald:queue:lock:acc"))

	_, err = l.Lock(ctx, "acc", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("herald:queue:lock:acc"))

	_, err = l.Lock(ctx, "acc", time.Minute)
	assert.NoError(t, err)
}

func TestRedisLocker_ExpiredLockNotReleasedByOldOwner(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLocker(client)

	unlockOld, err := l.Lock(ctx, "acc", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = l.Lock(ctx, "acc", time.Minute)
	require.NoError(t, err)

	require.NoError(t, unlockOld(ctx))
	assert.True(t, mr.Exists("herald:queue:lock:acc"), "new owner's lock must survive")
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	_, err = NewRedisClient(context.Background(), "://bad")
	assert.Error(t, err)
}
