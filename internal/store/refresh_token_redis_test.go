package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/boardsync/apiserver/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisRefreshTokenRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisRefreshTokenRepository(rdb), mr
}

func refreshRecord(token string, exp time.Time) types.RefreshTokenRecord {
	return types.RefreshTokenRecord{
		Token:     token,
		UserID:    "user-1",
		IssuedAt:  time.Now().Truncate(time.Second),
		ExpiresAt: exp.Truncate(time.Second),
	}
}

func TestRedisRefreshStoreCreateGetDelete(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	created, err := s.Create(ctx, refreshRecord("tok-a", exp))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, mr.TTL(refreshKey("tok-a")) > 0)

	got, err := s.GetByToken(ctx, "tok-a")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "user-1", got.UserID)
	assert.True(t, got.ExpiresAt.Equal(exp.Truncate(time.Second)))

	_, err = s.Create(ctx, refreshRecord("tok-a", exp))
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, s.DeleteByToken(ctx, "tok-a"))
	_, err = s.GetByToken(ctx, "tok-a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteByToken(ctx, "tok-a"), ErrNotFound)
}

func TestRedisRefreshStoreExpiredIsMissing(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, refreshRecord("tok-a", time.Now().Add(2*time.Second)))
	require.NoError(t, err)

	mr.FastForward(3 * time.Second)
	_, err = s.GetByToken(ctx, "tok-a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisRefreshStoreRotate(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	_, err := s.Create(ctx, refreshRecord("tok-a", exp))
	require.NoError(t, err)

	next, err := s.Rotate(ctx, "tok-a", refreshRecord("tok-b", exp))
	require.NoError(t, err)
	assert.Equal(t, "tok-b", next.Token)

	_, err = s.GetByToken(ctx, "tok-a")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := s.GetByToken(ctx, "tok-b")
	require.NoError(t, err)
	assert.Equal(t, next.ID, got.ID)

	_, err = s.Rotate(ctx, "tok-a", refreshRecord("tok-c", exp))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetByToken(ctx, "tok-c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisRefreshStoreConcurrentRotateSingleWinner(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	_, err := s.Create(ctx, refreshRecord("tok-a", exp))
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := refreshRecord("tok-next-"+string(rune('a'+i)), exp)
			if _, err := s.Rotate(ctx, "tok-a", next); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisRefreshStoreDeleteByUserID(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	_, err := s.Create(ctx, refreshRecord("tok-a", exp))
	require.NoError(t, err)
	_, err = s.Create(ctx, refreshRecord("tok-b", exp))
	require.NoError(t, err)
	other := refreshRecord("tok-other", exp)
	other.UserID = "user-2"
	_, err = s.Create(ctx, other)
	require.NoError(t, err)

	require.NoError(t, s.DeleteByUserID(ctx, "user-1"))

	_, err = s.GetByToken(ctx, "tok-a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetByToken(ctx, "tok-b")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists(refreshUserKey("user-1")))

	_, err = s.GetByToken(ctx, "tok-other")
	require.NoError(t, err)
}
