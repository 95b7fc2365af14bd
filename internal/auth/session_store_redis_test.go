package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisSessionStoreTest(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := NewRedisSessionStore(rdb)
	require.NoError(t, err)
	return store, mr
}

func TestRedisSessionStoreKeyLayout(t *testing.T) {
	store, mr := newRedisSessionStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "tok1", "u1", DefaultSessionTTL))

	got, err := mr.Get("auth_tok1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got)
	assert.Equal(t, DefaultSessionTTL, mr.TTL("auth_tok1"))
}

func TestRedisSessionStoreGetDelete(t *testing.T) {
	store, _ := newRedisSessionStoreTest(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Put(ctx, "tok1", "u1", time.Hour))
	require.NoError(t, store.Put(ctx, "tok1", "u2", time.Hour))
	userID, err := store.Get(ctx, "tok1")
	require.NoError(t, err)
	assert.Equal(t, "u2", userID, "put overwrites")

	require.NoError(t, store.Delete(ctx, "tok1"))
	require.NoError(t, store.Delete(ctx, "tok1"), "delete is idempotent")
	_, err = store.Get(ctx, "tok1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStoreExpiry(t *testing.T) {
	store, mr := newRedisSessionStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "tok1", "u1", time.Minute))
	mr.FastForward(59 * time.Second)
	_, err := store.Get(ctx, "tok1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	_, err = store.Get(ctx, "tok1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStoreUnavailable(t *testing.T) {
	store, mr := newRedisSessionStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	mr.Close()

	assert.ErrorIs(t, store.Ping(ctx), ErrStoreUnavailable)
	_, err := store.Get(ctx, "tok1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, store.Put(ctx, "tok1", "u1", time.Hour), ErrStoreUnavailable)
}

func TestServiceWithRedisSessions(t *testing.T) {
	store, mr := newRedisSessionStoreTest(t)
	svc, err := NewService(NewInMemoryUserStore(), store, ServiceConfig{Hasher: SHA1Hasher{}})
	require.NoError(t, err)
	ctx := context.Background()

	u, err := svc.Register(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	token, err := svc.Authenticate(ctx, basicHeader("a@x.com", "pw1"))
	require.NoError(t, err)
	assert.True(t, mr.Exists("auth_"+token))

	id, err := svc.WhoAmI(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: u.ID, Email: "a@x.com"}, id)

	mr.FastForward(DefaultSessionTTL + time.Second)
	_, err = svc.WhoAmI(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
