package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"github.com/sportedge/sportedge-backend/pkg/config"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func testManager(t *testing.T) (*Manager, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	m, err := newManager(store, config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60})
	require.NoError(t, err)
	return m, store
}

func TestManagerGenerateAndRotate(t *testing.T) {
	t.Parallel()

	manager, store := testManager(t)
	ctx := context.Background()

	token, err := manager.Generate(ctx, "access-123")
	require.NoError(t, err)
	require.Equal(t, digest(token), store.data["sess:access-123"])
	require.NotContains(t, store.data["sess:access-123"], token)
	require.Equal(t, time.Hour, store.ttls["sess:access-123"])

	_, _, err = manager.Rotate(ctx, "access-123", "wrong")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	newAccessID, newToken, err := manager.Rotate(ctx, "access-123", token)
	require.NoError(t, err)
	require.NotEqual(t, token, newToken)
	require.NotContains(t, store.data, "sess:access-123")
	require.Equal(t, digest(newToken), store.data["sess:"+newAccessID])
	require.Equal(t, time.Hour, store.ttls["sess:"+newAccessID])

	_, _, err = manager.Rotate(ctx, "access-123", token)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestManagerRevokeAndHasSession(t *testing.T) {
	t.Parallel()

	manager, _ := testManager(t)
	ctx := context.Background()

	_, err := manager.Generate(ctx, "abc")
	require.NoError(t, err)

	ok, err := manager.HasSession(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, manager.Revoke(ctx, "abc"))

	ok, err = manager.HasSession(ctx, "abc")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = manager.HasSession(ctx, " ")
	require.ErrorIs(t, err, errMissingAccessID)
	require.NoError(t, manager.Revoke(ctx, "never-opened"))
}

func TestNewManagerRejectsShortRefreshTTL(t *testing.T) {
	t.Parallel()

	_, err := newManager(newFakeStore(), config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 30})
	require.Error(t, err)

	_, err = newManager(newFakeStore(), config.JWTConfig{ExpirationMinutes: 60})
	require.Error(t, err)
}

func TestRotateRejectsBlankInput(t *testing.T) {
	t.Parallel()
	manager, store := testManager(t)

	for _, in := range [][2]string{{"", "tok"}, {"abc", " "}} {
		_, _, err := manager.Rotate(context.Background(), in[0], in[1])
		require.ErrorIs(t, err, ErrInvalidRefreshToken)
	}
	require.Empty(t, store.data)
}
