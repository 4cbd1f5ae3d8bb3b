package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
)

type memoryKeyStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryKeyStore() *memoryKeyStore {
	return &memoryKeyStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryKeyStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryKeyStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key], m.ttls[key] = value.(string), ttl
	return nil
}

func (m *memoryKeyStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], m.ttls[key] = value.(string), ttl
	return true, nil
}

func (m *memoryKeyStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
		delete(m.ttls, key)
	}
	return nil
}

func (m *memoryKeyStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryKeyStore) onlyTTL(t *testing.T) time.Duration {
	t.Helper()
	require.Len(t, m.ttls, 1)
	for _, ttl := range m.ttls {
		return ttl
	}
	return 0
}

func placeOrderRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	rctx := chi.NewRouteContext()
	rctx.RoutePatterns = []string{"/api/v1/orders"}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	return req.WithContext(WithUserID(ctx, "user-1"))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestIdempotencyRequiresKeyOnOrderPlacement(t *testing.T) {
	t.Parallel()
	called := false
	h := Idempotency(newMemoryKeyStore(), 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, placeOrderRequest("", `{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, called)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, placeOrderRequest(strings.Repeat("k", maxIdemKeySize+1), `{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotencyIgnoresOtherRoutes(t *testing.T) {
	t.Parallel()
	store := newMemoryKeyStore()
	h := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, store.data)
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	t.Parallel()
	store := newMemoryKeyStore()
	calls := 0
	h := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"o-1"}}`))
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, placeOrderRequest("abc", `{"country":"ES"}`))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, placeOrderRequest("abc", `{"country":"ES"}`))

	require.Equal(t, 1, calls)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, "application/json", second.Header().Get("Content-Type"))
	require.Equal(t, "true", second.Header().Get(ReplayedHeader))
	require.Empty(t, first.Header().Get(ReplayedHeader))
	require.Equal(t, orderIdempotencyTTL, store.onlyTTL(t))
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	t.Parallel()
	h := Idempotency(newMemoryKeyStore(), 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	h.ServeHTTP(httptest.NewRecorder(), placeOrderRequest("xyz", `{"country":"ES"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, placeOrderRequest("xyz", `{"country":"FR"}`))

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	t.Parallel()
	store := newMemoryKeyStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	h := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusCreated)
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(httptest.NewRecorder(), placeOrderRequest("dup", `{}`))
	}()
	<-entered

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, placeOrderRequest("dup", `{}`))
	close(release)
	<-done

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyReleasesKeyAfterServerError(t *testing.T) {
	t.Parallel()
	store := newMemoryKeyStore()
	calls := 0
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	for range 2 {
		h.ServeHTTP(httptest.NewRecorder(), placeOrderRequest("retry-me", `{"country":"ES"}`))
	}

	require.Equal(t, 2, calls)
	require.Equal(t, time.Hour, store.onlyTTL(t))
}

func TestIdempotencyCartItemsUseDayRetention(t *testing.T) {
	t.Parallel()
	store := newMemoryKeyStore()
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{}`))
	req.Header.Set(IdempotencyHeader, "line-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, cartIdempotencyTTL, store.onlyTTL(t))
}
