package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/blagoySimandov/careerpilot/internal/auth"
	"github.com/blagoySimandov/careerpilot/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLimiter(rdb, limit, time.Minute), mr
}

func TestLimiterFixedWindow(t *testing.T) {
	l, mr := newTestLimiter(t, 2)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		d, err := l.Allow(ctx, "generate", "user:u1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Count)
	}

	d, err := l.Allow(ctx, "generate", "user:u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)

	d, err = l.Allow(ctx, "generate", "user:u2")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "subjects are counted separately")

	mr.FastForward(time.Minute + time.Second)
	d, err = l.Allow(ctx, "generate", "user:u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "window resets")
}

func TestLimiterDisabled(t *testing.T) {
	var l *Limiter
	d, err := l.Allow(context.Background(), "generate", "user:u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = NewLimiter(nil, 5, time.Minute).Allow(context.Background(), "generate", "user:u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter(t, 1)
	m := metrics.New(nil)
	handler := Middleware(l, "generate", m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/generate/bullets", nil)
		req = req.WithContext(auth.WithUser(req.Context(), &auth.User{ID: "u1"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send().Code)

	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":"rate_limited","message":"Too many requests, please retry later"}`, rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedTotal))
}

func TestMiddlewareFailsOpen(t *testing.T) {
	l, mr := newTestLimiter(t, 1)
	mr.Close()
	handler := Middleware(l, "generate", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate/bullets", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
