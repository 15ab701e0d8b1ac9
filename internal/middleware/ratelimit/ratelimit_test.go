package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteIP(r *http.Request) string { return r.RemoteAddr }

func TestLimiterBurstThenReject(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, Burst: 3})
	t.Cleanup(l.Stop)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d should pass", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "clients have separate buckets")

	m := l.GetMetrics()
	assert.Equal(t, int64(4), m.Allowed)
	assert.Equal(t, int64(1), m.Rejected)
	assert.Equal(t, int64(2), m.ClientCount)
	assert.Equal(t, 2, l.ActiveClients())

	wait := l.RetryAfter("10.0.0.1")
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, time.Second)
}

func TestLimiterDefaults(t *testing.T) {
	l := NewLimiter(Config{})
	t.Cleanup(l.Stop)
	assert.Equal(t, DefaultConfig(), l.cfg)
	assert.Equal(t, time.Duration(0), l.RetryAfter("fresh"))
}

func TestLimiterMaxClients(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, Burst: 1, MaxClients: 2})
	t.Cleanup(l.Stop)

	l.Allow("a")
	l.Allow("b")
	l.Allow("c")
	assert.Equal(t, 2, l.ActiveClients())
}

func TestMiddleware(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 1, Burst: 1})
	t.Cleanup(l.Stop)

	h := l.Middleware(remoteIP, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/months", nil)
	req.RemoteAddr = "192.0.2.1"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestMiddlewareCustomRejection(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 1, Burst: 1})
	t.Cleanup(l.Stop)

	onLimit := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}
	h := l.Middleware(remoteIP, onLimit)(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9"
	h.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"slow down"}`, rec.Body.String())
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}
