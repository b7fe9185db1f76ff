package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func request(handler http.Handler, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestLimiter_AllowsBurst(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 5})
	defer l.Stop()
	handler := l.Middleware()(okHandler())

	for i := range 5 {
		rr := request(handler, "/api/v1/deployments", "192.168.1.100:12345")
		assert.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
		assert.Equal(t, "60", rr.Header().Get("X-RateLimit-Limit"))
	}
}

func TestLimiter_BlocksExcess(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 2})
	defer l.Stop()
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return frozen }
	handler := l.Middleware()(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, request(handler, "/api/v1/deployments", "192.168.1.100:1").Code)
	}

	rr := request(handler, "/api/v1/deployments", "192.168.1.100:1")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	var response map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	errObj, ok := response["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errObj["code"])

	// A rejected request must not consume a token
	frozen = frozen.Add(time.Second)
	assert.Equal(t, http.StatusOK, request(handler, "/api/v1/deployments", "192.168.1.100:1").Code)
}

func TestLimiter_AdvancingClock(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 3})
	defer l.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time {
		now = now.Add(time.Nanosecond)
		return now
	}

	for i := range 3 {
		ok, wait := l.Allow("10.0.0.1")
		assert.True(t, ok, "request %d", i+1)
		assert.Zero(t, wait)
	}
	ok, wait := l.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Positive(t, wait)
}

func TestLimiter_SeparateClients(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 1, BurstSize: 1})
	defer l.Stop()
	handler := l.Middleware()(okHandler())

	assert.Equal(t, http.StatusOK, request(handler, "/api/v1/deployments", "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(handler, "/api/v1/deployments", "10.0.0.1:2").Code)
	assert.Equal(t, http.StatusOK, request(handler, "/api/v1/deployments", "10.0.0.2:1").Code)
}

func TestLimiter_ProbesBypass(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 1, BurstSize: 1})
	defer l.Stop()
	handler := l.Middleware()(okHandler())

	for _, path := range []string{"/health", "/healthz", "/readyz", "/metrics", "/health"} {
		assert.Equal(t, http.StatusOK, request(handler, path, "10.0.0.1:1").Code, path)
	}
	assert.Equal(t, http.StatusOK, request(handler, "/api/v1/deployments", "10.0.0.1:1").Code)
}

func TestLimiter_Sweep(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1, CleanupMinutes: 1})
	defer l.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	now = now.Add(30 * time.Second)
	l.Allow("10.0.0.2")

	now = now.Add(45 * time.Second)
	l.sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "10.0.0.1")
	assert.Contains(t, l.clients, "10.0.0.2")
}

func TestLimiter_Concurrent(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 6000, BurstSize: 1000})
	defer l.Stop()
	handler := l.Middleware()(okHandler())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			request(handler, "/api/v1/deployments", "10.0.1."+string(rune('0'+i%10))+":1")
		}()
	}
	wg.Wait()
}

func TestMiddleware_Disabled(t *testing.T) {
	mw, stop := Middleware(Config{Enabled: false, RequestsPerMin: 1, BurstSize: 1})
	defer stop()
	handler := mw(okHandler())

	for range 10 {
		assert.Equal(t, http.StatusOK, request(handler, "/api/v1/deployments", "10.0.0.1:1").Code)
	}
}

func TestMiddleware_Enabled(t *testing.T) {
	mw, stop := Middleware(Config{Enabled: true, RequestsPerMin: 1, BurstSize: 1})
	defer stop()
	handler := mw(okHandler())

	assert.Equal(t, http.StatusOK, request(handler, "/api/v1/deployments", "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(handler, "/api/v1/deployments", "10.0.0.1:1").Code)

	stop()
}
