package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/oracle/publish/B1/2024-01-01", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAPIKey(t *testing.T) {
	h := RequireAPIKey("secret")(okHandler)

	cases := []struct {
		name   string
		method string
		header map[string]string
		want   int
	}{
		{"get passes", http.MethodGet, nil, http.StatusOK},
		{"post without key", http.MethodPost, nil, http.StatusUnauthorized},
		{"post with bearer", http.MethodPost, map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"post with header", http.MethodPost, map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"post with wrong key", http.MethodPost, map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/v1/bonds", nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	open := RequireAPIKey("")(okHandler)
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type countingLimiter struct {
	allowed int
	err     error
	keys    []string
}

func (c *countingLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	c.keys = append(c.keys, key)
	if c.err != nil {
		return false, c.err
	}
	if c.allowed == 0 {
		return false, nil
	}
	c.allowed--
	return true, nil
}

func TestRateLimit(t *testing.T) {
	lim := &countingLimiter{allowed: 1}
	h := RateLimit(lim, 1, 30*time.Second, discardLogger())(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
	assert.Equal(t, "api:10.0.0.1", lim.keys[0])
}

func TestRateLimitFailsOpen(t *testing.T) {
	h := RateLimit(&countingLimiter{err: errors.New("redis down")}, 1, time.Second, discardLogger())(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoggingCapturesStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /oracle/pr/{bond_id}/{date}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Logging(discardLogger())(mux)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oracle/pr/B1/2024-01-01", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", extractClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", extractClientIP(req))
}
