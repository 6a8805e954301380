package nasa

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(Config{
		BaseURL:    url,
		Timeout:    timeout,
		DefaultGHI: 5.0,
		CacheTTL:   time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDailyIrradiance(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "ALLSKY_SFC_SW_DWN", q.Get("parameters"))
		assert.Equal(t, "RE", q.Get("community"))
		assert.Equal(t, "20240315", q.Get("start"))
		assert.Equal(t, "20240315", q.Get("end"))
		assert.Equal(t, "35.01", q.Get("latitude"))
		assert.Equal(t, "-115.47", q.Get("longitude"))
		assert.Equal(t, "JSON", q.Get("format"))
		fmt.Fprint(w, `{"properties":{"parameter":{"ALLSKY_SFC_SW_DWN":{"20240315":6.42}}}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	got := c.DailyIrradiance(context.Background(), 35.01, -115.47, "2024-03-15")
	assert.Equal(t, 6.42, got.GHI)
	assert.False(t, got.Fallback)
	assert.Equal(t, SourceNASA, got.Source)

	again := c.DailyIrradiance(context.Background(), 35.01, -115.47, "2024-03-15")
	assert.Equal(t, got, again)
	assert.Equal(t, int32(1), hits.Load(), "second lookup is served from cache")
}

func TestDailyIrradianceFallback(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"properties":`)
		}},
		{"missing date", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"properties":{"parameter":{"ALLSKY_SFC_SW_DWN":{}}}}`)
		}},
		{"fill value", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"properties":{"parameter":{"ALLSKY_SFC_SW_DWN":{"20240315":-999}}}}`)
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(500 * time.Millisecond):
			case <-r.Context().Done():
			}
			fmt.Fprint(w, `{"properties":{"parameter":{"ALLSKY_SFC_SW_DWN":{"20240315":6.0}}}}`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := newTestClient(srv.URL, 50*time.Millisecond)
			got := c.DailyIrradiance(context.Background(), 35.01, -115.47, "2024-03-15")
			assert.Equal(t, 5.0, got.GHI)
			assert.True(t, got.Fallback)
		})
	}
}

func TestDailyIrradianceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(url, 100*time.Millisecond)
	for i := 0; i < 8; i++ {
		got := c.DailyIrradiance(context.Background(), 1, 2, "2024-03-15")
		assert.True(t, got.Fallback)
		assert.Equal(t, 5.0, got.GHI)
	}
}

func TestDailyIrradianceFallbackIsNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"properties":{"parameter":{"ALLSKY_SFC_SW_DWN":{"20240315":4.5}}}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	assert.True(t, c.DailyIrradiance(context.Background(), 1, 2, "2024-03-15").Fallback)

	fail.Store(false)
	got := c.DailyIrradiance(context.Background(), 1, 2, "2024-03-15")
	assert.False(t, got.Fallback)
	assert.Equal(t, 4.5, got.GHI)
}
