package s3blob

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio.local:9000", normaliseEndpoint("minio.local:9000", true))
	assert.Equal(t, "http://minio.local:9000", normaliseEndpoint("minio.local:9000", false))
	assert.Equal(t, "http://127.0.0.1:9000", normaliseEndpoint("http://127.0.0.1:9000", true))
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	assert.Error(t, err)
}

func TestWriterPut(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		ctype  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path, ctype = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(context.Background(), ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "greenbond-reports",
		AccessKey:      "test",
		SecretKey:      "test",
		ForcePathStyle: true,
	})
	require.NoError(t, err)

	w := NewWriter(c)
	err = w.Put(context.Background(), "reports/B1/batch.json", bytes.NewReader([]byte(`{"ok":true}`)), "application/json")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/greenbond-reports/reports/B1/batch.json", path)
	assert.Equal(t, "application/json", ctype)
}
