package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseText_UploadsPollsAndCaches(t *testing.T) {
	var pollCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/jobs":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"jobId": "job-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/jobs/job-1":
			n := atomic.AddInt32(&pollCount, 1)
			w.Header().Set("Content-Type", "application/json")
			if n < 2 {
				json.NewEncoder(w).Encode(map[string]string{"status": "processing"})
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"status": "complete", "text": "extracted text"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := New(server.URL, "")
	c.pollInterval = 0

	text, err := c.ParseText(context.Background(), "paper-1", []byte("pdf bytes"))
	require.NoError(t, err)
	require.Equal(t, "extracted text", text)

	// second call hits the cache, no further HTTP calls needed.
	text2, err := c.ParseText(context.Background(), "paper-1", []byte("pdf bytes"))
	require.NoError(t, err)
	require.Equal(t, "extracted text", text2)
}

func TestParseText_FailedJobReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/jobs":
			json.NewEncoder(w).Encode(map[string]string{"jobId": "job-2"})
		case r.Method == http.MethodGet && r.URL.Path == "/jobs/job-2":
			json.NewEncoder(w).Encode(map[string]string{"status": "failed"})
		}
	}))
	defer server.Close()

	c := New(server.URL, "")
	c.pollInterval = 0

	_, err := c.ParseText(context.Background(), "paper-2", []byte("pdf bytes"))
	require.Error(t, err)
}

func TestParseText_UnauthorizedIsNonRetryable(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := New(server.URL, "bad-key")
	_, err := c.ParseText(context.Background(), "paper-3", []byte("pdf bytes"))
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
