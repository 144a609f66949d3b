package openalex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchPapers_ParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/works", r.URL.Path)
		require.Equal(t, "nerf", r.URL.Query().Get("search"))
		w.Write([]byte(`{"results":[{"id":"W1","title":"NeRF","cited_by_count":42}]}`))
	}))
	defer server.Close()

	c := New(server.URL)
	papers, err := c.SearchPapers(context.Background(), "nerf", 5)
	require.NoError(t, err)
	require.Len(t, papers, 1)
	require.Equal(t, "W1", papers[0].ID)
	require.Equal(t, 42, papers[0].CitationCount)
}

func TestResolvePDFURL_PrefersPrimaryLocationOverOpenAccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"open_access":{"oa_url":"https://oa.example/x.pdf"},"primary_location":{"pdf_url":"https://primary.example/x.pdf"}}`))
	}))
	defer server.Close()

	c := New(server.URL)
	url, err := c.ResolvePDFURL(context.Background(), "W1")
	require.NoError(t, err)
	require.Equal(t, "https://primary.example/x.pdf", url)
}

func TestResolvePDFURL_FallsBackToOpenAccessURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"open_access":{"oa_url":"https://oa.example/x.pdf"}}`))
	}))
	defer server.Close()

	c := New(server.URL)
	url, err := c.ResolvePDFURL(context.Background(), "W1")
	require.NoError(t, err)
	require.Equal(t, "https://oa.example/x.pdf", url)
}

func TestSearchPapers_NotFoundIsNonRetryableError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.SearchPapers(context.Background(), "nerf", 5)
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
