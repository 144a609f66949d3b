package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2003.08934v2</id>
    <title>NeRF: Representing Scenes as Neural Radiance Fields</title>
    <link href="http://arxiv.org/abs/2003.08934v2" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/2003.08934v2" rel="related" type="application/pdf"/>
  </entry>
</feed>`

func TestSearchPapers_ParsesAtomFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query", r.URL.Path)
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	c := New(server.URL)
	papers, err := c.SearchPapers(context.Background(), "nerf", 5)
	require.NoError(t, err)
	require.Len(t, papers, 1)
	require.Contains(t, papers[0].Title, "NeRF")
}

func TestResolvePDFURL_ReturnsPDFLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	c := New(server.URL)
	url, err := c.ResolvePDFURL(context.Background(), "2003.08934v2")
	require.NoError(t, err)
	require.Equal(t, "http://arxiv.org/pdf/2003.08934v2", url)
}

func TestGetCitations_AlwaysEmptyNeverErrors(t *testing.T) {
	c := New("http://unused.invalid")
	papers, err := c.GetCitations(context.Background(), "2003.08934v2", 5)
	require.NoError(t, err)
	require.Empty(t, papers)
}

func TestExtractArxivID_StripsURLPrefix(t *testing.T) {
	require.Equal(t, "2003.08934v2", extractArxivID("https://arxiv.org/abs/2003.08934v2"))
	require.Equal(t, "2003.08934v2", extractArxivID("arxiv:2003.08934v2"))
}
