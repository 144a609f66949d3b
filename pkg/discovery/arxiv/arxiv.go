// Package arxiv implements discovery.Provider against the arXiv Atom
// export API, used as the fallback discovery source when OpenAlex lacks a
// PDF for a paper.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"paperkg/pkg/discovery"
	"paperkg/pkg/resilience"
)

// Client queries the arXiv export API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New builds a Client against baseURL (e.g. "http://export.arxiv.org/api").
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
	}
}

type feed struct {
	Entries []entry `xml:"entry"`
}

type entry struct {
	ID    string `xml:"id"`
	Title string `xml:"title"`
	Links []link `xml:"link"`
}

type link struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

var _ discovery.Provider = (*Client)(nil)

// SearchPapers queries /query?search_query=all:query&max_results=limit.
func (c *Client) SearchPapers(ctx context.Context, query string, limit int) ([]discovery.Paper, error) {
	values := url.Values{}
	values.Set("search_query", "all:"+query)
	values.Set("max_results", strconv.Itoa(limit))

	f, err := c.query(ctx, values)
	if err != nil {
		return nil, fmt.Errorf("arxiv: search: %w", err)
	}
	return toPapers(f.Entries), nil
}

// GetCitations is unsupported by the arXiv API: arXiv does not index
// citation graphs. It always returns an empty slice, never an error, so
// the fallback provider degrades silently rather than failing a citation
// walk that started from an OpenAlex id.
func (c *Client) GetCitations(ctx context.Context, paperID string, limit int) ([]discovery.Paper, error) {
	return nil, nil
}

// ResolvePDFURL queries /query?id_list=paperID and returns the entry's PDF
// link.
func (c *Client) ResolvePDFURL(ctx context.Context, paperID string) (string, error) {
	values := url.Values{}
	values.Set("id_list", extractArxivID(paperID))

	f, err := c.query(ctx, values)
	if err != nil {
		return "", fmt.Errorf("arxiv: resolve pdf: %w", err)
	}
	if len(f.Entries) == 0 {
		return "", nil
	}
	for _, l := range f.Entries[0].Links {
		if l.Type == "application/pdf" {
			return l.Href, nil
		}
	}
	return "", nil
}

func (c *Client) query(ctx context.Context, values url.Values) (*feed, error) {
	var f feed
	err := resilience.WithRetry(ctx, "arxiv.query", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+values.Encode(), nil)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &resilience.HTTPStatusError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", string(body))}
		}

		return xml.NewDecoder(resp.Body).Decode(&f)
	}, resilience.Options{})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func toPapers(entries []entry) []discovery.Paper {
	papers := make([]discovery.Paper, len(entries))
	for i, e := range entries {
		papers[i] = discovery.Paper{ID: e.ID, Title: strings.TrimSpace(e.Title)}
	}
	return papers
}

// extractArxivID strips a leading OpenAlex-style prefix ("arxiv:" or a full
// abs/pdf URL) down to the bare arXiv id arXiv's own API expects.
func extractArxivID(paperID string) string {
	id := paperID
	if idx := strings.LastIndex(id, "/"); idx != -1 {
		id = id[idx+1:]
	}
	return strings.TrimPrefix(id, "arxiv:")
}
