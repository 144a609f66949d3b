// Package openalex implements discovery.Provider against the OpenAlex
// REST API, the primary paper-discovery source.
package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"paperkg/pkg/discovery"
	"paperkg/pkg/resilience"
)

// Client queries the OpenAlex works API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New builds a Client against baseURL (e.g. "https://api.openalex.org").
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
	}
}

type workResponse struct {
	Results []work `json:"results"`
}

type work struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	CitedByCount    int             `json:"cited_by_count"`
	OpenAccess      openAccess      `json:"open_access"`
	PrimaryLocation primaryLocation `json:"primary_location"`
}

type openAccess struct {
	OAURL string `json:"oa_url"`
}

type primaryLocation struct {
	PDFURL string `json:"pdf_url"`
}

var _ discovery.Provider = (*Client)(nil)

// SearchPapers queries /works?search=query&per-page=limit.
func (c *Client) SearchPapers(ctx context.Context, query string, limit int) ([]discovery.Paper, error) {
	values := url.Values{}
	values.Set("search", query)
	values.Set("per-page", strconv.Itoa(limit))

	var resp workResponse
	if err := c.get(ctx, "/works?"+values.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("openalex: search: %w", err)
	}
	return toPapers(resp.Results), nil
}

// GetCitations queries /works?filter=cites:paperID&per-page=limit.
func (c *Client) GetCitations(ctx context.Context, paperID string, limit int) ([]discovery.Paper, error) {
	values := url.Values{}
	values.Set("filter", "cites:"+paperID)
	values.Set("per-page", strconv.Itoa(limit))

	var resp workResponse
	if err := c.get(ctx, "/works?"+values.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("openalex: citations: %w", err)
	}
	return toPapers(resp.Results), nil
}

// ResolvePDFURL looks up a single work and returns its open-access PDF URL,
// preferring the primary location's pdf_url over the open-access url.
func (c *Client) ResolvePDFURL(ctx context.Context, paperID string) (string, error) {
	var w work
	if err := c.get(ctx, "/works/"+url.PathEscape(paperID), &w); err != nil {
		return "", fmt.Errorf("openalex: resolve pdf: %w", err)
	}
	if w.PrimaryLocation.PDFURL != "" {
		return w.PrimaryLocation.PDFURL, nil
	}
	return w.OpenAccess.OAURL, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return resilience.WithRetry(ctx, "openalex.get", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
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

		return json.NewDecoder(resp.Body).Decode(out)
	}, resilience.Options{})
}

func toPapers(works []work) []discovery.Paper {
	papers := make([]discovery.Paper, len(works))
	for i, w := range works {
		papers[i] = discovery.Paper{ID: w.ID, Title: w.Title, CitationCount: w.CitedByCount}
	}
	return papers
}
