// Package discovery implements the paper-discovery contract consumed by
// the agentic controller's searchPapers/getCitations/downloadPaper tools:
// search by query, list a paper's citations, and resolve a PDF URL, with
// OpenAlex as primary and arXiv as fallback when OpenAlex lacks a PDF.
package discovery

import "context"

// Paper is one search or citation result.
type Paper struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	CitationCount int    `json:"citationCount"`
}

// Provider is the discovery contract a source (OpenAlex, arXiv) implements.
type Provider interface {
	// SearchPapers finds up to limit papers matching query.
	SearchPapers(ctx context.Context, query string, limit int) ([]Paper, error)

	// GetCitations lists up to limit papers citing paperID.
	GetCitations(ctx context.Context, paperID string, limit int) ([]Paper, error)

	// ResolvePDFURL returns a direct PDF URL for paperID, or "" if this
	// provider has none.
	ResolvePDFURL(ctx context.Context, paperID string) (string, error)
}

// FallbackProvider tries primary first and falls back to secondary only
// when primary returns no usable PDF URL, per the spec's "fallback
// provider if the primary lacks a PDF" contract.
type FallbackProvider struct {
	Primary   Provider
	Secondary Provider
}

// New builds a FallbackProvider.
func New(primary, secondary Provider) *FallbackProvider {
	return &FallbackProvider{Primary: primary, Secondary: secondary}
}

// SearchPapers delegates to the primary provider.
func (f *FallbackProvider) SearchPapers(ctx context.Context, query string, limit int) ([]Paper, error) {
	return f.Primary.SearchPapers(ctx, query, limit)
}

// GetCitations delegates to the primary provider.
func (f *FallbackProvider) GetCitations(ctx context.Context, paperID string, limit int) ([]Paper, error) {
	return f.Primary.GetCitations(ctx, paperID, limit)
}

// ResolvePDFURL tries the primary provider first; if it has no PDF for
// paperID (empty URL, no error) or fails outright, tries the secondary.
func (f *FallbackProvider) ResolvePDFURL(ctx context.Context, paperID string) (string, error) {
	url, err := f.Primary.ResolvePDFURL(ctx, paperID)
	if err == nil && url != "" {
		return url, nil
	}
	if f.Secondary == nil {
		return url, err
	}
	return f.Secondary.ResolvePDFURL(ctx, paperID)
}
