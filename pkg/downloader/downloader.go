// Package downloader fetches a PDF over HTTPS and writes it to disk,
// deduplicating concurrent requests for the same paper id with singleflight —
// the same pattern the parser client uses for its extraction cache — and
// optionally mirroring the bytes to S3 through internal/storage.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"paperkg/internal/storage"
	"paperkg/pkg/logger"
	"paperkg/pkg/resilience"
)

// Mirror is the optional S3 side channel a Client can write downloaded
// bytes to. A nil Mirror disables mirroring.
type Mirror interface {
	MirrorPDF(ctx context.Context, paperID string, data []byte) (string, error)
}

var _ Mirror = (*storage.Client)(nil)

// Client downloads PDFs to a local directory.
type Client struct {
	httpClient *http.Client
	destDir    string
	mirror     Mirror
	group      singleflight.Group
}

// New builds a Client that writes downloaded PDFs under destDir, optionally
// mirroring them through mirror (pass nil to disable).
func New(destDir string, mirror Mirror) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		destDir:    destDir,
		mirror:     mirror,
	}
}

// Result is the outcome of a download, matching the agentic controller's
// downloadPaper tool contract ({success, path}).
type Result struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
}

// Download fetches pdfURL and writes it to "{destDir}/{paperID}.pdf",
// deduplicating concurrent callers downloading the same paperID.
func (c *Client) Download(ctx context.Context, paperID, pdfURL string) (Result, error) {
	result, err, _ := c.group.Do(paperID, func() (any, error) {
		return c.downloadOnce(ctx, paperID, pdfURL)
	})
	if err != nil {
		return Result{Success: false}, err
	}
	return result.(Result), nil
}

func (c *Client) downloadOnce(ctx context.Context, paperID, pdfURL string) (Result, error) {
	path := filepath.Join(c.destDir, paperID+".pdf")
	if _, err := os.Stat(path); err == nil {
		return Result{Success: true, Path: path}, nil
	}

	var data []byte
	err := resilience.WithRetry(ctx, "downloader.get", func(ctx context.Context) error {
		got, err := c.get(ctx, pdfURL)
		if err != nil {
			return err
		}
		data = got
		return nil
	}, resilience.Options{})
	if err != nil {
		return Result{Success: false}, fmt.Errorf("downloader: %w", err)
	}

	if err := os.MkdirAll(c.destDir, 0o755); err != nil {
		return Result{Success: false}, fmt.Errorf("downloader: mkdir dest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Result{Success: false}, fmt.Errorf("downloader: write pdf: %w", err)
	}

	if c.mirror != nil {
		if _, err := c.mirror.MirrorPDF(ctx, paperID, data); err != nil {
			logger.Warn("downloader: s3 mirror failed, continuing with local copy", "paperId", paperID, "error", err)
		}
	}

	return Result{Success: true, Path: path}, nil
}

func (c *Client) get(ctx context.Context, pdfURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &resilience.HTTPStatusError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", string(body))}
	}

	return io.ReadAll(resp.Body)
}
