// Package parser wraps the external PDF-to-text extraction service: upload
// a blob, poll a job id, fetch the resulting markdown text. Results are
// cached per input and deduplicated across concurrent callers with
// singleflight, the same pattern the PDF loader in the pack's document
// pipeline uses for its own extraction cache.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"paperkg/pkg/resilience"
)

// Client polls the external parser service for markdown text extracted
// from a PDF blob.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	pollInterval time.Duration
	pollTimeout  time.Duration

	cacheMu sync.RWMutex
	cache   map[string]string
	group   singleflight.Group
}

// New builds a Client against baseURL, authenticating with apiKey.
func New(baseURL, apiKey string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      baseURL,
		apiKey:       apiKey,
		pollInterval: 2 * time.Second,
		pollTimeout:  2 * time.Minute,
		cache:        make(map[string]string),
	}
}

// ParseText uploads data (keyed by paperID for caching) and returns the
// extracted markdown text once the service's job completes.
func (c *Client) ParseText(ctx context.Context, paperID string, data []byte) (string, error) {
	c.cacheMu.RLock()
	if cached, ok := c.cache[paperID]; ok {
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	result, err, _ := c.group.Do(paperID, func() (any, error) {
		c.cacheMu.RLock()
		if cached, ok := c.cache[paperID]; ok {
			c.cacheMu.RUnlock()
			return cached, nil
		}
		c.cacheMu.RUnlock()

		text, err := c.uploadAndPoll(ctx, paperID, data)
		if err != nil {
			return "", err
		}

		c.cacheMu.Lock()
		c.cache[paperID] = text
		c.cacheMu.Unlock()

		return text, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) uploadAndPoll(ctx context.Context, paperID string, data []byte) (string, error) {
	var jobID string
	err := resilience.WithRetry(ctx, "parser.upload", func(ctx context.Context) error {
		id, err := c.upload(ctx, paperID, data)
		if err != nil {
			return err
		}
		jobID = id
		return nil
	}, resilience.Options{})
	if err != nil {
		return "", fmt.Errorf("parser: upload: %w", err)
	}

	deadline := time.Now().Add(c.pollTimeout)
	for {
		var text string
		var done bool
		err := resilience.WithRetry(ctx, "parser.poll", func(ctx context.Context) error {
			t, d, err := c.pollOnce(ctx, jobID)
			if err != nil {
				return err
			}
			text, done = t, d
			return nil
		}, resilience.Options{})
		if err != nil {
			return "", fmt.Errorf("parser: poll: %w", err)
		}
		if done {
			return text, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("parser: job %s did not complete before %s", jobID, c.pollTimeout)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) upload(ctx context.Context, paperID string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", paperID+".pdf")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return "", err
	}

	var out struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return out.JobID, nil
}

func (c *Client) pollOnce(ctx context.Context, jobID string) (text string, done bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return "", false, err
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return "", false, err
	}

	var out struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("decode poll response: %w", err)
	}

	switch out.Status {
	case "complete":
		return out.Text, true, nil
	case "pending", "processing":
		return "", false, nil
	default:
		return "", false, fmt.Errorf("parser: job %s failed: status=%s", jobID, out.Status)
	}
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &resilience.HTTPStatusError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", string(body))}
}
