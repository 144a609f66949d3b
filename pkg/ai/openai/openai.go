// Package openai implements paperkg's ai.ChatClient and ai.EmbeddingClient
// against the OpenAI chat-completions and embeddings protocol.
package openai

import (
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"paperkg/pkg/ai"
)

// Client implements ai.ChatClient and ai.EmbeddingClient over one OpenAI-
// protocol endpoint pair (chat and embeddings may point at different
// providers, matching the teacher's own per-concern base URL/key split).
type Client struct {
	chatModel  string
	embedModel string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	Chat  *openai.Client
	Embed *openai.Client
}

// Params configures a new Client.
type Params struct {
	ChatModel  string
	ChatURL    string
	ChatKey    string
	EmbedModel string
	EmbedURL   string
	EmbedKey   string
}

// New builds a Client from Params. A nil sub-client (missing API key) causes
// the corresponding methods to fail at call time rather than at construction.
func New(p Params) *Client {
	return &Client{
		chatModel:  p.ChatModel,
		embedModel: p.EmbedModel,
		Chat:       newOpenAIClient(p.ChatURL, p.ChatKey),
		Embed:      newOpenAIClient(p.EmbedURL, p.EmbedKey),
	}
}

func newOpenAIClient(baseURL, apiKey string) *openai.Client {
	if apiKey == "" {
		return nil
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &client
}

func (c *Client) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.InputTokens += m.InputTokens
	c.metrics.OutputTokens += m.OutputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs
}

// ResetMetrics zeroes the accumulated ModelMetrics.
func (c *Client) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

// GetMetrics returns a snapshot of the accumulated ModelMetrics.
func (c *Client) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}
