// Package ai defines the LLM and embedding adapter contracts used by every
// LLM-assisted stage: Extractor, Definer, the pre-parser, the integration
// resolver, and the agentic controller. Concrete clients live under
// pkg/ai/openai; callers should depend on these interfaces, not the client.
package ai

import "context"

// ChatMessage is one turn in a multi-turn conversation.
type ChatMessage struct {
	Role    string `json:"role"` // "user" | "assistant" | "tool"
	Content string `json:"content"`

	// ToolCallID and Name are set on role="tool" messages carrying a tool's
	// result back to the model.
	ToolCallID string `json:"toolCallId,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Tool is a function the model may call during GenerateChatWithTools.
type Tool struct {
	Name        string
	Description string
	Parameters  any // JSON schema, typically from GenerateSchema
}

// ToolCall is a model-issued request to invoke a Tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded
}

// ChatResult is the model's response to a GenerateChatWithTools call: either
// a final text answer, or one or more tool calls the caller must execute and
// feed back as tool-role ChatMessages in the next round.
type ChatResult struct {
	Content   string
	ToolCalls []ToolCall
}

// GenerateOptions configures a single generation call.
type GenerateOptions struct {
	Model         string
	SystemPrompts []string
	Temperature   float64
}

// GenerateOption is a functional option over GenerateOptions.
type GenerateOption func(*GenerateOptions)

// WithModel overrides the default model for one call.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) { o.Model = model }
}

// WithSystemPrompts prepends one or more system messages.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) { o.SystemPrompts = prompts }
}

// WithTemperature overrides the sampling temperature for one call.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = temp }
}

// ModelMetrics accumulates token usage and latency across calls made by a
// client, matching the teacher's own per-client metrics accumulator.
type ModelMetrics struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	DurationMs   int64
}

// ChatClient is the JSON-structured and unstructured chat contract (§4.3).
type ChatClient interface {
	// GenerateChat returns the model's plain-text reply to a conversation.
	GenerateChat(ctx context.Context, messages []ChatMessage, opts ...GenerateOption) (string, error)

	// GenerateJSON sends a prompt and parses the reply against the JSON
	// schema reflected from out, tolerating code fences and common field
	// aliasing drift. name/description label the schema for providers that
	// want it (e.g. OpenAI's structured-output mode).
	GenerateJSON(ctx context.Context, name, description, prompt string, out any, opts ...GenerateOption) error

	// GenerateChatWithTools drives one round of tool-calling chat; the
	// caller loops, feeding ToolCall results back as tool ChatMessages,
	// until ChatResult.ToolCalls is empty.
	GenerateChatWithTools(ctx context.Context, messages []ChatMessage, tools []Tool, opts ...GenerateOption) (ChatResult, error)

	ResetMetrics()
	GetMetrics() ModelMetrics
}

// EmbeddingClient is the embedding contract (§4.2).
type EmbeddingClient interface {
	// GenerateEmbedding embeds a single input.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateEmbeddings embeds a batch in as few provider requests as
	// possible, preserving input order.
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}
