package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"

	"paperkg/pkg/ai"
)

// GenerateChat sends a multi-turn conversation and returns the assistant's
// plain-text reply.
func (c *Client) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	if c.Chat == nil {
		return "", fmt.Errorf("openai chat client not configured")
	}

	options := ai.GenerateOptions{Model: c.chatModel, Temperature: 0.2}
	for _, o := range opts {
		o(&options)
	}

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    toChatMessages(options.SystemPrompts, messages),
		Temperature: openai.Float(options.Temperature),
	}

	start := time.Now()
	resp, err := c.Chat.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", err
	}
	c.recordUsage(resp.Usage, time.Since(start))

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateJSON sends prompt with a reflected JSON schema for out and parses
// the reply tolerantly (ai.UnmarshalFlexible), surfacing a schema-mismatch
// error loudly rather than returning a partially-populated out.
func (c *Client) GenerateJSON(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	if c.Chat == nil {
		return fmt.Errorf("openai chat client not configured")
	}

	schema := ai.GenerateSchema(out)
	options := ai.GenerateOptions{Model: c.chatModel, Temperature: 0.1}
	for _, o := range opts {
		o(&options)
	}

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(options.Model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        name,
					Description: openai.String(description),
					Schema:      schema,
					Strict:      openai.Bool(true),
				},
			},
		},
		Messages:    toChatMessages(options.SystemPrompts, []ai.ChatMessage{{Role: "user", Content: prompt}}),
		Temperature: openai.Float(options.Temperature),
	}

	start := time.Now()
	resp, err := c.Chat.Chat.Completions.New(ctx, body)
	if err != nil {
		return err
	}
	c.recordUsage(resp.Usage, time.Since(start))

	if len(resp.Choices) == 0 {
		return fmt.Errorf("openai chat: no choices in response")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return fmt.Errorf("openai chat: empty response (finish_reason: %s)", resp.Choices[0].FinishReason)
	}
	if err := ai.UnmarshalFlexible(stripCodeFence(content), out); err != nil {
		return fmt.Errorf("unmarshal structured response %q: %w", name, err)
	}
	return nil
}

// GenerateChatWithTools runs one round of tool-calling chat.
func (c *Client) GenerateChatWithTools(ctx context.Context, messages []ai.ChatMessage, tools []ai.Tool, opts ...ai.GenerateOption) (ai.ChatResult, error) {
	if c.Chat == nil {
		return ai.ChatResult{}, fmt.Errorf("openai chat client not configured")
	}

	options := ai.GenerateOptions{Model: c.chatModel, Temperature: 0.2}
	for _, o := range opts {
		o(&options)
	}

	toolParams := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		toolParams = append(toolParams, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  toFunctionParameters(t.Parameters),
		}))
	}

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    toChatMessages(options.SystemPrompts, messages),
		Tools:       toolParams,
		Temperature: openai.Float(options.Temperature),
	}

	start := time.Now()
	resp, err := c.Chat.Chat.Completions.New(ctx, body)
	if err != nil {
		return ai.ChatResult{}, err
	}
	c.recordUsage(resp.Usage, time.Since(start))

	if len(resp.Choices) == 0 {
		return ai.ChatResult{}, fmt.Errorf("openai chat: no choices in response")
	}
	choice := resp.Choices[0]

	result := ai.ChatResult{Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ai.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}

func (c *Client) recordUsage(usage openai.CompletionUsage, elapsed time.Duration) {
	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  int(usage.PromptTokens),
		OutputTokens: int(usage.CompletionTokens),
		TotalTokens:  int(usage.TotalTokens),
		DurationMs:   elapsed.Milliseconds(),
	})
}

func toChatMessages(systemPrompts []string, messages []ai.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(systemPrompts)+len(messages))
	for _, sp := range systemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	for _, m := range messages {
		switch m.Role {
		case "user":
			msgs = append(msgs, openai.UserMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case "tool":
			msgs = append(msgs, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return msgs
}

func toFunctionParameters(schema any) openai.FunctionParameters {
	if m, ok := schema.(map[string]any); ok {
		return openai.FunctionParameters(m)
	}
	// GenerateSchema returns a *jsonschema.Schema; re-derive via its MarshalJSON
	// round trip so the function parameter map matches what the reflector built.
	return ai.SchemaToFunctionParameters(schema)
}

func stripCodeFence(s string) string {
	return ai.StripCodeFence(s)
}
