// Package agent implements the ReACT controller that drives paper
// discovery, download, processing, and graph inspection through six tools
// exposed to an LLM's tool-calling mode.
package agent

import (
	"context"
	"fmt"
	"os"

	"paperkg/pkg/ai"
	"paperkg/pkg/common"
	"paperkg/pkg/discovery"
	"paperkg/pkg/downloader"
	"paperkg/pkg/edc"
	"paperkg/pkg/integrate"
	"paperkg/pkg/leaselock"
	"paperkg/pkg/logger"
	"paperkg/pkg/store"
)

// DefaultStepCap bounds the ReACT loop when the caller does not configure
// one explicitly.
const DefaultStepCap = 25

// ProcessResult is processPaper's return shape: partial data plus an error
// string so the controller can reason about retrying a different paper
// rather than treating a stage failure as fatal.
type ProcessResult struct {
	Success       bool                  `json:"success"`
	Entities      []common.Entity       `json:"entities,omitempty"`
	Relationships []common.Relationship `json:"relationships,omitempty"`
	Stats         ProcessStats          `json:"stats"`
	Error         string                `json:"error,omitempty"`
}

// ProcessStats summarizes what one processPaper call did.
type ProcessStats struct {
	EntitiesExtracted      int `json:"entitiesExtracted"`
	RelationshipsExtracted int `json:"relationshipsExtracted"`
	EntitiesMerged         int `json:"entitiesMerged"`
	EntitiesCreated        int `json:"entitiesCreated"`
}

// Controller wires every tool's dependency and drives the ReACT loop.
type Controller struct {
	Chat       ai.ChatClient
	Embedder   ai.EmbeddingClient
	Discovery  discovery.Provider
	Downloader *downloader.Client
	EDC        *edc.Workflow
	Integrate  *integrate.Workflow
	Store      store.GraphStorage

	// Lease serializes per-paper processing across concurrently running
	// processes. Nil disables locking (e.g. in single-process tests).
	Lease *leaselock.Client

	StepCap int
}

// New builds a Controller. stepCap<=0 uses DefaultStepCap.
func New(chat ai.ChatClient, embedder ai.EmbeddingClient, disc discovery.Provider, dl *downloader.Client, edcWf *edc.Workflow, integrateWf *integrate.Workflow, st store.GraphStorage, stepCap int) *Controller {
	if stepCap <= 0 {
		stepCap = DefaultStepCap
	}
	return &Controller{
		Chat:       chat,
		Embedder:   embedder,
		Discovery:  disc,
		Downloader: dl,
		EDC:        edcWf,
		Integrate:  integrateWf,
		Store:      st,
		StepCap:    stepCap,
	}
}

// Run drives the ReACT loop for one free-form task description, returning
// the model's final assistant message once it stops calling tools or the
// step cap is reached.
func (c *Controller) Run(ctx context.Context, task string) (string, error) {
	tools := c.registeredTools()
	schema := make([]ai.Tool, len(tools))
	handlers := make(map[string]toolHandler, len(tools))
	for i, t := range tools {
		schema[i] = t.Tool
		handlers[t.Tool.Name] = t.Handler
	}

	messages := []ai.ChatMessage{{Role: "user", Content: task}}

	for step := 0; step < c.StepCap; step++ {
		result, err := c.Chat.GenerateChatWithTools(ctx, messages, schema, ai.WithSystemPrompts(ai.AgentSystemPrompt))
		if err != nil {
			return "", fmt.Errorf("agent: step %d: %w", step, err)
		}

		if len(result.ToolCalls) == 0 {
			return result.Content, nil
		}

		messages = append(messages, ai.ChatMessage{Role: "assistant", Content: result.Content})
		for _, call := range result.ToolCalls {
			handler, ok := handlers[call.Name]
			if !ok {
				messages = append(messages, ai.ChatMessage{
					Role:       "tool",
					Name:       call.Name,
					ToolCallID: call.ID,
					Content:    fmt.Sprintf(`{"error":"unknown tool %q"}`, call.Name),
				})
				continue
			}

			logger.Debug("agent: calling tool", "tool", call.Name, "step", step)
			out, err := handler(ctx, call.Arguments)
			if err != nil {
				out = fmt.Sprintf(`{"error":%q}`, err.Error())
			}
			messages = append(messages, ai.ChatMessage{
				Role:       "tool",
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    out,
			})
		}
	}

	logger.Warn("agent: step cap reached without a final answer", "stepCap", c.StepCap)
	return "", fmt.Errorf("agent: step cap of %d reached without a final answer", c.StepCap)
}

// ProcessPaper composes the EDC workflow then, on success, the Integration
// workflow over a single downloaded PDF, sharing the controller's store
// connection. It never returns a Go error: failures surface inside
// ProcessResult so the caller (the tool handler, or a direct CLI caller)
// can decide whether to retry a different paper.
func (c *Controller) ProcessPaper(ctx context.Context, paperPath, sourcePaperID string) ProcessResult {
	if c.Lease == nil {
		return c.processPaperLocked(ctx, paperPath, sourcePaperID)
	}

	var result ProcessResult
	err := c.Lease.WithLease(ctx, "paper:"+paperPath, leaselock.Options{}, func(ctx context.Context) error {
		result = c.processPaperLocked(ctx, paperPath, sourcePaperID)
		return nil
	})
	if err != nil {
		return ProcessResult{Success: false, Error: fmt.Sprintf("acquire paper lease: %v", err)}
	}
	return result
}

func (c *Controller) processPaperLocked(ctx context.Context, paperPath, sourcePaperID string) ProcessResult {
	pdfBytes, err := os.ReadFile(paperPath)
	if err != nil {
		return ProcessResult{Success: false, Error: fmt.Sprintf("read pdf: %v", err)}
	}

	complete := edc.Drain(c.EDC.Run(ctx, paperPath, pdfBytes))
	if !complete.Success || complete.FinalGraph == nil {
		return ProcessResult{Success: false, Error: complete.Error}
	}

	graph := *complete.FinalGraph
	if sourcePaperID != "" {
		for i := range graph.Relationships {
			if graph.Relationships[i].SourcePaperID == "" {
				graph.Relationships[i].SourcePaperID = sourcePaperID
			}
		}
	}

	stats := ProcessStats{
		EntitiesExtracted:      complete.EntitiesCount,
		RelationshipsExtracted: complete.RelationshipsCount,
	}

	if c.Integrate == nil {
		return ProcessResult{
			Success:       true,
			Entities:      graph.Entities,
			Relationships: graph.Relationships,
			Stats:         stats,
		}
	}

	integrationComplete := integrate.Drain(c.Integrate.Run(ctx, graph, paperPath))
	if !integrationComplete.Success {
		return ProcessResult{
			Success:       false,
			Entities:      graph.Entities,
			Relationships: graph.Relationships,
			Stats:         stats,
			Error:         integrationComplete.Error,
		}
	}

	stats.EntitiesMerged = integrationComplete.EntitiesMerged
	stats.EntitiesCreated = integrationComplete.EntitiesCreated

	return ProcessResult{
		Success:       true,
		Entities:      graph.Entities,
		Relationships: graph.Relationships,
		Stats:         stats,
	}
}
