package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"paperkg/pkg/ai"
	"paperkg/pkg/common"
	"paperkg/pkg/discovery"
)

// toolHandler executes one tool call's JSON-encoded arguments and returns a
// JSON-encoded result string fed back to the model as a tool message.
type toolHandler func(ctx context.Context, args string) (string, error)

// registeredTool pairs the schema the model sees with the handler the
// controller dispatches to; only Tool crosses into GenerateChatWithTools.
type registeredTool struct {
	Tool    ai.Tool
	Handler toolHandler
}

func (c *Controller) registeredTools() []registeredTool {
	return []registeredTool{
		c.toolSearchPapers(),
		c.toolGetCitations(),
		c.toolDownloadPaper(),
		c.toolProcessPaper(),
		c.toolQueryKnowledgeGraph(),
		c.toolSummarizeKnowledgeGraph(),
	}
}

func (c *Controller) toolSearchPapers() registeredTool {
	return registeredTool{
		Tool: ai.Tool{
			Name:        "searchPapers",
			Description: "Search for papers by keyword query. Returns candidate papers with id, title, and citation count.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Keyword search query.",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results (default 10).",
						"default":     10,
					},
				},
				"required": []string{"query"},
			},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			var params struct {
				Query string `json:"query"`
				Limit int    `json:"limit"`
			}
			if err := json.Unmarshal([]byte(args), &params); err != nil {
				return "", fmt.Errorf("searchPapers: parse arguments: %w", err)
			}
			if params.Limit <= 0 {
				params.Limit = 10
			}

			papers, err := c.Discovery.SearchPapers(ctx, params.Query, params.Limit)
			if err != nil {
				return "", fmt.Errorf("searchPapers: %w", err)
			}
			return marshalResult(papers)
		},
	}
}

func (c *Controller) toolGetCitations() registeredTool {
	return registeredTool{
		Tool: ai.Tool{
			Name:        "getCitations",
			Description: "List papers that cite the given paper id. Returns candidate papers with id, title, and citation count.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"paperId": map[string]any{
						"type":        "string",
						"description": "The id of the paper whose citing papers to list.",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results (default 10).",
						"default":     10,
					},
				},
				"required": []string{"paperId"},
			},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			var params struct {
				PaperID string `json:"paperId"`
				Limit   int    `json:"limit"`
			}
			if err := json.Unmarshal([]byte(args), &params); err != nil {
				return "", fmt.Errorf("getCitations: parse arguments: %w", err)
			}
			if params.Limit <= 0 {
				params.Limit = 10
			}

			papers, err := c.Discovery.GetCitations(ctx, params.PaperID, params.Limit)
			if err != nil {
				return "", fmt.Errorf("getCitations: %w", err)
			}
			return marshalResult(papers)
		},
	}
}

func (c *Controller) toolDownloadPaper() registeredTool {
	return registeredTool{
		Tool: ai.Tool{
			Name:        "downloadPaper",
			Description: "Download a paper's PDF given its discovery record (id, title, citationCount). Resolves the PDF URL and fetches it to local disk. Returns {success, path}.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "The paper's id, as returned by searchPapers/getCitations.",
					},
					"title": map[string]any{
						"type":        "string",
						"description": "The paper's title.",
					},
					"citationCount": map[string]any{
						"type":        "integer",
						"description": "The paper's citation count.",
					},
				},
				"required": []string{"id"},
			},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			var paper discovery.Paper
			if err := json.Unmarshal([]byte(args), &paper); err != nil {
				return "", fmt.Errorf("downloadPaper: parse arguments: %w", err)
			}

			pdfURL, err := c.Discovery.ResolvePDFURL(ctx, paper.ID)
			if err != nil || pdfURL == "" {
				return marshalResult(map[string]any{"success": false, "error": "no pdf url available"})
			}

			result, err := c.Downloader.Download(ctx, paper.ID, pdfURL)
			if err != nil {
				return marshalResult(map[string]any{"success": false, "error": err.Error()})
			}
			return marshalResult(result)
		},
	}
}

func (c *Controller) toolProcessPaper() registeredTool {
	return registeredTool{
		Tool: ai.Tool{
			Name:        "processPaper",
			Description: "Run the EDC and Integration pipeline over a downloaded PDF at paperPath, merging its entities and relationships into the knowledge graph. Returns partial data with an error if either stage fails.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"paperPath": map[string]any{
						"type":        "string",
						"description": "Local filesystem path to the downloaded PDF.",
					},
					"sourcePaperId": map[string]any{
						"type":        "string",
						"description": "Optional discovery id to tag extracted relationships with.",
					},
				},
				"required": []string{"paperPath"},
			},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			var params struct {
				PaperPath     string `json:"paperPath"`
				SourcePaperID string `json:"sourcePaperId"`
			}
			if err := json.Unmarshal([]byte(args), &params); err != nil {
				return "", fmt.Errorf("processPaper: parse arguments: %w", err)
			}

			result := c.ProcessPaper(ctx, params.PaperPath, params.SourcePaperID)
			return marshalResult(result)
		},
	}
}

func (c *Controller) toolQueryKnowledgeGraph() registeredTool {
	return registeredTool{
		Tool: ai.Tool{
			Name:        "queryKnowledgeGraph",
			Description: "Search the knowledge graph built so far for entities similar to searchTerm. Returns {entities, count}.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"searchTerm": map[string]any{
						"type":        "string",
						"description": "Free-text description of the entity to look for.",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of entities to return (default 10).",
						"default":     10,
					},
				},
				"required": []string{"searchTerm"},
			},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			var params struct {
				SearchTerm string `json:"searchTerm"`
				Limit      int    `json:"limit"`
			}
			if err := json.Unmarshal([]byte(args), &params); err != nil {
				return "", fmt.Errorf("queryKnowledgeGraph: parse arguments: %w", err)
			}
			if params.Limit <= 0 {
				params.Limit = 10
			}

			embedding, err := c.Embedder.GenerateEmbedding(ctx, params.SearchTerm)
			if err != nil {
				return "", fmt.Errorf("queryKnowledgeGraph: embed search term: %w", err)
			}

			query := common.Entity{ID: "query", Name: params.SearchTerm, Embedding: embedding}
			entities, err := c.Store.FetchSimilarEntities(ctx, query, params.Limit)
			if err != nil {
				return "", fmt.Errorf("queryKnowledgeGraph: %w", err)
			}

			return marshalResult(map[string]any{"entities": entities, "count": len(entities)})
		},
	}
}

func (c *Controller) toolSummarizeKnowledgeGraph() registeredTool {
	return registeredTool{
		Tool: ai.Tool{
			Name:        "summarizeKnowledgeGraph",
			Description: "Return aggregate statistics over the whole knowledge graph built so far: total entities, total relationships, and counts by entity type.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			summary, err := c.Store.Summarize(ctx)
			if err != nil {
				return "", fmt.Errorf("summarizeKnowledgeGraph: %w", err)
			}
			return marshalResult(summary)
		},
	}
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal tool result: %w", err)
	}
	return string(data), nil
}
