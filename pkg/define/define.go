// Package define implements the Definer: batched LLM-assisted type/name
// refinement over an extracted graph fragment. Relationships are untouched.
package define

import (
	"context"
	"encoding/json"
	"fmt"

	"paperkg/pkg/ai"
	"paperkg/pkg/common"
	"paperkg/pkg/logger"
)

// BatchSize is the fixed number of entities sent to the LLM per refinement
// call.
const BatchSize = 50

type refinedEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type refinedEntities struct {
	Entities []refinedEntity `json:"entities"`
}

type entitySummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Definer refines entity types (and optionally names) in fixed-size batches.
type Definer struct {
	Client ai.ChatClient

	// BatchSize overrides the default number of entities sent to the LLM
	// per refinement call. Zero means "use BatchSize".
	BatchSize int
}

// New builds a Definer backed by client, using the default BatchSize.
func New(client ai.ChatClient) *Definer {
	return &Definer{Client: client, BatchSize: BatchSize}
}

func (d *Definer) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return BatchSize
}

// Define runs the refinement pass over g and returns a fragment with the
// same entity id set, refined type/name fields, and relationships untouched.
// A batch's LLM or JSON-parse failure is fatal and returned to the caller —
// it is never silently swallowed, unlike the Extractor's fallback path.
func (d *Definer) Define(ctx context.Context, g common.GraphData) (common.GraphData, error) {
	if len(g.Entities) == 0 {
		return g, nil
	}

	refinedByID := make(map[string]refinedEntity, len(g.Entities))

	batchSize := d.batchSize()
	for start := 0; start < len(g.Entities); start += batchSize {
		end := min(start+batchSize, len(g.Entities))
		batch := g.Entities[start:end]

		summaries := make([]entitySummary, len(batch))
		for i, e := range batch {
			summaries[i] = entitySummary{ID: e.ID, Name: e.Name, Type: e.Type}
		}
		summariesJSON, err := json.Marshal(summaries)
		if err != nil {
			return common.GraphData{}, fmt.Errorf("define: marshal batch: %w", err)
		}

		var refined refinedEntities
		if err := d.Client.GenerateJSON(
			ctx,
			"entity_refinement",
			"Standardized entity types and names",
			ai.FormatDefinerPrompt(string(summariesJSON)),
			&refined,
			ai.WithSystemPrompts("You standardize knowledge graph entity types."),
		); err != nil {
			return common.GraphData{}, fmt.Errorf("define: batch [%d:%d]: %w", start, end, err)
		}

		for _, r := range refined.Entities {
			refinedByID[r.ID] = r
		}
	}

	entities := make([]common.Entity, len(g.Entities))
	for i, e := range g.Entities {
		refined, ok := refinedByID[e.ID]
		if !ok {
			logger.Warn("define: refined batch missing entity id, keeping original", "id", e.ID)
			entities[i] = e
			continue
		}
		next := e
		next.Type = refined.Type
		if refined.Name != "" {
			next.Name = refined.Name
		}
		entities[i] = next
	}

	return common.GraphData{
		Entities:      entities,
		Relationships: g.Relationships,
	}, nil
}
