// Package extract implements the Extractor: two-stage LLM extraction of
// entities then relationships from paper text.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"paperkg/pkg/ai"
	"paperkg/pkg/common"
	"paperkg/pkg/logger"
)

type extractedEntity struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

type entitiesResponse struct {
	Entities []extractedEntity `json:"entities"`
}

type extractedRelationship struct {
	SourceID    string   `json:"sourceId"`
	TargetID    string   `json:"targetId"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

type relationshipsResponse struct {
	Relationships []extractedRelationship `json:"relationships"`
}

// Extractor runs the entities-then-relationships extraction pipeline.
type Extractor struct {
	Client ai.ChatClient

	// ChunkingEnabled and TokenBudget control paragraph-boundary chunking
	// for text that exceeds a model context budget (see chunk.go).
	ChunkingEnabled bool
	TokenBudget     int
}

// New builds an Extractor backed by client.
func New(client ai.ChatClient) *Extractor {
	return &Extractor{Client: client, ChunkingEnabled: false, TokenBudget: 6000}
}

// Extract runs Stage A (entities) then Stage B (relationships) over text,
// optionally steered by a pre-parsed context. If chunking is enabled and
// text exceeds the token budget, text is split at paragraph boundaries and
// results are unioned (see MergeFragments).
func (e *Extractor) Extract(ctx context.Context, text string, preparsed *common.PreparsedPaperContext) (common.GraphData, error) {
	if strings.TrimSpace(text) == "" {
		return common.GraphData{Entities: []common.Entity{}, Relationships: []common.Relationship{}}, nil
	}

	if e.ChunkingEnabled {
		if chunks := ChunkText(text, e.TokenBudget); len(chunks) > 1 {
			fragments := make([]common.GraphData, 0, len(chunks))
			for _, chunk := range chunks {
				fragment, err := e.extractOne(ctx, chunk, preparsed)
				if err != nil {
					return common.GraphData{}, err
				}
				fragments = append(fragments, fragment)
			}
			return MergeFragments(fragments), nil
		}
	}

	return e.extractOne(ctx, text, preparsed)
}

func (e *Extractor) extractOne(ctx context.Context, text string, preparsed *common.PreparsedPaperContext) (common.GraphData, error) {
	entities, err := e.extractEntities(ctx, text, preparsed)
	if err != nil {
		return common.GraphData{}, fmt.Errorf("extract entities: %w", err)
	}
	if len(entities) == 0 {
		return common.GraphData{Entities: []common.Entity{}, Relationships: []common.Relationship{}}, nil
	}

	relationships, err := e.extractRelationships(ctx, text, entities)
	if err != nil {
		return common.GraphData{}, fmt.Errorf("extract relationships: %w", err)
	}

	return common.GraphData{Entities: entities, Relationships: relationships}, nil
}

const entitySystemPrompt = "You extract knowledge graph entities from academic paper text."

func (e *Extractor) extractEntities(ctx context.Context, text string, preparsed *common.PreparsedPaperContext) ([]common.Entity, error) {
	var resp entitiesResponse
	prompt := ai.FormatEntityExtractionPrompt(text, renderPreparsedContext(preparsed))
	raw := []extractedEntity{}
	if err := e.Client.GenerateJSON(
		ctx,
		"entity_extraction",
		"Entities extracted from academic paper text",
		prompt,
		&resp,
		ai.WithSystemPrompts(entitySystemPrompt),
	); err != nil {
		logger.Warn("extract: structured entity extraction failed, falling back to chat", "error", err)
		fallback, err := e.entitiesChatFallback(ctx, prompt)
		if err != nil {
			return nil, err
		}
		raw = fallback
	} else {
		raw = resp.Entities
	}

	entities := make([]common.Entity, 0, len(raw))
	for _, e := range raw {
		entities = append(entities, common.Entity{
			ID:          e.ID,
			Name:        e.Name,
			Type:        e.Type,
			Description: e.Description,
			Aliases:     e.Aliases,
		})
	}
	return entities, nil
}

// entitiesChatFallback is used when the structured entity_extraction call
// fails. It re-sends the same prompt through unstructured chat, tolerating
// an LLM drifting the array's field name ("nodes" for "entities") via
// ai.ExtractJSONArray, and degrades to an empty result rather than an error
// on malformed JSON: only a transport failure on the chat call itself is
// fatal for the paper.
func (e *Extractor) entitiesChatFallback(ctx context.Context, prompt string) ([]extractedEntity, error) {
	text, err := e.Client.GenerateChat(ctx, []ai.ChatMessage{{Role: "user", Content: prompt}}, ai.WithSystemPrompts(entitySystemPrompt))
	if err != nil {
		return nil, fmt.Errorf("entity chat fallback: %w", err)
	}

	arrayJSON := ai.ExtractJSONArray(ai.StripCodeFence(text), "entities", "nodes")
	var entities []extractedEntity
	if err := json.Unmarshal([]byte(arrayJSON), &entities); err != nil {
		logger.Warn("extract: chat fallback produced malformed JSON, yielding empty fragment", "error", err)
		return nil, nil
	}
	return entities, nil
}

const relationshipSystemPrompt = "You extract knowledge graph relationships between already-identified entities."

func (e *Extractor) relationshipsChatFallback(ctx context.Context, prompt string) ([]extractedRelationship, error) {
	text, err := e.Client.GenerateChat(ctx, []ai.ChatMessage{{Role: "user", Content: prompt}}, ai.WithSystemPrompts(relationshipSystemPrompt))
	if err != nil {
		return nil, fmt.Errorf("relationship chat fallback: %w", err)
	}

	arrayJSON := ai.ExtractJSONArray(ai.StripCodeFence(text), "relationships", "edges")
	var relationships []extractedRelationship
	if err := json.Unmarshal([]byte(arrayJSON), &relationships); err != nil {
		logger.Warn("extract: chat fallback produced malformed JSON, yielding empty fragment", "error", err)
		return nil, nil
	}
	return relationships, nil
}

func (e *Extractor) extractRelationships(ctx context.Context, text string, entities []common.Entity) ([]common.Relationship, error) {
	entityIDs := make(map[string]struct{}, len(entities))
	var bullets strings.Builder
	for _, ent := range entities {
		entityIDs[ent.ID] = struct{}{}
		fmt.Fprintf(&bullets, "- %s: %s (%s)\n", ent.ID, ent.Name, ent.Type)
	}

	var resp relationshipsResponse
	prompt := ai.FormatRelationshipExtractionPrompt(text, bullets.String())
	rawRelationships := []extractedRelationship{}
	if err := e.Client.GenerateJSON(
		ctx,
		"relationship_extraction",
		"Relationships between extracted entities",
		prompt,
		&resp,
		ai.WithSystemPrompts(relationshipSystemPrompt),
	); err != nil {
		logger.Warn("extract: structured relationship extraction failed, falling back to chat", "error", err)
		fallback, err := e.relationshipsChatFallback(ctx, prompt)
		if err != nil {
			return nil, err
		}
		rawRelationships = fallback
	} else {
		rawRelationships = resp.Relationships
	}

	relationships := make([]common.Relationship, 0, len(rawRelationships))
	for _, r := range rawRelationships {
		if r.SourceID == r.TargetID {
			continue
		}
		if _, ok := entityIDs[r.SourceID]; !ok {
			continue
		}
		if _, ok := entityIDs[r.TargetID]; !ok {
			continue
		}
		relType := r.Type
		if !common.IsKnownRelationshipType(relType) {
			relType = common.RelationshipRelatedTo
		}
		relationships = append(relationships, common.Relationship{
			SourceID:    r.SourceID,
			TargetID:    r.TargetID,
			Type:        relType,
			Description: r.Description,
			Confidence:  r.Confidence,
		})
	}
	return relationships, nil
}

func renderPreparsedContext(p *common.PreparsedPaperContext) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	if p.Abstract != "" {
		fmt.Fprintf(&b, "Abstract: %s\n", p.Abstract)
	}
	if len(p.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(p.Keywords, ", "))
	}
	if len(p.MainFindings) > 0 {
		fmt.Fprintf(&b, "Main findings: %s\n", strings.Join(p.MainFindings, "; "))
	}
	if p.Methodology != "" {
		fmt.Fprintf(&b, "Methodology: %s\n", p.Methodology)
	}
	return b.String()
}
