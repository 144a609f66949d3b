// Package common holds the graph data model shared by every pipeline stage:
// Extractor, Definer, Canonicalizer, the EDC and Integration workflows, and
// the graph store. Nothing here talks to the network or the database.
package common

import "strings"

// Entity is a node in the knowledge graph.
type Entity struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Aliases     []string          `json:"aliases,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	Embedding   []float32         `json:"embedding,omitempty"`
	Version     int               `json:"version"`
}

// Relationship is a directed, typed edge between two entity ids.
type Relationship struct {
	SourceID      string         `json:"sourceId"`
	TargetID      string         `json:"targetId"`
	Type          string         `json:"type"`
	Description   string         `json:"description,omitempty"`
	Confidence    *float64       `json:"confidence,omitempty"`
	SourcePaperID string         `json:"sourcePaperId,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// GraphData is a fragment of the graph produced by one pipeline run, before
// or after integration into the store.
type GraphData struct {
	Entities            []Entity       `json:"entities"`
	Relationships       []Relationship `json:"relationships"`
	ReferencedEntityIDs []string       `json:"referencedEntityIds,omitempty"`
}

// Author is one author record inside a PreparsedPaperContext.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	Email       string `json:"email,omitempty"`
}

// PreparsedPaperContext is the structured metadata the pre-parser extracts
// ahead of Extract, used to steer the Extractor's prompt.
type PreparsedPaperContext struct {
	Title        string   `json:"title"`
	Authors      []Author `json:"authors"`
	Abstract     string   `json:"abstract"`
	Keywords     []string `json:"keywords"`
	MainFindings []string `json:"mainFindings"`
	Methodology  string   `json:"methodology"`
	Results      string   `json:"results"`
	Discussion   string   `json:"discussion"`
	References   []string `json:"references"`
	Publication  string   `json:"publication,omitempty"`
}

// EntityTypes is the standardized entity-type vocabulary. Unlike relationship
// types, entity types are not coerced into this set: the Extractor and
// Definer keep whatever type the model returns.
var EntityTypes = []string{
	"Method", "Metric", "Task", "Dataset", "Concept", "Author", "Conference", "Paper",
}

// RelationshipTypes is the closed relationship vocabulary. A relationship
// whose type falls outside this set is coerced to RelationshipRelatedTo.
var RelationshipTypes = []string{
	"improves_on", "uses", "evaluated_on", "achieves", "proposes", "addresses",
	"related_to", "based_on", "cites", "extends", "introduces",
}

// RelationshipRelatedTo is the fallback type for an unrecognized relationship type.
const RelationshipRelatedTo = "related_to"

// IsKnownRelationshipType reports whether t is in RelationshipTypes.
func IsKnownRelationshipType(t string) bool {
	for _, v := range RelationshipTypes {
		if v == t {
			return true
		}
	}
	return false
}

// EmbeddingDimensions is the fixed embedding width the store and embedding
// adapter agree on (I6).
const EmbeddingDimensions = 768

// RenderEntity produces the canonical text rendering an entity's embedding
// is computed from: "{name} ({type}): {description}", whitespace trimmed.
func RenderEntity(name, entityType, description string) string {
	return strings.TrimSpace(name + " (" + entityType + "): " + description)
}

// GraphSummary is the aggregate view returned by summarizeKnowledgeGraph.
type GraphSummary struct {
	TotalEntities      int            `json:"totalEntities"`
	TotalRelationships int            `json:"totalRelationships"`
	TopEntityTypes     map[string]int `json:"topEntityTypes"`
}

// MergeDecision is the outcome of resolving one new entity against its
// candidate set during integration.
type MergeDecision struct {
	NewID      string  `json:"newId"`
	TargetID   string  `json:"targetId"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// MergeActionCreate and MergeActionMerge are the two MergeDecision outcomes.
const (
	MergeActionCreate = "CREATE"
	MergeActionMerge  = "MERGE"
)
