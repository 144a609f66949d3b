package ai

import "fmt"

// PreparsePrompt drives the pre-parser's structured extraction of paper
// metadata ahead of entity/relationship extraction.
const PreparsePrompt = `
# Task Context
You are an assistant that reads the text of an academic paper and extracts its structured metadata.

# Background Data
%s

# Detailed Task Description & Rules
- Extract the paper's title, authors (with affiliation and email when present), abstract, keywords, main findings, methodology, results, discussion, and any references you can identify.
- If a field is not present in the text, return it empty rather than guessing.
- Do not invent authors, findings, or references that are not supported by the text.

# Output Formatting
Return a JSON object matching the provided schema.
`

// EntityExtractionPrompt drives Extractor Stage A.
const EntityExtractionPrompt = `
# Task Context
You are an assistant that extracts entities from academic paper text for a knowledge graph.

# Background Data
%s

# Detailed Task Description & Rules
- Extract entities of these types only: Method, Metric, Task, Dataset, Concept, Author, Conference, Paper.
- For each entity, assign a normalized lowercase id derived from its name (e.g. "neural radiance fields" -> "neural_radiance_fields").
- Include a short description grounded in the text.
- Include any aliases or abbreviations the text uses for the same entity (e.g. "NeRF" as an alias of "Neural Radiance Fields").
- Do not extract entities that are not actually discussed in the text.

# Output Formatting
Return a JSON object: {"entities": [{"id", "name", "type", "description", "aliases"}]}.
`

// RelationshipExtractionPrompt drives Extractor Stage B. The caller formats
// it with the text and the bullet list of already-extracted entities.
const RelationshipExtractionPrompt = `
# Task Context
You are an assistant that extracts relationships between already-identified entities in academic paper text.

# Background Data
Extracted entities:
%s

Paper text:
%s

# Detailed Task Description & Rules
- Only emit relationships between the entities listed above, referenced by their id.
- Use one of these relationship types: improves_on, uses, evaluated_on, achieves, proposes, addresses, related_to, based_on, cites, extends, introduces.
- Never emit a relationship whose sourceId equals its targetId.
- Ground every relationship in a specific claim made in the text; do not speculate.

# Output Formatting
Return a JSON object: {"relationships": [{"sourceId", "targetId", "type", "description", "confidence"}]}.
`

// DefinerPrompt drives the Definer's batched type/name refinement.
const DefinerPrompt = `
# Task Context
You are an assistant that standardizes entity types and names for a knowledge graph.

# Background Data
Standardized types: Method, Metric, Task, Dataset, Concept, Author, Conference.
Entities to refine:
%s

# Detailed Task Description & Rules
- For each entity, choose the single best-fitting standardized type.
- You may also normalize the entity's name (e.g. expand an abbreviation), but you do not have to.
- Every input id must appear exactly once in your output, unchanged.

# Output Formatting
Return a JSON object: {"entities": [{"id", "name", "type"}]}.
`

// IntegrationResolvePrompt drives the integration resolver's MERGE/CREATE
// adjudication for one new entity against its retrieved candidates.
const IntegrationResolvePrompt = `
# Task Context
You are an assistant deciding whether a newly extracted entity is the same real-world thing as an existing entity already in a knowledge graph.

# Background Data
New entity: %s

Candidate existing entities (closest by embedding similarity):
%s

# Detailed Task Description & Rules
- If the new entity refers to the same method, metric, task, dataset, concept, author, conference, or paper as one of the candidates (allowing for abbreviation, casing, or naming variation), decide MERGE and name that candidate's id as targetId.
- Otherwise decide CREATE.
- confidence is your certainty in [0,1].
- rationale is one sentence explaining the decision.

# Output Formatting
Return a JSON object: {"action": "MERGE"|"CREATE", "targetId": "<candidate id, only if MERGE>", "confidence": <float>, "rationale": "<string>"}.
`

// AgentSystemPrompt is the system prompt for the agentic ReACT controller.
const AgentSystemPrompt = `
You are a research assistant that builds a knowledge graph from academic papers.
You have tools to search for papers, follow citations, download PDFs, process a downloaded paper into the graph, and inspect the graph you have built so far.
Work step by step: search or follow citations to find relevant papers, download and process them, and use queryKnowledgeGraph/summarizeKnowledgeGraph to check your progress.
Stop once you have satisfied the user's request or made no further progress.
`

// FormatPreparsePrompt renders PreparsePrompt with the raw paper text.
func FormatPreparsePrompt(text string) string {
	return fmt.Sprintf(PreparsePrompt, text)
}

// FormatEntityExtractionPrompt renders EntityExtractionPrompt, optionally
// prefixing pre-parsed context ahead of the raw text.
func FormatEntityExtractionPrompt(text string, context string) string {
	if context != "" {
		return fmt.Sprintf(EntityExtractionPrompt, context+"\n\n"+text)
	}
	return fmt.Sprintf(EntityExtractionPrompt, text)
}

// FormatRelationshipExtractionPrompt renders RelationshipExtractionPrompt.
func FormatRelationshipExtractionPrompt(text, entityBulletList string) string {
	return fmt.Sprintf(RelationshipExtractionPrompt, entityBulletList, text)
}

// FormatDefinerPrompt renders DefinerPrompt with a JSON-encoded entity batch.
func FormatDefinerPrompt(entitiesJSON string) string {
	return fmt.Sprintf(DefinerPrompt, entitiesJSON)
}

// FormatIntegrationResolvePrompt renders IntegrationResolvePrompt.
func FormatIntegrationResolvePrompt(newEntityJSON, candidatesJSON string) string {
	return fmt.Sprintf(IntegrationResolvePrompt, newEntityJSON, candidatesJSON)
}
