package extract

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"paperkg/pkg/common"
)

const defaultEncoding = "cl100k_base"

// ChunkText splits text into paragraph-bounded chunks, each at most
// tokenBudget tokens (measured with the cl100k_base tokenizer), never
// splitting a paragraph across chunks. If text fits in one chunk, has no
// paragraph breaks, or the cl100k_base encoding cannot be loaded, it is
// returned as a single-element slice.
func ChunkText(text string, tokenBudget int) []string {
	if tokenBudget <= 0 {
		return []string{text}
	}

	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return []string{text}
	}

	paragraphs := strings.Split(text, "\n\n")
	if len(paragraphs) <= 1 {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentTokens = 0
		}
	}

	for _, p := range paragraphs {
		tokens := len(enc.Encode(p, nil, nil))
		if currentTokens > 0 && currentTokens+tokens > tokenBudget {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
		currentTokens += tokens
	}
	flush()

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// MergeFragments unions a sequence of GraphData fragments produced from
// chunks of the same document: entities are deduped by id, preferring the
// first occurrence's type/description and concatenating unique aliases;
// relationships are deduped on the (sourceId, targetId, type) triple.
func MergeFragments(fragments []common.GraphData) common.GraphData {
	entityOrder := make([]string, 0)
	entityByID := make(map[string]common.Entity)
	aliasSeen := make(map[string]map[string]struct{})

	for _, frag := range fragments {
		for _, e := range frag.Entities {
			existing, ok := entityByID[e.ID]
			if !ok {
				entityByID[e.ID] = e
				entityOrder = append(entityOrder, e.ID)
				aliasSeen[e.ID] = make(map[string]struct{})
				for _, a := range e.Aliases {
					aliasSeen[e.ID][a] = struct{}{}
				}
				continue
			}
			for _, a := range e.Aliases {
				if _, seen := aliasSeen[e.ID][a]; seen {
					continue
				}
				aliasSeen[e.ID][a] = struct{}{}
				existing.Aliases = append(existing.Aliases, a)
			}
			entityByID[e.ID] = existing
		}
	}

	entities := make([]common.Entity, 0, len(entityOrder))
	for _, id := range entityOrder {
		entities = append(entities, entityByID[id])
	}

	relOrder := make([]string, 0)
	relByTriple := make(map[string]common.Relationship)
	for _, frag := range fragments {
		for _, r := range frag.Relationships {
			key := r.SourceID + "\x00" + r.TargetID + "\x00" + r.Type
			if _, ok := relByTriple[key]; ok {
				continue
			}
			relByTriple[key] = r
			relOrder = append(relOrder, key)
		}
	}

	relationships := make([]common.Relationship, 0, len(relOrder))
	for _, key := range relOrder {
		relationships = append(relationships, relByTriple[key])
	}

	return common.GraphData{Entities: entities, Relationships: relationships}
}
