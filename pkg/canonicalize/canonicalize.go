// Package canonicalize deduplicates a single document's extracted graph
// fragment by exact lowercased-trimmed entity name. It is purely
// deterministic: no LLM call, no store access.
package canonicalize

import (
	"strings"

	"paperkg/pkg/common"
)

// Canonicalize collapses entities in g that share a lowercased, trimmed
// name, rewires relationships through the resulting id remap, and drops any
// relationship left as a self-loop. The output never sets ReferencedEntityIDs.
func Canonicalize(g common.GraphData) common.GraphData {
	uniqueByName := make(map[string]common.Entity, len(g.Entities))
	order := make([]string, 0, len(g.Entities))
	idRemap := make(map[string]string)

	for _, e := range g.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if existing, ok := uniqueByName[key]; ok {
			idRemap[e.ID] = existing.ID
			continue
		}
		uniqueByName[key] = e
		order = append(order, key)
	}

	entities := make([]common.Entity, 0, len(order))
	for _, key := range order {
		entities = append(entities, uniqueByName[key])
	}

	relationships := make([]common.Relationship, 0, len(g.Relationships))
	for _, r := range g.Relationships {
		rewritten := r
		rewritten.SourceID = resolve(idRemap, r.SourceID)
		rewritten.TargetID = resolve(idRemap, r.TargetID)
		if rewritten.SourceID == rewritten.TargetID {
			continue
		}
		relationships = append(relationships, rewritten)
	}

	return common.GraphData{
		Entities:      entities,
		Relationships: relationships,
	}
}

func resolve(remap map[string]string, id string) string {
	if target, ok := remap[id]; ok {
		return target
	}
	return id
}
