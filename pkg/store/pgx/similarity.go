package pgx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"paperkg/pkg/common"
)

// similarityBatchConcurrency bounds the number of concurrent similarity
// queries fetchSimilarEntitiesBatch issues; this is the bounded-parallelism
// loop style rather than a single multi-vector SQL query.
const similarityBatchConcurrency = 5

// concurrencyLimit returns the configured concurrency for
// FetchSimilarEntitiesBatch, falling back to similarityBatchConcurrency.
func (s *GraphDBStorage) concurrencyLimit() int {
	if s.batchConcurrency > 0 {
		return s.batchConcurrency
	}
	return similarityBatchConcurrency
}

// FetchSimilarEntities returns up to k store entities considered potential
// duplicates of entity, ordered ascending by cosine distance, excluding
// entity's own id and rows with a null embedding.
func (s *GraphDBStorage) FetchSimilarEntities(ctx context.Context, entity common.Entity, k int) ([]common.Entity, error) {
	rendering := common.RenderEntity(entity.Name, entity.Type, entity.Description)
	embedding, err := s.embedder.GenerateEmbedding(ctx, rendering)
	if err != nil {
		return nil, fmt.Errorf("store: embed query entity: %w", err)
	}
	return s.querySimilar(ctx, entity.ID, embedding, k)
}

func (s *GraphDBStorage) querySimilar(ctx context.Context, excludeID string, embedding []float32, k int) ([]common.Entity, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := s.conn.Query(ctx, `
		SELECT id, name, type, description, aliases, metadata, version
		FROM entities
		WHERE embedding IS NOT NULL AND id != $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`, excludeID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("store: similarity query: %w", err)
	}
	defer rows.Close()

	var results []common.Entity
	for rows.Next() {
		var e common.Entity
		var aliasesJSON, metadataJSON []byte
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.Description, &aliasesJSON, &metadataJSON, &e.Version); err != nil {
			return nil, fmt.Errorf("store: scan similar entity: %w", err)
		}
		if len(aliasesJSON) > 0 {
			if err := json.Unmarshal(aliasesJSON, &e.Aliases); err != nil {
				return nil, fmt.Errorf("store: unmarshal aliases: %w", err)
			}
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("store: unmarshal metadata: %w", err)
			}
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// FetchSimilarEntitiesBatch is the batch form of FetchSimilarEntities,
// running with bounded parallelism and preserving per-input independence.
// Inputs with zero candidates are omitted from the result mapping.
func (s *GraphDBStorage) FetchSimilarEntitiesBatch(ctx context.Context, entities []common.Entity) (map[string][]common.Entity, error) {
	if len(entities) == 0 {
		return map[string][]common.Entity{}, nil
	}

	renderings := make([]string, len(entities))
	for i, e := range entities {
		renderings[i] = common.RenderEntity(e.Name, e.Type, e.Description)
	}
	embeddings, err := s.embedder.GenerateEmbeddings(ctx, renderings)
	if err != nil {
		return nil, fmt.Errorf("store: embed query entities: %w", err)
	}

	var mu sync.Mutex
	results := make(map[string][]common.Entity, len(entities))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrencyLimit())

	for i, e := range entities {
		id := e.ID
		embedding := embeddings[i]
		eg.Go(func() error {
			candidates, err := s.querySimilar(egCtx, id, embedding, 5)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				return nil
			}
			mu.Lock()
			results[id] = candidates
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
