// Package store defines the storage-layer contract shared by the EDC and
// Integration workflows. The concrete PostgreSQL/pgvector implementation
// lives in pkg/store/pgx.
package store

import (
	"context"

	"paperkg/pkg/common"
)

// GraphStorage persists and queries the canonical knowledge graph.
type GraphStorage interface {
	// Init ensures the schema is present. A no-op if migrations were
	// already applied externally.
	Init(ctx context.Context) error

	// UpsertGraph idempotently persists a fragment inside a single
	// SERIALIZABLE transaction, retrying on serialization failure.
	UpsertGraph(ctx context.Context, graph common.GraphData) error

	// FetchSimilarEntities returns up to k store entities considered
	// potential duplicates of entity, ordered by ascending cosine
	// distance, excluding entity's own id.
	FetchSimilarEntities(ctx context.Context, entity common.Entity, k int) ([]common.Entity, error)

	// FetchSimilarEntitiesBatch is the batch form of FetchSimilarEntities.
	// Entities with no candidates are omitted from the returned mapping.
	FetchSimilarEntitiesBatch(ctx context.Context, entities []common.Entity) (map[string][]common.Entity, error)

	// RecordDocument records that a paper at path was processed.
	RecordDocument(ctx context.Context, path, checksum string) error

	// Summarize returns SQL aggregates over the whole store.
	Summarize(ctx context.Context) (common.GraphSummary, error)

	// Close releases the connection pool.
	Close()
}
