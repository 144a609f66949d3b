package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"paperkg/internal/util"
	"paperkg/pkg/common"
	"paperkg/pkg/logger"
	"paperkg/pkg/store"
)

const serializationFailureCode = "40001"

const (
	entityChunkSize       = 250
	relationshipChunkSize = 500
)

const (
	upsertRetries  = 3
	upsertBaseMs   = 100
	upsertFactor   = 2.0
	upsertMaxMs    = 10000
)

// UpsertGraph idempotently persists graph inside a single SERIALIZABLE
// transaction (I1-I6), retrying on serialization failure with jittered
// exponential backoff. Embeddings are computed before the transaction opens
// so a slow embedding provider never holds a lock.
func (s *GraphDBStorage) UpsertGraph(ctx context.Context, graph common.GraphData) error {
	renderings := make([]string, len(graph.Entities))
	for i, e := range graph.Entities {
		renderings[i] = common.RenderEntity(e.Name, e.Type, e.Description)
	}
	embeddings, err := s.embedder.GenerateEmbeddings(ctx, renderings)
	if err != nil {
		return fmt.Errorf("store: embed entities: %w", err)
	}

	relationships := filterRelationships(graph)

	for attempt := 1; attempt <= upsertRetries+1; attempt++ {
		err := s.upsertOnce(ctx, graph.Entities, embeddings, relationships)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) || attempt > upsertRetries {
			return err
		}
		wait := backoff(attempt)
		logger.Warn("store: serialization failure, retrying", "attempt", attempt, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("store: upsertGraph: exhausted retries")
}

// filterRelationships drops self-loops and relationships whose endpoints
// are not in entities ∪ referencedEntityIds, warning on each orphan drop
// (self-loops are dropped without a warning).
func filterRelationships(graph common.GraphData) []common.Relationship {
	allowed := make(map[string]struct{}, len(graph.Entities)+len(graph.ReferencedEntityIDs))
	for _, e := range graph.Entities {
		allowed[e.ID] = struct{}{}
	}
	for _, id := range graph.ReferencedEntityIDs {
		allowed[id] = struct{}{}
	}

	relationships := make([]common.Relationship, 0, len(graph.Relationships))
	for _, r := range graph.Relationships {
		_, srcOK := allowed[r.SourceID]
		_, dstOK := allowed[r.TargetID]
		if !srcOK || !dstOK {
			logger.Warn("store: dropping orphan relationship", "sourceId", r.SourceID, "targetId", r.TargetID, "type", r.Type)
			continue
		}
		if r.SourceID == r.TargetID {
			continue
		}
		relationships = append(relationships, r)
	}
	return relationships
}

func (s *GraphDBStorage) upsertOnce(ctx context.Context, entities []common.Entity, embeddings [][]float32, relationships []common.Relationship) error {
	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := store.ChunkRange(len(entities), entityChunkSize, func(start, end int) error {
		return upsertEntitiesChunk(ctx, tx, entities[start:end], embeddings[start:end])
	}); err != nil {
		return err
	}

	if err := store.ChunkRange(len(relationships), relationshipChunkSize, func(start, end int) error {
		return upsertRelationshipsChunk(ctx, tx, relationships[start:end])
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func upsertEntitiesChunk(ctx context.Context, tx pgx.Tx, entities []common.Entity, embeddings [][]float32) error {
	for i, e := range entities {
		aliasesJSON, err := json.Marshal(e.Aliases)
		if err != nil {
			return fmt.Errorf("store: marshal aliases for %s: %w", e.ID, err)
		}
		metadataJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("store: marshal metadata for %s: %w", e.ID, err)
		}
		vec := pgvector.NewVector(embeddings[i])

		name := util.SanitizePostgresText(e.Name)
		description := util.SanitizePostgresText(e.Description)

		_, err = tx.Exec(ctx, `
			INSERT INTO entities (id, name, type, description, aliases, metadata, embedding, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				type = EXCLUDED.type,
				description = EXCLUDED.description,
				aliases = EXCLUDED.aliases,
				metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding,
				version = entities.version + 1
		`, e.ID, name, e.Type, description, aliasesJSON, metadataJSON, vec)
		if err != nil {
			return fmt.Errorf("store: upsert entity %s: %w", e.ID, err)
		}
	}
	return nil
}

func upsertRelationshipsChunk(ctx context.Context, tx pgx.Tx, relationships []common.Relationship) error {
	for _, r := range relationships {
		metadataJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("store: marshal relationship metadata: %w", err)
		}

		description := util.SanitizePostgresText(r.Description)

		_, err = tx.Exec(ctx, `
			INSERT INTO relationships (source_id, target_id, type, description, confidence, source_paper_id, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (source_id, target_id, type) DO NOTHING
		`, r.SourceID, r.TargetID, r.Type, description, r.Confidence, r.SourcePaperID, metadataJSON)
		if err != nil {
			return fmt.Errorf("store: insert relationship %s->%s: %w", r.SourceID, r.TargetID, err)
		}
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailureCode
	}
	return false
}

func backoff(attempt int) time.Duration {
	upperMs := float64(upsertBaseMs)
	for i := 1; i < attempt; i++ {
		upperMs *= upsertFactor
	}
	if upperMs > upsertMaxMs {
		upperMs = upsertMaxMs
	}
	jittered := rand.Float64() * upperMs
	return time.Duration(jittered) * time.Millisecond
}
