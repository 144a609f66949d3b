// Package pgx implements the knowledge-graph store on PostgreSQL with
// pgvector, following the GraphStorage contract in pkg/store.
package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"paperkg/pkg/ai"
	"paperkg/pkg/logger"
	"paperkg/pkg/store"
)

var _ store.GraphStorage = (*GraphDBStorage)(nil)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// GraphDBStorage implements store.GraphStorage on top of a pgx pool, using
// the embedding adapter to render vectors on upsert and similarity search.
type GraphDBStorage struct {
	conn        pgxIConn
	pool        *pgxpool.Pool
	embedder    ai.EmbeddingClient
	databaseURL string

	// batchConcurrency bounds concurrent similarity queries issued by
	// FetchSimilarEntitiesBatch. Falls back to similarityBatchConcurrency
	// when unset.
	batchConcurrency int
}

// Params configures a new GraphDBStorage.
type Params struct {
	DatabaseURL string
	Embedder    ai.EmbeddingClient

	// BatchConcurrency overrides similarityBatchConcurrency when positive.
	BatchConcurrency int
}

// New opens a pgx pool against p.DatabaseURL, registers pgvector's codec on
// every new connection, and returns a GraphDBStorage backed by it.
func New(ctx context.Context, p Params) (*GraphDBStorage, error) {
	poolConfig, err := pgxpool.ParseConfig(p.DatabaseURL)
	if err != nil {
		return nil, err
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &GraphDBStorage{conn: pool, pool: pool, embedder: p.Embedder, databaseURL: p.DatabaseURL, batchConcurrency: p.BatchConcurrency}, nil
}

// Pool exposes the underlying connection pool so callers can build other
// pgx-backed components (e.g. a lease lock) against the same database
// without opening a second pool.
func (s *GraphDBStorage) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the connection pool. The pool is a process-wide resource;
// callers never close it mid-workflow.
func (s *GraphDBStorage) Close() {
	if s.pool == nil {
		return
	}
	s.pool.Close()
	logger.Info("store: connection pool closed")
}
