package pgx

import (
	"context"
	"fmt"

	"paperkg/pkg/common"
)

// Summarize returns SQL aggregates over the whole store, backing the
// agentic controller's summarizeKnowledgeGraph tool.
func (s *GraphDBStorage) Summarize(ctx context.Context) (common.GraphSummary, error) {
	var summary common.GraphSummary

	if err := s.conn.QueryRow(ctx, `SELECT count(*) FROM entities`).Scan(&summary.TotalEntities); err != nil {
		return summary, fmt.Errorf("store: count entities: %w", err)
	}
	if err := s.conn.QueryRow(ctx, `SELECT count(*) FROM relationships`).Scan(&summary.TotalRelationships); err != nil {
		return summary, fmt.Errorf("store: count relationships: %w", err)
	}

	rows, err := s.conn.Query(ctx, `
		SELECT type, count(*) FROM entities GROUP BY type ORDER BY count(*) DESC LIMIT 10
	`)
	if err != nil {
		return summary, fmt.Errorf("store: top entity types: %w", err)
	}
	defer rows.Close()

	summary.TopEntityTypes = make(map[string]int)
	for rows.Next() {
		var entityType string
		var count int
		if err := rows.Scan(&entityType, &count); err != nil {
			return summary, fmt.Errorf("store: scan top entity type: %w", err)
		}
		summary.TopEntityTypes[entityType] = count
	}
	return summary, rows.Err()
}
