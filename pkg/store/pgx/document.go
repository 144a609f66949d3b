package pgx

import (
	"context"
	"fmt"
)

// RecordDocument records that a paper at path was processed, storing its
// checksum. Every call inserts a new row; existing rows are not checked.
func (s *GraphDBStorage) RecordDocument(ctx context.Context, path, checksum string) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO documents (path, checksum, status)
		VALUES ($1, $2, 'processed')
	`, path, checksum)
	if err != nil {
		return fmt.Errorf("store: record document %s: %w", path, err)
	}
	return nil
}
