package sqlite

import (
	"context"
	"database/sql"
)

// ExecForTest runs a raw statement against the database.
func (s *Store) ExecForTest(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.execWithRetry(ctx, query, args...)
}
