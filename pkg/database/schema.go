package database

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	dbsql "asocial/api_feed/pkg/database/sql"
	"asocial/api_feed/pkg/logging"
)

// ApplySchema executes the embedded schema files in lexical order. All
// statements are idempotent, so running this on every boot is safe.
func ApplySchema(ctx context.Context, db PostgresConn, logger logging.Logger) error {
	files, err := fs.Glob(dbsql.Content, "schema/*.sql")
	if err != nil {
		return fmt.Errorf("list schema files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		contents, err := dbsql.Content.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read schema file %s: %w", file, err)
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply schema file %s: %w", file, err)
		}
		logger.WithField("file", file).Info("Applied schema file")
	}

	return nil
}
