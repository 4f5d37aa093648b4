package store

import (
	"context"
	"embed"
	"fmt"
)

//go:embed schema/postgres.sql
var schemaFS embed.FS

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	data, err := schemaFS.ReadFile("schema/postgres.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := s.db.Exec(ctx, string(data)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
