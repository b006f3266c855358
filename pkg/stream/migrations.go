package stream

import (
	"context"
	"embed"
	"sort"

	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies the bundled schema migrations in lexical order. Every
// statement is idempotent, so running it on an already-migrated database is a
// no-op.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return errors.Wrap(err, "failed to read the bundled migrations")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return errors.Wrapf(err, "failed to read the migration %s", name)
		}

		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return errors.Wrapf(err, "failed to apply the migration %s", name)
		}
	}

	return nil
}
