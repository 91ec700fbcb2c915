// Package metadata implements the MetadataStore (§4.4): a small
// SQLite-backed relational store for indexed-file bookkeeping, a call
// graph, project registration, and git indexing cursors.
package metadata

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a WAL-mode SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if absent) the SQLite database at path, enables
// WAL mode, and runs pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("metadata: open sqlite at %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata: enable foreign keys: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations executes every embedded *.sql file in name order.
// Forward-only: there is no down migration and no version table,
// matching the teacher's development-time migration runner.
func (s *Store) runMigrations(ctx context.Context) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("metadata: open migrations dir: %w", err)
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil {
		return fmt.Errorf("metadata: read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		content, err := fs.ReadFile(sub, entry.Name())
		if err != nil {
			return fmt.Errorf("metadata: read migration %s: %w", entry.Name(), err)
		}

		s.logger.Info("running migration", "file", entry.Name())
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("metadata: execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}
