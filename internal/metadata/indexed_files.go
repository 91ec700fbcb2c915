package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// IndexedFile tracks the last-indexed state of one file within a
// project, keyed by (file_path, project).
type IndexedFile struct {
	FilePath     string
	Project      string
	Language     string
	FileHash     string
	UnitCount    int
	IndexedAt    time.Time
	LastModified time.Time
}

// AddIndexedFile upserts the indexed-file row for (file_path, project).
func (s *Store) AddIndexedFile(ctx context.Context, f IndexedFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexed_files (file_path, project, language, file_hash, unit_count, indexed_at, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_path, project) DO UPDATE SET
			language = excluded.language,
			file_hash = excluded.file_hash,
			unit_count = excluded.unit_count,
			indexed_at = excluded.indexed_at,
			last_modified = excluded.last_modified
	`, f.FilePath, f.Project, f.Language, f.FileHash, f.UnitCount,
		f.IndexedAt.Format(time.RFC3339Nano), f.LastModified.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("metadata: upsert indexed file %s: %w", f.FilePath, err)
	}
	return nil
}

// GetIndexedFile returns the indexed-file row for (file_path, project),
// or nil if absent.
func (s *Store) GetIndexedFile(ctx context.Context, filePath, project string) (*IndexedFile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT file_path, project, language, file_hash, unit_count, indexed_at, last_modified
		FROM indexed_files WHERE file_path = ? AND project = ?
	`, filePath, project)
	return scanIndexedFile(row)
}

func scanIndexedFile(row interface {
	Scan(dest ...any) error
}) (*IndexedFile, error) {
	var f IndexedFile
	var indexedAt, lastModified string
	err := row.Scan(&f.FilePath, &f.Project, &f.Language, &f.FileHash, &f.UnitCount, &indexedAt, &lastModified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("metadata: scan indexed file: %w", err)
	}
	f.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
	f.LastModified, _ = time.Parse(time.RFC3339Nano, lastModified)
	return &f, nil
}

// GetStaleFiles returns indexed files in project whose file_path is
// not present in currentPaths — i.e. files that have since been
// deleted or renamed on disk.
func (s *Store) GetStaleFiles(ctx context.Context, project string, currentPaths map[string]bool) ([]IndexedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, project, language, file_hash, unit_count, indexed_at, last_modified
		FROM indexed_files WHERE project = ?
	`, project)
	if err != nil {
		return nil, fmt.Errorf("metadata: query indexed files for project %s: %w", project, err)
	}
	defer rows.Close()

	var stale []IndexedFile
	for rows.Next() {
		f, err := scanIndexedFile(rows)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		if !currentPaths[f.FilePath] {
			stale = append(stale, *f)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metadata: iterate indexed files: %w", err)
	}
	return stale, nil
}

// DeleteIndexedFile removes the row for (file_path, project).
func (s *Store) DeleteIndexedFile(ctx context.Context, filePath, project string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM indexed_files WHERE file_path = ? AND project = ?`, filePath, project)
	if err != nil {
		return fmt.Errorf("metadata: delete indexed file %s: %w", filePath, err)
	}
	return nil
}
