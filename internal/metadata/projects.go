package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Project is a registered codebase root that indexing and search
// operations scope themselves to.
type Project struct {
	Name        string
	RootPath    string
	Settings    map[string]any
	CreatedAt   time.Time
	LastIndexed *time.Time
}

// RegisterProject inserts a new project, or updates its root path and
// settings if a project with that name already exists.
func (s *Store) RegisterProject(ctx context.Context, p Project) error {
	settingsJSON, err := json.Marshal(p.Settings)
	if err != nil {
		return fmt.Errorf("metadata: marshal project settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (name, root_path, settings_json, created_at, last_indexed)
		VALUES (?, ?, ?, ?, NULL)
		ON CONFLICT (name) DO UPDATE SET
			root_path = excluded.root_path,
			settings_json = excluded.settings_json
	`, p.Name, p.RootPath, string(settingsJSON), p.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("metadata: register project %s: %w", p.Name, err)
	}
	return nil
}

// GetProject returns the named project, or nil if not registered.
func (s *Store) GetProject(ctx context.Context, name string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, root_path, settings_json, created_at, last_indexed
		FROM projects WHERE name = ?
	`, name)

	var p Project
	var settingsJSON, createdAt string
	var lastIndexed sql.NullString
	err := row.Scan(&p.Name, &p.RootPath, &settingsJSON, &createdAt, &lastIndexed)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("metadata: get project %s: %w", name, err)
	}

	if err := json.Unmarshal([]byte(settingsJSON), &p.Settings); err != nil {
		return nil, fmt.Errorf("metadata: unmarshal project settings: %w", err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if lastIndexed.Valid {
		t, _ := time.Parse(time.RFC3339Nano, lastIndexed.String)
		p.LastIndexed = &t
	}
	return &p, nil
}

// ListProjects returns every registered project.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, root_path, settings_json, created_at, last_indexed FROM projects`)
	if err != nil {
		return nil, fmt.Errorf("metadata: list projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		var settingsJSON, createdAt string
		var lastIndexed sql.NullString
		if err := rows.Scan(&p.Name, &p.RootPath, &settingsJSON, &createdAt, &lastIndexed); err != nil {
			return nil, fmt.Errorf("metadata: scan project: %w", err)
		}
		if err := json.Unmarshal([]byte(settingsJSON), &p.Settings); err != nil {
			return nil, fmt.Errorf("metadata: unmarshal project settings: %w", err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if lastIndexed.Valid {
			t, _ := time.Parse(time.RFC3339Nano, lastIndexed.String)
			p.LastIndexed = &t
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metadata: iterate projects: %w", err)
	}
	return out, nil
}

// TouchProjectIndexed stamps last_indexed with the given time.
func (s *Store) TouchProjectIndexed(ctx context.Context, name string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET last_indexed = ? WHERE name = ?`,
		at.Format(time.RFC3339Nano), name)
	if err != nil {
		return fmt.Errorf("metadata: touch project %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("metadata: touch project %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("metadata: project %s not registered", name)
	}
	return nil
}
