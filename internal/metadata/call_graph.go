package metadata

import (
	"context"
	"fmt"
	"time"
)

// CallEdge is one caller→callee edge in the static call graph.
type CallEdge struct {
	CallerQN   string
	CalleeQN   string
	CallerFile string
	CalleeFile string
	Project    string
	IndexedAt  time.Time
}

// AddCallEdges inserts edges for project, upserting on the
// (caller_qn, callee_qn, project) triple.
func (s *Store) AddCallEdges(ctx context.Context, edges []CallEdge) error {
	if len(edges) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("metadata: begin call edge tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO call_graph (caller_qn, callee_qn, caller_file, callee_file, project, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (caller_qn, callee_qn, project) DO UPDATE SET
			caller_file = excluded.caller_file,
			callee_file = excluded.callee_file,
			indexed_at = excluded.indexed_at
	`)
	if err != nil {
		return fmt.Errorf("metadata: prepare call edge insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, e.CallerQN, e.CalleeQN, e.CallerFile, e.CalleeFile, e.Project,
			e.IndexedAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("metadata: insert call edge %s->%s: %w", e.CallerQN, e.CalleeQN, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("metadata: commit call edge tx: %w", err)
	}
	return nil
}

// GetCallers returns every edge in project whose callee is calleeQN.
func (s *Store) GetCallers(ctx context.Context, project, calleeQN string) ([]CallEdge, error) {
	return s.queryCallGraph(ctx, `
		SELECT caller_qn, callee_qn, caller_file, callee_file, project, indexed_at
		FROM call_graph WHERE project = ? AND callee_qn = ?
	`, project, calleeQN)
}

// GetCallees returns every edge in project whose caller is callerQN.
func (s *Store) GetCallees(ctx context.Context, project, callerQN string) ([]CallEdge, error) {
	return s.queryCallGraph(ctx, `
		SELECT caller_qn, callee_qn, caller_file, callee_file, project, indexed_at
		FROM call_graph WHERE project = ? AND caller_qn = ?
	`, project, callerQN)
}

func (s *Store) queryCallGraph(ctx context.Context, query string, args ...any) ([]CallEdge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("metadata: query call graph: %w", err)
	}
	defer rows.Close()

	var edges []CallEdge
	for rows.Next() {
		var e CallEdge
		var indexedAt string
		if err := rows.Scan(&e.CallerQN, &e.CalleeQN, &e.CallerFile, &e.CalleeFile, &e.Project, &indexedAt); err != nil {
			return nil, fmt.Errorf("metadata: scan call edge: %w", err)
		}
		e.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metadata: iterate call graph: %w", err)
	}
	return edges, nil
}

// DeleteCallEdgesForFile removes every edge originating from callerFile
// in project, used when a file is re-indexed and its old edges must be
// replaced.
func (s *Store) DeleteCallEdgesForFile(ctx context.Context, project, callerFile string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM call_graph WHERE project = ? AND caller_file = ?`, project, callerFile)
	if err != nil {
		return fmt.Errorf("metadata: delete call edges for %s: %w", callerFile, err)
	}
	return nil
}
