package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GitIndexState tracks how far commit indexing has progressed for one
// repository.
type GitIndexState struct {
	RepoPath       string
	LastIndexedSHA string
	LastIndexedAt  *time.Time
	CommitCount    int
}

// GetGitIndexState returns the tracked state for repoPath, or nil if
// the repo has never been indexed.
func (s *Store) GetGitIndexState(ctx context.Context, repoPath string) (*GitIndexState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT repo_path, last_indexed_sha, last_indexed_at, commit_count
		FROM git_index_state WHERE repo_path = ?
	`, repoPath)

	var st GitIndexState
	var sha, at sql.NullString
	if err := row.Scan(&st.RepoPath, &sha, &at, &st.CommitCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("metadata: get git index state for %s: %w", repoPath, err)
	}
	if sha.Valid {
		st.LastIndexedSHA = sha.String
	}
	if at.Valid {
		t, _ := time.Parse(time.RFC3339Nano, at.String)
		st.LastIndexedAt = &t
	}
	return &st, nil
}

// AdvanceGitIndexState records that newCommits commits were indexed up
// to sha, accumulating commit_count rather than overwriting it.
func (s *Store) AdvanceGitIndexState(ctx context.Context, repoPath, sha string, at time.Time, newCommits int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO git_index_state (repo_path, last_indexed_sha, last_indexed_at, commit_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (repo_path) DO UPDATE SET
			last_indexed_sha = excluded.last_indexed_sha,
			last_indexed_at = excluded.last_indexed_at,
			commit_count = commit_count + excluded.commit_count
	`, repoPath, sha, at.Format(time.RFC3339Nano), newCommits)
	if err != nil {
		return fmt.Errorf("metadata: advance git index state for %s: %w", repoPath, err)
	}
	return nil
}
