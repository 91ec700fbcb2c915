package gitanalyzer_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kessa-dev/kessa/internal/embedding"
	"github.com/kessa-dev/kessa/internal/gitanalyzer"
	"github.com/kessa-dev/kessa/internal/metadata"
	"github.com/kessa-dev/kessa/internal/vectorstore"
)

// fakeReader is an in-memory GitReader stand-in; the binary isn't
// shelled out to in unit tests.
type fakeReader struct {
	commits  []gitanalyzer.Commit
	byFile   map[string][]gitanalyzer.Commit
	blame    map[string][]gitanalyzer.BlameEntry
	headSHA  string
	repoRoot string
}

func (f *fakeReader) GetCommits(_ context.Context, since, _ *time.Time, path string, limit int) ([]gitanalyzer.Commit, error) {
	out := f.commits
	if path != "" {
		out = f.byFile[path]
	}
	var filtered []gitanalyzer.Commit
	for _, c := range out {
		if since != nil && c.Timestamp.Before(*since) {
			continue
		}
		filtered = append(filtered, c)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (f *fakeReader) GetBlame(_ context.Context, filePath string) ([]gitanalyzer.BlameEntry, error) {
	return f.blame[filePath], nil
}

func (f *fakeReader) GetFileHistory(_ context.Context, filePath string, limit int) ([]gitanalyzer.Commit, error) {
	out := f.byFile[filePath]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeReader) GetRepoRoot() string { return f.repoRoot }

func (f *fakeReader) GetHeadSHA(_ context.Context) (string, error) { return f.headSHA, nil }

func newTestAnalyzer(t *testing.T, reader gitanalyzer.GitReader) (*gitanalyzer.Analyzer, *metadata.Store) {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	embedder := embedding.NewHashProvider(16)
	meta, err := metadata.Open(context.Background(), filepath.Join(t.TempDir(), "kessa.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	return gitanalyzer.New(reader, embedder, store, meta, nil), meta
}

func sampleCommit(sha, msg string, t time.Time, files ...string) gitanalyzer.Commit {
	return gitanalyzer.Commit{
		SHA:          sha,
		Message:      msg,
		Author:       "ana",
		AuthorEmail:  "ana@example.com",
		Timestamp:    t,
		FilesChanged: files,
		Insertions:   10,
		Deletions:    2,
	}
}

func TestIndexCommits_FullIndexWhenNoPriorState(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	reader := &fakeReader{
		repoRoot: "/repo",
		headSHA:  "sha2",
		commits: []gitanalyzer.Commit{
			sampleCommit("sha2", "fix bug", now, "a.go"),
			sampleCommit("sha1", "add feature", now.Add(-time.Hour), "b.go"),
		},
	}
	a, meta := newTestAnalyzer(t, reader)

	stats, err := a.IndexCommits(ctx, nil, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CommitsIndexed)
	assert.Empty(t, stats.Errors)

	state, err := meta.GetGitIndexState(ctx, "/repo")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "sha2", state.LastIndexedSHA)
	assert.Equal(t, 2, state.CommitCount)
}

func TestIndexCommits_UpToDateSkipsReindex(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	reader := &fakeReader{
		repoRoot: "/repo",
		headSHA:  "sha1",
		commits:  []gitanalyzer.Commit{sampleCommit("sha1", "init", now, "a.go")},
	}
	a, _ := newTestAnalyzer(t, reader)

	_, err := a.IndexCommits(ctx, nil, 0, false)
	require.NoError(t, err)

	stats, err := a.IndexCommits(ctx, nil, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.CommitsIndexed)
}

func TestIndexCommits_IncrementalIndexesOnlyNewCommits(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	reader := &fakeReader{
		repoRoot: "/repo",
		headSHA:  "sha1",
		commits:  []gitanalyzer.Commit{sampleCommit("sha1", "init", now, "a.go")},
	}
	a, _ := newTestAnalyzer(t, reader)

	_, err := a.IndexCommits(ctx, nil, 0, false)
	require.NoError(t, err)

	reader.headSHA = "sha2"
	reader.commits = []gitanalyzer.Commit{
		sampleCommit("sha2", "follow-up", now.Add(time.Hour), "b.go"),
		sampleCommit("sha1", "init", now, "a.go"),
	}

	stats, err := a.IndexCommits(ctx, nil, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CommitsIndexed)
}

func TestSearchCommits_ReturnsIndexedCommit(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	reader := &fakeReader{
		repoRoot: "/repo",
		headSHA:  "sha1",
		commits:  []gitanalyzer.Commit{sampleCommit("sha1", "fix auth bug", now, "auth.go")},
	}
	a, _ := newTestAnalyzer(t, reader)

	_, err := a.IndexCommits(ctx, nil, 0, false)
	require.NoError(t, err)

	results, err := a.SearchCommits(ctx, "fix auth bug", "", nil, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sha1", results[0].Commit.SHA)
}

func TestGetChurnHotspots_FiltersByMinChangesAndSortsDescending(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	reader := &fakeReader{
		repoRoot: "/repo",
		commits: []gitanalyzer.Commit{
			sampleCommit("s1", "m1", now, "hot.go"),
			sampleCommit("s2", "m2", now.Add(-time.Hour), "hot.go"),
			sampleCommit("s3", "m3", now.Add(-2*time.Hour), "hot.go"),
			sampleCommit("s4", "m4", now.Add(-3*time.Hour), "cold.go"),
		},
	}
	a, _ := newTestAnalyzer(t, reader)

	records, err := a.GetChurnHotspots(ctx, 90, 10, 3)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "hot.go", records[0].FilePath)
	assert.Equal(t, 3, records[0].ChangeCount)
}

func TestGetFileAuthors_SortsByCommitCountDescending(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	c1 := sampleCommit("s1", "m1", now, "f.go")
	c1.Author, c1.AuthorEmail = "bob", "bob@example.com"
	c2 := sampleCommit("s2", "m2", now.Add(-time.Hour), "f.go")
	c2.Author, c2.AuthorEmail = "ana", "ana@example.com"
	c3 := sampleCommit("s3", "m3", now.Add(-2*time.Hour), "f.go")
	c3.Author, c3.AuthorEmail = "ana", "ana@example.com"

	reader := &fakeReader{
		repoRoot: "/repo",
		byFile:   map[string][]gitanalyzer.Commit{"f.go": {c1, c2, c3}},
	}
	a, _ := newTestAnalyzer(t, reader)

	stats, err := a.GetFileAuthors(ctx, "f.go")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "ana", stats[0].Author)
	assert.Equal(t, 2, stats[0].CommitCount)
}

func TestGetChangeFrequency_NoHistoryReturnsNil(t *testing.T) {
	ctx := context.Background()
	reader := &fakeReader{repoRoot: "/repo"}
	a, _ := newTestAnalyzer(t, reader)

	record, err := a.GetChangeFrequency(ctx, "missing.go", nil)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestGetChangeFrequency_AggregatesAcrossMatchingCommits(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	reader := &fakeReader{
		repoRoot: "/repo",
		byFile:   map[string][]gitanalyzer.Commit{}, // an empty path reads from commits, not byFile
		commits:  []gitanalyzer.Commit{sampleCommit("s1", "m1", now, "f.go")},
	}
	a, _ := newTestAnalyzer(t, reader)

	record, err := a.GetChangeFrequency(ctx, "", nil)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 1, record.ChangeCount)
}
