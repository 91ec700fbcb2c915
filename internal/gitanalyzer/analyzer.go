package gitanalyzer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kessa-dev/kessa/internal/embedding"
	"github.com/kessa-dev/kessa/internal/metadata"
	"github.com/kessa-dev/kessa/internal/vectorstore"
)

const (
	commitsCollection  = "commits"
	fiveYearLookback   = 5 * 365 * 24 * time.Hour
	defaultIndexLimit  = 100000
	embedBatchSize     = 75
	maxEmbeddingFiles  = 500
)

// Analyzer indexes and queries one repository's git history.
type Analyzer struct {
	reader   GitReader
	embedder embedding.Provider
	store    vectorstore.Store
	meta     *metadata.Store
	logger   *slog.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// New constructs an Analyzer.
func New(reader GitReader, embedder embedding.Provider, store vectorstore.Store, meta *metadata.Store, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{reader: reader, embedder: embedder, store: store, meta: meta, logger: logger}
}

func (a *Analyzer) ensureCollection(ctx context.Context) error {
	a.ensureOnce.Do(func() {
		if err := a.store.CreateCollection(ctx, commitsCollection, a.embedder.Dimensions(), vectorstore.Cosine); err != nil {
			a.logger.Debug("commits collection already exists or could not be created", "error", err)
		}
	})
	return a.ensureErr
}

// IndexCommits indexes repo history since the last run, falling back
// to a full 5-year reindex when no prior state exists, the recorded
// SHA has fallen off the reachable history, or force is set.
func (a *Analyzer) IndexCommits(ctx context.Context, since *time.Time, limit int, force bool) (IndexingStats, error) {
	if err := a.ensureCollection(ctx); err != nil {
		return IndexingStats{}, err
	}

	start := time.Now()
	stats := IndexingStats{}
	repoPath := a.reader.GetRepoRoot()

	state, err := a.meta.GetGitIndexState(ctx, repoPath)
	if err != nil {
		return IndexingStats{}, fmt.Errorf("gitanalyzer: load index state: %w", err)
	}

	var commits []Commit
	switch {
	case force || state == nil || state.LastIndexedSHA == "":
		a.logger.Info("full index starting", "repo_path", repoPath, "force", force)
		commits, err = a.commitsToIndex(ctx, since, limit)
		if err != nil {
			return IndexingStats{}, err
		}

	default:
		headSHA, err := a.reader.GetHeadSHA(ctx)
		if err != nil {
			stats.Errors = append(stats.Errors, IndexingError{ErrorType: "head-sha", Message: err.Error()})
			stats.DurationMS = time.Since(start).Milliseconds()
			return stats, nil
		}
		if headSHA == state.LastIndexedSHA {
			a.logger.Info("index already up to date", "repo_path", repoPath)
			stats.DurationMS = time.Since(start).Milliseconds()
			return stats, nil
		}

		all, err := a.reader.GetCommits(ctx, nil, nil, "", 10000)
		if err != nil {
			return IndexingStats{}, fmt.Errorf("gitanalyzer: list commits since head: %w", err)
		}

		found := false
		var fresh []Commit
		for _, c := range all {
			if c.SHA == state.LastIndexedSHA {
				found = true
				break
			}
			fresh = append(fresh, c)
		}

		if !found {
			a.logger.Warn("last indexed sha not found in reachable history, full reindex", "last_sha", state.LastIndexedSHA, "head_sha", headSHA)
			commits, err = a.commitsToIndex(ctx, since, limit)
			if err != nil {
				return IndexingStats{}, err
			}
		} else {
			a.logger.Info("incremental index starting", "repo_path", repoPath, "new_commits", len(fresh))
			commits = fresh
		}
	}

	stats = a.indexCommitBatch(ctx, commits, stats)
	stats.DurationMS = time.Since(start).Milliseconds()
	return stats, nil
}

func (a *Analyzer) commitsToIndex(ctx context.Context, since *time.Time, limit int) ([]Commit, error) {
	floor := time.Now().Add(-fiveYearLookback)
	effectiveSince := floor
	if since != nil && since.After(floor) {
		effectiveSince = *since
	}
	effectiveLimit := defaultIndexLimit
	if limit > 0 {
		effectiveLimit = limit
	}
	return a.reader.GetCommits(ctx, &effectiveSince, nil, "", effectiveLimit)
}

func (a *Analyzer) indexCommitBatch(ctx context.Context, commits []Commit, stats IndexingStats) IndexingStats {
	if len(commits) == 0 {
		return stats
	}

	repoPath := a.reader.GetRepoRoot()

	for i := 0; i < len(commits); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(commits) {
			end = len(commits)
		}
		batch := commits[i:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = buildEmbeddingText(c)
		}

		vectors, err := a.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			a.logger.Warn("batch embed failed, falling back to sequential", "error", err)
			for _, c := range batch {
				vec, err := a.embedder.Embed(ctx, buildEmbeddingText(c))
				if err != nil {
					a.logger.Error("commit index failed", "sha", c.SHA, "error", err)
					stats.Errors = append(stats.Errors, IndexingError{SHA: c.SHA, ErrorType: "embedding", Message: err.Error()})
					continue
				}
				if err := a.upsertCommit(ctx, c, vec, repoPath); err != nil {
					stats.Errors = append(stats.Errors, IndexingError{SHA: c.SHA, ErrorType: "upsert", Message: err.Error()})
					continue
				}
				stats.CommitsIndexed++
			}
			continue
		}

		for j, c := range batch {
			if err := a.upsertCommit(ctx, c, vectors[j], repoPath); err != nil {
				stats.Errors = append(stats.Errors, IndexingError{SHA: c.SHA, ErrorType: "upsert", Message: err.Error()})
				continue
			}
			stats.CommitsIndexed++
		}
	}

	if headSHA, err := a.reader.GetHeadSHA(ctx); err == nil {
		if err := a.meta.AdvanceGitIndexState(ctx, repoPath, headSHA, time.Now(), stats.CommitsIndexed); err != nil {
			a.logger.Error("failed to update index state", "error", err)
		}
	} else {
		a.logger.Error("failed to get head sha for index state", "error", err)
	}

	return stats
}

func (a *Analyzer) upsertCommit(ctx context.Context, c Commit, vec []float32, repoPath string) error {
	now := time.Now().UTC()
	payload := vectorstore.Payload{
		"sha":            c.SHA,
		"message":        c.Message,
		"author":         c.Author,
		"author_email":   c.AuthorEmail,
		"committed_at":   float64(c.Timestamp.Unix()),
		"timestamp_iso":  c.Timestamp.Format(time.RFC3339),
		"files_changed":  c.FilesChanged,
		"file_count":     len(c.FilesChanged),
		"insertions":     c.Insertions,
		"deletions":      c.Deletions,
		"indexed_at":     float64(now.Unix()),
		"indexed_at_iso": now.Format(time.RFC3339),
		"repo_path":      repoPath,
	}
	return a.store.Upsert(ctx, commitsCollection, []vectorstore.Point{{ID: c.SHA, Vector: vec, Payload: payload}})
}

func buildEmbeddingText(c Commit) string {
	filesStr := strings.Join(c.FilesChanged, ", ")
	if len(filesStr) > maxEmbeddingFiles {
		filesStr = filesStr[:maxEmbeddingFiles] + "..."
	}
	return fmt.Sprintf("%s\n\nFiles: %s\n\nAuthor: %s", c.Message, filesStr, c.Author)
}

// SearchCommits runs a semantic search over the indexed commits
// collection, optionally narrowed by author and since-date.
func (a *Analyzer) SearchCommits(ctx context.Context, query, author string, since *time.Time, limit int) ([]CommitSearchResult, error) {
	if err := a.ensureCollection(ctx); err != nil {
		return nil, err
	}

	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("gitanalyzer: embed query: %w", err)
	}

	filter := vectorstore.Filter{}
	if author != "" {
		filter["author"] = author
	}
	if since != nil {
		filter["committed_at"] = &vectorstore.Op{Gte: float64(since.Unix())}
	}

	scored, err := a.store.Search(ctx, commitsCollection, vec, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("gitanalyzer: search commits: %w", err)
	}

	results := make([]CommitSearchResult, 0, len(scored))
	for _, s := range scored {
		results = append(results, CommitSearchResult{Commit: commitFromPayload(s.Payload), Score: s.Score})
	}
	return results, nil
}

func commitFromPayload(p vectorstore.Payload) Commit {
	var files []string
	if raw, ok := p["files_changed"].([]string); ok {
		files = raw
	} else if raw, ok := p["files_changed"].([]any); ok {
		for _, f := range raw {
			if s, ok := f.(string); ok {
				files = append(files, s)
			}
		}
	}

	ts := time.Time{}
	if iso, ok := p["timestamp_iso"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, iso); err == nil {
			ts = parsed
		}
	}

	return Commit{
		SHA:          asStr(p["sha"]),
		Message:      asStr(p["message"]),
		Author:       asStr(p["author"]),
		AuthorEmail:  asStr(p["author_email"]),
		Timestamp:    ts,
		FilesChanged: files,
		Insertions:   asInt(p["insertions"]),
		Deletions:    asInt(p["deletions"]),
	}
}

func asStr(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

// GetChurnHotspots ranks files by change frequency over the trailing
// window, excluding files below minChanges.
func (a *Analyzer) GetChurnHotspots(ctx context.Context, days, limit, minChanges int) ([]ChurnRecord, error) {
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	commits, err := a.reader.GetCommits(ctx, &since, nil, "", defaultIndexLimit)
	if err != nil {
		return nil, fmt.Errorf("gitanalyzer: list commits for churn: %w", err)
	}

	type accum struct {
		changeCount            int
		insertions, deletions  int
		authors, authorEmails  map[string]struct{}
		lastChanged            time.Time
	}
	fileStats := map[string]*accum{}

	for _, c := range commits {
		for _, file := range c.FilesChanged {
			entry, ok := fileStats[file]
			if !ok {
				entry = &accum{authors: map[string]struct{}{}, authorEmails: map[string]struct{}{}, lastChanged: c.Timestamp}
				fileStats[file] = entry
			}
			entry.changeCount++
			entry.insertions += c.Insertions
			entry.deletions += c.Deletions
			entry.authors[c.Author] = struct{}{}
			entry.authorEmails[c.AuthorEmail] = struct{}{}
			if c.Timestamp.After(entry.lastChanged) {
				entry.lastChanged = c.Timestamp
			}
		}
	}

	records := make([]ChurnRecord, 0, len(fileStats))
	for path, e := range fileStats {
		if e.changeCount < minChanges {
			continue
		}
		records = append(records, ChurnRecord{
			FilePath:        path,
			ChangeCount:     e.changeCount,
			TotalInsertions: e.insertions,
			TotalDeletions:  e.deletions,
			Authors:         sortedKeys(e.authors),
			AuthorEmails:    sortedKeys(e.authorEmails),
			LastChanged:     e.lastChanged,
		})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ChangeCount > records[j].ChangeCount })
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GetFileAuthors summarizes each author's contribution to filePath,
// ranked by commit count.
func (a *Analyzer) GetFileAuthors(ctx context.Context, filePath string) ([]AuthorStats, error) {
	commits, err := a.reader.GetFileHistory(ctx, filePath, defaultIndexLimit)
	if err != nil {
		return nil, fmt.Errorf("gitanalyzer: file history for %s: %w", filePath, err)
	}

	type accum struct {
		email                 string
		commitCount           int
		linesAdded, linesLost int
		first, last           time.Time
	}
	byAuthor := map[string]*accum{}

	for _, c := range commits {
		entry, ok := byAuthor[c.Author]
		if !ok {
			entry = &accum{first: c.Timestamp, last: c.Timestamp}
			byAuthor[c.Author] = entry
		}
		entry.commitCount++
		entry.linesAdded += c.Insertions
		entry.linesLost += c.Deletions
		entry.email = c.AuthorEmail
		if c.Timestamp.Before(entry.first) {
			entry.first = c.Timestamp
		}
		if c.Timestamp.After(entry.last) {
			entry.last = c.Timestamp
		}
	}

	stats := make([]AuthorStats, 0, len(byAuthor))
	for author, e := range byAuthor {
		stats = append(stats, AuthorStats{
			Author:       author,
			AuthorEmail:  e.email,
			CommitCount:  e.commitCount,
			LinesAdded:   e.linesAdded,
			LinesRemoved: e.linesLost,
			FirstCommit:  e.first,
			LastCommit:   e.last,
		})
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].CommitCount > stats[j].CommitCount })
	return stats, nil
}

// GetChangeFrequency summarizes how often a path has changed since
// an optional floor date. Returns nil if the path has no history.
func (a *Analyzer) GetChangeFrequency(ctx context.Context, fileOrFunction string, since *time.Time) (*ChurnRecord, error) {
	commits, err := a.reader.GetCommits(ctx, since, nil, fileOrFunction, defaultIndexLimit)
	if err != nil {
		return nil, fmt.Errorf("gitanalyzer: change frequency for %s: %w", fileOrFunction, err)
	}
	if len(commits) == 0 {
		return nil, nil
	}

	authors := map[string]struct{}{}
	emails := map[string]struct{}{}
	var insertions, deletions int
	lastChanged := commits[0].Timestamp

	for _, c := range commits {
		authors[c.Author] = struct{}{}
		emails[c.AuthorEmail] = struct{}{}
		insertions += c.Insertions
		deletions += c.Deletions
		if c.Timestamp.After(lastChanged) {
			lastChanged = c.Timestamp
		}
	}

	return &ChurnRecord{
		FilePath:        fileOrFunction,
		ChangeCount:     len(commits),
		TotalInsertions: insertions,
		TotalDeletions:  deletions,
		Authors:         sortedKeys(authors),
		AuthorEmails:    sortedKeys(emails),
		LastChanged:     lastChanged,
	}, nil
}

// ErrRipgrepUnavailable signals the rg binary could not be invoked.
type ErrRipgrepUnavailable struct{ Cause error }

func (e *ErrRipgrepUnavailable) Error() string {
	return fmt.Sprintf("gitanalyzer: ripgrep (rg) unavailable: %v", e.Cause)
}
func (e *ErrRipgrepUnavailable) Unwrap() error { return e.Cause }

type ripgrepHit struct {
	filePath string
	lineNum  int
}

// BlameSearch greps the working tree for pattern via ripgrep, then
// cross-references each hit against git blame to attribute it.
func (a *Analyzer) BlameSearch(ctx context.Context, pattern, filePattern string, limit int) ([]BlameSearchResult, error) {
	repoRoot := a.reader.GetRepoRoot()

	args := []string{"--line-number", "--no-heading", pattern}
	if filePattern != "" {
		args = append(args, "--glob", filePattern)
	}

	cmd := exec.CommandContext(ctx, "rg", args...)
	cmd.Dir = repoRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &ErrRipgrepUnavailable{Cause: err}
		}
		// rg exits 1 when it finds no matches; anything else is a real failure.
		if exitErr.ExitCode() != 1 {
			return nil, fmt.Errorf("gitanalyzer: ripgrep error (code %d): %s", exitErr.ExitCode(), stderr.String())
		}
	}

	hits := parseRipgrepHits(stdout.String(), limit*2)

	results := make([]BlameSearchResult, 0, limit)
	for _, hit := range hits {
		if len(results) >= limit {
			break
		}

		entries, err := a.reader.GetBlame(ctx, hit.filePath)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			if hit.lineNum < entry.LineStart || hit.lineNum > entry.LineEnd {
				continue
			}
			lines := strings.Split(entry.Content, "\n")
			idx := hit.lineNum - entry.LineStart
			content := ""
			if idx >= 0 && idx < len(lines) {
				content = lines[idx]
			}
			results = append(results, BlameSearchResult{
				FilePath:    hit.filePath,
				LineNumber:  hit.lineNum,
				Content:     content,
				SHA:         entry.SHA,
				Author:      entry.Author,
				AuthorEmail: entry.AuthorEmail,
				Timestamp:   entry.Timestamp,
			})
			break
		}
	}

	return results, nil
}

func parseRipgrepHits(out string, max int) []ripgrepHit {
	var hits []ripgrepHit
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		if len(hits) >= max {
			break
		}
		line := scanner.Text()
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 2 {
			continue
		}
		lineNum, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		hits = append(hits, ripgrepHit{filePath: parts[0], lineNum: lineNum})
	}
	return hits
}
