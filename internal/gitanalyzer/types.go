// Package gitanalyzer implements §4.8: thin orchestration over a git
// reader, the vector store, and the metadata store — incremental
// commit indexing, semantic commit search, churn hotspots, author
// statistics, and blame-aware text grep.
package gitanalyzer

import "time"

// Commit is one indexed commit's full detail.
type Commit struct {
	SHA          string
	Message      string
	Author       string
	AuthorEmail  string
	Timestamp    time.Time
	FilesChanged []string
	Insertions   int
	Deletions    int
}

// CommitSearchResult pairs a commit with its search relevance.
type CommitSearchResult struct {
	Commit Commit
	Score  float32
}

// BlameEntry describes authorship for a contiguous range of lines.
type BlameEntry struct {
	SHA         string
	Author      string
	AuthorEmail string
	Timestamp   time.Time
	LineStart   int
	LineEnd     int
	Content     string
}

// ChurnRecord summarizes how often, and by whom, a file changed.
type ChurnRecord struct {
	FilePath        string
	ChangeCount     int
	TotalInsertions int
	TotalDeletions  int
	Authors         []string
	AuthorEmails    []string
	LastChanged     time.Time
}

// AuthorStats summarizes one author's contribution to a file.
type AuthorStats struct {
	Author       string
	AuthorEmail  string
	CommitCount  int
	LinesAdded   int
	LinesRemoved int
	FirstCommit  time.Time
	LastCommit   time.Time
}

// BlameSearchResult is one text-grep hit annotated with its blame.
type BlameSearchResult struct {
	FilePath    string
	LineNumber  int
	Content     string
	SHA         string
	Author      string
	AuthorEmail string
	Timestamp   time.Time
}

// IndexingError records one commit's failure to index.
type IndexingError struct {
	SHA       string
	ErrorType string
	Message   string
}

// IndexingStats reports what an IndexCommits call accomplished.
type IndexingStats struct {
	CommitsIndexed int
	CommitsSkipped int
	Errors         []IndexingError
	DurationMS     int64
}
