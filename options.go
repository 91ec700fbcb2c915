package kessa

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger            *slog.Logger
	version           string
	journalDir        string
	repoPath          string
	embeddingProvider EmbeddingProvider
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported to MCP clients at
// initialize time and in logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithJournalDir overrides the journal directory from config
// (KESSA_JOURNAL_DIR).
func WithJournalDir(dir string) Option {
	return func(o *resolvedOptions) { o.journalDir = dir }
}

// WithRepoPath sets the git repository the built-in GitAnalyzer
// indexes. Defaults to the current working directory. If the path is
// not a git repository, the analyzer is disabled and
// App.GitAnalyzer() returns nil rather than failing construction.
func WithRepoPath(path string) Option {
	return func(o *resolvedOptions) { o.repoPath = path }
}

// WithEmbeddingProvider replaces the auto-detected embedding provider
// (hash or Ollama, per KESSA_EMBEDDING_PROVIDER).
func WithEmbeddingProvider(p EmbeddingProvider) Option {
	return func(o *resolvedOptions) { o.embeddingProvider = p }
}
