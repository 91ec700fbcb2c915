// Package kessa is the public API for embedding the kessa memory
// substrate as an MCP server.
//
// Callers construct and run it without forking the module:
//
//	app, err := kessa.New(
//	    kessa.WithVersion(version),
//	    kessa.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: kessa (root)
// imports internal/*, but internal/* never imports kessa (root).
package kessa

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kessa-dev/kessa/internal/cluster"
	"github.com/kessa-dev/kessa/internal/config"
	kessacontext "github.com/kessa-dev/kessa/internal/context"
	"github.com/kessa-dev/kessa/internal/embedding"
	"github.com/kessa-dev/kessa/internal/gitanalyzer"
	"github.com/kessa-dev/kessa/internal/journal"
	"github.com/kessa-dev/kessa/internal/mcp"
	"github.com/kessa-dev/kessa/internal/memory"
	"github.com/kessa-dev/kessa/internal/metadata"
	"github.com/kessa-dev/kessa/internal/persist"
	"github.com/kessa-dev/kessa/internal/search"
	"github.com/kessa-dev/kessa/internal/telemetry"
	"github.com/kessa-dev/kessa/internal/vectorstore"
)

// App is the kessa server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	journal      *journal.Collector
	mcpSrv       *mcp.Server
	meta         *metadata.Store
	gitAnalyzer  *gitanalyzer.Analyzer
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises kessa. It loads configuration, wires every
// component (embedding provider, vector store, journal, persister,
// searcher, clusterer/value store, context assembler, memory store),
// and registers the MCP tool surface. It does not start serving — call
// Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.journalDir != "" {
		cfg.JournalDir = o.journalDir
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("kessa starting", "version", version, "journal_dir", cfg.JournalDir, "vector_backend", cfg.VectorBackend)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	if err := os.MkdirAll(cfg.JournalDir, 0o750); err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("journal dir: %w", err)
	}

	journalCollector, err := journal.New(cfg.JournalDir, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("journal: %w", err)
	}

	// Embedding provider — external override takes priority over
	// config-driven auto-detect.
	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = &embeddingProviderAdapter{p: o.embeddingProvider}
	} else {
		embedder = newEmbeddingProvider(cfg, logger)
	}

	store, err := newVectorStore(cfg, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("vectorstore: %w", err)
	}

	persister := persist.New(embedder, store, cfg.CollectionPrefix, logger)
	if err := persister.EnsureCollections(context.Background()); err != nil {
		logger.Warn("persist: ensure collections", "error", err)
	}

	searcher := search.New(embedder, store, cfg.CollectionPrefix)
	clusterer := cluster.New(store, cfg.CollectionPrefix)
	values := cluster.NewValueStore(embedder, store, clusterer, cfg.CollectionPrefix)
	assembler := kessacontext.New(searcher, logger)
	memStore := memory.New(embedder, store)

	mcpSrv := mcp.New(journalCollector, persister, searcher, clusterer, values, assembler, memStore, logger, version)

	metaStore, err := metadata.Open(context.Background(), cfg.MetadataDBPath, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("metadata: %w", err)
	}

	repoPath := o.repoPath
	if repoPath == "" {
		repoPath = "."
	}
	var gitAnalyzer *gitanalyzer.Analyzer
	reader, err := gitanalyzer.NewCLIReader(context.Background(), repoPath)
	if err != nil {
		logger.Warn("git analyzer disabled: not a git repository", "path", repoPath, "error", err)
	} else {
		gitAnalyzer = gitanalyzer.New(reader, embedder, store, metaStore, logger)
	}

	return &App{
		cfg:          cfg,
		journal:      journalCollector,
		mcpSrv:       mcpSrv,
		meta:         metaStore,
		gitAnalyzer:  gitAnalyzer,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// GitAnalyzer returns the commit-indexing/churn/blame component
// (§4.8), or nil if WithRepoPath (or the current working directory,
// by default) does not point at a git repository. GitAnalyzer is
// backing infrastructure, not an MCP tool — callers that want scoped,
// periodic commit indexing drive it directly, typically from
// cmd/kessa's background loop.
func (a *App) GitAnalyzer() *gitanalyzer.Analyzer {
	return a.gitAnalyzer
}

// Run serves the MCP tool surface over stdio, blocking until ctx is
// cancelled or the transport returns. On return, Shutdown is called
// automatically — callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- mcpserver.ServeStdio(a.mcpSrv.MCPServer())
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = a.Shutdown(context.Background())
			return err
		}
	}

	return a.Shutdown(context.Background())
}

// Shutdown closes the metadata store and releases the OTEL provider.
// The journal and vector store need no explicit close: the journal is
// plain files and the memory store holds nothing beyond process
// memory; the Qdrant store closes its gRPC connection lazily via the
// process exiting.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("kessa shutting down")
	if err := a.meta.Close(); err != nil {
		a.logger.Warn("metadata store close failed", "error", err)
	}
	err := a.otelShutdown(ctx)
	a.logger.Info("kessa stopped")
	return err
}

// embeddingProviderAdapter wraps a public EmbeddingProvider as an
// internal/embedding.Provider, keeping the internal package's
// interface out of the public API surface.
type embeddingProviderAdapter struct {
	p EmbeddingProvider
}

func (a *embeddingProviderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.p.Embed(ctx, text)
}

func (a *embeddingProviderAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return a.p.EmbedBatch(ctx, texts)
}

func (a *embeddingProviderAdapter) Dimensions() int {
	return a.p.Dimensions()
}

// newEmbeddingProvider selects an embedding provider from config.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	switch cfg.EmbeddingProvider {
	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, cfg.EmbeddingDims)
	default:
		logger.Info("embedding provider: hash (deterministic, no external calls)")
		return embedding.NewHashProvider(cfg.EmbeddingDims)
	}
}

// newVectorStore selects a vector store backend from config.
func newVectorStore(cfg config.Config, logger *slog.Logger) (vectorstore.Store, error) {
	if cfg.VectorBackend == "qdrant" {
		logger.Info("vector store: qdrant", "url", cfg.QdrantURL)
		return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			URL:    cfg.QdrantURL,
			APIKey: cfg.QdrantAPIKey,
		}, logger)
	}
	logger.Info("vector store: in-memory")
	return vectorstore.NewMemoryStore(), nil
}
