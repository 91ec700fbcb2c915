// Package mcp exposes kessa's components over the Model Context
// Protocol (§6): GHAP lifecycle, memory, search, cluster/value, and
// context-assembly tools for an agent host to call directly.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kessa-dev/kessa/internal/cluster"
	kessacontext "github.com/kessa-dev/kessa/internal/context"
	"github.com/kessa-dev/kessa/internal/errs"
	"github.com/kessa-dev/kessa/internal/journal"
	"github.com/kessa-dev/kessa/internal/memory"
	"github.com/kessa-dev/kessa/internal/model"
	"github.com/kessa-dev/kessa/internal/persist"
	"github.com/kessa-dev/kessa/internal/search"
)

// serverInstructions is sent to every MCP client at initialize time,
// so an agent host picks up the GHAP discipline without per-project
// configuration.
const serverInstructions = `You have access to kessa, a working-memory substrate for agents.

WORKFLOW for non-trivial work:

1. BEFORE acting on a hypothesis: call start_ghap with the domain, strategy,
   goal, your hypothesis, the action you're about to take, and your
   prediction of the result.
2. AS your understanding changes: call update_ghap with whatever changed
   (hypothesis/action/prediction/strategy/note). Changing H/A/P starts a new
   iteration; strategy and note updates do not.
3. WHEN the action concludes: call resolve_ghap with the outcome status
   (confirmed/falsified/abandoned), the result, and — if the prediction was
   wrong — the surprise, root_cause, and lesson. This is what makes the
   experience searchable later.

Use store_memory for durable facts, preferences, and context outside the
GHAP flow. Use search_* and assemble_context to pull relevant prior
experience, code, commits, and distilled values before starting new work.
Use get_premortem_context before attempting a strategy in a domain that has
failed before.`

// Server wraps kessa's components as MCP tools.
type Server struct {
	mcpServer  *mcpserver.MCPServer
	journal    *journal.Collector
	persister  *persist.Persister
	searcher   *search.Searcher
	clusterer  *cluster.Clusterer
	values     *cluster.ValueStore
	assembler  *kessacontext.Assembler
	memStore   *memory.Store
	logger     *slog.Logger
}

// New constructs a Server wired to kessa's components and registers
// every §6 tool.
func New(
	journalCollector *journal.Collector,
	persister *persist.Persister,
	searcher *search.Searcher,
	clusterer *cluster.Clusterer,
	values *cluster.ValueStore,
	assembler *kessacontext.Assembler,
	memStore *memory.Store,
	logger *slog.Logger,
	version string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		journal:   journalCollector,
		persister: persister,
		searcher:  searcher,
		clusterer: clusterer,
		values:    values,
		assembler: assembler,
		memStore:  memStore,
		logger:    logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kessa",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// errorResult renders err as a size-bounded ({"error", "kind"}) tool
// result, per §6's ≤500-byte error-response contract.
func errorResult(err error) *mcplib.CallToolResult {
	msg := truncate(err.Error(), 400)
	body := map[string]string{"error": msg, "kind": errs.Kind(err)}
	data, _ := json.Marshal(body)
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: string(data)}},
		IsError: true,
	}
}

func errorResultMsg(msg string) *mcplib.CallToolResult {
	body := map[string]string{"error": truncate(msg, 400), "kind": "validation"}
	data, _ := json.Marshal(body)
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: string(data)}},
		IsError: true,
	}
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResultMsg("failed to encode response"), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: string(data)}},
	}, nil
}

// persistRetries is how many times resolve_ghap retries vector-store
// persistence before surfacing a typed error, per §7: "Persistence
// failures on resolve are retried internally up to 3 times; after
// exhaustion the entry remains sealed in the local journal and a
// typed error is surfaced to the caller."
const persistRetries = 3

// persistBaseDelay is the initial backoff between retries; it doubles
// after each failed attempt (1s, 2s, 4s).
const persistBaseDelay = time.Second

func (s *Server) persistResolved(ctx context.Context, entry *model.GHAPEntry) error {
	var lastErr error
	delay := persistBaseDelay
	for i := 0; i <= persistRetries; i++ {
		if lastErr = s.persister.Persist(ctx, entry); lastErr == nil {
			return nil
		}
		if i == persistRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
