package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kessa-dev/kessa/internal/cluster"
	kessacontext "github.com/kessa-dev/kessa/internal/context"
	"github.com/kessa-dev/kessa/internal/embedding"
	"github.com/kessa-dev/kessa/internal/journal"
	"github.com/kessa-dev/kessa/internal/memory"
	"github.com/kessa-dev/kessa/internal/persist"
	"github.com/kessa-dev/kessa/internal/search"
	"github.com/kessa-dev/kessa/internal/vectorstore"
)

// newTestServer wires a Server over an in-memory vector store and a
// temp-dir journal, mirroring what kessa.New does for each component
// without the config/telemetry/git-analyzer layers around it.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "journal")
	jc, err := journal.New(dir, nil)
	require.NoError(t, err)

	store := vectorstore.NewMemoryStore()
	embedder := embedding.NewHashProvider(8)

	p := persist.New(embedder, store, "kessa", nil)
	require.NoError(t, p.EnsureCollections(context.Background()))

	searcher := search.New(embedder, store, "kessa")
	clusterer := cluster.New(store, "kessa")
	values := cluster.NewValueStore(embedder, store, clusterer, "kessa")
	assembler := kessacontext.New(searcher, nil)
	memStore := memory.New(embedder, store)
	require.NoError(t, memStore.EnsureCollection(context.Background()))
	// The git analyzer creates the commits collection; it is left out here.
	require.NoError(t, store.CreateCollection(context.Background(), "commits", embedder.Dimensions(), vectorstore.Cosine))

	return New(jc, p, searcher, clusterer, values, assembler, memStore, nil, "test")
}

func toolRequest(args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Arguments: args},
	}
}

func resultText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func decodeResult(t *testing.T, result *mcplib.CallToolResult, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), v))
}

// ---------- GHAP lifecycle ----------

func TestHandleStartGHAP_InvalidDomain(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleStartGHAP(context.Background(), toolRequest(map[string]any{
		"domain":     "not-a-domain",
		"strategy":   "trial-and-error",
		"goal":       "g",
		"hypothesis": "h",
		"action":     "a",
		"prediction": "p",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleStartGHAP_MissingFieldErrors(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleStartGHAP(context.Background(), toolRequest(map[string]any{
		"domain":     "debugging",
		"strategy":   "trial-and-error",
		"goal":       "",
		"hypothesis": "h",
		"action":     "a",
		"prediction": "p",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGHAPLifecycle_HappyPath(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	started, err := s.handleStartGHAP(ctx, toolRequest(map[string]any{
		"domain":     "debugging",
		"strategy":   "systematic-elimination",
		"goal":       "fix the flaky test",
		"hypothesis": "race condition in the worker pool",
		"action":     "add a mutex around the shared counter",
		"prediction": "test passes 100 times in a row",
	}))
	require.NoError(t, err)
	require.False(t, started.IsError, resultText(t, started))

	var startResp struct {
		ID             string `json:"id"`
		IterationCount int    `json:"iteration_count"`
	}
	decodeResult(t, started, &startResp)
	assert.NotEmpty(t, startResp.ID)
	assert.Equal(t, 1, startResp.IterationCount)

	active, err := s.handleGetActiveGHAP(ctx, toolRequest(map[string]any{}))
	require.NoError(t, err)
	require.False(t, active.IsError)
	var activeResp struct {
		ID string `json:"id"`
	}
	decodeResult(t, active, &activeResp)
	assert.Equal(t, startResp.ID, activeResp.ID)

	updated, err := s.handleUpdateGHAP(ctx, toolRequest(map[string]any{
		"hypothesis": "actually it's an unguarded map write",
	}))
	require.NoError(t, err)
	require.False(t, updated.IsError, resultText(t, updated))
	var updatedResp struct {
		IterationCount int `json:"iteration_count"`
	}
	decodeResult(t, updated, &updatedResp)
	assert.Equal(t, 2, updatedResp.IterationCount)

	resolved, err := s.handleResolveGHAP(ctx, toolRequest(map[string]any{
		"status":                 "falsified",
		"result":                 "mutex didn't help, map write was the real cause",
		"surprise":               "assumed the counter was the contended resource",
		"root_cause_category":    "wrong-assumption",
		"root_cause_description": "shared map written from two goroutines without a lock",
		"lesson_what_worked":     "running with -race immediately localized it",
		"lesson_takeaway":        "reach for -race before guessing at the mechanism",
	}))
	require.NoError(t, err)
	require.False(t, resolved.IsError, resultText(t, resolved))

	listed, err := s.handleListGHAPEntries(ctx, toolRequest(map[string]any{}))
	require.NoError(t, err)
	require.False(t, listed.IsError)
	var listResp struct {
		Count int `json:"count"`
	}
	decodeResult(t, listed, &listResp)
	assert.Equal(t, 1, listResp.Count)
}

func TestHandleUpdateGHAP_InvalidStrategy(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.handleStartGHAP(ctx, toolRequest(map[string]any{
		"domain":     "feature",
		"strategy":   "research-first",
		"goal":       "g",
		"hypothesis": "h",
		"action":     "a",
		"prediction": "p",
	}))
	require.NoError(t, err)

	result, err := s.handleUpdateGHAP(ctx, toolRequest(map[string]any{"strategy": "bogus"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleResolveGHAP_InvalidStatus(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleResolveGHAP(context.Background(), toolRequest(map[string]any{
		"status": "maybe",
		"result": "r",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGetActiveGHAP_NoneActive(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleGetActiveGHAP(context.Background(), toolRequest(map[string]any{}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var resp struct {
		Active *string `json:"active"`
	}
	decodeResult(t, result, &resp)
	assert.Nil(t, resp.Active)
}

// ---------- Memory ----------

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	stored, err := s.handleStoreMemory(ctx, toolRequest(map[string]any{
		"content":  "prefers tabs over spaces",
		"category": "preference",
	}))
	require.NoError(t, err)
	require.False(t, stored.IsError, resultText(t, stored))

	var storedResp struct {
		ID string `json:"id"`
	}
	decodeResult(t, stored, &storedResp)
	assert.NotEmpty(t, storedResp.ID)

	listed, err := s.handleListMemories(ctx, toolRequest(map[string]any{}))
	require.NoError(t, err)
	require.False(t, listed.IsError)
	var listResp struct {
		Count int `json:"count"`
	}
	decodeResult(t, listed, &listResp)
	assert.Equal(t, 1, listResp.Count)

	retrieved, err := s.handleRetrieveMemories(ctx, toolRequest(map[string]any{
		"query": "prefers tabs over spaces",
	}))
	require.NoError(t, err)
	require.False(t, retrieved.IsError)
	decodeResult(t, retrieved, &listResp)
	assert.Equal(t, 1, listResp.Count)

	deleted, err := s.handleDeleteMemory(ctx, toolRequest(map[string]any{"id": storedResp.ID}))
	require.NoError(t, err)
	require.False(t, deleted.IsError, resultText(t, deleted))

	listed, err = s.handleListMemories(ctx, toolRequest(map[string]any{}))
	require.NoError(t, err)
	decodeResult(t, listed, &listResp)
	assert.Equal(t, 0, listResp.Count)
}

func TestHandleDeleteMemory_MissingID(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleDeleteMemory(context.Background(), toolRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ---------- Search ----------

func TestHandleSearchMemories_EmptyStore(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleSearchMemories(context.Background(), toolRequest(map[string]any{
		"query": "anything",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	var resp struct {
		Count int `json:"count"`
	}
	decodeResult(t, result, &resp)
	assert.Equal(t, 0, resp.Count)
}

func TestHandleSearchCommits_EmptyStore(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleSearchCommits(context.Background(), toolRequest(map[string]any{
		"query": "fix the bug",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
}

// ---------- Clusters and values ----------

func TestHandleGetClusters_InvalidAxis(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleGetClusters(context.Background(), toolRequest(map[string]any{
		"axis": "not-an-axis",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGetClusters_NoneYet(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleGetClusters(context.Background(), toolRequest(map[string]any{
		"axis": "full",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError, resultText(t, result))
	var resp struct {
		Kind string `json:"kind"`
	}
	decodeResult(t, result, &resp)
	assert.Equal(t, "insufficient-data", resp.Kind)
}

func TestHandleValidateValue_MissingFields(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleValidateValue(context.Background(), toolRequest(map[string]any{
		"text": "only text, no cluster_id",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleStoreValue_MalformedClusterID(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleStoreValue(context.Background(), toolRequest(map[string]any{
		"text":       "ship the smallest thing that works",
		"cluster_id": "garbage",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestAxisFromClusterID(t *testing.T) {
	axis, err := axisFromClusterID("full_3")
	require.NoError(t, err)
	assert.Equal(t, "full", string(axis))

	_, err = axisFromClusterID("nope")
	assert.Error(t, err)

	_, err = axisFromClusterID("full_notanumber")
	assert.Error(t, err)

	_, err = axisFromClusterID("bogus_1")
	assert.Error(t, err)
}

// ---------- Context assembly ----------

func TestHandleAssembleContext_RequiresQuery(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleAssembleContext(context.Background(), toolRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleAssembleContext_EmptyStoresReturnsEmptySources(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleAssembleContext(context.Background(), toolRequest(map[string]any{
		"query": "how did we handle retries before",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
}

func TestHandleGetPremortemContext(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleGetPremortemContext(context.Background(), toolRequest(map[string]any{
		"domain":   "debugging",
		"strategy": "trial-and-error",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
}

// ---------- shared helpers ----------

func TestStringSliceArg(t *testing.T) {
	req := toolRequest(map[string]any{"tags": []any{"a", "b", 3}})
	assert.Equal(t, []string{"a", "b"}, stringSliceArg(req, "tags"))
	assert.Nil(t, stringSliceArg(req, "missing"))
}
