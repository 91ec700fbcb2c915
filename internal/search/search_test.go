package search_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kessa-dev/kessa/internal/embedding"
	"github.com/kessa-dev/kessa/internal/model"
	"github.com/kessa-dev/kessa/internal/search"
	"github.com/kessa-dev/kessa/internal/vectorstore"
)

func newTestSearcher(t *testing.T) (*search.Searcher, vectorstore.Store) {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	embedder := embedding.NewHashProvider(8)
	return search.New(embedder, store, "kessa"), store
}

func TestSearchMemories_EmptyQueryReturnsEmpty(t *testing.T) {
	s, _ := newTestSearcher(t)
	results, err := s.SearchMemories(context.Background(), "   ", "", 10, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchMemories_InvalidModeErrors(t *testing.T) {
	s, _ := newTestSearcher(t)
	_, err := s.SearchMemories(context.Background(), "test", "", 10, "invalid_mode")
	assert.Error(t, err)
}

func TestSearchMemories_SemanticMapsResults(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSearcher(t)

	require.NoError(t, store.CreateCollection(ctx, "memories", 8, vectorstore.Cosine))
	embedder := embedding.NewHashProvider(8)
	vec, err := embedder.Embed(ctx, "Use async/await")
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, "memories", []vectorstore.Point{
		{ID: "mem_123", Vector: vec, Payload: vectorstore.Payload{"category": "preference", "content": "Use async/await"}},
	}))

	results, err := s.SearchMemories(ctx, "Use async/await", "", 10, model.ModeSemantic)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mem_123", results[0].ID)
	assert.Equal(t, "preference", results[0].Category)
}

func TestSearchMemories_CollectionNotFound(t *testing.T) {
	s, _ := newTestSearcher(t)
	_, err := s.SearchMemories(context.Background(), "test", "", 10, model.ModeSemantic)
	assert.Error(t, err)
}

func TestSearchExperiences_InvalidAxisErrors(t *testing.T) {
	s, _ := newTestSearcher(t)
	_, err := s.SearchExperiences(context.Background(), "test", search.ExperienceSearchParams{Axis: "bogus"}, 10, "")
	assert.Error(t, err)
}

func TestSearchExperiences_DefaultsToFullAxis(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSearcher(t)
	require.NoError(t, store.CreateCollection(ctx, "kessa_full", 8, vectorstore.Cosine))

	results, err := s.SearchExperiences(ctx, "bug", search.ExperienceSearchParams{}, 10, model.ModeSemantic)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestKeywordSearch_ExactMatchScoresOne(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSearcher(t)

	require.NoError(t, store.CreateCollection(ctx, "memories", 8, vectorstore.Cosine))
	require.NoError(t, store.Upsert(ctx, "memories", []vectorstore.Point{
		{ID: "a", Vector: []float32{1, 0, 0, 0, 0, 0, 0, 0}, Payload: vectorstore.Payload{"content": "hello world"}},
		{ID: "b", Vector: []float32{0, 1, 0, 0, 0, 0, 0, 0}, Payload: vectorstore.Payload{"content": "hello world there"}},
	}))

	results, err := s.SearchMemories(ctx, "hello world", "", 10, model.ModeKeyword)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, float32(1.0), results[0].Score)
}

func TestKeywordSearch_TermHitRatio(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSearcher(t)

	require.NoError(t, store.CreateCollection(ctx, "memories", 4, vectorstore.Cosine))
	require.NoError(t, store.Upsert(ctx, "memories", []vectorstore.Point{
		{ID: "a", Vector: []float32{1, 0, 0, 0}, Payload: vectorstore.Payload{"content": "only one term matches here"}},
	}))

	results, err := s.SearchMemories(ctx, "term missing", "", 10, model.ModeKeyword)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.15, results[0].Score, 0.001)
}

func TestKeywordSearch_NoMatchDropsRow(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSearcher(t)

	require.NoError(t, store.CreateCollection(ctx, "memories", 4, vectorstore.Cosine))
	require.NoError(t, store.Upsert(ctx, "memories", []vectorstore.Point{
		{ID: "a", Vector: []float32{1, 0, 0, 0}, Payload: vectorstore.Payload{"content": "completely unrelated text"}},
	}))

	results, err := s.SearchMemories(ctx, "zzz", "", 10, model.ModeKeyword)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHybridSearch_BoostsOverlappingResults(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSearcher(t)
	embedder := embedding.NewHashProvider(8)

	require.NoError(t, store.CreateCollection(ctx, "memories", 8, vectorstore.Cosine))
	vec, err := embedder.Embed(ctx, "deploy the service")
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, "memories", []vectorstore.Point{
		{ID: "a", Vector: vec, Payload: vectorstore.Payload{"content": "deploy the service"}},
	}))

	semanticOnly, err := s.SearchMemories(ctx, "deploy the service", "", 10, model.ModeSemantic)
	require.NoError(t, err)
	require.Len(t, semanticOnly, 1)

	hybrid, err := s.SearchMemories(ctx, "deploy the service", "", 10, model.ModeHybrid)
	require.NoError(t, err)
	require.Len(t, hybrid, 1)
	assert.GreaterOrEqual(t, hybrid[0].Score, semanticOnly[0].Score)
}

func TestSearchCommits_SinceFilterConvertsToEpoch(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSearcher(t)
	require.NoError(t, store.CreateCollection(ctx, "commits", 8, vectorstore.Cosine))

	since := time.Unix(1000, 0)
	results, err := s.SearchCommits(ctx, "fix bug", search.CommitSearchParams{Author: "alice", Since: &since}, 10, model.ModeSemantic)
	require.NoError(t, err)
	assert.Empty(t, results)
}
