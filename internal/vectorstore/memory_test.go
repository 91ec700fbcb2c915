package vectorstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kessa-dev/kessa/internal/vectorstore"
)

func TestCreateCollection_DuplicateFails(t *testing.T) {
	ctx := context.Background()
	s := vectorstore.NewMemoryStore()

	require.NoError(t, s.CreateCollection(ctx, "ghap_full", 4, vectorstore.Cosine))
	err := s.CreateCollection(ctx, "ghap_full", 4, vectorstore.Cosine)
	assert.Error(t, err)
}

func TestUpsertThenGet_RoundTrips(t *testing.T) {
	ctx := context.Background()
	s := vectorstore.NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "memories", 3, vectorstore.Cosine))

	vec := []float32{1, 0, 0}
	payload := vectorstore.Payload{"content": "hello", "category": "fact"}
	require.NoError(t, s.Upsert(ctx, "memories", []vectorstore.Point{{ID: "m1", Vector: vec, Payload: payload}}))

	got, err := s.Get(ctx, "memories", "m1", true)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, vec, got.Vector)
	assert.Equal(t, payload["content"], got.Payload["content"])
}

func TestUpsert_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := vectorstore.NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "memories", 2, vectorstore.Cosine))

	p := vectorstore.Point{ID: "m1", Vector: []float32{1, 1}, Payload: vectorstore.Payload{"v": 1.0}}
	require.NoError(t, s.Upsert(ctx, "memories", []vectorstore.Point{p}))
	require.NoError(t, s.Upsert(ctx, "memories", []vectorstore.Point{p}))

	n, err := s.Count(ctx, "memories", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSearch_ScoresNonIncreasing(t *testing.T) {
	ctx := context.Background()
	s := vectorstore.NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "code", 2, vectorstore.Cosine))

	require.NoError(t, s.Upsert(ctx, "code", []vectorstore.Point{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0.9, 0.1}},
		{ID: "c", Vector: []float32{0, 1}},
	}))

	results, err := s.Search(ctx, "code", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.Equal(t, "a", results[0].ID)
}

func TestSearch_ZeroNormVectorScoresZero(t *testing.T) {
	ctx := context.Background()
	s := vectorstore.NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "code", 2, vectorstore.Cosine))
	require.NoError(t, s.Upsert(ctx, "code", []vectorstore.Point{{ID: "zero", Vector: []float32{0, 0}}}))

	results, err := s.Search(ctx, "code", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, float32(0), results[0].Score)
}

func TestSearch_FilterEquality(t *testing.T) {
	ctx := context.Background()
	s := vectorstore.NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "experiences_full", 2, vectorstore.Cosine))

	require.NoError(t, s.Upsert(ctx, "experiences_full", []vectorstore.Point{
		{ID: "a", Vector: []float32{1, 0}, Payload: vectorstore.Payload{"domain": "debugging"}},
		{ID: "b", Vector: []float32{1, 0}, Payload: vectorstore.Payload{"domain": "testing"}},
	}))

	results, err := s.Search(ctx, "experiences_full", []float32{1, 0}, 10, vectorstore.Filter{"domain": "debugging"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestSearch_FilterRangeOps(t *testing.T) {
	ctx := context.Background()
	s := vectorstore.NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "commits", 2, vectorstore.Cosine))

	require.NoError(t, s.Upsert(ctx, "commits", []vectorstore.Point{
		{ID: "old", Vector: []float32{1, 0}, Payload: vectorstore.Payload{"committed_at": 100.0}},
		{ID: "new", Vector: []float32{1, 0}, Payload: vectorstore.Payload{"committed_at": 200.0}},
	}))

	results, err := s.Search(ctx, "commits", []float32{1, 0}, 10, vectorstore.Filter{"committed_at": &vectorstore.Op{Gte: 150.0}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].ID)
}

func TestDelete_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := vectorstore.NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "memories", 2, vectorstore.Cosine))
	require.NoError(t, s.Upsert(ctx, "memories", []vectorstore.Point{{ID: "m1", Vector: []float32{1, 0}}}))

	require.NoError(t, s.Delete(ctx, "memories", "m1"))
	require.NoError(t, s.Delete(ctx, "memories", "m1"))

	got, err := s.Get(ctx, "memories", "m1", false)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOperationsOnMissingCollection_CollectionNotFound(t *testing.T) {
	ctx := context.Background()
	s := vectorstore.NewMemoryStore()

	_, err := s.Search(ctx, "nope", []float32{1}, 10, nil)
	assert.Error(t, err)
}
