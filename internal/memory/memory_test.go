package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kessa-dev/kessa/internal/embedding"
	"github.com/kessa-dev/kessa/internal/memory"
	"github.com/kessa-dev/kessa/internal/model"
	"github.com/kessa-dev/kessa/internal/vectorstore"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	vstore := vectorstore.NewMemoryStore()
	embedder := embedding.NewHashProvider(16)
	s := memory.New(embedder, vstore)
	require.NoError(t, s.EnsureCollection(context.Background()))
	return s
}

func TestStoreMemory_RejectsInvalidCategory(t *testing.T) {
	s := newTestStore(t)
	_, err := s.StoreMemory(context.Background(), "some fact", model.MemoryCategory("bogus"), 0.5, nil)
	assert.Error(t, err)
}

func TestStoreMemory_RejectsOutOfRangeImportance(t *testing.T) {
	s := newTestStore(t)
	_, err := s.StoreMemory(context.Background(), "some fact", model.MemoryFact, 1.5, nil)
	assert.Error(t, err)
}

func TestStoreMemory_RoundTripsThroughList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.StoreMemory(ctx, "prefer async IO", model.MemoryPreference, 0.7, []string{"style"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)

	listed, err := s.ListMemories(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "prefer async IO", listed[0].Content)
	assert.Equal(t, model.MemoryPreference, listed[0].Category)
	assert.Equal(t, []string{"style"}, listed[0].Tags)
}

func TestListMemories_FiltersByCategory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.StoreMemory(ctx, "fact one", model.MemoryFact, 0.9, nil)
	require.NoError(t, err)
	_, err = s.StoreMemory(ctx, "pref one", model.MemoryPreference, 0.3, nil)
	require.NoError(t, err)

	listed, err := s.ListMemories(ctx, model.MemoryFact, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "fact one", listed[0].Content)
}

func TestRetrieveMemories_FiltersByMinImportance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.StoreMemory(ctx, "high importance fact", model.MemoryFact, 0.9, nil)
	require.NoError(t, err)
	_, err = s.StoreMemory(ctx, "low importance fact", model.MemoryFact, 0.2, nil)
	require.NoError(t, err)

	results, err := s.RetrieveMemories(ctx, "importance", "", 0.5, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "high importance fact", results[0].Content)
}

func TestRetrieveMemories_EmptyQueryReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	results, err := s.RetrieveMemories(context.Background(), "", "", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteMemory_RemovesFromListing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.StoreMemory(ctx, "to be deleted", model.MemoryContext, 0.5, nil)
	require.NoError(t, err)

	require.NoError(t, s.DeleteMemory(ctx, m.ID))

	listed, err := s.ListMemories(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, listed)
}
