package persist_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kessa-dev/kessa/internal/embedding"
	"github.com/kessa-dev/kessa/internal/model"
	"github.com/kessa-dev/kessa/internal/persist"
	"github.com/kessa-dev/kessa/internal/vectorstore"
)

func tierPtr(t model.ConfidenceTier) *model.ConfidenceTier { return &t }

func confirmedEntry() *model.GHAPEntry {
	return &model.GHAPEntry{
		ID:             "ghap_20251204_120000_abc123",
		SessionID:      "session_20251204_120000_xyz789",
		CreatedAt:      time.Date(2025, 12, 4, 12, 0, 0, 0, time.UTC),
		Domain:         model.DomainDebugging,
		Strategy:       model.StrategySystematicElimination,
		Goal:           "Fix failing test",
		Hypothesis:     "The test is failing due to incorrect mock setup",
		Action:         "Update mock configuration",
		Prediction:     "Test will pass after mock update",
		IterationCount: 2,
		Outcome: &model.Outcome{
			Status:       model.OutcomeConfirmed,
			Result:       "Test passed after mock update",
			CapturedAt:   time.Date(2025, 12, 4, 12, 5, 0, 0, time.UTC),
			AutoCaptured: true,
		},
		Lesson: &model.Lesson{
			WhatWorked: "Systematic mock verification",
			Takeaway:   "Always verify mock return values",
		},
		ConfidenceTier: tierPtr(model.TierGold),
	}
}

func falsifiedEntry() *model.GHAPEntry {
	return &model.GHAPEntry{
		ID:             "ghap_20251204_130000_def456",
		SessionID:      "session_20251204_130000_xyz789",
		CreatedAt:      time.Date(2025, 12, 4, 13, 0, 0, 0, time.UTC),
		Domain:         model.DomainDebugging,
		Strategy:       model.StrategyRootCauseAnalysis,
		Goal:           "Fix database connection error",
		Hypothesis:     "Database is rejecting connections due to max connections reached",
		Action:         "Check database connection pool settings",
		Prediction:     "Will see max_connections exceeded in logs",
		IterationCount: 1,
		Outcome: &model.Outcome{
			Status:     model.OutcomeFalsified,
			Result:     "Connection pool has plenty of capacity, error is authentication",
			CapturedAt: time.Date(2025, 12, 4, 13, 10, 0, 0, time.UTC),
		},
		Surprise: "Expected connection pool exhaustion but found auth failure",
		RootCause: &model.RootCause{
			Category:    model.RootCauseWrongAssumption,
			Description: "Assumed connection error was capacity-related, but was actually credentials issue",
		},
		Lesson: &model.Lesson{
			WhatWorked: "Checking actual error logs instead of assuming",
		},
		ConfidenceTier: tierPtr(model.TierSilver),
	}
}

func newTestPersister() (*persist.Persister, vectorstore.Store) {
	store := vectorstore.NewMemoryStore()
	embedder := embedding.NewHashProvider(8)
	return persist.New(embedder, store, "ghap", nil), store
}

func TestPersist_ConfirmedEntry_TwoAxes(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPersister()
	require.NoError(t, p.EnsureCollections(ctx))

	require.NoError(t, p.Persist(ctx, confirmedEntry()))

	full, err := store.Count(ctx, "ghap_full", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, full)

	strategy, err := store.Count(ctx, "ghap_strategy", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, strategy)

	surprise, err := store.Count(ctx, "ghap_surprise", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, surprise)
}

func TestPersist_FalsifiedEntryWithSurprise_AllFourAxes(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPersister()
	require.NoError(t, p.EnsureCollections(ctx))

	require.NoError(t, p.Persist(ctx, falsifiedEntry()))

	for _, coll := range []string{"ghap_full", "ghap_strategy", "ghap_surprise", "ghap_root_cause"} {
		n, err := store.Count(ctx, coll, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "collection %s", coll)
	}

	pt, err := store.Get(ctx, "ghap_surprise", "surprise_ghap_20251204_130000_def456", false)
	require.NoError(t, err)
	require.NotNil(t, pt)
	assert.Equal(t, "wrong-assumption", pt.Payload["root_cause_category"])
}

func TestPersistBatch_SumsAcrossEntries(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPersister()
	require.NoError(t, p.EnsureCollections(ctx))

	require.NoError(t, p.PersistBatch(ctx, []*model.GHAPEntry{confirmedEntry(), falsifiedEntry()}))

	full, err := store.Count(ctx, "ghap_full", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, full)
}

func TestPersist_WithoutOutcome_Errors(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPersister()

	entry := confirmedEntry()
	entry.Outcome = nil

	err := p.Persist(ctx, entry)
	assert.Error(t, err)
}

func TestPersistBatch_ValidatesAllEntriesUpfront(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPersister()
	require.NoError(t, p.EnsureCollections(ctx))

	invalid := confirmedEntry()
	invalid.ID = "ghap_invalid"
	invalid.Outcome = nil

	err := p.PersistBatch(ctx, []*model.GHAPEntry{confirmedEntry(), invalid})
	assert.Error(t, err)

	full, err := store.Count(ctx, "ghap_full", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, full, "batch should reject before persisting anything")
}

func TestEnsureCollections_CreatesAllFour(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPersister()

	require.NoError(t, p.EnsureCollections(ctx))

	for _, coll := range []string{"ghap_full", "ghap_strategy", "ghap_surprise", "ghap_root_cause"} {
		_, err := store.Count(ctx, coll, nil)
		assert.NoError(t, err, "collection %s should exist", coll)
	}
}

func TestEnsureCollections_Idempotent(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPersister()

	require.NoError(t, p.EnsureCollections(ctx))
	require.NoError(t, p.EnsureCollections(ctx))
}

func TestDetermineAxes_FalsifiedWithoutSurpriseSkipsSurpriseAndRootCause(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPersister()
	require.NoError(t, p.EnsureCollections(ctx))

	entry := confirmedEntry()
	entry.ID = "ghap_no_surprise"
	entry.Outcome.Status = model.OutcomeFalsified

	require.NoError(t, p.Persist(ctx, entry))

	surprise, err := store.Count(ctx, "ghap_surprise", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, surprise)
}

func TestDetermineAxes_RootCauseWithoutSurpriseIsSkipped(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPersister()
	require.NoError(t, p.EnsureCollections(ctx))

	entry := confirmedEntry()
	entry.ID = "ghap_root_cause_no_surprise"
	entry.Surprise = ""
	entry.RootCause = &model.RootCause{Category: model.RootCauseOther, Description: "test"}

	require.NoError(t, p.Persist(ctx, entry))

	rootCause, err := store.Count(ctx, "ghap_root_cause", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, rootCause)
}
