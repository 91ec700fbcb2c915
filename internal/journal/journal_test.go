package journal_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kessa-dev/kessa/internal/errs"
	"github.com/kessa-dev/kessa/internal/journal"
	"github.com/kessa-dev/kessa/internal/model"
)

func writeGarbage(path string) error {
	return os.WriteFile(path, []byte("{not valid json"), 0o644)
}

func newCollector(t *testing.T) *journal.Collector {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "journal")
	c, err := journal.New(dir, nil)
	require.NoError(t, err)
	return c
}

func strPtr(s string) *string { return &s }

// S1 — happy path.
func TestHappyPath(t *testing.T) {
	ctx := context.Background()
	c := newCollector(t)

	entry, err := c.CreateGHAP(ctx, model.DomainDebugging, model.StrategySystematicElimination,
		"fix X", "H1", "A1", "P1")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.IterationCount)
	assert.Empty(t, entry.History)

	updated, err := c.UpdateGHAP(ctx, journal.UpdateParams{Hypothesis: strPtr("H2")})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.IterationCount)
	require.Len(t, updated.History, 1)
	assert.Equal(t, "H1", updated.History[0].Hypothesis)
	assert.Equal(t, "A1", updated.History[0].Action)
	assert.Equal(t, "P1", updated.History[0].Prediction)

	resolved, err := c.ResolveGHAP(ctx, journal.ResolveParams{
		Status: model.OutcomeConfirmed,
		Result: "ok",
	})
	require.NoError(t, err)
	require.NotNil(t, resolved.Outcome)
	require.NotNil(t, resolved.ConfidenceTier)
	assert.Contains(t, []model.ConfidenceTier{model.TierGold, model.TierSilver}, *resolved.ConfidenceTier)

	current, err := c.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)

	entries, err := c.GetSessionEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCreateGHAP_AlreadyActive(t *testing.T) {
	ctx := context.Background()
	c := newCollector(t)

	_, err := c.CreateGHAP(ctx, model.DomainTesting, model.StrategyReadTheError, "g", "h", "a", "p")
	require.NoError(t, err)

	_, err = c.CreateGHAP(ctx, model.DomainTesting, model.StrategyReadTheError, "g2", "h2", "a2", "p2")
	assert.ErrorIs(t, err, errs.ErrAlreadyActive)
}

func TestUpdateGHAP_NoActive(t *testing.T) {
	ctx := context.Background()
	c := newCollector(t)

	_, err := c.UpdateGHAP(ctx, journal.UpdateParams{Hypothesis: strPtr("H")})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestResolveGHAP_NoActive(t *testing.T) {
	ctx := context.Background()
	c := newCollector(t)

	_, err := c.ResolveGHAP(ctx, journal.ResolveParams{Status: model.OutcomeConfirmed, Result: "x"})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

// Invariant 2: iteration_count == 1 + len(history).
func TestIterationCountInvariant(t *testing.T) {
	ctx := context.Background()
	c := newCollector(t)

	entry, err := c.CreateGHAP(ctx, model.DomainFeature, model.StrategyResearchFirst, "g", "h0", "a0", "p0")
	require.NoError(t, err)
	assert.Equal(t, 1+len(entry.History), entry.IterationCount)

	for i := 0; i < 5; i++ {
		entry, err = c.UpdateGHAP(ctx, journal.UpdateParams{Action: strPtr("a-" + string(rune('a'+i)))})
		require.NoError(t, err)
		assert.Equal(t, 1+len(entry.History), entry.IterationCount)
	}
}

// S6 — orphan adoption.
func TestOrphanAdoption(t *testing.T) {
	ctx := context.Background()
	c := newCollector(t)

	s1, err := c.StartSession(ctx)
	require.NoError(t, err)

	entry, err := c.CreateGHAP(ctx, model.DomainDebugging, model.StrategyCheckAssumptions, "g", "h", "a", "p")
	require.NoError(t, err)
	createdAt := entry.CreatedAt

	s2, err := c.StartSession(ctx)
	require.NoError(t, err)
	require.NotEqual(t, s1, s2)

	orphaned, err := c.HasOrphanedEntry(ctx)
	require.NoError(t, err)
	assert.True(t, orphaned)

	got, err := c.GetOrphanedEntry(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s1, got.SessionID)

	adopted, err := c.AdoptOrphan(ctx)
	require.NoError(t, err)
	require.NotNil(t, adopted)
	assert.Equal(t, s2, adopted.SessionID)
	assert.True(t, adopted.CreatedAt.Equal(createdAt))
	assert.Equal(t, entry.Goal, adopted.Goal)
}

func TestAbandonOrphan_ArchivesToOriginalSession(t *testing.T) {
	ctx := context.Background()
	c := newCollector(t)

	s1, err := c.StartSession(ctx)
	require.NoError(t, err)
	_, err = c.CreateGHAP(ctx, model.DomainDebugging, model.StrategyCheckAssumptions, "g", "h", "a", "p")
	require.NoError(t, err)

	_, err = c.StartSession(ctx)
	require.NoError(t, err)

	abandoned, err := c.AbandonOrphan(ctx, "stale")
	require.NoError(t, err)
	require.NotNil(t, abandoned)
	assert.Equal(t, s1, abandoned.SessionID)
	require.NotNil(t, abandoned.ConfidenceTier)
	assert.Equal(t, model.TierAbandoned, *abandoned.ConfidenceTier)

	current, err := c.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestToolCheckIn(t *testing.T) {
	ctx := context.Background()
	c := newCollector(t)

	_, err := c.CreateGHAP(ctx, model.DomainTesting, model.StrategyTrialAndError, "g", "h", "a", "p")
	require.NoError(t, err)

	shouldCheckIn, err := c.ShouldCheckIn(ctx, 3)
	require.NoError(t, err)
	assert.False(t, shouldCheckIn)

	for i := 0; i < 3; i++ {
		_, err := c.IncrementToolCount(ctx)
		require.NoError(t, err)
	}

	shouldCheckIn, err = c.ShouldCheckIn(ctx, 3)
	require.NoError(t, err)
	assert.True(t, shouldCheckIn)

	require.NoError(t, c.ResetToolCount(ctx))
	shouldCheckIn, err = c.ShouldCheckIn(ctx, 3)
	require.NoError(t, err)
	assert.False(t, shouldCheckIn)
}

func TestTruncation(t *testing.T) {
	ctx := context.Background()
	c := newCollector(t)

	longText := make([]byte, 10500)
	for i := range longText {
		longText[i] = 'x'
	}

	entry, err := c.CreateGHAP(ctx, model.DomainFeature, model.StrategyResearchFirst, string(longText), "h", "a", "p")
	require.NoError(t, err)
	assert.Len(t, entry.Goal, 10000)
}

func TestCorruptedJournalIsQuarantined(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "journal")
	c, err := journal.New(dir, nil)
	require.NoError(t, err)

	_, err = c.CreateGHAP(ctx, model.DomainTesting, model.StrategyReadTheError, "g", "h", "a", "p")
	require.NoError(t, err)

	require.NoError(t, writeGarbage(filepath.Join(dir, "current_ghap.json")))

	current, err := c.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)

	matches, err := filepath.Glob(filepath.Join(dir, "current_ghap.corrupted.*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
