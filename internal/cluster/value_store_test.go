package cluster_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kessa-dev/kessa/internal/cluster"
	"github.com/kessa-dev/kessa/internal/embedding"
	"github.com/kessa-dev/kessa/internal/model"
	"github.com/kessa-dev/kessa/internal/vectorstore"
)

const testPrefix = "ghap"

func seedAxis(t *testing.T, ctx context.Context, store vectorstore.Store, embedder embedding.Provider, axis model.Axis, n int, tier model.ConfidenceTier) {
	t.Helper()
	collection := testPrefix + "_" + string(axis)
	require.NoError(t, store.CreateCollection(ctx, collection, embedder.Dimensions(), vectorstore.Cosine))

	points := make([]vectorstore.Point, 0, n)
	for i := 0; i < n; i++ {
		text := "experience about topic A repeated content filler " + string(rune('a'+i%20))
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		points = append(points, vectorstore.Point{
			ID:     "exp_" + string(rune('a'+i)),
			Vector: vec,
			Payload: vectorstore.Payload{
				"confidence_tier": string(tier),
			},
		})
	}
	require.NoError(t, store.Upsert(ctx, collection, points))
}

func newTestValueStore(t *testing.T) (*cluster.ValueStore, vectorstore.Store, embedding.Provider) {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	embedder := embedding.NewHashProvider(8)
	clusterer := cluster.New(store, testPrefix)
	return cluster.NewValueStore(embedder, store, clusterer, testPrefix), store, embedder
}

func TestGetClusters_InvalidAxis(t *testing.T) {
	vs, _, _ := newTestValueStore(t)
	_, err := vs.GetClusters(context.Background(), model.Axis("domain"))
	assert.Error(t, err)
}

func TestGetClusters_InsufficientData(t *testing.T) {
	ctx := context.Background()
	vs, store, embedder := newTestValueStore(t)
	seedAxis(t, ctx, store, embedder, model.AxisFull, 5, model.TierGold)

	_, err := vs.GetClusters(ctx, model.AxisFull)
	assert.Error(t, err)
}

func TestGetClusterMembers_InvalidClusterIDFormat(t *testing.T) {
	vs, _, _ := newTestValueStore(t)
	_, err := vs.GetClusterMembers(context.Background(), "invalid")
	assert.ErrorContains(t, err, "invalid cluster_id format")
}

func TestGetClusterMembers_InvalidAxisInClusterID(t *testing.T) {
	vs, _, _ := newTestValueStore(t)
	_, err := vs.GetClusterMembers(context.Background(), "invalid_axis_0")
	assert.ErrorContains(t, err, "invalid axis in cluster_id")
}

func TestGetClusterMembers_ClusterNotFound(t *testing.T) {
	ctx := context.Background()
	vs, store, embedder := newTestValueStore(t)
	seedAxis(t, ctx, store, embedder, model.AxisFull, 25, model.TierGold)

	_, err := vs.GetClusterMembers(ctx, "full_999")
	assert.ErrorContains(t, err, "cluster not found")
}

func TestValidateValueCandidate_EmptyClusterRejectsWithReason(t *testing.T) {
	ctx := context.Background()
	vs, store, embedder := newTestValueStore(t)
	_ = seedAxisNoise(t, ctx, store, embedder)

	result, err := vs.ValidateValueCandidate(ctx, "some candidate text", "full_0")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "Cluster has no members", result.Reason)
}

// seedAxisNoise seeds the full-axis collection with 20 points, each
// text one letter repeated, which is enough rows to pass the
// minExperiences precondition of ClusterAxis.
func seedAxisNoise(t *testing.T, ctx context.Context, store vectorstore.Store, embedder embedding.Provider) string {
	t.Helper()
	collection := testPrefix + "_full"
	require.NoError(t, store.CreateCollection(ctx, collection, embedder.Dimensions(), vectorstore.Cosine))

	points := make([]vectorstore.Point, 0, 20)
	for i := 0; i < 20; i++ {
		text := strings.Repeat(string(rune('a'+i)), i+3)
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		points = append(points, vectorstore.Point{
			ID:     "exp_noise_" + string(rune('a'+i)),
			Vector: vec,
			Payload: vectorstore.Payload{"confidence_tier": string(model.TierGold)},
		})
	}
	require.NoError(t, store.Upsert(ctx, collection, points))
	return collection
}

func TestValidateValueCandidate_CloseToCentroidIsValid(t *testing.T) {
	ctx := context.Background()
	vs, store, embedder := newTestValueStore(t)
	seedAxis(t, ctx, store, embedder, model.AxisFull, 25, model.TierGold)

	clusters, err := vs.GetClusters(ctx, model.AxisFull)
	require.NoError(t, err)
	require.NotEmpty(t, clusters)
	clusterID := clusters[0].ClusterID

	members, err := vs.GetClusterMembers(ctx, clusterID)
	require.NoError(t, err)
	require.NotEmpty(t, members)

	result, err := vs.ValidateValueCandidate(ctx, "experience about topic A repeated content filler h", clusterID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.GreaterOrEqual(t, result.Threshold, result.MeanDistance)
}

func TestStoreValue_InvalidCandidateReturnsErrorWithoutUpsert(t *testing.T) {
	ctx := context.Background()
	vs, store, embedder := newTestValueStore(t)
	_ = seedAxisNoise(t, ctx, store, embedder)

	_, err := vs.StoreValue(ctx, "anything", "full_0", model.AxisFull)
	assert.ErrorContains(t, err, "value failed validation")

	values, err := vs.ListValues(ctx, model.AxisFull, 10)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestStoreValue_ValidCandidateFormatsID(t *testing.T) {
	ctx := context.Background()
	vs, store, embedder := newTestValueStore(t)
	seedAxis(t, ctx, store, embedder, model.AxisFull, 25, model.TierGold)

	clusters, err := vs.GetClusters(ctx, model.AxisFull)
	require.NoError(t, err)
	require.NotEmpty(t, clusters)
	clusterID := clusters[0].ClusterID

	value, err := vs.StoreValue(ctx, "experience about topic A repeated content filler h", clusterID, model.AxisFull)
	require.NoError(t, err)

	parts := strings.Split(value.ID, "_")
	require.GreaterOrEqual(t, len(parts), 4)
	assert.Equal(t, "value", parts[0])
	assert.Equal(t, "full", parts[1])
	assert.Len(t, parts[len(parts)-1], 8)
	assert.Equal(t, clusterID, value.ClusterID)
	assert.Equal(t, model.AxisFull, value.Axis)
}

func TestListValues_FiltersByAxisAndSortsByCreatedAtDescending(t *testing.T) {
	ctx := context.Background()
	vs, store, embedder := newTestValueStore(t)
	seedAxis(t, ctx, store, embedder, model.AxisFull, 25, model.TierGold)

	clusters, err := vs.GetClusters(ctx, model.AxisFull)
	require.NoError(t, err)
	clusterID := clusters[0].ClusterID

	_, err = vs.StoreValue(ctx, "experience about topic A repeated content filler h", clusterID, model.AxisFull)
	require.NoError(t, err)

	values, err := vs.ListValues(ctx, model.AxisFull, 10)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, model.AxisFull, values[0].Axis)

	none, err := vs.ListValues(ctx, model.AxisStrategy, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
