package cluster

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kessa-dev/kessa/internal/embedding"
	"github.com/kessa-dev/kessa/internal/errs"
	"github.com/kessa-dev/kessa/internal/model"
	"github.com/kessa-dev/kessa/internal/vectorstore"
)

const valuesCollection = "values"

// ClusterMember is one experience belonging to a cluster, with its
// stored vector and confidence weight.
type ClusterMember struct {
	ID        string
	Embedding []float32
	Weight    float64
}

// Validation carries the distance statistics behind an accept/reject
// decision for a candidate value.
type Validation struct {
	Valid             bool
	CandidateDistance float64
	MeanDistance      float64
	StdDistance       float64
	Threshold         float64
	Similarity        float64
	Reason            string
}

// ValueStore validates candidate values against their source cluster
// and persists accepted ones into the values collection.
type ValueStore struct {
	embedder         embedding.Provider
	store            vectorstore.Store
	clusterer        *Clusterer
	collectionPrefix string
}

// NewValueStore constructs a ValueStore and creates the values
// collection; an error from that creation (such as the collection
// already existing) is ignored.
func NewValueStore(embedder embedding.Provider, store vectorstore.Store, clusterer *Clusterer, collectionPrefix string) *ValueStore {
	_ = store.CreateCollection(context.Background(), valuesCollection, embedder.Dimensions(), vectorstore.Cosine)
	return &ValueStore{embedder: embedder, store: store, clusterer: clusterer, collectionPrefix: collectionPrefix}
}

// GetClusters returns every cluster found on axis, sorted by size
// descending.
func (v *ValueStore) GetClusters(ctx context.Context, axis model.Axis) ([]ClusterInfo, error) {
	if !axis.Valid() {
		return nil, fmt.Errorf("%w: invalid axis %q", errs.ErrValidation, axis)
	}
	return v.clusterer.ClusterAxis(ctx, axis)
}

// parseClusterID splits a "{axis}_{label}" cluster id.
func parseClusterID(clusterID string) (model.Axis, int, error) {
	idx := strings.LastIndex(clusterID, "_")
	if idx < 0 {
		return "", 0, fmt.Errorf("%w: invalid cluster_id format %q", errs.ErrValidation, clusterID)
	}
	axis := model.Axis(clusterID[:idx])
	if !axis.Valid() {
		return "", 0, fmt.Errorf("%w: invalid axis in cluster_id %q", errs.ErrValidation, clusterID)
	}
	label, err := strconv.Atoi(clusterID[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("%w: invalid cluster_id format %q", errs.ErrValidation, clusterID)
	}
	return axis, label, nil
}

func (v *ValueStore) getCluster(ctx context.Context, clusterID string) (*ClusterInfo, error) {
	axis, label, err := parseClusterID(clusterID)
	if err != nil {
		return nil, err
	}

	clusters, err := v.clusterer.ClusterAxis(ctx, axis)
	if err != nil {
		return nil, err
	}
	for _, c := range clusters {
		if c.Label == label {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: cluster not found %q", errs.ErrNotFound, clusterID)
}

// GetClusterMembers fetches the full payload+vector for every member
// of clusterID.
func (v *ValueStore) GetClusterMembers(ctx context.Context, clusterID string) ([]ClusterMember, error) {
	cluster, err := v.getCluster(ctx, clusterID)
	if err != nil {
		return nil, err
	}

	collection := fmt.Sprintf("%s_%s", v.collectionPrefix, cluster.Axis)
	members := make([]ClusterMember, 0, len(cluster.MemberIDs))
	for _, id := range cluster.MemberIDs {
		pt, err := v.store.Get(ctx, collection, id, true)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch cluster member %s: %v", errs.ErrInternal, id, err)
		}
		if pt == nil {
			continue
		}
		members = append(members, ClusterMember{
			ID:        pt.ID,
			Embedding: pt.Vector,
			Weight:    confidenceWeight(pt.Payload),
		})
	}
	return members, nil
}

// ValidateValueCandidate embeds text and checks it against clusterID's
// member distribution: accept iff the candidate's cosine distance to
// the centroid is within mean + 0.5*std of the member distances.
func (v *ValueStore) ValidateValueCandidate(ctx context.Context, text, clusterID string) (*Validation, error) {
	cluster, err := v.getCluster(ctx, clusterID)
	if err != nil {
		return nil, err
	}

	members, err := v.GetClusterMembers(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return &Validation{Valid: false, Reason: "Cluster has no members"}, nil
	}

	candidateVec, err := v.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrEmbeddingFailure, err)
	}

	distances := make([]float64, len(members))
	for i, m := range members {
		distances[i] = cosineDistance(m.Embedding, cluster.Centroid)
	}
	mean, std := meanStd(distances)
	threshold := mean + 0.5*std

	candidateDistance := cosineDistance(candidateVec, cluster.Centroid)
	similarity := 1 - candidateDistance

	result := &Validation{
		CandidateDistance: candidateDistance,
		MeanDistance:      mean,
		StdDistance:        std,
		Threshold:          threshold,
		Similarity:         similarity,
	}
	if candidateDistance <= threshold {
		result.Valid = true
	} else {
		result.Valid = false
		result.Reason = "Value too far from centroid of its cluster"
	}
	return result, nil
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	std = math.Sqrt(variance)
	return mean, std
}

// StoreValue validates text against clusterID, then on acceptance
// embeds once and upserts it into the values collection.
func (v *ValueStore) StoreValue(ctx context.Context, text, clusterID string, axis model.Axis) (*model.Value, error) {
	validation, err := v.ValidateValueCandidate(ctx, text, clusterID)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, fmt.Errorf("%w: value failed validation: %s", errs.ErrValidation, validation.Reason)
	}

	cluster, err := v.getCluster(ctx, clusterID)
	if err != nil {
		return nil, err
	}

	vec, err := v.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrEmbeddingFailure, err)
	}

	now := time.Now().UTC()
	id := fmt.Sprintf("value_%s_%d_%s", axis, cluster.Label, randHex8())

	value := &model.Value{
		ID:           id,
		Text:         text,
		ClusterID:    clusterID,
		Axis:         axis,
		ClusterLabel: cluster.Label,
		ClusterSize:  cluster.Size,
		CreatedAt:    now,
		Validation: model.ValidationResult{
			Accepted:          validation.Valid,
			CandidateDistance: validation.CandidateDistance,
			MeanDistance:      validation.MeanDistance,
			StdDistance:       validation.StdDistance,
			Threshold:         validation.Threshold,
			Similarity:        validation.Similarity,
		},
	}

	payload := vectorstore.Payload{
		"text":          value.Text,
		"cluster_id":    value.ClusterID,
		"axis":          string(value.Axis),
		"cluster_label": value.ClusterLabel,
		"cluster_size":  value.ClusterSize,
		"created_at":    value.CreatedAt.Format(time.RFC3339),
		"validation": map[string]any{
			"candidate_distance": validation.CandidateDistance,
			"mean_distance":      validation.MeanDistance,
			"std_distance":       validation.StdDistance,
			"threshold":          validation.Threshold,
			"similarity":         validation.Similarity,
		},
	}

	if err := v.store.Upsert(ctx, valuesCollection, []vectorstore.Point{{ID: id, Vector: vec, Payload: payload}}); err != nil {
		return nil, fmt.Errorf("%w: upsert value: %v", errs.ErrInternal, err)
	}

	return value, nil
}

// ListValues scrolls the values collection, optionally filtered by
// axis, sorted by created_at descending.
func (v *ValueStore) ListValues(ctx context.Context, axis model.Axis, limit int) ([]*model.Value, error) {
	var filter vectorstore.Filter
	if axis != "" {
		if !axis.Valid() {
			return nil, fmt.Errorf("%w: invalid axis %q", errs.ErrValidation, axis)
		}
		filter = vectorstore.Filter{"axis": string(axis)}
	}

	points, err := v.store.Scroll(ctx, valuesCollection, limit, filter, false)
	if err != nil {
		return nil, fmt.Errorf("%w: scroll values: %v", errs.ErrInternal, err)
	}

	values := make([]*model.Value, 0, len(points))
	for _, p := range points {
		values = append(values, valueFromPayload(p))
	}

	sort.Slice(values, func(i, j int) bool { return values[i].CreatedAt.After(values[j].CreatedAt) })
	if limit > 0 && len(values) > limit {
		values = values[:limit]
	}
	return values, nil
}

func valueFromPayload(p vectorstore.Point) *model.Value {
	text, _ := p.Payload["text"].(string)
	clusterID, _ := p.Payload["cluster_id"].(string)
	axis, _ := p.Payload["axis"].(string)
	createdAtStr, _ := p.Payload["created_at"].(string)
	createdAt, _ := time.Parse(time.RFC3339, createdAtStr)

	var clusterSize int
	switch cs := p.Payload["cluster_size"].(type) {
	case int:
		clusterSize = cs
	case float64:
		clusterSize = int(cs)
	}

	return &model.Value{
		ID:          p.ID,
		Text:        text,
		ClusterID:   clusterID,
		Axis:        model.Axis(axis),
		ClusterSize: clusterSize,
		CreatedAt:   createdAt,
	}
}

func randHex8() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%08x", time.Now().UnixNano())[:8]
	}
	return hex.EncodeToString(b)
}
