// Package cluster implements density-based clustering over a vector
// store axis (§4.6) and the ValueStore that validates and persists
// generalized principles distilled from clusters.
package cluster

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kessa-dev/kessa/internal/errs"
	"github.com/kessa-dev/kessa/internal/model"
	"github.com/kessa-dev/kessa/internal/vectorstore"
)

// NoiseLabel is the label assigned to points that don't belong to any
// dense region.
const NoiseLabel = -1

const (
	minClusterSize = 5
	minSamples     = 3
	minExperiences = 20
)

// ClusterInfo describes one density cluster found along an axis.
type ClusterInfo struct {
	ClusterID string
	Axis      model.Axis
	Label     int
	Centroid  []float32
	MemberIDs []string
	Size      int
	AvgWeight float64
}

// Clusterer runs density clustering over one {prefix}_{axis}
// collection at a time.
type Clusterer struct {
	store            vectorstore.Store
	collectionPrefix string
}

// New constructs a Clusterer. collectionPrefix is typically "ghap",
// matching the Persister's axis collections.
func New(store vectorstore.Store, collectionPrefix string) *Clusterer {
	return &Clusterer{store: store, collectionPrefix: collectionPrefix}
}

func (c *Clusterer) collectionName(axis model.Axis) string {
	return fmt.Sprintf("%s_%s", c.collectionPrefix, axis)
}

// ClusterAxis clusters every point in the given axis's collection,
// requiring at least minExperiences points.
func (c *Clusterer) ClusterAxis(ctx context.Context, axis model.Axis) ([]ClusterInfo, error) {
	if !axis.Valid() {
		return nil, fmt.Errorf("%w: invalid axis %q", errs.ErrValidation, axis)
	}

	points, err := c.store.Scroll(ctx, c.collectionName(axis), minExperiences*50, nil, true)
	if err != nil {
		return nil, fmt.Errorf("%w: scroll axis %s: %v", errs.ErrInternal, axis, err)
	}
	if len(points) < minExperiences {
		return nil, fmt.Errorf("%w: axis %s has %d experiences, need at least %d", errs.ErrInsufficientData, axis, len(points), minExperiences)
	}

	labels := dbscan(points, minSamples)

	byLabel := map[int][]int{}
	for i, label := range labels {
		if label == NoiseLabel {
			continue
		}
		byLabel[label] = append(byLabel[label], i)
	}

	var clusters []ClusterInfo
	for label, idxs := range byLabel {
		if len(idxs) < minClusterSize {
			continue
		}
		centroid := centroidOf(points, idxs)
		memberIDs := make([]string, len(idxs))
		weightSum := 0.0
		for i, idx := range idxs {
			memberIDs[i] = points[idx].ID
			weightSum += confidenceWeight(points[idx].Payload)
		}
		clusters = append(clusters, ClusterInfo{
			ClusterID: fmt.Sprintf("%s_%d", axis, label),
			Axis:      axis,
			Label:     label,
			Centroid:  centroid,
			MemberIDs: memberIDs,
			Size:      len(idxs),
			AvgWeight: weightSum / float64(len(idxs)),
		})
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Size > clusters[j].Size })
	return clusters, nil
}

func confidenceWeight(payload vectorstore.Payload) float64 {
	tierStr, _ := payload["confidence_tier"].(string)
	return model.ConfidenceTier(tierStr).Weight()
}

func centroidOf(points []vectorstore.Point, idxs []int) []float32 {
	if len(idxs) == 0 {
		return nil
	}
	dim := len(points[idxs[0]].Vector)
	sum := make([]float64, dim)
	for _, idx := range idxs {
		for d, v := range points[idx].Vector {
			sum[d] += float64(v)
		}
	}
	centroid := make([]float32, dim)
	for d := range sum {
		centroid[d] = float32(sum[d] / float64(len(idxs)))
	}
	return centroid
}

// cosineDistance is 1 - cosine similarity, in [0, 2].
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1.0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - sim
}

// dbscan runs DBSCAN-class density clustering with a fixed epsilon
// derived from the point cloud and the given minSamples, over cosine
// distance. Returns a label per point (index-aligned with points);
// NoiseLabel for points not assigned to any dense region.
func dbscan(points []vectorstore.Point, minPts int) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = NoiseLabel
	}

	eps := estimateEpsilon(points, minPts)

	visited := make([]bool, n)
	nextLabel := 0

	var regionQuery func(i int) []int
	regionQuery = func(i int) []int {
		var neighbors []int
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if cosineDistance(points[i].Vector, points[j].Vector) <= eps {
				neighbors = append(neighbors, j)
			}
		}
		return neighbors
	}

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := regionQuery(i)
		if len(neighbors) < minPts-1 {
			continue
		}

		label := nextLabel
		nextLabel++
		labels[i] = label

		seeds := append([]int{}, neighbors...)
		for k := 0; k < len(seeds); k++ {
			j := seeds[k]
			if !visited[j] {
				visited[j] = true
				jNeighbors := regionQuery(j)
				if len(jNeighbors) >= minPts-1 {
					seeds = append(seeds, jNeighbors...)
				}
			}
			if labels[j] == NoiseLabel {
				labels[j] = label
			}
		}
	}

	return labels
}

// estimateEpsilon derives a neighborhood radius as the median
// distance from each point to its minPts-th nearest neighbor — the
// standard k-distance heuristic for choosing DBSCAN's epsilon without
// requiring the caller to tune it per axis.
func estimateEpsilon(points []vectorstore.Point, minPts int) float64 {
	n := len(points)
	if n <= minPts {
		return 1.0
	}

	kDistances := make([]float64, n)
	for i := 0; i < n; i++ {
		dists := make([]float64, 0, n-1)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			dists = append(dists, cosineDistance(points[i].Vector, points[j].Vector))
		}
		sort.Float64s(dists)
		k := minPts - 1
		if k >= len(dists) {
			k = len(dists) - 1
		}
		kDistances[i] = dists[k]
	}

	sort.Float64s(kDistances)
	return kDistances[len(kDistances)/2]
}
