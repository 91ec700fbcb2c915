package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kessa-dev/kessa/internal/errs"
)

type collection struct {
	dim      int
	distance Distance
	points   map[string]Point
	order    []string // insertion order, for stable tie-breaking
}

// MemoryStore is a brute-force, in-process Store implementation. It
// is the reference semantics for Search/Scroll/filter matching and is
// safe for concurrent use; production deployments should use
// QdrantStore instead.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*collection
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*collection)}
}

// CreateCollection creates a new named collection. Fails if it
// already exists.
func (m *MemoryStore) CreateCollection(_ context.Context, name string, dim int, distance Distance) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive", errs.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return fmt.Errorf("%w: collection %q already exists", errs.ErrValidation, name)
	}
	m.collections[name] = &collection{dim: dim, distance: distance, points: make(map[string]Point)}
	return nil
}

// DeleteCollection removes a named collection. Fails if absent.
func (m *MemoryStore) DeleteCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		return fmt.Errorf("%w: collection %q", errs.ErrCollectionNotFound, name)
	}
	delete(m.collections, name)
	return nil
}

func (m *MemoryStore) get(name string) (*collection, error) {
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", errs.ErrCollectionNotFound, name)
	}
	return c, nil
}

// Upsert overwrites-by-id. The vector's length must match the
// collection's configured dimension.
func (m *MemoryStore) Upsert(_ context.Context, collectionName string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(collectionName)
	if err != nil {
		return err
	}
	for _, p := range points {
		if len(p.Vector) != c.dim {
			return fmt.Errorf("%w: vector dim %d does not match collection dim %d", errs.ErrValidation, len(p.Vector), c.dim)
		}
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.points[p.ID] = Point{ID: p.ID, Vector: append([]float32(nil), p.Vector...), Payload: clonePayload(p.Payload)}
	}
	return nil
}

// Search returns the top-limit points by cosine similarity to query,
// after applying filter. Ties break by insertion order.
func (m *MemoryStore) Search(_ context.Context, collectionName string, query []float32, limit int, filter Filter) ([]Scored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(collectionName)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		point Point
		score float32
		seq   int
	}
	var candidates []candidate
	for seq, id := range c.order {
		p, ok := c.points[id]
		if !ok {
			continue
		}
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		candidates = append(candidates, candidate{point: p, score: cosineSimilarity(query, p.Vector), seq: seq})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq < candidates[j].seq
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]Scored, len(candidates))
	for i, cand := range candidates {
		out[i] = Scored{Point: cand.point, Score: cand.score}
	}
	return out, nil
}

// Scroll returns an unordered page of up to limit points matching
// filter. withVectors controls whether vectors are populated.
func (m *MemoryStore) Scroll(_ context.Context, collectionName string, limit int, filter Filter, withVectors bool) ([]Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(collectionName)
	if err != nil {
		return nil, err
	}

	var out []Point
	for _, id := range c.order {
		p, ok := c.points[id]
		if !ok {
			continue
		}
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		if !withVectors {
			p = Point{ID: p.ID, Payload: p.Payload}
		}
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of points matching filter.
func (m *MemoryStore) Count(_ context.Context, collectionName string, filter Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(collectionName)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range c.order {
		p, ok := c.points[id]
		if ok && matchesFilter(p.Payload, filter) {
			n++
		}
	}
	return n, nil
}

// Get returns a single point by id, or nil if absent.
func (m *MemoryStore) Get(_ context.Context, collectionName string, id string, withVector bool) (*Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(collectionName)
	if err != nil {
		return nil, err
	}
	p, ok := c.points[id]
	if !ok {
		return nil, nil
	}
	if !withVector {
		p = Point{ID: p.ID, Payload: p.Payload}
	}
	return &p, nil
}

// Delete removes a point by id. Idempotent.
func (m *MemoryStore) Delete(_ context.Context, collectionName string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(collectionName)
	if err != nil {
		return err
	}
	if _, ok := c.points[id]; !ok {
		return nil
	}
	delete(c.points, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func clonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// cosineSimilarity returns 0 if either vector has zero norm.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func matchesFilter(payload Payload, filter Filter) bool {
	for field, matcher := range filter {
		value, ok := payload[field]
		if !ok {
			return false
		}
		switch m := matcher.(type) {
		case *Op:
			if !matchOp(value, m) {
				return false
			}
		default:
			if !equalValue(value, matcher) {
				return false
			}
		}
	}
	return true
}

func matchOp(value any, op *Op) bool {
	if op.In != nil {
		found := false
		for _, candidate := range op.In {
			if equalValue(value, candidate) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if op.Gte == nil && op.Lte == nil && op.Gt == nil && op.Lt == nil {
		return true
	}

	vf, ok := toFloat(value)
	if !ok {
		return false
	}
	if op.Gte != nil {
		if f, ok := toFloat(op.Gte); ok && vf < f {
			return false
		}
	}
	if op.Lte != nil {
		if f, ok := toFloat(op.Lte); ok && vf > f {
			return false
		}
	}
	if op.Gt != nil {
		if f, ok := toFloat(op.Gt); ok && vf <= f {
			return false
		}
	}
	if op.Lt != nil {
		if f, ok := toFloat(op.Lt); ok && vf >= f {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func equalValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}
