// Package vectorstore defines the VectorStore abstraction (§4.3) and
// its two bindings: an in-memory reference implementation used for
// tests and default local operation, and a production binding over
// Qdrant.
package vectorstore

import "context"

// Distance is a similarity metric. Only Cosine is supported by this
// core.
type Distance string

// Cosine is the only supported distance metric.
const Cosine Distance = "cosine"

// Payload is an arbitrary JSON-compatible attribute map stored
// alongside a vector.
type Payload map[string]any

// Point is a single row: an id, its vector, and its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Scored is a Point plus the similarity score it was retrieved with.
type Scored struct {
	Point
	Score float32
}

// Filter is a conjunctive mapping of field name to matcher. A matcher
// is either a Go literal (string/float64/bool, compared for
// equality) or an *Op for range/set comparisons.
type Filter map[string]any

// Op expresses a $gte/$lte/$gt/$lt/$in comparison against a field.
type Op struct {
	Gte any
	Lte any
	Gt  any
	Lt  any
	In  []any
}

// Store is the collection-oriented vector index abstraction consumed
// by the persister, searcher, and clusterer.
type Store interface {
	CreateCollection(ctx context.Context, name string, dim int, distance Distance) error
	DeleteCollection(ctx context.Context, name string) error

	Upsert(ctx context.Context, collection string, points []Point) error

	Search(ctx context.Context, collection string, query []float32, limit int, filter Filter) ([]Scored, error)
	Scroll(ctx context.Context, collection string, limit int, filter Filter, withVectors bool) ([]Point, error)
	Count(ctx context.Context, collection string, filter Filter) (int, error)
	Get(ctx context.Context, collection string, id string, withVector bool) (*Point, error)
	Delete(ctx context.Context, collection string, id string) error
}
